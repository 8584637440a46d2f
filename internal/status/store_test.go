package status_test

import (
	"encoding/json"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/angeloszaimis/status-dashboard/internal/registry"
	"github.com/angeloszaimis/status-dashboard/internal/status"
)

func newRegistry(ids ...string) *registry.Registry {
	descriptors := make([]registry.Descriptor, 0, len(ids))
	for i, id := range ids {
		d, err := registry.NewDescriptor(id, "http://localhost:"+[]string{"5000", "5001", "5002"}[i%3], id)
		Expect(err).NotTo(HaveOccurred())
		descriptors = append(descriptors, d)
	}
	reg, err := registry.New(descriptors...)
	Expect(err).NotTo(HaveOccurred())
	return reg
}

var _ = Describe("Store", func() {
	var (
		store *status.Store
		t0    time.Time
	)

	BeforeEach(func() {
		store = status.NewStore(newRegistry("weight", "billing", "devops"), nil)
		t0 = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	})

	Describe("NewStore", func() {
		It("should start every service as unknown", func() {
			for _, st := range store.All() {
				Expect(st.State).To(Equal(status.StateUnknown))
				Expect(st.LastCheckedAt).To(BeZero())
			}
			Expect(store.LastCycle()).To(BeZero())
		})

		It("should keep registry order", func() {
			ids := []string{}
			for _, st := range store.All() {
				ids = append(ids, st.ServiceID)
			}
			Expect(ids).To(Equal([]string{"weight", "billing", "devops"}))
		})
	})

	Describe("Update", func() {
		It("should apply a first result", func() {
			applied, err := store.Update("weight", status.StateOnline, t0)
			Expect(err).NotTo(HaveOccurred())
			Expect(applied).To(BeTrue())

			st, ok := store.Get("weight")
			Expect(ok).To(BeTrue())
			Expect(st.State).To(Equal(status.StateOnline))
			Expect(st.LastCheckedAt).To(Equal(t0))
		})

		It("should not regress when an older result arrives late", func() {
			t1, t2 := t0, t0.Add(time.Second)

			applied, err := store.Update("billing", status.StateOffline, t2)
			Expect(err).NotTo(HaveOccurred())
			Expect(applied).To(BeTrue())

			applied, err = store.Update("billing", status.StateOnline, t1)
			Expect(err).NotTo(HaveOccurred())
			Expect(applied).To(BeFalse())

			st, _ := store.Get("billing")
			Expect(st.State).To(Equal(status.StateOffline))
			Expect(st.LastCheckedAt).To(Equal(t2))
		})

		It("should be idempotent for the same timestamp", func() {
			_, _ = store.Update("devops", status.StateOnline, t0)
			applied, err := store.Update("devops", status.StateOnline, t0)
			Expect(err).NotTo(HaveOccurred())
			Expect(applied).To(BeFalse())
		})

		It("should reject unknown services", func() {
			_, err := store.Update("nope", status.StateOnline, t0)
			Expect(err).To(MatchError(status.ErrUnknownService))
		})

		It("should reject writing unknown", func() {
			_, err := store.Update("weight", status.StateUnknown, t0)
			Expect(err).To(MatchError(status.ErrInvalidState))
		})

		It("should keep the newest result under concurrent writers", func() {
			var wg sync.WaitGroup
			for i := 0; i < 200; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					state := status.StateOnline
					if i%2 == 1 {
						state = status.StateOffline
					}
					_, _ = store.Update("weight", state, t0.Add(time.Duration(i)*time.Millisecond))
				}(i)
			}
			wg.Wait()

			st, _ := store.Get("weight")
			Expect(st.LastCheckedAt).To(Equal(t0.Add(199 * time.Millisecond)))
			Expect(st.State).To(Equal(status.StateOffline))
		})
	})

	Describe("Get", func() {
		It("should miss unknown services", func() {
			_, ok := store.Get("nope")
			Expect(ok).To(BeFalse())
		})
	})

	Describe("Summary", func() {
		It("should count services per state", func() {
			_, _ = store.Update("weight", status.StateOnline, t0)
			_, _ = store.Update("billing", status.StateOffline, t0)

			Expect(store.Summary()).To(Equal(status.Summary{Total: 3, Online: 1, Offline: 1, Unknown: 1}))
		})
	})

	Describe("MarkCycleCompleted", func() {
		It("should only move forward", func() {
			Expect(store.MarkCycleCompleted(t0.Add(time.Minute))).To(BeTrue())
			Expect(store.MarkCycleCompleted(t0)).To(BeFalse())
			Expect(store.LastCycle()).To(Equal(t0.Add(time.Minute)))
		})
	})

	Describe("Subscribe", func() {
		It("should deliver applied updates with the previous state", func() {
			events, cancel := store.Subscribe(4)
			defer cancel()

			_, _ = store.Update("weight", status.StateOnline, t0)

			var ev status.Event
			Eventually(events).Should(Receive(&ev))
			Expect(ev.Type).To(Equal(status.EventStatus))
			Expect(ev.Status.ServiceID).To(Equal("weight"))
			Expect(ev.Previous).To(Equal(status.StateUnknown))
			Expect(ev.Changed).To(BeTrue())
		})

		It("should mark refreshes without transitions as unchanged", func() {
			_, _ = store.Update("weight", status.StateOnline, t0)

			events, cancel := store.Subscribe(4)
			defer cancel()

			_, _ = store.Update("weight", status.StateOnline, t0.Add(time.Second))

			var ev status.Event
			Eventually(events).Should(Receive(&ev))
			Expect(ev.Changed).To(BeFalse())
		})

		It("should not publish ignored updates", func() {
			_, _ = store.Update("weight", status.StateOnline, t0.Add(time.Second))

			events, cancel := store.Subscribe(4)
			defer cancel()

			_, _ = store.Update("weight", status.StateOffline, t0)
			Consistently(events, 50*time.Millisecond).ShouldNot(Receive())
		})

		It("should publish cycle stamps", func() {
			events, cancel := store.Subscribe(4)
			defer cancel()

			store.MarkCycleCompleted(t0)

			var ev status.Event
			Eventually(events).Should(Receive(&ev))
			Expect(ev.Type).To(Equal(status.EventCycle))
			Expect(ev.CycleAt).To(Equal(t0))
		})

		It("should drop events instead of blocking on a full buffer", func() {
			events, cancel := store.Subscribe(1)
			defer cancel()

			_, _ = store.Update("weight", status.StateOnline, t0)
			_, _ = store.Update("billing", status.StateOnline, t0)

			Expect(events).To(HaveLen(1))
		})

		It("should close the channel on cancel", func() {
			events, cancel := store.Subscribe(1)
			Expect(store.Subscribers()).To(Equal(1))

			cancel()
			cancel()

			Expect(store.Subscribers()).To(Equal(0))
			Eventually(events).Should(BeClosed())
		})

		It("should close every subscription on Close", func() {
			first, _ := store.Subscribe(1)
			second, _ := store.Subscribe(1)

			store.Close()

			Eventually(first).Should(BeClosed())
			Eventually(second).Should(BeClosed())

			late, _ := store.Subscribe(1)
			Eventually(late).Should(BeClosed())
		})
	})

	Describe("State", func() {
		It("should render as lower-case text", func() {
			Expect(status.StateOnline.String()).To(Equal("online"))
			Expect(status.StateOffline.String()).To(Equal("offline"))
			Expect(status.StateUnknown.String()).To(Equal("unknown"))

			raw, err := json.Marshal(status.ServiceStatus{ServiceID: "weight", State: status.StateOnline})
			Expect(err).NotTo(HaveOccurred())
			Expect(string(raw)).To(ContainSubstring(`"state":"online"`))
		})
	})
})
