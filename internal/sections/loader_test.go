package sections_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/angeloszaimis/status-dashboard/internal/metrics"
	"github.com/angeloszaimis/status-dashboard/internal/registry"
	"github.com/angeloszaimis/status-dashboard/internal/sections"
)

// fakeService serves canned bodies per path.
type fakeService struct {
	mutex  sync.Mutex
	bodies map[string]string
	codes  map[string]int
	gates  map[string]chan struct{}
	hits   map[string]int
	server *httptest.Server
}

func newFakeService() *fakeService {
	f := &fakeService{
		bodies: map[string]string{},
		codes:  map[string]int{},
		gates:  map[string]chan struct{}{},
		hits:   map[string]int{},
	}
	f.server = httptest.NewServer(http.HandlerFunc(f.serve))
	return f
}

func (f *fakeService) Set(path string, code int, body string) {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	f.codes[path] = code
	f.bodies[path] = body
}

func (f *fakeService) Gate(path string) chan struct{} {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	g := make(chan struct{})
	f.gates[path] = g
	return g
}

func (f *fakeService) Hits(path string) int {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	return f.hits[path]
}

func (f *fakeService) serve(w http.ResponseWriter, r *http.Request) {
	f.mutex.Lock()
	f.hits[r.URL.Path]++
	code, ok := f.codes[r.URL.Path]
	body := f.bodies[r.URL.Path]
	gate := f.gates[r.URL.Path]
	delete(f.gates, r.URL.Path)
	f.mutex.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-r.Context().Done():
			return
		}
	}

	if !ok {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	fmt.Fprint(w, body)
}

func mustRegistry(descriptors ...registry.Descriptor) *registry.Registry {
	reg, err := registry.New(descriptors...)
	Expect(err).NotTo(HaveOccurred())
	return reg
}

func mustDescriptor(id, address string, kinds ...sections.Kind) registry.Descriptor {
	names := make([]string, len(kinds))
	for i, k := range kinds {
		names[i] = string(k)
	}
	d, err := registry.NewDescriptor(id, address, id, names...)
	Expect(err).NotTo(HaveOccurred())
	return d
}

var _ = Describe("Loader", func() {
	var (
		ctx     context.Context
		weight  *fakeService
		billing *fakeService
		loader  *sections.Loader
	)

	BeforeEach(func() {
		ctx = context.Background()
		weight = newFakeService()
		billing = newFakeService()

		reg := mustRegistry(
			mustDescriptor("weight", weight.server.URL,
				sections.KindPrimaryRecords, sections.KindUnknownItems, sections.KindRecentSummary),
			mustDescriptor("billing", billing.server.URL, sections.KindRateTable),
			mustDescriptor("devops", "http://127.0.0.1:1"),
		)
		loader = sections.NewLoader(reg, nil, sections.WithTimeout(500*time.Millisecond))
	})

	AfterEach(func() {
		weight.server.Close()
		billing.server.Close()
	})

	Describe("Load", func() {
		It("should fill missing fields with the placeholder", func() {
			weight.Set("/weight", http.StatusOK, `[{"id":1,"truck":"T1"}]`)

			ds, err := loader.Load(ctx, "weight", sections.KindPrimaryRecords)
			Expect(err).NotTo(HaveOccurred())
			Expect(ds.State).To(Equal(sections.StateLoaded))
			Expect(ds.Fields).To(Equal([]string{"id", "direction", "truck", "bruto", "datetime"}))
			Expect(ds.Rows).To(HaveLen(1))
			Expect(ds.Rows[0]).To(Equal(sections.Record{
				"id":        "1",
				"direction": "—",
				"truck":     "T1",
				"bruto":     "—",
				"datetime":  "—",
			}))
			Expect(ds.Failure).To(BeNil())
			Expect(ds.FetchedAt).NotTo(BeZero())
		})

		It("should keep values verbatim", func() {
			weight.Set("/weight", http.StatusOK, `[
				{"id":7,"direction":"in","truck":"","bruto":12345.50,"datetime":"2026-01-02T03:04:05","extra":true},
				{"id":8,"direction":null,"truck":"T2","bruto":0,"datetime":"20260102"}
			]`)

			ds, err := loader.Load(ctx, "weight", sections.KindPrimaryRecords)
			Expect(err).NotTo(HaveOccurred())
			Expect(ds.Values(ds.Rows[0])).To(Equal([]string{"7", "in", "—", "12345.50", "2026-01-02T03:04:05"}))
			Expect(ds.Values(ds.Rows[1])).To(Equal([]string{"8", "—", "T2", "0", "20260102"}))
		})

		It("should treat an empty array as a loaded empty dataset", func() {
			billing.Set("/rates", http.StatusOK, `[]`)

			ds, err := loader.Load(ctx, "billing", sections.KindRateTable)
			Expect(err).NotTo(HaveOccurred())
			Expect(ds.State).To(Equal(sections.StateLoaded))
			Expect(ds.Rows).To(BeEmpty())
			Expect(ds.Rows).NotTo(BeNil())
		})

		It("should fail on a malformed body", func() {
			billing.Set("/rates", http.StatusOK, `[{"product":`)

			ds, err := loader.Load(ctx, "billing", sections.KindRateTable)
			Expect(err).NotTo(HaveOccurred())
			Expect(ds.State).To(Equal(sections.StateFailed))
			Expect(ds.Failure.Kind).To(Equal(sections.FailureProtocol))
			Expect(ds.Rows).To(BeEmpty())
		})

		DescribeTable("should fail on bodies that are not an array",
			func(body string) {
				billing.Set("/rates", http.StatusOK, body)

				ds, err := loader.Load(ctx, "billing", sections.KindRateTable)
				Expect(err).NotTo(HaveOccurred())
				Expect(ds.State).To(Equal(sections.StateFailed))
				Expect(ds.Failure.Kind).To(Equal(sections.FailureProtocol))
			},
			Entry("null", `null`),
			Entry("object", `{"product":"tomatoes"}`),
			Entry("html", `<html>oops</html>`),
			Entry("trailing data", `[] []`),
		)

		It("should fail on a non-2xx status", func() {
			billing.Set("/rates", http.StatusInternalServerError, `[]`)

			ds, err := loader.Load(ctx, "billing", sections.KindRateTable)
			Expect(err).NotTo(HaveOccurred())
			Expect(ds.State).To(Equal(sections.StateFailed))
			Expect(ds.Failure.Kind).To(Equal(sections.FailureProtocol))
			Expect(ds.Failure.Message).To(ContainSubstring("500"))
		})

		It("should report a transport failure when the service is down", func() {
			address := billing.server.URL
			billing.server.Close()
			reg := mustRegistry(mustDescriptor("billing", address, sections.KindRateTable))
			loader = sections.NewLoader(reg, nil)

			ds, err := loader.Load(ctx, "billing", sections.KindRateTable)
			Expect(err).NotTo(HaveOccurred())
			Expect(ds.State).To(Equal(sections.StateFailed))
			Expect(ds.Failure.Kind).To(Equal(sections.FailureTransport))
		})

		It("should fail when the body is too large", func() {
			reg := mustRegistry(mustDescriptor("billing", billing.server.URL, sections.KindRateTable))
			loader = sections.NewLoader(reg, nil, sections.WithMaxBodyBytes(16))
			billing.Set("/rates", http.StatusOK, `[`+strings.Repeat(`"x",`, 20)+`"x"]`)

			ds, err := loader.Load(ctx, "billing", sections.KindRateTable)
			Expect(err).NotTo(HaveOccurred())
			Expect(ds.State).To(Equal(sections.StateFailed))
			Expect(ds.Failure.Message).To(ContainSubstring("exceeds"))
		})

		It("should map scalar elements onto single-field kinds", func() {
			weight.Set("/unknown", http.StatusOK, `["C-1", "", null, 42]`)

			ds, err := loader.Load(ctx, "weight", sections.KindUnknownItems)
			Expect(err).NotTo(HaveOccurred())
			Expect(ds.Rows).To(Equal([]sections.Record{
				{"container": "C-1"},
				{"container": "—"},
				{"container": "—"},
				{"container": "42"},
			}))
		})

		It("should cap rows at the kind limit", func() {
			items := make([]string, 30)
			for i := range items {
				items[i] = fmt.Sprintf(`{"id":%d,"truck":"T%d","direction":"in","bruto":%d}`, i, i, i*10)
			}
			weight.Set("/weight", http.StatusOK, "["+strings.Join(items, ",")+"]")

			records, err := loader.Load(ctx, "weight", sections.KindPrimaryRecords)
			Expect(err).NotTo(HaveOccurred())
			Expect(records.Rows).To(HaveLen(20))

			summary, err := loader.Load(ctx, "weight", sections.KindRecentSummary)
			Expect(err).NotTo(HaveOccurred())
			Expect(summary.Rows).To(HaveLen(5))
			Expect(summary.Values(summary.Rows[4])).To(Equal([]string{"T4", "in", "40"}))
		})

		It("should reject caller mistakes", func() {
			_, err := loader.Load(ctx, "nope", sections.KindRateTable)
			Expect(err).To(MatchError(sections.ErrUnknownService))

			_, err = loader.Load(ctx, "billing", sections.Kind("charts"))
			Expect(err).To(MatchError(sections.ErrUnknownKind))

			_, err = loader.Load(ctx, "billing", sections.KindPrimaryRecords)
			Expect(err).To(MatchError(sections.ErrKindNotOffered))
		})

		It("should replace the previous result instead of merging", func() {
			billing.Set("/rates", http.StatusOK, `[{"product":"a"},{"product":"b"}]`)
			_, err := loader.Load(ctx, "billing", sections.KindRateTable)
			Expect(err).NotTo(HaveOccurred())

			billing.Set("/rates", http.StatusOK, `[{"product":"c"}]`)
			_, err = loader.Load(ctx, "billing", sections.KindRateTable)
			Expect(err).NotTo(HaveOccurred())

			ds, err := loader.Current("billing", sections.KindRateTable)
			Expect(err).NotTo(HaveOccurred())
			Expect(ds.Rows).To(HaveLen(1))
			Expect(ds.Rows[0]["product"]).To(Equal("c"))
		})
	})

	Describe("Current", func() {
		It("should report never loaded before the first load", func() {
			ds, err := loader.Current("weight", sections.KindUnknownItems)
			Expect(err).NotTo(HaveOccurred())
			Expect(ds.State).To(Equal(sections.StateNeverLoaded))
			Expect(ds.Fields).To(Equal([]string{"container"}))
		})

		It("should report loading while a fetch is outstanding", func() {
			gate := billing.Gate("/rates")
			billing.Set("/rates", http.StatusOK, `[{"product":"a"}]`)

			done := make(chan sections.Dataset)
			go func() {
				defer GinkgoRecover()
				ds, err := loader.Load(ctx, "billing", sections.KindRateTable)
				Expect(err).NotTo(HaveOccurred())
				done <- ds
			}()

			Eventually(func() sections.State {
				ds, _ := loader.Current("billing", sections.KindRateTable)
				return ds.State
			}).Should(Equal(sections.StateLoading))

			close(gate)
			Eventually(done).Should(Receive())

			ds, err := loader.Current("billing", sections.KindRateTable)
			Expect(err).NotTo(HaveOccurred())
			Expect(ds.State).To(Equal(sections.StateLoaded))
		})

		It("should keep the newest load when an older one finishes last", func() {
			gate := billing.Gate("/rates")
			billing.Set("/rates", http.StatusOK, `[{"product":"old"}]`)

			slow := make(chan sections.Dataset, 1)
			go func() {
				defer GinkgoRecover()
				ds, err := loader.Load(ctx, "billing", sections.KindRateTable)
				Expect(err).NotTo(HaveOccurred())
				slow <- ds
			}()
			Eventually(func() int { return billing.Hits("/rates") }).Should(Equal(1))

			billing.Set("/rates", http.StatusOK, `[{"product":"new"}]`)
			fresh, err := loader.Load(ctx, "billing", sections.KindRateTable)
			Expect(err).NotTo(HaveOccurred())
			Expect(fresh.Rows[0]["product"]).To(Equal("new"))

			close(gate)
			var stale sections.Dataset
			Eventually(slow).Should(Receive(&stale))
			Expect(stale.Rows[0]["product"]).To(Equal("old"))

			ds, _ := loader.Current("billing", sections.KindRateTable)
			Expect(ds.Rows[0]["product"]).To(Equal("new"))
		})
	})

	Describe("LoadAll", func() {
		It("should load every offered kind in catalog order", func() {
			weight.Set("/weight", http.StatusOK, `[{"id":1,"truck":"T1"}]`)
			weight.Set("/unknown", http.StatusOK, `[]`)

			all, err := loader.LoadAll(ctx, "weight")
			Expect(err).NotTo(HaveOccurred())
			Expect(all).To(HaveLen(3))
			Expect(all[0].Kind).To(Equal(sections.KindPrimaryRecords))
			Expect(all[1].Kind).To(Equal(sections.KindUnknownItems))
			Expect(all[2].Kind).To(Equal(sections.KindRecentSummary))
			for _, ds := range all {
				Expect(ds.State).To(Equal(sections.StateLoaded))
			}
		})

		It("should isolate failures per kind", func() {
			weight.Set("/weight", http.StatusOK, `[]`)

			all, err := loader.LoadAll(ctx, "weight")
			Expect(err).NotTo(HaveOccurred())
			Expect(all[0].State).To(Equal(sections.StateLoaded))
			Expect(all[1].State).To(Equal(sections.StateFailed))
		})

		It("should return nothing for services without sections", func() {
			all, err := loader.LoadAll(ctx, "devops")
			Expect(err).NotTo(HaveOccurred())
			Expect(all).To(BeEmpty())
		})

		It("should reject an unknown service", func() {
			_, err := loader.LoadAll(ctx, "nope")
			Expect(err).To(MatchError(sections.ErrUnknownService))
		})
	})

	Describe("metrics", func() {
		It("should emit one event per load", func() {
			cctx, cancel := context.WithCancel(ctx)
			defer cancel()

			collector := metrics.NewCollector(16, nil)
			collector.Start(cctx)

			reg := mustRegistry(mustDescriptor("billing", billing.server.URL, sections.KindRateTable))
			loader = sections.NewLoader(reg, nil, sections.WithCollector(collector))
			billing.Set("/rates", http.StatusOK, `[{"product":"a"}]`)

			_, err := loader.Load(ctx, "billing", sections.KindRateTable)
			Expect(err).NotTo(HaveOccurred())

			Eventually(func() int64 {
				return collector.Snapshot().Sections["billing/rate-table"].Loads
			}).Should(Equal(int64(1)))
		})
	})
})

var _ = Describe("Catalog", func() {
	It("should list kinds in display order", func() {
		Expect(sections.Kinds()).To(Equal([]sections.Kind{
			sections.KindPrimaryRecords,
			sections.KindUnknownItems,
			sections.KindRateTable,
			sections.KindRecentSummary,
		}))
	})

	It("should not expose the catalog for mutation", func() {
		def, ok := sections.Lookup(sections.KindRateTable)
		Expect(ok).To(BeTrue())
		def.Fields[0] = "changed"

		again, _ := sections.Lookup(sections.KindRateTable)
		Expect(again.Fields[0]).To(Equal("product"))
	})
})
