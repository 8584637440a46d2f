package status

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/angeloszaimis/status-dashboard/internal/registry"
)

var (
	ErrUnknownService = errors.New("status: unknown service")
	ErrInvalidState   = errors.New("status: invalid state")
)

const DefaultSubscriberBuffer = 64

type entry struct {
	mutex  sync.Mutex
	status ServiceStatus
}

// Store holds the last known status of every registered service.
type Store struct {
	logger  *slog.Logger
	order   []string
	entries map[string]*entry

	cycleMutex sync.RWMutex
	lastCycle  time.Time

	subMutex    sync.RWMutex
	subscribers map[uint64]chan Event
	nextSubID   uint64
	closed      bool
}

// NewStore creates a store with one Unknown entry per registered service.
// The key set is fixed for the lifetime of the store.
func NewStore(reg *registry.Registry, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	ids := reg.IDs()
	s := &Store{
		logger:      logger,
		order:       ids,
		entries:     make(map[string]*entry, len(ids)),
		subscribers: make(map[uint64]chan Event),
	}
	for _, id := range ids {
		s.entries[id] = &entry{status: ServiceStatus{ServiceID: id, State: StateUnknown}}
	}

	return s
}

// Update records the outcome of a probe completed at checkedAt.
// It returns false without error when a result at least as new is already
// stored, which makes repeated and out-of-order updates harmless.
func (s *Store) Update(serviceID string, state State, checkedAt time.Time) (bool, error) {
	if state != StateOnline && state != StateOffline {
		return false, fmt.Errorf("%w: %s", ErrInvalidState, state)
	}

	e, ok := s.entries[serviceID]
	if !ok {
		return false, fmt.Errorf("%w: %q", ErrUnknownService, serviceID)
	}

	e.mutex.Lock()
	defer e.mutex.Unlock()

	if !e.status.LastCheckedAt.IsZero() && !checkedAt.After(e.status.LastCheckedAt) {
		return false, nil
	}

	previous := e.status.State
	e.status.State = state
	e.status.LastCheckedAt = checkedAt

	// Published under the key lock so events for one service keep check order.
	s.publish(Event{
		Type:      EventStatus,
		Status:    e.status,
		Previous:  previous,
		Changed:   previous != state,
		Timestamp: checkedAt,
	})

	return true, nil
}

// Get returns the status of one service.
func (s *Store) Get(serviceID string) (ServiceStatus, bool) {
	e, ok := s.entries[serviceID]
	if !ok {
		return ServiceStatus{}, false
	}

	e.mutex.Lock()
	defer e.mutex.Unlock()
	return e.status, true
}

// All returns every status in registry order.
func (s *Store) All() []ServiceStatus {
	out := make([]ServiceStatus, 0, len(s.order))
	for _, id := range s.order {
		st, _ := s.Get(id)
		out = append(out, st)
	}
	return out
}

// Summary counts services per state.
func (s *Store) Summary() Summary {
	sum := Summary{Total: len(s.order)}
	for _, st := range s.All() {
		switch st.State {
		case StateOnline:
			sum.Online++
		case StateOffline:
			sum.Offline++
		default:
			sum.Unknown++
		}
	}
	return sum
}

// MarkCycleCompleted stamps the completion time of a poll cycle. Stamps older
// than the current one are ignored.
func (s *Store) MarkCycleCompleted(at time.Time) bool {
	s.cycleMutex.Lock()
	if !at.After(s.lastCycle) {
		s.cycleMutex.Unlock()
		return false
	}
	s.lastCycle = at
	s.cycleMutex.Unlock()

	s.publish(Event{
		Type:      EventCycle,
		CycleAt:   at,
		Timestamp: at,
	})
	return true
}

// LastCycle returns the completion time of the newest poll cycle, or the zero
// time before the first cycle completes.
func (s *Store) LastCycle() time.Time {
	s.cycleMutex.RLock()
	defer s.cycleMutex.RUnlock()
	return s.lastCycle
}

// Subscribe registers a listener. Delivery never blocks writers: when the
// buffer is full the event is dropped for that subscriber. The returned cancel
// function closes the channel and is safe to call more than once.
func (s *Store) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = DefaultSubscriberBuffer
	}

	ch := make(chan Event, buffer)

	s.subMutex.Lock()
	defer s.subMutex.Unlock()

	if s.closed {
		close(ch)
		return ch, func() {}
	}

	id := s.nextSubID
	s.nextSubID++
	s.subscribers[id] = ch

	return ch, func() {
		s.subMutex.Lock()
		defer s.subMutex.Unlock()

		if sub, ok := s.subscribers[id]; ok {
			delete(s.subscribers, id)
			close(sub)
		}
	}
}

// Subscribers returns the number of active subscriptions.
func (s *Store) Subscribers() int {
	s.subMutex.RLock()
	defer s.subMutex.RUnlock()
	return len(s.subscribers)
}

// Close ends every subscription. Updates after Close are still applied but no
// longer published.
func (s *Store) Close() {
	s.subMutex.Lock()
	defer s.subMutex.Unlock()

	if s.closed {
		return
	}
	s.closed = true

	for id, ch := range s.subscribers {
		delete(s.subscribers, id)
		close(ch)
	}
}

func (s *Store) publish(event Event) {
	s.subMutex.RLock()
	defer s.subMutex.RUnlock()

	for id, ch := range s.subscribers {
		select {
		case ch <- event:
		default:
			s.logger.Warn("Dropping status event for slow subscriber",
				slog.Uint64("subscriber", id),
				slog.String("type", string(event.Type)),
				slog.String("service", event.Status.ServiceID))
		}
	}
}
