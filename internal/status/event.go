package status

import "time"

type EventType string

const (
	EventStatus EventType = "status"
	EventCycle  EventType = "cycle"
)

// Event is delivered to subscribers after every applied update and every
// cycle completion stamp.
type Event struct {
	Type      EventType     `json:"type"`
	Status    ServiceStatus `json:"status,omitzero"`
	Previous  State         `json:"previous,omitzero"`
	Changed   bool          `json:"changed,omitempty"`
	CycleAt   time.Time     `json:"cycle_at,omitzero"`
	Timestamp time.Time     `json:"timestamp"`
}
