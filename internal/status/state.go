package status

import (
	"encoding/json"
	"time"
)

// State is the derived reachability of a service.
type State int

const (
	StateUnknown State = iota // no completed probe yet
	StateOnline
	StateOffline
)

func (s State) String() string {
	switch s {
	case StateUnknown:
		return "unknown"
	case StateOnline:
		return "online"
	case StateOffline:
		return "offline"
	default:
		return "invalid"
	}
}

func (s State) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// ServiceStatus is the last known state of one service.
type ServiceStatus struct {
	ServiceID     string    `json:"service_id"`
	State         State     `json:"state"`
	LastCheckedAt time.Time `json:"last_checked_at"`
}

// Summary aggregates the state of every service.
type Summary struct {
	Total   int `json:"total"`
	Online  int `json:"online"`
	Offline int `json:"offline"`
	Unknown int `json:"unknown"`
}
