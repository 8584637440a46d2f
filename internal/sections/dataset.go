package sections

import (
	"encoding/json"
	"time"
)

// Placeholder stands in for missing, null or empty field values.
const Placeholder = "—"

// State is the load marker of one (service, kind) dataset.
type State int

const (
	StateNeverLoaded State = iota
	StateLoading
	StateLoaded
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateLoading:
		return "loading"
	case StateLoaded:
		return "loaded"
	case StateFailed:
		return "failed"
	default:
		return "never_loaded"
	}
}

func (s State) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

type FailureKind string

const (
	FailureTransport FailureKind = "transport"
	FailureProtocol  FailureKind = "protocol"
)

// Failure explains why a dataset could not be loaded.
type Failure struct {
	Kind    FailureKind `json:"kind"`
	Message string      `json:"message"`
}

// Record is one normalised row keyed by field name. Every field of the kind is
// present.
type Record map[string]string

// Dataset is the latest known content of one section for one service.
// A Loaded dataset with no rows is a successful empty result.
type Dataset struct {
	ServiceID string    `json:"service_id"`
	Kind      Kind      `json:"kind"`
	State     State     `json:"state"`
	Fields    []string  `json:"fields"`
	Rows      []Record  `json:"rows"`
	FetchedAt time.Time `json:"fetched_at,omitzero"`
	Failure   *Failure  `json:"failure,omitempty"`
}

// Values returns the row's values in field order.
func (d Dataset) Values(row Record) []string {
	out := make([]string, len(d.Fields))
	for i, f := range d.Fields {
		out[i] = row[f]
	}
	return out
}
