package registry

import (
	"errors"
	"fmt"
	"net/url"
	"slices"
	"strings"

	"github.com/samber/lo"
)

var (
	ErrEmptyRegistry  = errors.New("registry: at least one service is required")
	ErrDuplicateID    = errors.New("registry: duplicate service id")
	ErrInvalidAddress = errors.New("registry: invalid service address")
)

// Descriptor is the identity, address and display label of one monitored service.
type Descriptor struct {
	ID       string   `json:"id"`
	Address  string   `json:"address"`
	Label    string   `json:"label"`
	Sections []string `json:"sections,omitempty"`

	base *url.URL
}

// URL returns the parsed base address of the service.
func (d Descriptor) URL() *url.URL {
	u := *d.base
	return &u
}

// Resolve joins path onto the service base address, keeping any base path prefix.
func (d Descriptor) Resolve(path string) string {
	u := d.URL()
	u.Path = strings.TrimRight(u.Path, "/") + "/" + strings.TrimLeft(path, "/")
	u.RawQuery = ""
	return u.String()
}

// Offers reports whether the service exposes the given section kind.
func (d Descriptor) Offers(kind string) bool {
	return lo.Contains(d.Sections, kind)
}

func (d Descriptor) clone() Descriptor {
	d.Sections = slices.Clone(d.Sections)
	return d
}

// NewDescriptor parses address and returns a descriptor for it.
func NewDescriptor(id, address, label string, sections ...string) (Descriptor, error) {
	u, err := url.Parse(address)
	if err != nil {
		return Descriptor{}, fmt.Errorf("%w %q: %v", ErrInvalidAddress, address, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return Descriptor{}, fmt.Errorf("%w %q: scheme must be http or https", ErrInvalidAddress, address)
	}
	if u.Host == "" {
		return Descriptor{}, fmt.Errorf("%w %q: missing host", ErrInvalidAddress, address)
	}

	return Descriptor{
		ID:       id,
		Address:  strings.TrimRight(u.String(), "/"),
		Label:    label,
		Sections: lo.Uniq(sections),
		base:     u,
	}, nil
}

// Registry is an ordered, read-only set of descriptors keyed by ID.
type Registry struct {
	ordered []Descriptor
	byID    map[string]int
}

// New builds a registry. IDs must be unique and the set must not be empty.
func New(descriptors ...Descriptor) (*Registry, error) {
	if len(descriptors) == 0 {
		return nil, ErrEmptyRegistry
	}

	r := &Registry{
		ordered: make([]Descriptor, 0, len(descriptors)),
		byID:    make(map[string]int, len(descriptors)),
	}

	for _, d := range descriptors {
		if d.base == nil {
			return nil, fmt.Errorf("%w: descriptor %q was not built with NewDescriptor", ErrInvalidAddress, d.ID)
		}
		if _, exists := r.byID[d.ID]; exists {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateID, d.ID)
		}
		r.byID[d.ID] = len(r.ordered)
		r.ordered = append(r.ordered, d.clone())
	}

	return r, nil
}

// Lookup returns the descriptor registered under id.
func (r *Registry) Lookup(id string) (Descriptor, bool) {
	i, ok := r.byID[id]
	if !ok {
		return Descriptor{}, false
	}
	return r.ordered[i].clone(), true
}

// Contains reports whether id is registered.
func (r *Registry) Contains(id string) bool {
	_, ok := r.byID[id]
	return ok
}

// All returns a copy of every descriptor in configuration order.
func (r *Registry) All() []Descriptor {
	return lo.Map(r.ordered, func(d Descriptor, _ int) Descriptor { return d.clone() })
}

// IDs returns the service identifiers in configuration order.
func (r *Registry) IDs() []string {
	return lo.Map(r.ordered, func(d Descriptor, _ int) string { return d.ID })
}

// Len returns the number of registered services.
func (r *Registry) Len() int {
	return len(r.ordered)
}
