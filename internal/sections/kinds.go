package sections

import "github.com/samber/lo"

// Kind names one section data set a service can expose.
type Kind string

const (
	KindPrimaryRecords Kind = "primary-records"
	KindUnknownItems   Kind = "unknown-items"
	KindRateTable      Kind = "rate-table"
	KindRecentSummary  Kind = "recent-summary"
)

// Definition describes where a kind is fetched from and how its rows are shaped.
type Definition struct {
	Kind     Kind     `json:"kind"`
	Resource string   `json:"resource"`
	Fields   []string `json:"fields"`
	// Limit caps the number of rows kept. Zero keeps every row.
	Limit int `json:"limit,omitempty"`
}

var catalog = []Definition{
	{
		Kind:     KindPrimaryRecords,
		Resource: "/weight",
		Fields:   []string{"id", "direction", "truck", "bruto", "datetime"},
		Limit:    20,
	},
	{
		Kind:     KindUnknownItems,
		Resource: "/unknown",
		Fields:   []string{"container"},
	},
	{
		Kind:     KindRateTable,
		Resource: "/rates",
		Fields:   []string{"product", "rate", "scope"},
	},
	{
		Kind:     KindRecentSummary,
		Resource: "/weight",
		Fields:   []string{"truck", "direction", "bruto"},
		Limit:    5,
	},
}

// Catalog returns every known kind in display order.
func Catalog() []Definition {
	return lo.Map(catalog, func(s Definition, _ int) Definition {
		s.Fields = append([]string(nil), s.Fields...)
		return s
	})
}

// Kinds returns the kind names in display order.
func Kinds() []Kind {
	return lo.Map(catalog, func(s Definition, _ int) Kind { return s.Kind })
}

// Lookup returns the definition registered for kind.
func Lookup(kind Kind) (Definition, bool) {
	s, ok := lo.Find(catalog, func(s Definition) bool { return s.Kind == kind })
	if ok {
		s.Fields = append([]string(nil), s.Fields...)
	}
	return s, ok
}

// KnownKind reports whether kind is part of the catalog.
func KnownKind(kind string) bool {
	_, ok := Lookup(Kind(kind))
	return ok
}
