package sections

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

var errNotArray = errors.New("response body is not a JSON array")

// decodeRows parses body as a JSON array and maps every element onto the
// fields of def. Numbers keep their original text.
func decodeRows(body []byte, def Definition) ([]Record, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()

	var raw any
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode body: %w", err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, errors.New("unexpected data after JSON value")
	}

	elements, ok := raw.([]any)
	if !ok {
		return nil, errNotArray
	}

	if def.Limit > 0 && len(elements) > def.Limit {
		elements = elements[:def.Limit]
	}

	rows := make([]Record, 0, len(elements))
	for _, el := range elements {
		rows = append(rows, normalize(el, def.Fields))
	}
	return rows, nil
}

func normalize(element any, fields []string) Record {
	row := make(Record, len(fields))

	switch v := element.(type) {
	case map[string]any:
		for _, f := range fields {
			row[f] = format(v[f])
		}
	default:
		for _, f := range fields {
			row[f] = Placeholder
		}
		// Bare scalars belong to single-field kinds.
		if len(fields) == 1 {
			row[fields[0]] = format(v)
		}
	}

	return row
}

func format(value any) string {
	switch v := value.(type) {
	case nil:
		return Placeholder
	case string:
		if v == "" {
			return Placeholder
		}
		return v
	case json.Number:
		return v.String()
	case bool:
		if v {
			return "true"
		}
		return "false"
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return Placeholder
		}
		return string(b)
	}
}
