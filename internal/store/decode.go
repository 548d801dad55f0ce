package store

import "encoding/json"

// decodeRows converts the []map[string]any a Pool.Query call returns into a
// typed slice, via a JSON round-trip. Keeps Pool's interface schema-agnostic
// while letting each helper in this package work with concrete row types.
func decodeRows[T any](result any) ([]T, error) {
	rows, ok := result.([]map[string]any)
	if !ok || len(rows) == 0 {
		return nil, nil
	}

	data, err := json.Marshal(rows)
	if err != nil {
		return nil, err
	}

	var out []T
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}
