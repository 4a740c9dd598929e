package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// jsonDocument backs the memory and Postgres stores. Each DataTo call decodes
// a fresh value, so callers never share state with the stored copy.
type jsonDocument struct {
	id   string
	data []byte
}

func (d jsonDocument) ID() string {
	return d.id
}

func (d jsonDocument) DataTo(v any) error {
	if err := json.Unmarshal(d.data, v); err != nil {
		return fmt.Errorf("decode document %s: %w", d.id, err)
	}
	return nil
}

func encodeDocument(data any) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	if len(raw) == 0 || raw[0] != '{' {
		return nil, errors.New("encode document: data must encode to a JSON object")
	}
	return raw, nil
}

func decodeFields(raw []byte) (map[string]any, error) {
	fields := map[string]any{}
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("decode fields: %w", err)
	}
	return fields, nil
}

// plainValue converts structs and typed slices into the map/slice/scalar
// shapes produced by decoding JSON.
func plainValue(value any) (any, error) {
	raw, err := json.Marshal(value)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func applyUpdates(fields map[string]any, updates []Update) error {
	for _, u := range updates {
		if len(u.Path) == 0 {
			return errors.New("update path is empty")
		}
		parent := fields
		for _, key := range u.Path[:len(u.Path)-1] {
			next, ok := parent[key].(map[string]any)
			if !ok {
				if u.Delete {
					parent = nil
					break
				}
				next = map[string]any{}
				parent[key] = next
			}
			parent = next
		}
		last := u.Path[len(u.Path)-1]
		if u.Delete {
			if parent != nil {
				delete(parent, last)
			}
			continue
		}
		value, err := plainValue(u.Value)
		if err != nil {
			return fmt.Errorf("encode update %v: %w", u.Path, err)
		}
		parent[last] = value
	}
	return nil
}

func lookup(fields map[string]any, path []string) (any, bool) {
	var current any = fields
	for _, key := range path {
		m, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		current, ok = m[key]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

func matchesFilters(fields map[string]any, filters []Filter) bool {
	for _, f := range filters {
		value, ok := lookup(fields, f.Path)
		if !ok {
			return false
		}
		str, ok := value.(string)
		if !ok {
			return false
		}
		switch f.Op {
		case OpEqual:
			if str != f.Value.(string) {
				return false
			}
		case OpIn:
			found := false
			for _, candidate := range f.Value.([]string) {
				if candidate == str {
					found = true
					break
				}
			}
			if !found {
				return false
			}
		}
	}
	return true
}

func timeAt(fields map[string]any, path []string) time.Time {
	value, ok := lookup(fields, path)
	if !ok {
		return time.Time{}
	}
	str, ok := value.(string)
	if !ok {
		return time.Time{}
	}
	parsed, err := time.Parse(time.RFC3339Nano, str)
	if err != nil {
		return time.Time{}
	}
	return parsed
}
