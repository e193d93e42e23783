// Package graph implements a checkpointed, bulk-synchronous workflow
// graph engine. Nodes exchange partial state updates merged under an
// explicit per-field policy schema; execution suspends and resumes at
// declared interrupt points; state is checkpointed after every
// completed super-step.
package graph

import (
	"encoding/json"
	"fmt"
)

// State is the shared workflow state. Nodes receive a snapshot and
// return partial updates; they never mutate the snapshot in place.
type State map[string]any

// Clone returns a deep copy of the state. Values must be JSON-shaped
// (maps, slices, strings, numbers, bools); typed payloads are parsed at
// agent boundaries, not stored here.
func (s State) Clone() State {
	if s == nil {
		return State{}
	}
	out := make(State, len(s))
	for k, v := range s {
		out[k] = deepCopyValue(v)
	}
	return out
}

func deepCopyValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		m := make(map[string]any, len(val))
		for k, inner := range val {
			m[k] = deepCopyValue(inner)
		}
		return m
	case []any:
		list := make([]any, len(val))
		for i, inner := range val {
			list[i] = deepCopyValue(inner)
		}
		return list
	case []string:
		list := make([]string, len(val))
		copy(list, val)
		return list
	default:
		return val
	}
}

// GetString reads a string field, returning "" when absent or mistyped.
func (s State) GetString(key string) string {
	v, _ := s[key].(string)
	return v
}

// GetInt reads an integer field, tolerating JSON round-trips that
// produce float64.
func (s State) GetInt(key string) int {
	switch v := s[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return 0
}

// GetBool reads a boolean field, returning false when absent.
func (s State) GetBool(key string) bool {
	v, _ := s[key].(bool)
	return v
}

// GetList reads a list field, returning nil when absent or mistyped.
func (s State) GetList(key string) []any {
	v, _ := s[key].([]any)
	return v
}

// DecodeField parses a state field into a typed value via JSON.
// Boundaries that need structure use this instead of type assertions
// on nested maps.
func DecodeField(s State, key string, out any) error {
	raw, ok := s[key]
	if !ok {
		return fmt.Errorf("state field %q missing", key)
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return fmt.Errorf("state field %q not encodable: %w", key, err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("state field %q: %w", key, err)
	}
	return nil
}

// EncodeField stores a typed value into a state update as its JSON
// map/slice shape, keeping State checkpoint-serializable.
func EncodeField(update State, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding state field %q: %w", key, err)
	}
	var shaped any
	if err := json.Unmarshal(data, &shaped); err != nil {
		return fmt.Errorf("reshaping state field %q: %w", key, err)
	}
	update[key] = shaped
	return nil
}
