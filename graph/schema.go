package graph

import "fmt"

// Reducer combines an existing field value with an incoming update and
// returns the merged value.
type Reducer func(old, update any) any

// Policy names how concurrent or sequential updates to a field merge.
type Policy int

const (
	// LastWrite replaces the old value. The default for undeclared fields.
	LastWrite Policy = iota
	// Append concatenates list updates onto the existing list.
	Append
	// Concat appends string updates onto the existing string.
	Concat
	// Custom delegates to a user-supplied Reducer.
	Custom
)

// FieldPolicy binds a policy, and for Custom a reducer, to one field.
type FieldPolicy struct {
	Policy  Policy
	Reducer Reducer
}

// Schema is the explicit per-field merge-policy table for a graph.
// Declaring it once, next to the graph definition, makes concurrent
// write safety reviewable instead of implicit.
type Schema map[string]FieldPolicy

// Validate rejects Custom policies without a reducer.
func (s Schema) Validate() error {
	for field, fp := range s {
		if fp.Policy == Custom && fp.Reducer == nil {
			return fmt.Errorf("schema field %q: custom policy requires a reducer", field)
		}
	}
	return nil
}

// Apply merges a partial update into base under the schema's policies,
// mutating base. Fields without a declared policy use LastWrite.
func (s Schema) Apply(base State, update State) {
	for key, incoming := range update {
		fp := s[key]
		switch fp.Policy {
		case Append:
			base[key] = appendLists(base[key], incoming)
		case Concat:
			base[key] = concatStrings(base[key], incoming)
		case Custom:
			base[key] = fp.Reducer(base[key], incoming)
		default:
			base[key] = incoming
		}
	}
}

func appendLists(old, update any) any {
	merged := toAnyList(old)
	return append(merged, toAnyList(update)...)
}

func toAnyList(v any) []any {
	switch val := v.(type) {
	case nil:
		return nil
	case []any:
		out := make([]any, len(val))
		copy(out, val)
		return out
	case []string:
		out := make([]any, len(val))
		for i, s := range val {
			out[i] = s
		}
		return out
	default:
		return []any{val}
	}
}

func concatStrings(old, update any) any {
	a, _ := old.(string)
	b, _ := update.(string)
	return a + b
}
