package record

import (
	"reflect"
	"slices"
)

// Record is one logical entity being edited, a table row.
type Record map[string]any

// Empty returns a new empty record. New rows start from Empty, never nil.
func Empty() Record {
	return Record{}
}

// Clone returns a deep copy of r.
// Nested maps and slices produced by JSON or YAML decoding are copied;
// other values are copied by assignment.
// A nil record clones to an empty one.
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = cloneValue(v)
	}
	return out
}

// Get returns the value for field and whether it was present.
func (r Record) Get(field string) (any, bool) {
	v, ok := r[field]
	return v, ok
}

// With returns a copy of r with field set to value.
func (r Record) With(field string, value any) Record {
	out := r.Clone()
	out[field] = cloneValue(value)
	return out
}

// Keys returns the field names in canonical order.
func (r Record) Keys() []string {
	keys := make([]string, 0, len(r))
	for k := range r {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, compareKeysRFC8785)
	return keys
}

// Equal reports whether a and b are equivalent.
//
// Records are compared through their canonical JSON form. Values that
// cannot be canonicalised (NaN, channels) fall back to reflect.DeepEqual.
func Equal(a, b Record) bool {
	ca, errA := MarshalCanonical(a)
	cb, errB := MarshalCanonical(b)
	if errA != nil || errB != nil {
		return reflect.DeepEqual(a, b)
	}
	return string(ca) == string(cb)
}

// ValueEqual reports whether two field values are equivalent.
func ValueEqual(a, b any) bool {
	ca, errA := MarshalCanonical(a)
	cb, errB := MarshalCanonical(b)
	if errA != nil || errB != nil {
		return reflect.DeepEqual(a, b)
	}
	return string(ca) == string(cb)
}

func cloneValue(v any) any {
	switch val := v.(type) {
	case Record:
		return val.Clone()
	case map[string]any:
		return map[string]any(Record(val).Clone())
	case []any:
		out := make([]any, len(val))
		for i, elem := range val {
			out[i] = cloneValue(elem)
		}
		return out
	case []string:
		return slices.Clone(val)
	default:
		return v
	}
}
