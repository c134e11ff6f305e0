package record

import "slices"

// FieldErrors maps a field name to a human-readable message.
// A nil or empty map means the record is valid.
type FieldErrors map[string]string

// Clone returns a copy of fe, or nil when fe is empty.
func (fe FieldErrors) Clone() FieldErrors {
	if len(fe) == 0 {
		return nil
	}
	out := make(FieldErrors, len(fe))
	for k, v := range fe {
		out[k] = v
	}
	return out
}

// Fields returns the flagged field names in sorted order.
func (fe FieldErrors) Fields() []string {
	fields := make([]string, 0, len(fe))
	for k := range fe {
		fields = append(fields, k)
	}
	slices.Sort(fields)
	return fields
}

// Without returns a copy of fe minus field, or nil when nothing remains.
func (fe FieldErrors) Without(field string) FieldErrors {
	out := fe.Clone()
	delete(out, field)
	if len(out) == 0 {
		return nil
	}
	return out
}
