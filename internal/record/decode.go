package record

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Decode parses a JSON object into a Record.
// Numbers are decoded via json.Number to avoid float64 precision loss for
// integers > 2^53: integers become int64, everything else float64.
func Decode(data []byte) (Record, error) {
	var obj map[string]any
	if err := decodeNumbers(data, &obj); err != nil {
		return nil, fmt.Errorf("decode record: %w", err)
	}
	if obj == nil {
		return Record{}, nil
	}
	return Record(normalizeNumbers(obj).(map[string]any)), nil
}

// DecodeList parses a JSON array of objects. Numbers are handled as in
// Decode.
func DecodeList(data []byte) ([]Record, error) {
	var arr []map[string]any
	if err := decodeNumbers(data, &arr); err != nil {
		return nil, fmt.Errorf("decode records: %w", err)
	}
	out := make([]Record, len(arr))
	for i, obj := range arr {
		if obj == nil {
			return nil, fmt.Errorf("decode records: element %d is not an object", i)
		}
		out[i] = Record(normalizeNumbers(obj).(map[string]any))
	}
	return out, nil
}

func decodeNumbers(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	return dec.Decode(v)
}

func normalizeNumbers(v any) any {
	switch val := v.(type) {
	case json.Number:
		if i, err := val.Int64(); err == nil {
			return i
		}
		f, _ := val.Float64()
		return f
	case map[string]any:
		for k, item := range val {
			val[k] = normalizeNumbers(item)
		}
		return val
	case []any:
		for i, item := range val {
			val[i] = normalizeNumbers(item)
		}
		return val
	default:
		return v
	}
}
