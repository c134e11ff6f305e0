package store

import (
	"fmt"

	"github.com/roach88/gridedit/internal/record"
)

// marshalRecord converts a record to canonical JSON TEXT for storage.
// Uses RFC 8785 canonical JSON for deterministic serialization.
func marshalRecord(rec record.Record) (string, error) {
	data, err := record.MarshalCanonical(rec)
	if err != nil {
		return "", fmt.Errorf("marshal record: %w", err)
	}
	return string(data), nil
}

// unmarshalRecord parses stored JSON TEXT. Integers come back as int64.
func unmarshalRecord(data string) (record.Record, error) {
	if data == "" || data == "{}" {
		return record.Record{}, nil
	}
	return record.Decode([]byte(data))
}
