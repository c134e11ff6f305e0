package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/gridedit/internal/record"
)

// createTestStore creates a new file-backed store for testing.
func createTestStore(t *testing.T, opts ...Option) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path, opts...)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// seedRecords creates recs and returns them as stored.
func seedRecords(t *testing.T, s *Store, recs ...record.Record) []record.Record {
	t.Helper()
	out := make([]record.Record, 0, len(recs))
	for _, rec := range recs {
		saved, err := s.Save(context.Background(), rec, nil)
		require.NoError(t, err)
		out = append(out, saved)
	}
	return out
}
