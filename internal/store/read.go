package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/gridedit/internal/record"
)

// Entry is a stored record with its bookkeeping columns.
type Entry struct {
	Key     string        `json:"key"`
	Data    record.Record `json:"data"`
	Deleted bool          `json:"deleted"`
	Seq     int64         `json:"seq"`
}

// Commit is one row of the commit log.
type Commit struct {
	Seq         int64  `json:"seq"`
	Operation   string `json:"operation"`
	Key         string `json:"key"`
	Fingerprint string `json:"fingerprint,omitempty"`
}

// Get returns the record for key, including soft-removed ones.
func (s *Store) Get(ctx context.Context, key string) (Entry, error) {
	var (
		e    Entry
		data string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT key, data, deleted, seq FROM records WHERE key = ?
	`, key).Scan(&e.Key, &data, &e.Deleted, &e.Seq)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, fmt.Errorf("get %s: %w", key, ErrNotFound)
	}
	if err != nil {
		return Entry{}, fmt.Errorf("get %s: %w", key, err)
	}
	if e.Data, err = unmarshalRecord(data); err != nil {
		return Entry{}, fmt.Errorf("get %s: %w", key, err)
	}
	return e, nil
}

// List returns the records not soft-removed, in creation order.
// Returns an empty slice (not nil) if there are none.
func (s *Store) List(ctx context.Context) ([]record.Record, error) {
	entries, err := s.entries(ctx, false)
	if err != nil {
		return nil, err
	}
	out := make([]record.Record, len(entries))
	for i, e := range entries {
		out[i] = e.Data
	}
	return out, nil
}

// ListAll returns every stored record, including soft-removed ones, in
// creation order.
func (s *Store) ListAll(ctx context.Context) ([]Entry, error) {
	return s.entries(ctx, true)
}

func (s *Store) entries(ctx context.Context, all bool) ([]Entry, error) {
	query := `SELECT key, data, deleted, seq FROM records WHERE deleted = 0 ORDER BY seq ASC, key COLLATE BINARY ASC`
	if all {
		query = `SELECT key, data, deleted, seq FROM records ORDER BY seq ASC, key COLLATE BINARY ASC`
	}

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		var (
			e    Entry
			data string
		)
		if err := rows.Scan(&e.Key, &data, &e.Deleted, &e.Seq); err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		if e.Data, err = unmarshalRecord(data); err != nil {
			return nil, fmt.Errorf("record %s: %w", e.Key, err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate records: %w", err)
	}
	return entries, nil
}

// Commits returns the commit log in seq order.
func (s *Store) Commits(ctx context.Context) ([]Commit, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, operation, key, fingerprint FROM commits ORDER BY seq ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query commits: %w", err)
	}
	defer rows.Close()

	commits := []Commit{}
	for rows.Next() {
		var c Commit
		if err := rows.Scan(&c.Seq, &c.Operation, &c.Key, &c.Fingerprint); err != nil {
			return nil, fmt.Errorf("scan commit: %w", err)
		}
		commits = append(commits, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate commits: %w", err)
	}
	return commits, nil
}
