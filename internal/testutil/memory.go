package testutil

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/roach88/gridedit/internal/commit"
	"github.com/roach88/gridedit/internal/identity"
	"github.com/roach88/gridedit/internal/record"
	"github.com/roach88/gridedit/internal/tracker"
)

// ErrNotFound is returned by Memory for unknown ids.
var ErrNotFound = errors.New("record not found")

// Memory is an in-memory commit.Backend. Records are keyed by their "id"
// field; creates without one are assigned "s1", "s2", ...
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type Memory struct {
	mu      sync.Mutex
	ids     *identity.Identifier
	seq     int
	order   []string
	data    map[string]record.Record
	deleted map[string]bool
}

var _ commit.Backend = (*Memory)(nil)

// NewMemory creates a backend holding seed.
func NewMemory(seed ...record.Record) *Memory {
	m := &Memory{
		ids:     identity.New(nil, []string{"id"}, nil),
		data:    make(map[string]record.Record),
		deleted: make(map[string]bool),
	}
	for _, rec := range seed {
		key, ok := m.ids.Natural(rec)
		if !ok {
			key = m.nextID()
			rec = rec.With("id", key)
		}
		m.put(key, rec)
	}
	return m
}

func (m *Memory) nextID() string {
	m.seq++
	return fmt.Sprintf("s%d", m.seq)
}

func (m *Memory) put(key string, rec record.Record) {
	if _, ok := m.data[key]; !ok {
		m.order = append(m.order, key)
	}
	m.data[key] = rec.Clone()
}

// Save creates (original nil) or replaces a record.
func (m *Memory) Save(ctx context.Context, current, original record.Record) (record.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.save(current, original)
}

func (m *Memory) save(current, original record.Record) (record.Record, error) {
	key, ok := m.ids.Natural(current)
	if original == nil {
		if !ok {
			key = m.nextID()
			current = current.With("id", key)
		}
		m.put(key, current)
		return current.Clone(), nil
	}

	if !ok {
		if key, ok = m.ids.Natural(original); !ok {
			return nil, fmt.Errorf("update without id: %w", ErrNotFound)
		}
	}
	if _, exists := m.data[key]; !exists {
		return nil, fmt.Errorf("update %s: %w", key, ErrNotFound)
	}
	m.put(key, current)
	return current.Clone(), nil
}

// BulkSave saves every entry, collecting per-record failures.
func (m *Memory) BulkSave(ctx context.Context, changes tracker.ChangeSet) (commit.BulkResult, error) {
	if err := ctx.Err(); err != nil {
		return commit.BulkResult{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	var res commit.BulkResult
	apply := func(current, original record.Record) {
		saved, err := m.save(current, original)
		if err != nil {
			res.Failed = append(res.Failed, commit.Failure{Row: current.Clone(), Error: err.Error()})
			return
		}
		res.Success = append(res.Success, saved)
	}
	for _, rec := range changes.New {
		apply(rec, nil)
	}
	for _, mod := range changes.Modified {
		apply(mod.Updated, mod.Original)
	}
	return res, nil
}

// Delete removes a record.
func (m *Memory) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.data[id]; !ok {
		return fmt.Errorf("delete %s: %w", id, ErrNotFound)
	}
	delete(m.data, id)
	delete(m.deleted, id)
	for i, k := range m.order {
		if k == id {
			m.order = append(m.order[:i:i], m.order[i+1:]...)
			break
		}
	}
	return nil
}

// SoftRemove hides a record from Records.
func (m *Memory) SoftRemove(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.data[id]; !ok {
		return fmt.Errorf("soft remove %s: %w", id, ErrNotFound)
	}
	m.deleted[id] = true
	return nil
}

// Records returns copies of the records not soft-removed, in insertion order.
func (m *Memory) Records() []record.Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]record.Record, 0, len(m.order))
	for _, k := range m.order {
		if !m.deleted[k] {
			out = append(out, m.data[k].Clone())
		}
	}
	return out
}
