package engine

import (
	"github.com/roach88/gridedit/internal/record"
	"github.com/roach88/gridedit/internal/rowstate"
	"github.com/roach88/gridedit/internal/tracker"
)

// Snapshot is a consistent, caller-owned view of the engine at one
// collection version.
type Snapshot struct {
	Version uint64          `json:"version"`
	Rows    []rowstate.Row  `json:"rows"`
	Visible []record.Record `json:"visible"`
	Pending tracker.Summary `json:"pending"`
	Editing string          `json:"editing,omitempty"`
}

func (e *Engine) snapshotOf(c *rowstate.Collection) Snapshot {
	rows := c.Rows()
	s := Snapshot{
		Version: c.Version(),
		Rows:    make([]rowstate.Row, len(rows)),
		Visible: c.Visible(),
		Pending: tracker.Summarize(rows),
	}
	for i, r := range rows {
		s.Rows[i] = r.Clone()
	}
	s.Editing, _ = e.Editing()
	return s
}

// Snapshot returns the current state.
func (e *Engine) Snapshot() Snapshot {
	return e.snapshotOf(e.rows.Load())
}

// Version returns the current collection version.
func (e *Engine) Version() uint64 {
	return e.rows.Load().Version()
}

// Visible returns copies of the working copies of all rows that are not
// deleted, in display order.
func (e *Engine) Visible() []record.Record {
	return e.rows.Load().Visible()
}

// Rows returns copies of all tracked rows in display order.
func (e *Engine) Rows() []rowstate.Row {
	rows := e.rows.Load().Rows()
	for i, r := range rows {
		rows[i] = r.Clone()
	}
	return rows
}

// Row returns a copy of the row for key.
func (e *Engine) Row(key string) (rowstate.Row, bool) {
	r, ok := e.rows.Load().Get(key)
	if !ok {
		return rowstate.Row{}, false
	}
	return r.Clone(), true
}

// Pending returns the change set a batch commit would submit now,
// plus pending soft-removals.
func (e *Engine) Pending() tracker.ChangeSet {
	return tracker.Track(e.rows.Load().Rows())
}

// HasPendingChanges reports whether anything is new, modified or deleted.
func (e *Engine) HasPendingChanges() bool {
	return tracker.HasPendingChanges(e.rows.Load().Rows())
}

// Summary counts pending changes.
func (e *Engine) Summary() tracker.Summary {
	return tracker.Summarize(e.rows.Load().Rows())
}

// RowErrors is the error state of one row.
type RowErrors struct {
	Key         string             `json:"key"`
	FieldErrors record.FieldErrors `json:"field_errors,omitempty"`
	RowError    string             `json:"row_error,omitempty"`
}

// Errors returns the error state of every row that has one, in display
// order.
func (e *Engine) Errors() []RowErrors {
	var out []RowErrors
	for _, r := range e.rows.Load().Rows() {
		if r.HasError() {
			out = append(out, RowErrors{
				Key:         r.Key,
				FieldErrors: r.FieldErrors.Clone(),
				RowError:    r.RowError,
			})
		}
	}
	return out
}

// Editing returns the key of the focused row.
func (e *Engine) Editing() (string, bool) {
	p := e.editing.Load()
	if p == nil {
		return "", false
	}
	return *p, true
}

// Subscribe registers fn to receive a Snapshot after every transition and
// returns a function that unregisters it.
//
// fn runs on the goroutine that made the transition, after the lock is
// released, so it may call back into the engine. A snapshot no newer than
// the last one handed out is skipped.
func (e *Engine) Subscribe(fn func(Snapshot)) (unsubscribe func()) {
	e.subMu.Lock()
	id := e.nextSub
	e.nextSub++
	e.subscribers[id] = fn
	e.subMu.Unlock()

	return func() {
		e.subMu.Lock()
		delete(e.subscribers, id)
		e.subMu.Unlock()
	}
}

func (e *Engine) notify(c *rowstate.Collection) {
	e.subMu.Lock()
	if len(e.subscribers) == 0 || c.Version() <= e.lastNotified {
		e.subMu.Unlock()
		return
	}
	e.lastNotified = c.Version()
	subs := make([]func(Snapshot), 0, len(e.subscribers))
	for id := 0; id < e.nextSub; id++ {
		if fn, ok := e.subscribers[id]; ok {
			subs = append(subs, fn)
		}
	}
	e.subMu.Unlock()

	snap := e.snapshotOf(c)
	for _, fn := range subs {
		fn(snap)
	}
}
