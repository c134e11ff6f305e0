package testutil

import (
	"context"
	"errors"
	"sync"

	"github.com/roach88/gridedit/internal/commit"
	"github.com/roach88/gridedit/internal/identity"
	"github.com/roach88/gridedit/internal/record"
	"github.com/roach88/gridedit/internal/tracker"
)

// Op names a backend operation.
type Op string

const (
	OpSave       Op = "save"
	OpBulkSave   Op = "bulk_save"
	OpDelete     Op = "delete"
	OpSoftRemove Op = "soft_remove"
)

// Fault scripts a backend failure.
//
// A fault matches a record when Key equals its row key or natural id, or
// when every field in Where equals the record's. A bulk_save fault with
// neither fails the whole call. Times limits how often the fault fires;
// zero means always.
type Fault struct {
	Op      Op
	Key     string
	Where   record.Record
	Message string
	Times   int

	fired int
}

func (f *Fault) matches(op Op, key string, rec record.Record) bool {
	if f.Op != op || (f.Times > 0 && f.fired >= f.Times) {
		return false
	}
	if f.Key != "" && f.Key == key {
		return true
	}
	if len(f.Where) == 0 {
		return false
	}
	for field, want := range f.Where {
		got, ok := rec[field]
		if !ok || !record.ValueEqual(got, want) {
			return false
		}
	}
	return true
}

// Call records one backend invocation.
type Call struct {
	Op      Op
	Key     string
	Record  record.Record
	Changes *tracker.ChangeSet
	Err     string
}

// Recorder wraps a commit.Backend, recording calls and injecting faults.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type Recorder struct {
	inner commit.Backend
	ids   *identity.Identifier

	mu     sync.Mutex
	faults []*Fault
	calls  []Call
}

var _ commit.Backend = (*Recorder)(nil)

// NewRecorder wraps inner. Natural ids are read from the "id" field.
func NewRecorder(inner commit.Backend) *Recorder {
	return &Recorder{
		inner: inner,
		ids:   identity.New(nil, []string{"id"}, nil),
	}
}

// Inject adds a fault. Returns r for chaining.
func (r *Recorder) Inject(f Fault) *Recorder {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.faults = append(r.faults, &f)
	return r
}

// Heal removes every fault.
func (r *Recorder) Heal() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.faults = nil
}

// Calls returns the recorded calls in order.
func (r *Recorder) Calls() []Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Call(nil), r.calls...)
}

// Count returns how many calls of op were made.
func (r *Recorder) Count(op Op) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, c := range r.calls {
		if c.Op == op {
			n++
		}
	}
	return n
}

// fault returns the message of the first fault matching, consuming one
// firing of it.
func (r *Recorder) fault(op Op, key string, rec record.Record) (string, bool) {
	for _, f := range r.faults {
		if f.matches(op, key, rec) {
			f.fired++
			return f.Message, true
		}
	}
	return "", false
}

func (r *Recorder) record(c Call) {
	r.calls = append(r.calls, c)
}

func (r *Recorder) naturalKey(rec record.Record) string {
	key, _ := r.ids.Natural(rec)
	return key
}

// Save forwards to the wrapped backend unless a save fault matches.
func (r *Recorder) Save(ctx context.Context, current, original record.Record) (record.Record, error) {
	key := r.naturalKey(current)
	if key == "" {
		key = r.naturalKey(original)
	}

	r.mu.Lock()
	msg, failed := r.fault(OpSave, key, current)
	r.mu.Unlock()

	var (
		out record.Record
		err error
	)
	if failed {
		err = errors.New(msg)
	} else {
		out, err = r.inner.Save(ctx, current, original)
	}

	r.mu.Lock()
	r.record(Call{Op: OpSave, Key: key, Record: current.Clone(), Err: errString(err)})
	r.mu.Unlock()
	return out, err
}

// BulkSave removes entries matching a save fault from the batch, reports
// them as failed, and forwards the rest.
func (r *Recorder) BulkSave(ctx context.Context, changes tracker.ChangeSet) (commit.BulkResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c := Call{Op: OpBulkSave, Changes: &changes}

	for _, f := range r.faults {
		if f.Op == OpBulkSave && f.Key == "" && len(f.Where) == 0 && (f.Times == 0 || f.fired < f.Times) {
			f.fired++
			c.Err = f.Message
			r.record(c)
			return commit.BulkResult{}, errors.New(f.Message)
		}
	}

	var (
		pass   tracker.ChangeSet
		failed []commit.Failure
	)
	for i, rec := range changes.New {
		key := keyAt(changes.NewKeys, i)
		if msg, ok := r.itemFault(key, rec); ok {
			failed = append(failed, commit.Failure{Row: rec.Clone(), Error: msg})
			continue
		}
		pass.New = append(pass.New, rec)
		pass.NewKeys = append(pass.NewKeys, key)
	}
	for i, mod := range changes.Modified {
		key := keyAt(changes.ModifiedKeys, i)
		if msg, ok := r.itemFault(key, mod.Updated); ok {
			failed = append(failed, commit.Failure{Row: mod.Updated.Clone(), Error: msg})
			continue
		}
		pass.Modified = append(pass.Modified, mod)
		pass.ModifiedKeys = append(pass.ModifiedKeys, key)
	}
	pass.Deleted = changes.Deleted

	var res commit.BulkResult
	if pass.Committable() {
		var err error
		if res, err = r.inner.BulkSave(ctx, pass); err != nil {
			c.Err = err.Error()
			r.record(c)
			return commit.BulkResult{}, err
		}
	}
	res.Failed = append(failed, res.Failed...)
	r.record(c)
	return res, nil
}

// itemFault checks both the row key and the natural id of a batch entry.
func (r *Recorder) itemFault(key string, rec record.Record) (string, bool) {
	if msg, ok := r.fault(OpSave, key, rec); ok {
		return msg, true
	}
	if natural := r.naturalKey(rec); natural != "" && natural != key {
		return r.fault(OpSave, natural, rec)
	}
	return "", false
}

// Delete forwards unless a delete fault matches id.
func (r *Recorder) Delete(ctx context.Context, id string) error {
	return r.removal(ctx, OpDelete, id, r.inner.Delete)
}

// SoftRemove forwards unless a soft_remove fault matches id.
func (r *Recorder) SoftRemove(ctx context.Context, id string) error {
	return r.removal(ctx, OpSoftRemove, id, r.inner.SoftRemove)
}

func (r *Recorder) removal(ctx context.Context, op Op, id string, next func(context.Context, string) error) error {
	r.mu.Lock()
	msg, failed := r.fault(op, id, nil)
	r.mu.Unlock()

	var err error
	if failed {
		err = errors.New(msg)
	} else {
		err = next(ctx, id)
	}

	r.mu.Lock()
	r.record(Call{Op: op, Key: id, Err: errString(err)})
	r.mu.Unlock()
	return err
}

func keyAt(keys []string, i int) string {
	if i < len(keys) {
		return keys[i]
	}
	return ""
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
