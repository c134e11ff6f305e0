package engine

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/roach88/gridedit/internal/commit"
	"github.com/roach88/gridedit/internal/identity"
	"github.com/roach88/gridedit/internal/rowstate"
	"github.com/roach88/gridedit/internal/validate"
)

// Engine tracks pending edits to a working set of records.
//
// Thread-safety model:
//   - All methods are safe for concurrent use
//   - Transitions hold mu only to derive and publish the next Collection
//   - Validators and backend calls run outside the lock with the caller's ctx
//   - Views read the published Collection without locking
//
// INVARIANTS:
//   - A published Collection is never modified
//   - Collection versions strictly increase
//   - A row in the saving lifecycle accepts no operation until its commit
//     resolves
type Engine struct {
	mu      sync.Mutex
	rows    atomic.Pointer[rowstate.Collection]
	editing atomic.Pointer[string]

	ids       *identity.Identifier
	validator *validate.Orchestrator
	commits   *commit.Coordinator
	sink      ErrorSink
	logger    *slog.Logger

	subMu        sync.Mutex
	subscribers  map[int]func(Snapshot)
	nextSub      int
	lastNotified uint64

	// set by options, consumed by New
	identityFn identity.Func
	idFields   []string
	keyGen     identity.KeyGenerator
	schema     validate.SchemaValidator
	cells      *validate.Registry
	async      validate.AsyncValidator
	parallel   bool
}

// EngineOption allows configuration of engine parameters.
type EngineOption func(*Engine)

// WithIdentity sets the function that extracts record keys. When set it
// is authoritative over id-like fields.
func WithIdentity(fn identity.Func) EngineOption {
	return func(e *Engine) {
		e.identityFn = fn
	}
}

// WithIDFields replaces the id-like fields consulted when no identity
// function is set. Default: identity.DefaultIDFields.
func WithIDFields(fields ...string) EngineOption {
	return func(e *Engine) {
		e.idFields = fields
	}
}

// WithKeyGenerator sets the generator of placeholder keys for new rows.
// Default: identity.UUIDv7Generator.
func WithKeyGenerator(g identity.KeyGenerator) EngineOption {
	return func(e *Engine) {
		e.keyGen = g
	}
}

// WithSchema sets the schema validation layer.
func WithSchema(v validate.SchemaValidator) EngineOption {
	return func(e *Engine) {
		e.schema = v
	}
}

// WithCellValidators sets the per-field validation layer.
func WithCellValidators(r *validate.Registry) EngineOption {
	return func(e *Engine) {
		e.cells = r
	}
}

// WithAsyncValidator sets the server-side validation layer.
func WithAsyncValidator(v validate.AsyncValidator) EngineOption {
	return func(e *Engine) {
		e.async = v
	}
}

// WithParallelCells runs cell validators concurrently.
func WithParallelCells() EngineOption {
	return func(e *Engine) {
		e.parallel = true
	}
}

// WithErrorSink sets the receiver of failures. Default: log at Warn.
func WithErrorSink(s ErrorSink) EngineOption {
	return func(e *Engine) {
		e.sink = s
	}
}

// WithLogger sets the engine logger. Default: slog.Default().
func WithLogger(l *slog.Logger) EngineOption {
	return func(e *Engine) {
		e.logger = l
	}
}

// New creates an Engine committing through backend.
func New(backend commit.Backend, opts ...EngineOption) *Engine {
	e := &Engine{
		subscribers: make(map[int]func(Snapshot)),
	}
	for _, opt := range opts {
		opt(e)
	}

	if e.logger == nil {
		e.logger = slog.Default()
	}
	if e.sink == nil {
		e.sink = logSink{logger: e.logger}
	}

	e.ids = identity.New(e.identityFn, e.idFields, e.keyGen)
	vopts := []validate.Option{
		validate.WithSchema(e.schema),
		validate.WithCells(e.cells),
		validate.WithAsync(e.async),
	}
	if e.parallel {
		vopts = append(vopts, validate.WithParallelCells())
	}
	e.validator = validate.New(vopts...)
	e.commits = commit.NewCoordinator(backend, e.ids)
	e.rows.Store(rowstate.NewCollection())

	return e
}

// update derives the next collection from the published one and
// publishes it. If fn returns an error nothing is published.
func (e *Engine) update(fn func(b *rowstate.Builder) error) (*rowstate.Collection, error) {
	e.mu.Lock()
	cur := e.rows.Load()
	var err error
	next := cur.Apply(func(b *rowstate.Builder) {
		err = fn(b)
	})
	if err != nil {
		e.mu.Unlock()
		return cur, err
	}
	e.rows.Store(next)
	e.mu.Unlock()

	e.notify(next)
	return next, nil
}

// report sends err to the sink and returns it.
func (e *Engine) report(ctx context.Context, err *Error) error {
	e.sink.HandleError(ctx, err)
	return err
}

func (e *Engine) focus(key string) {
	e.editing.Store(&key)
}

// unfocus clears the editing pointer if it points at one of keys, or
// unconditionally when keys is empty.
func (e *Engine) unfocus(keys ...string) {
	if len(keys) == 0 {
		e.editing.Store(nil)
		return
	}
	for _, k := range keys {
		cur := e.editing.Load()
		if cur != nil && *cur == k {
			e.editing.CompareAndSwap(cur, nil)
		}
	}
}

// guard returns the row for key, or the Error rejecting op on it.
func guard(b *rowstate.Builder, key string, op Operation) (rowstate.Row, *Error) {
	row, ok := b.Get(key)
	if !ok {
		return row, &Error{Op: op, Key: key, Err: ErrRowNotFound}
	}
	switch row.Lifecycle {
	case rowstate.Saving:
		return row, &Error{Op: op, Key: key, Record: row.Current.Clone(), Err: ErrRowBusy}
	case rowstate.Deleted:
		return row, &Error{Op: op, Key: key, Record: row.Current.Clone(), Err: ErrRowDeleted}
	}
	return row, nil
}

func saveOp(row rowstate.Row) Operation {
	if row.IsNew {
		return OpCreate
	}
	return OpUpdate
}
