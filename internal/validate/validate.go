package validate

import (
	"context"
	"fmt"
	"slices"

	"golang.org/x/sync/errgroup"

	"github.com/roach88/gridedit/internal/record"
)

// Layer identifies a validation layer. Higher layers take precedence.
type Layer int

const (
	LayerSchema Layer = iota + 1
	LayerCell
	LayerAsync
)

// String returns the layer name.
func (l Layer) String() string {
	switch l {
	case LayerSchema:
		return "schema"
	case LayerCell:
		return "cell"
	case LayerAsync:
		return "async"
	default:
		return fmt.Sprintf("layer(%d)", int(l))
	}
}

// SchemaValidator checks a record against a declared shape.
type SchemaValidator interface {
	ValidateSchema(rec record.Record) record.FieldErrors
}

// SchemaFunc adapts a function to SchemaValidator.
type SchemaFunc func(rec record.Record) record.FieldErrors

// ValidateSchema calls f.
func (f SchemaFunc) ValidateSchema(rec record.Record) record.FieldErrors {
	return f(rec)
}

// CellValidator checks one field. An empty message means valid.
// A non-nil error means the check itself could not run.
type CellValidator interface {
	ValidateCell(ctx context.Context, value any, rec record.Record, field string) (string, error)
}

// CellFunc adapts a function to CellValidator.
type CellFunc func(ctx context.Context, value any, rec record.Record, field string) (string, error)

// ValidateCell calls f.
func (f CellFunc) ValidateCell(ctx context.Context, value any, rec record.Record, field string) (string, error) {
	return f(ctx, value, rec, field)
}

// AsyncValidator is the server-side layer.
type AsyncValidator interface {
	ValidateAsync(ctx context.Context, rec record.Record, isNew bool) (record.FieldErrors, error)
}

// AsyncFunc adapts a function to AsyncValidator.
type AsyncFunc func(ctx context.Context, rec record.Record, isNew bool) (record.FieldErrors, error)

// ValidateAsync calls f.
func (f AsyncFunc) ValidateAsync(ctx context.Context, rec record.Record, isNew bool) (record.FieldErrors, error) {
	return f(ctx, rec, isNew)
}

// Registry maps field names to cell validators.
// Only registered fields are checked.
type Registry struct {
	fields     []string
	validators map[string]CellValidator
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{validators: map[string]CellValidator{}}
}

// Register sets the validator for field, replacing any previous one.
// Returns the registry for chaining.
func (r *Registry) Register(field string, v CellValidator) *Registry {
	if _, ok := r.validators[field]; !ok {
		r.fields = append(r.fields, field)
	}
	r.validators[field] = v
	return r
}

// RegisterFunc is Register for a plain function.
func (r *Registry) RegisterFunc(field string, fn CellFunc) *Registry {
	return r.Register(field, fn)
}

// Fields returns registered fields in registration order.
func (r *Registry) Fields() []string {
	if r == nil {
		return nil
	}
	return slices.Clone(r.fields)
}

// Lookup returns the validator for field.
func (r *Registry) Lookup(field string) (CellValidator, bool) {
	if r == nil {
		return nil, false
	}
	v, ok := r.validators[field]
	return v, ok
}

// Len returns the number of registered fields.
func (r *Registry) Len() int {
	if r == nil {
		return 0
	}
	return len(r.fields)
}

// LayerResult is the output of one layer.
type LayerResult struct {
	Layer  Layer
	Errors record.FieldErrors
}

// Merge folds layer results left to right with shallow overwrite.
// Results are applied in slice order; callers pass them in layer order.
// Returns nil when no layer reported anything.
func Merge(results ...LayerResult) record.FieldErrors {
	merged := record.FieldErrors{}
	for _, res := range results {
		for field, msg := range res.Errors {
			merged[field] = msg
		}
	}
	if len(merged) == 0 {
		return nil
	}
	return merged
}

// LayerError reports a layer that failed to run.
type LayerError struct {
	Layer Layer
	Field string // set for cell layer failures
	Err   error
}

// Error implements the error interface.
func (e *LayerError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s validation of %q: %v", e.Layer, e.Field, e.Err)
	}
	return fmt.Sprintf("%s validation: %v", e.Layer, e.Err)
}

// Unwrap returns the underlying error.
func (e *LayerError) Unwrap() error {
	return e.Err
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithSchema sets the schema layer.
func WithSchema(v SchemaValidator) Option {
	return func(o *Orchestrator) { o.schema = v }
}

// WithCells sets the cell layer registry.
func WithCells(r *Registry) Option {
	return func(o *Orchestrator) { o.cells = r }
}

// WithAsync sets the async layer.
func WithAsync(v AsyncValidator) Option {
	return func(o *Orchestrator) { o.async = v }
}

// WithParallelCells runs cell validators concurrently. Each still writes
// only its own field, and the async layer still waits for all of them.
func WithParallelCells() Option {
	return func(o *Orchestrator) { o.parallel = true }
}

// Orchestrator runs the three layers. Any layer may be absent.
//
// Thread-safety: an Orchestrator holds no mutable state and is safe for
// concurrent use as long as its validators are.
type Orchestrator struct {
	schema   SchemaValidator
	cells    *Registry
	async    AsyncValidator
	parallel bool
}

// New creates an Orchestrator.
func New(opts ...Option) *Orchestrator {
	o := &Orchestrator{}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Validate runs schema, cell and async layers for rec and merges them.
//
// Returns nil FieldErrors when the record passes. A non-nil error means a
// layer could not run; the merged messages of the layers that did run are
// returned alongside it.
func (o *Orchestrator) Validate(ctx context.Context, rec record.Record, isNew bool) (record.FieldErrors, error) {
	results := make([]LayerResult, 0, 3)

	if o.schema != nil {
		results = append(results, LayerResult{Layer: LayerSchema, Errors: o.schema.ValidateSchema(rec)})
	}

	cellErrs, err := o.validateCells(ctx, rec)
	results = append(results, LayerResult{Layer: LayerCell, Errors: cellErrs})
	if err != nil {
		return Merge(results...), err
	}

	if o.async != nil {
		asyncErrs, err := o.async.ValidateAsync(ctx, rec, isNew)
		if err != nil {
			return Merge(results...), &LayerError{Layer: LayerAsync, Err: err}
		}
		results = append(results, LayerResult{Layer: LayerAsync, Errors: asyncErrs})
	}

	return Merge(results...), nil
}

// validateCells runs the registered cell validators. Every validator has
// returned by the time this function does. When several fail, the first
// failure reported is returned.
func (o *Orchestrator) validateCells(ctx context.Context, rec record.Record) (record.FieldErrors, error) {
	fields := o.cells.Fields()
	if len(fields) == 0 {
		return nil, nil
	}

	// Each validator writes only its own slot.
	msgs := make([]string, len(fields))
	run := func(i int) error {
		field := fields[i]
		v, _ := o.cells.Lookup(field)
		msg, err := v.ValidateCell(ctx, rec[field], rec, field)
		if err != nil {
			return &LayerError{Layer: LayerCell, Field: field, Err: err}
		}
		msgs[i] = msg
		return nil
	}

	var err error
	if o.parallel {
		// A plain Group: a failing validator never cancels the others.
		var g errgroup.Group
		for i := range fields {
			g.Go(func() error { return run(i) })
		}
		err = g.Wait()
	} else {
		for i := range fields {
			if ferr := run(i); ferr != nil && err == nil {
				err = ferr
			}
		}
	}

	out := record.FieldErrors{}
	for i, field := range fields {
		if msgs[i] != "" {
			out[field] = msgs[i]
		}
	}
	return out, err
}
