package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"

	"github.com/roach88/gridedit/internal/engine"
	"github.com/roach88/gridedit/internal/record"
	"github.com/roach88/gridedit/internal/schema"
	"github.com/roach88/gridedit/internal/store"
	"github.com/roach88/gridedit/internal/testutil"
	"github.com/roach88/gridedit/internal/validate"
)

// Harness holds the collaborators of one scenario run.
type Harness struct {
	store    *store.Store
	backend  *testutil.Recorder
	engine   *engine.Engine
	keys     *testutil.KeyGen
	logger   *slog.Logger
	sinkOps  []string
	scenario *Scenario
}

// Run executes a scenario and returns the result.
//
// Each scenario runs against a fresh in-memory store, with deterministic
// placeholder keys ("new-1", "new-2", ...) and store ids ("r1", "r2", ...
// in write order), so the trace is reproducible.
//
// Execution flow:
//  1. Create a fresh in-memory store and seed the records
//  2. Wrap it in a recorder holding the scripted failures
//  3. Build the engine with the scenario's validators and load the store
//  4. Execute the steps, checking each declared error
//  5. Check the expectations against the final state
//
// The returned error reports a scenario that could not be set up; a
// scenario that ran but did not behave as declared fails the Result.
func Run(scenario *Scenario) (*Result, error) {
	ctx := context.Background()

	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	for i, rec := range scenario.Records {
		if _, err := st.Save(ctx, record.Record(rec), nil); err != nil {
			return nil, fmt.Errorf("seed record %d: %w", i, err)
		}
	}

	h := &Harness{
		store:    st,
		backend:  testutil.NewRecorder(st),
		keys:     testutil.NewKeyGen("new"),
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)), // Suppress logs in tests
		scenario: scenario,
	}
	for _, f := range scenario.Failures {
		h.backend.Inject(testutil.Fault{
			Op:      testutil.Op(f.Op),
			Key:     f.Key,
			Where:   record.Record(f.Where),
			Message: f.Message,
			Times:   f.Times,
		})
	}

	opts, err := h.engineOptions()
	if err != nil {
		return nil, err
	}
	h.engine = engine.New(h.backend, opts...)

	source, err := st.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("initial load: %w", err)
	}
	h.engine.Load(source)

	result := NewResult()
	for i, step := range scenario.Steps {
		if err := h.executeStep(ctx, i, step, result); err != nil {
			return nil, fmt.Errorf("step %d: %w", i, err)
		}
	}
	result.Sink = slices.Clone(h.sinkOps)

	for _, msg := range h.evaluate(ctx) {
		result.AddError(msg)
	}
	return result, nil
}

func (h *Harness) engineOptions() ([]engine.EngineOption, error) {
	s := h.scenario
	opts := []engine.EngineOption{
		engine.WithKeyGenerator(h.keys),
		engine.WithLogger(h.logger),
		engine.WithErrorSink(engine.SinkFunc(func(_ context.Context, err *engine.Error) {
			h.sinkOps = append(h.sinkOps, opName(err))
		})),
	}

	if s.Schema != "" {
		path := s.SchemaPath
		if path == "" {
			path = schema.DefaultPath
		}
		v, err := schema.Compile(s.Schema, path)
		if err != nil {
			return nil, fmt.Errorf("schema: %w", err)
		}
		opts = append(opts, engine.WithSchema(v))
	}

	if len(s.CellRules) > 0 {
		reg, err := validate.RegistryFromRules(s.CellRules)
		if err != nil {
			return nil, fmt.Errorf("cell rules: %w", err)
		}
		opts = append(opts, engine.WithCellValidators(reg))
	}

	if len(s.AsyncRules) > 0 {
		opts = append(opts, engine.WithAsyncValidator(asyncRules(s.AsyncRules)))
	}

	return opts, nil
}

// asyncRules rejects records whose field holds a listed value.
func asyncRules(rules map[string]map[string]string) validate.AsyncFunc {
	return func(_ context.Context, rec record.Record, _ bool) (record.FieldErrors, error) {
		var fe record.FieldErrors
		for field, values := range rules {
			v, ok := rec[field]
			if !ok {
				continue
			}
			if msg, hit := values[fmt.Sprint(v)]; hit {
				if fe == nil {
					fe = record.FieldErrors{}
				}
				fe[field] = msg
			}
		}
		return fe, nil
	}
}

// executeStep runs one step and appends its trace event. A step that
// fails differently from what it declares fails the result.
func (h *Harness) executeStep(ctx context.Context, i int, step Step, result *Result) error {
	event := TraceEvent{Step: i, Action: step.Action, Key: step.Key, Field: step.Field}

	var err error
	switch step.Action {
	case ActionStartEdit:
		err = h.engine.StartEdit(step.Key)
	case ActionChange:
		err = h.engine.ChangeField(step.Key, step.Field, step.Value)
	case ActionCancel:
		err = h.engine.Cancel(step.Key)
	case ActionSave:
		err = h.engine.Save(ctx, step.Key)
	case ActionDelete:
		err = h.engine.Delete(ctx, step.Key)
	case ActionSoftRemove:
		err = h.engine.SoftRemove(ctx, step.Key)
	case ActionAddNew:
		event.Key = h.engine.AddNew()
	case ActionBulkSave:
		out, berr := h.engine.BulkSave(ctx)
		err = berr
		event.Bulk = &BulkTrace{
			Confirmed:      out.Confirmed,
			Replaced:       out.Replaced,
			Failed:         out.Failed,
			Unacknowledged: out.Unacknowledged,
		}
	case ActionReload:
		source, lerr := h.store.List(ctx)
		if lerr != nil {
			return fmt.Errorf("reload: %w", lerr)
		}
		h.engine.Reconcile(source)
	case ActionHeal:
		h.backend.Heal()
	default:
		return fmt.Errorf("unknown action %q", step.Action)
	}

	if err != nil {
		event.Error = err.Error()
	}
	if msg := checkStepError(step, err); msg != "" {
		result.AddError(fmt.Sprintf("step %d (%s %s): %s", i, step.Action, event.Key, msg))
	}

	snap := h.engine.Snapshot()
	event.Version = snap.Version
	event.Editing = snap.Editing
	event.Rows = rowTraces(snap.Rows)
	result.Trace = append(result.Trace, event)
	return nil
}

// checkStepError compares err with the step's declared error kind and
// returns a failure message, or "" when they agree.
func checkStepError(step Step, err error) string {
	switch {
	case step.Error == "" && err != nil:
		return fmt.Sprintf("unexpected error: %v", err)
	case step.Error != "" && err == nil:
		return fmt.Sprintf("expected %s error, got success", step.Error)
	case step.Error != "" && !errorMatches(step.Error, err):
		return fmt.Sprintf("expected %s error, got: %v", step.Error, err)
	}
	return ""
}

var conditions = map[string]error{
	"not_found": engine.ErrRowNotFound,
	"busy":      engine.ErrRowBusy,
	"deleted":   engine.ErrRowDeleted,
	"partial":   engine.ErrPartialCommit,
}

var operations = []string{
	string(engine.OpCreate),
	string(engine.OpUpdate),
	string(engine.OpDelete),
	string(engine.OpBulkSave),
	string(engine.OpValidation),
	"soft_remove",
}

func knownErrorKind(kind string) bool {
	_, ok := conditions[kind]
	return ok || kind == "any" || slices.Contains(operations, kind)
}

func errorMatches(kind string, err error) bool {
	if kind == "any" {
		return true
	}
	if target, ok := conditions[kind]; ok {
		return errors.Is(err, target)
	}
	var ee *engine.Error
	if !errors.As(err, &ee) {
		return false
	}
	return opName(ee) == kind
}

// opName is the operation of err as scenarios spell it.
func opName(err *engine.Error) string {
	if err.Soft {
		return "soft_remove"
	}
	return string(err.Op)
}
