package engine

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strconv"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/gridedit/internal/commit"
	"github.com/roach88/gridedit/internal/identity"
	"github.com/roach88/gridedit/internal/record"
	"github.com/roach88/gridedit/internal/rowstate"
	"github.com/roach88/gridedit/internal/testutil"
	"github.com/roach88/gridedit/internal/tracker"
	"github.com/roach88/gridedit/internal/validate"
)

// sinkRecorder collects every error sent to the sink.
type sinkRecorder struct {
	mu   sync.Mutex
	errs []*Error
}

func (s *sinkRecorder) HandleError(_ context.Context, err *Error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errs = append(s.errs, err)
}

func (s *sinkRecorder) all() []*Error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*Error(nil), s.errs...)
}

func newTestEngine(t *testing.T, backend commit.Backend, opts ...EngineOption) (*Engine, *sinkRecorder) {
	t.Helper()
	sink := &sinkRecorder{}
	base := []EngineOption{
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithKeyGenerator(testutil.NewKeyGen("new")),
		WithErrorSink(sink),
	}
	return New(backend, append(base, opts...)...), sink
}

func mustRow(t *testing.T, e *Engine, key string) rowstate.Row {
	t.Helper()
	row, ok := e.Row(key)
	require.True(t, ok, "row %s not tracked", key)
	return row
}

func TestEngine_ChangeThenCancel(t *testing.T) {
	e, _ := newTestEngine(t, testutil.NewMemory())
	e.Load([]record.Record{{"id": "r1", "price": 10}})

	require.NoError(t, e.ChangeField("r1", "price", 20))
	row := mustRow(t, e, "r1")
	assert.True(t, row.IsDirty)
	assert.Equal(t, rowstate.Editing, row.Lifecycle)

	require.NoError(t, e.Cancel("r1"))
	row = mustRow(t, e, "r1")
	assert.Equal(t, 10, row.Current["price"])
	assert.Equal(t, row.Original, row.Current)
	assert.False(t, row.IsDirty)
	assert.Empty(t, row.FieldErrors)
	assert.Equal(t, rowstate.Idle, row.Lifecycle)
}

func TestEngine_DirtyTracksEquivalence(t *testing.T) {
	e, _ := newTestEngine(t, testutil.NewMemory())
	e.Load([]record.Record{{"id": "r1", "price": 10}})

	require.NoError(t, e.ChangeField("r1", "price", 20))
	assert.True(t, mustRow(t, e, "r1").IsDirty)

	require.NoError(t, e.ChangeField("r1", "price", 10.0))
	assert.False(t, mustRow(t, e, "r1").IsDirty, "10.0 is equivalent to 10")

	require.NoError(t, e.ChangeField("r1", "note", nil))
	assert.True(t, mustRow(t, e, "r1").IsDirty, "nil field is not an absent field")
}

func TestEngine_AddNewThenSave(t *testing.T) {
	backend := commit.Funcs{SaveFn: func(_ context.Context, current, original record.Record) (record.Record, error) {
		assert.Nil(t, original)
		return record.Record{"id": "r99", "price": 5}, nil
	}}
	e, _ := newTestEngine(t, backend, WithKeyGenerator(identity.NewFixedGenerator("tempX")))

	key := e.AddNew()
	assert.Equal(t, "tempX", key)
	row := mustRow(t, e, key)
	assert.Equal(t, rowstate.Editing, row.Lifecycle)
	assert.True(t, row.IsNew)
	assert.Equal(t, record.Record{}, row.Original)
	focused, ok := e.Editing()
	assert.True(t, ok)
	assert.Equal(t, "tempX", focused)

	require.NoError(t, e.ChangeField(key, "price", 5))
	require.NoError(t, e.Save(context.Background(), key))

	_, ok = e.Row("tempX")
	assert.False(t, ok, "placeholder key replaced")
	saved := mustRow(t, e, "r99")
	assert.Equal(t, record.Record{"id": "r99", "price": 5}, saved.Original)
	assert.Equal(t, record.Record{"id": "r99", "price": 5}, saved.Current)
	assert.False(t, saved.IsNew)
	assert.False(t, saved.IsDirty)
	assert.Equal(t, rowstate.Idle, saved.Lifecycle)

	assert.False(t, e.HasPendingChanges())
	assert.True(t, e.Pending().Empty())
	_, ok = e.Editing()
	assert.False(t, ok)
}

func TestEngine_ValidationLaterLayerWins(t *testing.T) {
	rec := testutil.NewRecorder(testutil.NewMemory(record.Record{"id": "r1"}))
	e, sink := newTestEngine(t, rec,
		WithSchema(validate.SchemaFunc(func(r record.Record) record.FieldErrors {
			if r["email"] == nil {
				return record.FieldErrors{"email": "required"}
			}
			return nil
		})),
		WithAsyncValidator(validate.AsyncFunc(func(context.Context, record.Record, bool) (record.FieldErrors, error) {
			return record.FieldErrors{"email": "already taken"}, nil
		})),
	)
	e.Load([]record.Record{{"id": "r1"}})

	err := e.Save(context.Background(), "r1")
	require.Error(t, err)
	assert.True(t, IsValidationError(err))
	assert.ErrorIs(t, err, ErrValidationFailed)

	var ee *Error
	require.True(t, errors.As(err, &ee))
	assert.Equal(t, record.FieldErrors{"email": "already taken"}, ee.FieldErrors)

	row := mustRow(t, e, "r1")
	assert.Equal(t, rowstate.Error, row.Lifecycle)
	assert.Equal(t, record.FieldErrors{"email": "already taken"}, row.FieldErrors)
	assert.Equal(t, 0, rec.Count(testutil.OpSave), "invalid rows are never committed")

	errs := sink.all()
	require.Len(t, errs, 1)
	assert.Same(t, ee, errs[0])
	assert.Equal(t, OpValidation, errs[0].Op)

	require.NoError(t, e.ChangeField("r1", "email", "a@b.c"))
	row = mustRow(t, e, "r1")
	assert.Equal(t, rowstate.Editing, row.Lifecycle)
	assert.Empty(t, row.FieldErrors)
}

func TestEngine_ValidationLayerErrorStoredAsRowError(t *testing.T) {
	cells := validate.NewRegistry().RegisterFunc("sku", func(context.Context, any, record.Record, string) (string, error) {
		return "", errors.New("lookup service down")
	})
	e, sink := newTestEngine(t, testutil.NewMemory(), WithCellValidators(cells))
	e.Load([]record.Record{{"id": "r1", "sku": "A"}})

	err := e.Save(context.Background(), "r1")
	assert.True(t, IsValidationError(err))
	assert.ErrorIs(t, err, ErrValidationFailed)

	row := mustRow(t, e, "r1")
	assert.Equal(t, rowstate.Error, row.Lifecycle)
	assert.Contains(t, row.RowError, "lookup service down")
	assert.Len(t, sink.all(), 1)
}

func TestEngine_SaveFailure(t *testing.T) {
	rec := testutil.NewRecorder(testutil.NewMemory(record.Record{"id": "r1", "v": 1})).
		Inject(testutil.Fault{Op: testutil.OpSave, Key: "r1", Message: "conflict"}).
		Inject(testutil.Fault{Op: testutil.OpSave, Where: record.Record{"name": "dup"}, Message: "name taken"})
	e, sink := newTestEngine(t, rec)
	e.Load([]record.Record{{"id": "r1", "v": 1}})
	require.NoError(t, e.ChangeField("r1", "v", 2))

	err := e.Save(context.Background(), "r1")
	var ee *Error
	require.True(t, errors.As(err, &ee))
	assert.Equal(t, OpUpdate, ee.Op)
	assert.EqualError(t, ee.Err, "conflict")

	row := mustRow(t, e, "r1")
	assert.Equal(t, rowstate.Error, row.Lifecycle)
	assert.Equal(t, "conflict", row.RowError)
	assert.Equal(t, 2, row.Current["v"], "working copy kept")

	key := e.AddNew()
	require.NoError(t, e.ChangeField(key, "name", "dup"))
	err = e.Save(context.Background(), key)
	require.True(t, errors.As(err, &ee))
	assert.Equal(t, OpCreate, ee.Op)
	assert.True(t, mustRow(t, e, key).IsNew)

	require.Len(t, sink.all(), 2)
}

func TestEngine_SavingRowIsLocked(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	backend := commit.Funcs{SaveFn: func(_ context.Context, current, _ record.Record) (record.Record, error) {
		close(started)
		<-release
		return current, nil
	}}
	e, sink := newTestEngine(t, backend)
	e.Load([]record.Record{{"id": "r1", "price": 10}, {"id": "r2", "price": 1}})
	require.NoError(t, e.ChangeField("r1", "price", 20))

	done := make(chan error, 1)
	go func() { done <- e.Save(context.Background(), "r1") }()
	<-started

	assert.Equal(t, rowstate.Saving, mustRow(t, e, "r1").Lifecycle)

	err := e.ChangeField("r1", "price", 30)
	assert.True(t, IsBusyError(err))
	var ee *Error
	require.True(t, errors.As(err, &ee))
	assert.Equal(t, "r1", ee.Key)

	assert.ErrorIs(t, e.Save(context.Background(), "r1"), ErrRowBusy)
	assert.ErrorIs(t, e.Cancel("r1"), ErrRowBusy)
	assert.ErrorIs(t, e.StartEdit("r1"), ErrRowBusy)
	assert.ErrorIs(t, e.Delete(context.Background(), "r1"), ErrRowBusy)
	assert.ErrorIs(t, e.SoftRemove(context.Background(), "r1"), ErrRowBusy)

	// other rows are unaffected
	require.NoError(t, e.ChangeField("r2", "price", 2))

	close(release)
	require.NoError(t, <-done)

	row := mustRow(t, e, "r1")
	assert.Equal(t, rowstate.Idle, row.Lifecycle)
	assert.Equal(t, 20, row.Current["price"])
	assert.Empty(t, sink.all(), "rejected operations are not sink failures")
}

func TestEngine_DeleteFailureKeepsLifecycleAndStoresRowError(t *testing.T) {
	rec := testutil.NewRecorder(testutil.NewMemory(record.Record{"id": "r1"})).
		Inject(testutil.Fault{Op: testutil.OpDelete, Key: "r1", Message: "locked", Times: 1})
	e, sink := newTestEngine(t, rec)
	e.Load([]record.Record{{"id": "r1"}})
	require.NoError(t, e.StartEdit("r1"))

	err := e.Delete(context.Background(), "r1")
	require.Error(t, err)
	row := mustRow(t, e, "r1")
	assert.Equal(t, rowstate.Editing, row.Lifecycle)
	assert.Equal(t, "locked", row.RowError)

	errs := sink.all()
	require.Len(t, errs, 1)
	assert.Equal(t, OpDelete, errs[0].Op)
	assert.False(t, errs[0].Soft)

	require.NoError(t, e.Delete(context.Background(), "r1"))
	_, ok := e.Row("r1")
	assert.False(t, ok)
	assert.Empty(t, e.Visible())
	_, ok = e.Editing()
	assert.False(t, ok)
}

func TestEngine_SoftRemove(t *testing.T) {
	rec := testutil.NewRecorder(testutil.NewMemory(record.Record{"id": "r1"}, record.Record{"id": "r2"})).
		Inject(testutil.Fault{Op: testutil.OpSoftRemove, Key: "r2", Message: "denied"})
	e, sink := newTestEngine(t, rec)
	e.Load([]record.Record{{"id": "r1"}, {"id": "r2"}})

	require.NoError(t, e.SoftRemove(context.Background(), "r1"))
	row := mustRow(t, e, "r1")
	assert.Equal(t, rowstate.Deleted, row.Lifecycle)
	assert.Equal(t, []record.Record{{"id": "r2"}}, e.Visible())
	assert.Len(t, e.Rows(), 2, "deleted rows stay tracked")
	assert.Len(t, e.Pending().Deleted, 1)

	assert.ErrorIs(t, e.ChangeField("r1", "x", 1), ErrRowDeleted)

	err := e.SoftRemove(context.Background(), "r2")
	var ee *Error
	require.True(t, errors.As(err, &ee))
	assert.True(t, ee.Soft)
	assert.Equal(t, OpDelete, ee.Op)
	row = mustRow(t, e, "r2")
	assert.Equal(t, rowstate.Idle, row.Lifecycle)
	assert.Equal(t, "denied", row.RowError)
	assert.Len(t, sink.all(), 1)

	// the source stops supplying r1
	e.Reconcile([]record.Record{{"id": "r2"}})
	_, ok := e.Row("r1")
	assert.False(t, ok)
}

func TestEngine_BulkSavePartialFailure(t *testing.T) {
	mem := testutil.NewMemory(
		record.Record{"id": "r1", "v": 1},
		record.Record{"id": "r2", "v": 1},
		record.Record{"id": "r3", "v": 1},
	)
	rec := testutil.NewRecorder(mem).Inject(testutil.Fault{Op: testutil.OpSave, Key: "r3", Message: "conflict"})
	e, sink := newTestEngine(t, rec)
	e.Load(mem.Records())

	require.NoError(t, e.StartEdit("r2"))
	require.NoError(t, e.ChangeField("r2", "v", 2))
	require.NoError(t, e.ChangeField("r3", "v", 3))

	out, err := e.BulkSave(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrPartialCommit)
	assert.Equal(t, []string{"r2"}, out.Confirmed)
	assert.Equal(t, []string{"r3"}, out.Failed)

	r2 := mustRow(t, e, "r2")
	assert.Equal(t, rowstate.Idle, r2.Lifecycle)
	assert.False(t, r2.IsDirty)
	assert.Equal(t, 2, r2.Original["v"])

	r3 := mustRow(t, e, "r3")
	assert.Equal(t, rowstate.Error, r3.Lifecycle)
	assert.Equal(t, "conflict", r3.RowError)

	r1 := mustRow(t, e, "r1")
	assert.Equal(t, rowstate.Idle, r1.Lifecycle)

	errs := sink.all()
	require.Len(t, errs, 1)
	assert.Equal(t, OpBulkSave, errs[0].Op)
	assert.Equal(t, "r3", errs[0].Key)
	require.NotNil(t, errs[0].Changes)
	assert.Len(t, errs[0].Changes.Modified, 2)

	_, ok := e.Editing()
	assert.False(t, ok, "focus cleared after a batch")
}

func TestEngine_BulkSaveCreatesNewRows(t *testing.T) {
	mem := testutil.NewMemory()
	e, _ := newTestEngine(t, mem)

	a := e.AddNew()
	require.NoError(t, e.ChangeField(a, "name", "a"))
	b := e.AddNew()
	require.NoError(t, e.ChangeField(b, "name", "b"))

	out, err := e.BulkSave(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"new-1", "new-2"}, out.Replaced)

	rows := e.Rows()
	require.Len(t, rows, 2)
	assert.Equal(t, "s1", rows[0].Key)
	assert.Equal(t, "a", rows[0].Current["name"])
	assert.Equal(t, "s2", rows[1].Key)
	assert.False(t, e.HasPendingChanges())
	assert.Len(t, mem.Records(), 2)
}

func TestEngine_BulkSaveWholeCallFailure(t *testing.T) {
	rec := testutil.NewRecorder(testutil.NewMemory(record.Record{"id": "r1"})).
		Inject(testutil.Fault{Op: testutil.OpBulkSave, Message: "offline"})
	e, sink := newTestEngine(t, rec)
	e.Load([]record.Record{{"id": "r1"}, {"id": "r2"}})
	require.NoError(t, e.ChangeField("r1", "x", 1))

	_, err := e.BulkSave(context.Background())
	require.Error(t, err)

	row := mustRow(t, e, "r1")
	assert.Equal(t, rowstate.Error, row.Lifecycle)
	assert.Equal(t, "offline", row.RowError)
	assert.Equal(t, rowstate.Idle, mustRow(t, e, "r2").Lifecycle)

	errs := sink.all()
	require.Len(t, errs, 1)
	assert.Equal(t, OpBulkSave, errs[0].Op)
	assert.Empty(t, errs[0].Key)
	require.NotNil(t, errs[0].Changes)
	assert.Len(t, errs[0].Changes.Modified, 1)
}

func TestEngine_BulkSaveNoOpWithOnlyDeletions(t *testing.T) {
	rec := testutil.NewRecorder(testutil.NewMemory(record.Record{"id": "r1"}))
	e, _ := newTestEngine(t, rec)
	e.Load([]record.Record{{"id": "r1"}})
	require.NoError(t, e.SoftRemove(context.Background(), "r1"))
	require.True(t, e.HasPendingChanges())

	before := e.Version()
	out, err := e.BulkSave(context.Background())
	require.NoError(t, err)
	assert.Empty(t, out.Confirmed)
	assert.Equal(t, 0, rec.Count(testutil.OpBulkSave))
	assert.Equal(t, before, e.Version(), "nothing published")
}

func TestEngine_BulkSaveSkipsRowsWithSaveInFlight(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	var bulkKeys []string
	backend := commit.Funcs{
		SaveFn: func(_ context.Context, current, _ record.Record) (record.Record, error) {
			close(started)
			<-release
			return current, nil
		},
		BulkSaveFn: func(_ context.Context, cs tracker.ChangeSet) (commit.BulkResult, error) {
			bulkKeys = cs.Keys()
			return commit.BulkResult{Success: []record.Record{cs.Modified[0].Updated}}, nil
		},
	}
	e, _ := newTestEngine(t, backend)
	e.Load([]record.Record{{"id": "r1"}, {"id": "r2"}})
	require.NoError(t, e.ChangeField("r1", "x", 1))
	require.NoError(t, e.ChangeField("r2", "x", 2))

	done := make(chan error, 1)
	go func() { done <- e.Save(context.Background(), "r1") }()
	<-started

	_, err := e.BulkSave(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"r2"}, bulkKeys)

	close(release)
	require.NoError(t, <-done)
	assert.False(t, e.HasPendingChanges())
}

func TestEngine_CancelNewRow(t *testing.T) {
	e, _ := newTestEngine(t, testutil.NewMemory())
	key := e.AddNew()
	require.NoError(t, e.ChangeField(key, "name", "x"))

	require.NoError(t, e.Cancel(key))
	row := mustRow(t, e, key)
	assert.Equal(t, rowstate.Idle, row.Lifecycle)
	assert.Equal(t, record.Record{}, row.Current)
	assert.True(t, row.IsNew)
	assert.False(t, row.IsDirty)
	assert.Len(t, e.Pending().New, 1, "new rows stay pending until created")
}

func TestEngine_DeleteUnsavedRowIsLocal(t *testing.T) {
	mem := testutil.NewMemory()
	rec := testutil.NewRecorder(mem)
	e, sink := newTestEngine(t, rec)

	key := e.AddNew()
	require.NoError(t, e.Cancel(key))
	require.NoError(t, e.Delete(context.Background(), key))

	_, ok := e.Row(key)
	assert.False(t, ok)
	assert.False(t, e.HasPendingChanges())
	_, ok = e.Editing()
	assert.False(t, ok)

	soft := e.AddNew()
	require.NoError(t, e.ChangeField(soft, "name", "draft"))
	require.NoError(t, e.SoftRemove(context.Background(), soft))
	_, ok = e.Row(soft)
	assert.False(t, ok)

	out, err := e.BulkSave(context.Background())
	require.NoError(t, err)
	assert.Empty(t, out.Confirmed)

	assert.Equal(t, 0, rec.Count(testutil.OpDelete))
	assert.Equal(t, 0, rec.Count(testutil.OpSoftRemove))
	assert.Equal(t, 0, rec.Count(testutil.OpBulkSave))
	assert.Empty(t, mem.Records())
	assert.Empty(t, sink.all())
}

func TestEngine_BulkSaveIdenticalNewRowsBothFail(t *testing.T) {
	backend := commit.Funcs{BulkSaveFn: func(_ context.Context, cs tracker.ChangeSet) (commit.BulkResult, error) {
		var res commit.BulkResult
		for _, r := range cs.New {
			res.Failed = append(res.Failed, commit.Failure{Row: r, Error: "name required"})
		}
		return res, nil
	}}
	e, sink := newTestEngine(t, backend)
	a := e.AddNew()
	b := e.AddNew()

	out, err := e.BulkSave(context.Background())
	assert.ErrorIs(t, err, ErrPartialCommit)
	assert.Equal(t, []string{a, b}, out.Failed)
	assert.Empty(t, out.Unacknowledged)

	for _, key := range []string{a, b} {
		row := mustRow(t, e, key)
		assert.Equal(t, rowstate.Error, row.Lifecycle, key)
		assert.Equal(t, "name required", row.RowError, key)
	}

	errs := sink.all()
	require.Len(t, errs, 2)
	assert.Equal(t, a, errs[0].Key)
	assert.Equal(t, b, errs[1].Key)
}

func TestEngine_Guards(t *testing.T) {
	e, _ := newTestEngine(t, testutil.NewMemory())
	assert.ErrorIs(t, e.StartEdit("nope"), ErrRowNotFound)
	assert.ErrorIs(t, e.ChangeField("nope", "f", 1), ErrRowNotFound)
	assert.ErrorIs(t, e.Cancel("nope"), ErrRowNotFound)
	assert.ErrorIs(t, e.Save(context.Background(), "nope"), ErrRowNotFound)
	assert.ErrorIs(t, e.Delete(context.Background(), "nope"), ErrRowNotFound)
}

func TestEngine_StartEditFocus(t *testing.T) {
	e, _ := newTestEngine(t, testutil.NewMemory(record.Record{"id": "r1"}))
	e.Load([]record.Record{{"id": "r1"}})

	require.NoError(t, e.StartEdit("r1"))
	key, ok := e.Editing()
	assert.True(t, ok)
	assert.Equal(t, "r1", key)
	assert.Equal(t, rowstate.Editing, mustRow(t, e, "r1").Lifecycle)

	require.NoError(t, e.Save(context.Background(), "r1"))
	_, ok = e.Editing()
	assert.False(t, ok)
}

func TestEngine_Reconcile(t *testing.T) {
	e, _ := newTestEngine(t, testutil.NewMemory())
	e.Load([]record.Record{
		{"id": "a", "v": 1},
		{"id": "b", "v": 1},
		{"id": "c", "v": 1},
	})
	require.NoError(t, e.ChangeField("b", "v", 2))
	added := e.AddNew()

	e.Reconcile([]record.Record{
		{"id": "c", "v": 9},
		{"id": "b", "v": 5},
		{"id": "d", "v": 1},
	})

	var keys []string
	for _, r := range e.Rows() {
		keys = append(keys, r.Key)
	}
	assert.Equal(t, []string{"c", "b", "d", added}, keys)

	assert.Equal(t, 9, mustRow(t, e, "c").Current["v"], "clean idle rows refresh")
	b := mustRow(t, e, "b")
	assert.Equal(t, 2, b.Current["v"], "dirty rows keep their working copy")
	assert.True(t, b.IsDirty)
	assert.Equal(t, rowstate.Idle, mustRow(t, e, "d").Lifecycle)
}

func TestEngine_ReconcileUnchangedSourcePublishesNoRowChanges(t *testing.T) {
	e, _ := newTestEngine(t, testutil.NewMemory())
	src := []record.Record{{"id": "a", "v": 1}}
	e.Load(src)
	before := mustRow(t, e, "a").Version

	e.Reconcile(src)
	assert.Equal(t, before, mustRow(t, e, "a").Version)
}

func TestEngine_RecordsAreIsolated(t *testing.T) {
	e, _ := newTestEngine(t, testutil.NewMemory())
	src := []record.Record{{"id": "r1", "tags": []any{"a"}}}
	e.Load(src)

	src[0]["id"] = "mutated"
	src[0]["tags"].([]any)[0] = "mutated"

	visible := e.Visible()
	require.Len(t, visible, 1)
	assert.Equal(t, record.Record{"id": "r1", "tags": []any{"a"}}, visible[0])

	visible[0]["id"] = "mutated"
	row := mustRow(t, e, "r1")
	row.Current["id"] = "mutated"
	assert.Equal(t, "r1", e.Visible()[0]["id"])
}

func TestEngine_Subscribe(t *testing.T) {
	e, _ := newTestEngine(t, testutil.NewMemory())

	var snaps []Snapshot
	unsubscribe := e.Subscribe(func(s Snapshot) { snaps = append(snaps, s) })

	e.Load([]record.Record{{"id": "r1"}})
	require.NoError(t, e.StartEdit("r1"))
	require.NoError(t, e.ChangeField("r1", "x", 1))
	unsubscribe()
	require.NoError(t, e.ChangeField("r1", "x", 2))

	require.Len(t, snaps, 3)
	assert.Less(t, snaps[0].Version, snaps[1].Version)
	assert.Less(t, snaps[1].Version, snaps[2].Version)
	assert.Equal(t, "r1", snaps[1].Editing)
	assert.Equal(t, 1, snaps[2].Pending.Modified)
	assert.Equal(t, 1, snaps[2].Rows[0].Current["x"])
}

func TestEngine_ConcurrentEditsOnDifferentRows(t *testing.T) {
	e, _ := newTestEngine(t, testutil.NewMemory())
	const n = 50
	src := make([]record.Record, n)
	for i := range src {
		src[i] = record.Record{"id": i}
	}
	e.Load(src)
	start := e.Version()

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			assert.NoError(t, e.ChangeField(strconv.Itoa(i), "x", i))
		}(i)
	}
	wg.Wait()

	assert.Equal(t, start+n, e.Version())
	assert.Equal(t, n, e.Summary().Modified)
}
