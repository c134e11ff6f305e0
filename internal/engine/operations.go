package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/roach88/gridedit/internal/commit"
	"github.com/roach88/gridedit/internal/record"
	"github.com/roach88/gridedit/internal/rowstate"
	"github.com/roach88/gridedit/internal/tracker"
)

// Load replaces the source dataset. It is Reconcile under the name
// callers use for the first fetch.
func (e *Engine) Load(source []record.Record) {
	e.Reconcile(source)
}

// Reconcile merges a fresh copy of the source dataset into the tracked rows.
//
//   - Rows present in the source are refreshed when idle and clean, and
//     keep their working copy otherwise.
//   - Rows not yet created on the server, and rows with a commit in
//     flight, survive.
//   - Every other row absent from the source is dropped.
//
// Display order follows the source, then the surviving rows.
// Records without a natural key get a fresh placeholder key each time.
func (e *Engine) Reconcile(source []record.Record) {
	var dropped []string

	next, _ := e.update(func(b *rowstate.Builder) error {
		seen := make(map[string]bool, len(source))
		order := make([]string, 0, len(source))

		for _, rec := range source {
			key, _ := e.ids.Identify(rec)
			if seen[key] {
				e.logger.Warn("duplicate key in source, keeping first", "key", key)
				continue
			}
			seen[key] = true
			order = append(order, key)

			row, ok := b.Get(key)
			if !ok || (row.Lifecycle == rowstate.Idle && !row.IsDirty && !row.IsNew) {
				if ok && record.Equal(row.Original, rec) {
					continue
				}
				b.Put(rowstate.NewRow(key, rec))
			}
		}

		for _, key := range b.Keys() {
			if seen[key] {
				continue
			}
			row, _ := b.Get(key)
			if (row.IsNew && row.Lifecycle != rowstate.Deleted) || row.Lifecycle == rowstate.Saving {
				order = append(order, key)
				continue
			}
			b.Delete(key)
			dropped = append(dropped, key)
		}

		b.Reorder(order)
		e.unfocus(dropped...)
		return nil
	})

	e.logger.Debug("reconciled", "source", len(source), "rows", next.Len(), "dropped", len(dropped), "version", next.Version())
}

// StartEdit moves an idle or error row to editing and focuses it.
func (e *Engine) StartEdit(key string) error {
	_, err := e.update(func(b *rowstate.Builder) error {
		row, gerr := guard(b, key, OpUpdate)
		if gerr != nil {
			return gerr
		}
		if row.Lifecycle != rowstate.Editing {
			b.Put(row.WithLifecycle(rowstate.Editing))
		}
		e.focus(key)
		return nil
	})
	return err
}

// ChangeField sets one field of the row's working copy. The row moves to
// editing, dirty is recomputed and that field's error is cleared.
// value is deep-copied.
func (e *Engine) ChangeField(key, field string, value any) error {
	_, err := e.update(func(b *rowstate.Builder) error {
		row, gerr := guard(b, key, OpUpdate)
		if gerr != nil {
			return gerr
		}
		b.Put(row.WithField(field, value))
		return nil
	})
	return err
}

// Cancel restores the working copy to the last confirmed snapshot and
// clears errors. A new row is reset to an empty record.
func (e *Engine) Cancel(key string) error {
	_, err := e.update(func(b *rowstate.Builder) error {
		row, gerr := guard(b, key, OpUpdate)
		if gerr != nil {
			return gerr
		}
		b.Put(row.Reverted())
		e.unfocus(key)
		return nil
	})
	return err
}

// Save validates the row and commits it.
//
// The row is locked in the saving lifecycle from the start, so validation
// runs under the lock too. On success the row is idle and clean, keyed by
// the identity of the server's record. On failure the row is in the error
// lifecycle and the returned *Error has also gone to the sink.
func (e *Engine) Save(ctx context.Context, key string) error {
	var locked rowstate.Row
	_, err := e.update(func(b *rowstate.Builder) error {
		row, gerr := guard(b, key, OpUpdate)
		if gerr != nil {
			if row.IsNew {
				gerr.Op = OpCreate
			}
			return gerr
		}
		locked = row.WithLifecycle(rowstate.Saving)
		b.Put(locked)
		return nil
	})
	if err != nil {
		return err
	}

	fe, verr := e.validator.Validate(ctx, locked.Current.Clone(), locked.IsNew)
	if verr != nil || fe != nil {
		failure := &Error{
			Op:          OpValidation,
			Key:         key,
			Record:      locked.Current.Clone(),
			FieldErrors: fe.Clone(),
			Err:         ErrValidationFailed,
		}
		if verr != nil {
			failure.Err = fmt.Errorf("%w: %w", ErrValidationFailed, verr)
		}
		e.settle(key, func(row rowstate.Row) rowstate.Row {
			row = row.Invalid(fe)
			if verr != nil {
				row.RowError = verr.Error()
			}
			return row
		})
		e.logger.Debug("validation failed", "key", key, "fields", fe.Fields())
		return e.report(ctx, failure)
	}

	submitted := locked.Cleared()
	saved, cerr := e.commits.Save(ctx, submitted)
	if cerr != nil {
		e.settle(key, func(rowstate.Row) rowstate.Row { return saved })
		return e.report(ctx, &Error{
			Op:     saveOp(locked),
			Key:    key,
			Record: submitted.Current.Clone(),
			Err:    cerr,
		})
	}

	next, _ := e.update(func(b *rowstate.Builder) error {
		b.Rekey(key, saved)
		e.unfocus(key)
		return nil
	})
	e.logger.Info("row saved", "key", saved.Key, "previous_key", key, "version", next.Version())
	return nil
}

// settle writes fn(row) for a row still tracked under key.
func (e *Engine) settle(key string, fn func(rowstate.Row) rowstate.Row) {
	e.update(func(b *rowstate.Builder) error {
		if row, ok := b.Get(key); ok {
			b.Put(fn(row))
		}
		return nil
	})
}

// Delete hard-deletes the row. On success the row is no longer tracked.
// On failure its lifecycle is unchanged and RowError holds the message.
// A row not yet created on the server is discarded without a backend call.
func (e *Engine) Delete(ctx context.Context, key string) error {
	row, discarded, err := e.removeGuard(key, false)
	if err != nil || discarded {
		return err
	}

	if err := e.commits.Delete(ctx, row); err != nil {
		e.settle(key, func(r rowstate.Row) rowstate.Row { return r.Flagged(err.Error()) })
		return e.report(ctx, &Error{Op: OpDelete, Key: key, Record: row.Current.Clone(), Err: err})
	}

	next, _ := e.update(func(b *rowstate.Builder) error {
		b.Delete(key)
		e.unfocus(key)
		return nil
	})
	e.logger.Info("row deleted", "key", key, "version", next.Version())
	return nil
}

// SoftRemove hides the row. On success it stays tracked in the deleted
// lifecycle until the source stops supplying it. On failure its lifecycle
// is unchanged and RowError holds the message. A row not yet created on
// the server is discarded like Delete does.
func (e *Engine) SoftRemove(ctx context.Context, key string) error {
	row, discarded, err := e.removeGuard(key, true)
	if err != nil || discarded {
		return err
	}

	removed, err := e.commits.SoftRemove(ctx, row)
	if err != nil {
		e.settle(key, func(r rowstate.Row) rowstate.Row { return r.Flagged(err.Error()) })
		return e.report(ctx, &Error{Op: OpDelete, Soft: true, Key: key, Record: row.Current.Clone(), Err: err})
	}

	e.settle(key, func(rowstate.Row) rowstate.Row {
		e.unfocus(key)
		return removed
	})
	e.logger.Info("row soft-removed", "key", key)
	return nil
}

// removeGuard checks that key may be removed and returns its row. Rows
// the server has never seen are dropped on the spot and reported as
// discarded.
func (e *Engine) removeGuard(key string, soft bool) (rowstate.Row, bool, error) {
	var (
		row       rowstate.Row
		discarded bool
	)
	next, err := e.update(func(b *rowstate.Builder) error {
		var gerr *Error
		if row, gerr = guard(b, key, OpDelete); gerr != nil {
			gerr.Soft = soft
			return gerr
		}
		if row.IsNew {
			b.Delete(key)
			e.unfocus(key)
			discarded = true
		}
		return nil
	})
	if err != nil {
		return row, false, err
	}
	if discarded {
		e.logger.Info("unsaved row discarded", "key", key, "version", next.Version())
	}
	return row, discarded, nil
}

// AddNew inserts a blank row in editing, focuses it and returns its key.
func (e *Engine) AddNew() string {
	key := e.ids.Generate()
	e.update(func(b *rowstate.Builder) error {
		b.Put(rowstate.NewBlankRow(key))
		e.focus(key)
		return nil
	})
	e.logger.Debug("row added", "key", key)
	return key
}

// BulkSave commits every pending creation and update in one backend call.
//
// It is a no-op when there is nothing to create or update; pending
// soft-removals never trigger a batch. Rows with a single-record save in
// flight are left out. Submitted rows are locked in the saving lifecycle
// until the backend answers.
//
// A whole-call failure puts every submitted row in the error lifecycle.
// Per-record failures are each sent to the sink, and the returned error
// wraps ErrPartialCommit. The editing focus is cleared either way.
func (e *Engine) BulkSave(ctx context.Context) (commit.BulkOutcome, error) {
	var changes tracker.ChangeSet
	prior := make(map[string]rowstate.Lifecycle)

	_, err := e.update(func(b *rowstate.Builder) error {
		rows := make([]rowstate.Row, 0, len(b.Keys()))
		for _, k := range b.Keys() {
			row, _ := b.Get(k)
			if row.Lifecycle != rowstate.Saving {
				rows = append(rows, row)
			}
		}
		changes = tracker.Track(rows)
		if !changes.Committable() {
			return errNothingToCommit
		}
		for _, k := range changes.Keys() {
			row, _ := b.Get(k)
			prior[k] = row.Lifecycle
			b.Put(row.WithLifecycle(rowstate.Saving))
		}
		return nil
	})
	if errors.Is(err, errNothingToCommit) {
		e.logger.Debug("bulk save skipped, nothing to commit", "deleted", len(changes.Deleted))
		return commit.BulkOutcome{}, nil
	}

	res, cerr := e.commits.BulkSave(ctx, changes)
	if cerr != nil {
		e.update(func(b *rowstate.Builder) error {
			for _, k := range changes.Keys() {
				if row, ok := b.Get(k); ok && row.Lifecycle == rowstate.Saving {
					b.Put(row.Failed(cerr.Error()))
				}
			}
			e.unfocus()
			return nil
		})
		return commit.BulkOutcome{}, e.report(ctx, &Error{Op: OpBulkSave, Changes: &changes, Err: cerr})
	}

	var out commit.BulkOutcome
	next, _ := e.update(func(b *rowstate.Builder) error {
		out = e.commits.ApplyBulk(b, changes, res, prior)
		e.unfocus()
		return nil
	})
	e.logger.Info("bulk save applied",
		"confirmed", len(out.Confirmed),
		"failed", len(out.Failed),
		"unacknowledged", len(out.Unacknowledged),
		"version", next.Version())

	if len(out.Failed) == 0 {
		return out, nil
	}
	for i, key := range out.Failed {
		e.sink.HandleError(ctx, &Error{
			Op:      OpBulkSave,
			Key:     key,
			Record:  out.FailedRecords[i],
			Changes: &changes,
			Err:     errors.New(res.Failed[i].Error),
		})
	}
	return out, &Error{
		Op:      OpBulkSave,
		Changes: &changes,
		Err:     fmt.Errorf("%w: %d of %d records", ErrPartialCommit, len(out.Failed), len(changes.New)+len(changes.Modified)),
	}
}

var errNothingToCommit = errors.New("nothing to commit")
