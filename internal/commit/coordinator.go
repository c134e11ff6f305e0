package commit

import (
	"context"
	"fmt"

	"github.com/roach88/gridedit/internal/identity"
	"github.com/roach88/gridedit/internal/record"
	"github.com/roach88/gridedit/internal/rowstate"
	"github.com/roach88/gridedit/internal/tracker"
)

// Coordinator runs commits for the engine.
type Coordinator struct {
	backend Backend
	ids     *identity.Identifier
}

// NewCoordinator creates a Coordinator over backend, using ids to derive
// keys of records returned by the backend.
func NewCoordinator(backend Backend, ids *identity.Identifier) *Coordinator {
	return &Coordinator{backend: backend, ids: ids}
}

// Save commits row's working copy.
//
// On success the returned row is idle, clean and not new, with both
// snapshots set to the server's record. Its key is the natural identity
// of that record when it has one, otherwise row.Key.
//
// On failure the returned row is in the error lifecycle with RowError
// set, and the backend's error is returned.
func (c *Coordinator) Save(ctx context.Context, row rowstate.Row) (rowstate.Row, error) {
	var original record.Record
	if !row.IsNew {
		original = row.Original.Clone()
	}

	result, err := c.backend.Save(ctx, row.Current.Clone(), original)
	if err != nil {
		return row.Failed(err.Error()), err
	}
	if result == nil {
		err := fmt.Errorf("save of %q returned no record", row.Key)
		return row.Failed(err.Error()), err
	}

	key := row.Key
	if natural, ok := c.ids.Natural(result); ok {
		key = natural
	}
	return row.Confirmed(key, result), nil
}

// Delete hard-deletes row. On failure the returned error carries the
// backend's message; the caller decides what to keep.
func (c *Coordinator) Delete(ctx context.Context, row rowstate.Row) error {
	return c.backend.Delete(ctx, row.Key)
}

// SoftRemove hides row. On success the returned row is in the deleted
// lifecycle with errors cleared.
func (c *Coordinator) SoftRemove(ctx context.Context, row rowstate.Row) (rowstate.Row, error) {
	if err := c.backend.SoftRemove(ctx, row.Key); err != nil {
		return row, err
	}
	return row.Cleared().WithLifecycle(rowstate.Deleted), nil
}

// BulkSave sends changes to the backend. Callers check
// changes.Committable() first; an empty batch is still sent if asked.
func (c *Coordinator) BulkSave(ctx context.Context, changes tracker.ChangeSet) (BulkResult, error) {
	return c.backend.BulkSave(ctx, changes)
}

// BulkOutcome describes how a batch result was applied.
type BulkOutcome struct {
	// Confirmed lists keys of rows written from success records.
	Confirmed []string
	// Replaced lists placeholder keys of new rows superseded by a
	// success record with a server-assigned key.
	Replaced []string
	// Failed lists keys of rows put in the error lifecycle, in result order.
	Failed []string
	// FailedRecords parallels Failed with the submitted records.
	FailedRecords []record.Record
	// Unacknowledged lists submitted keys the backend did not mention.
	Unacknowledged []string
}

// ApplyBulk writes the outcome of a batch commit into b.
//
// prior holds the lifecycle each submitted row had before it was locked
// for the batch; unacknowledged rows return to it (editing if absent).
func (c *Coordinator) ApplyBulk(b *rowstate.Builder, changes tracker.ChangeSet, res BulkResult, prior map[string]rowstate.Lifecycle) BulkOutcome {
	var out BulkOutcome

	submitted := make(map[string]bool)
	for _, k := range changes.Keys() {
		submitted[k] = true
	}
	settled := make(map[string]bool)

	// Failures first, so positional matching below skips failed rows.
	for _, f := range res.Failed {
		key := c.submittedKey(b, f.Row, changes, settled)
		if key == "" {
			key = c.ids.Generate()
		}
		if row, ok := b.Get(key); ok {
			b.Put(row.Failed(f.Error))
		} else {
			row := rowstate.Row{
				Key:       key,
				Original:  record.Empty(),
				Current:   f.Row.Clone(),
				Lifecycle: rowstate.Error,
				RowError:  f.Error,
				IsNew:     true,
			}
			row.IsDirty = row.Dirty()
			b.Put(row)
		}
		settled[key] = true
		out.Failed = append(out.Failed, key)
		out.FailedRecords = append(out.FailedRecords, f.Row.Clone())
	}

	// Successes whose key is already tracked and was submitted are
	// written in place; the rest are server-created records.
	var created []record.Record
	for _, s := range res.Success {
		key, natural := c.ids.Natural(s)
		if natural && submitted[key] && !settled[key] {
			row, _ := b.Get(key)
			b.Put(row.Confirmed(key, s))
			settled[key] = true
			out.Confirmed = append(out.Confirmed, key)
			continue
		}
		created = append(created, s)
	}

	// Match server-created records to unsettled new rows in submission order.
	var pendingNew []string
	for _, k := range changes.NewKeys {
		if !settled[k] {
			pendingNew = append(pendingNew, k)
		}
	}
	for i, s := range created {
		key, natural := c.ids.Natural(s)
		if i < len(pendingNew) {
			old := pendingNew[i]
			row, _ := b.Get(old)
			if !natural {
				key = old
			}
			b.Rekey(old, row.Confirmed(key, s))
			settled[old] = true
			settled[key] = true
			if key != old {
				out.Replaced = append(out.Replaced, old)
			}
			out.Confirmed = append(out.Confirmed, key)
			continue
		}
		if !natural {
			key = c.ids.Generate()
		}
		b.Put(rowstate.NewRow(key, s))
		settled[key] = true
		out.Confirmed = append(out.Confirmed, key)
	}

	for _, k := range changes.Keys() {
		if settled[k] {
			continue
		}
		row, ok := b.Get(k)
		if !ok {
			continue
		}
		l, ok := prior[k]
		if !ok || l == rowstate.Saving {
			l = rowstate.Editing
		}
		b.Put(row.WithLifecycle(l))
		out.Unacknowledged = append(out.Unacknowledged, k)
	}

	return out
}

// submittedKey finds the row key a submitted record came from: its
// natural key when that row is tracked, else the key of the first
// unclaimed change-set entry with equivalent content, else its natural
// key. claimed holds keys already settled by earlier failures, so rows
// with identical content are matched one to one.
func (c *Coordinator) submittedKey(b *rowstate.Builder, rec record.Record, changes tracker.ChangeSet, claimed map[string]bool) string {
	natural, ok := c.ids.Natural(rec)
	if ok {
		if _, tracked := b.Get(natural); tracked {
			return natural
		}
	}
	for i, n := range changes.New {
		if k := changes.NewKeys[i]; !claimed[k] && record.Equal(n, rec) {
			return k
		}
	}
	for i, m := range changes.Modified {
		if k := changes.ModifiedKeys[i]; !claimed[k] && record.Equal(m.Updated, rec) {
			return k
		}
	}
	if ok {
		return natural
	}
	return ""
}
