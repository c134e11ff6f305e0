package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/gridedit/internal/commit"
	"github.com/roach88/gridedit/internal/record"
	"github.com/roach88/gridedit/internal/tracker"
)

var _ commit.Backend = (*Store)(nil)

// Save creates a record (original nil) or updates one.
//
// A create without a key is assigned "<prefix><seq>". A create whose key
// is already stored fails with ErrConflict.
//
// An update is keyed by original's id field (falling back to current's).
// It fails with ErrNotFound if the record is missing or soft-removed and
// with ErrConflict unless the stored data is canonically equal to
// original.
//
// Returns the record as stored.
func (s *Store) Save(ctx context.Context, current, original record.Record) (record.Record, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("save: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	seq, err := nextSeq(ctx, tx)
	if err != nil {
		return nil, fmt.Errorf("save: %w", err)
	}

	var saved record.Record
	if original == nil {
		saved, err = s.create(ctx, tx, seq, current)
	} else {
		saved, err = s.update(ctx, tx, seq, current, original)
	}
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("save: commit: %w", err)
	}
	return saved, nil
}

func (s *Store) create(ctx context.Context, tx *sql.Tx, seq int64, rec record.Record) (record.Record, error) {
	key, ok := s.keyOf(rec)
	if !ok {
		key = fmt.Sprintf("%s%d", s.idPrefix, seq)
		rec = rec.With(s.idField, key)
	}

	data, err := marshalRecord(rec)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", key, err)
	}

	result, err := tx.ExecContext(ctx, `
		INSERT INTO records (key, data, deleted, seq)
		VALUES (?, ?, 0, ?)
		ON CONFLICT(key) DO NOTHING
	`, key, data, seq)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", key, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("create %s: rows affected: %w", key, err)
	}
	if n == 0 {
		return nil, fmt.Errorf("create %s: already exists: %w", key, ErrConflict)
	}

	if err := logCommit(ctx, tx, seq, "create", key, rec); err != nil {
		return nil, err
	}
	s.logger.Debug("record created", "key", key, "seq", seq)
	return unmarshalRecord(data)
}

func (s *Store) update(ctx context.Context, tx *sql.Tx, seq int64, current, original record.Record) (record.Record, error) {
	key, ok := s.keyOf(original)
	if !ok {
		if key, ok = s.keyOf(current); !ok {
			return nil, fmt.Errorf("update: record has no %q: %w", s.idField, ErrNotFound)
		}
	}

	stored, deleted, err := getRecord(ctx, tx, key)
	if err != nil {
		return nil, fmt.Errorf("update %s: %w", key, err)
	}
	if deleted {
		return nil, fmt.Errorf("update %s: removed: %w", key, ErrNotFound)
	}
	if !record.Equal(stored, original) {
		return nil, fmt.Errorf("update %s: changed since read: %w", key, ErrConflict)
	}

	data, err := marshalRecord(current)
	if err != nil {
		return nil, fmt.Errorf("update %s: %w", key, err)
	}
	if _, err := tx.ExecContext(ctx, `UPDATE records SET data = ? WHERE key = ?`, data, key); err != nil {
		return nil, fmt.Errorf("update %s: %w", key, err)
	}

	if err := logCommit(ctx, tx, seq, "update", key, current); err != nil {
		return nil, err
	}
	s.logger.Debug("record updated", "key", key, "seq", seq)
	return unmarshalRecord(data)
}

// BulkSave saves every entry of changes, each in its own transaction.
// Per-record failures are collected; the call itself fails only when ctx
// is done.
func (s *Store) BulkSave(ctx context.Context, changes tracker.ChangeSet) (commit.BulkResult, error) {
	var res commit.BulkResult

	apply := func(current, original record.Record) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		saved, err := s.Save(ctx, current, original)
		if err != nil {
			res.Failed = append(res.Failed, commit.Failure{Row: current.Clone(), Error: err.Error()})
			return nil
		}
		res.Success = append(res.Success, saved)
		return nil
	}

	for _, rec := range changes.New {
		if err := apply(rec, nil); err != nil {
			return commit.BulkResult{}, fmt.Errorf("bulk save: %w", err)
		}
	}
	for _, mod := range changes.Modified {
		if err := apply(mod.Updated, mod.Original); err != nil {
			return commit.BulkResult{}, fmt.Errorf("bulk save: %w", err)
		}
	}

	s.logger.Debug("bulk save", "success", len(res.Success), "failed", len(res.Failed))
	return res, nil
}

// Delete removes the record for id. Returns ErrNotFound if missing.
func (s *Store) Delete(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("delete: begin tx: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, `DELETE FROM records WHERE key = ?`, id)
	if err != nil {
		return fmt.Errorf("delete %s: %w", id, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete %s: rows affected: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("delete %s: %w", id, ErrNotFound)
	}

	seq, err := nextSeq(ctx, tx)
	if err != nil {
		return fmt.Errorf("delete %s: %w", id, err)
	}
	if err := logCommit(ctx, tx, seq, "delete", id, nil); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("delete %s: commit: %w", id, err)
	}
	s.logger.Debug("record deleted", "key", id, "seq", seq)
	return nil
}

// SoftRemove marks the record for id deleted. Removing an already removed
// record is a no-op. Returns ErrNotFound if missing.
func (s *Store) SoftRemove(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("soft remove: begin tx: %w", err)
	}
	defer tx.Rollback()

	_, deleted, err := getRecord(ctx, tx, id)
	if err != nil {
		return fmt.Errorf("soft remove %s: %w", id, err)
	}
	if deleted {
		return nil
	}

	if _, err := tx.ExecContext(ctx, `UPDATE records SET deleted = 1 WHERE key = ?`, id); err != nil {
		return fmt.Errorf("soft remove %s: %w", id, err)
	}

	seq, err := nextSeq(ctx, tx)
	if err != nil {
		return fmt.Errorf("soft remove %s: %w", id, err)
	}
	if err := logCommit(ctx, tx, seq, "soft_remove", id, nil); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("soft remove %s: commit: %w", id, err)
	}
	s.logger.Debug("record soft-removed", "key", id, "seq", seq)
	return nil
}

// keyOf returns the key stored in rec's id field.
func (s *Store) keyOf(rec record.Record) (string, bool) {
	v, ok := rec[s.idField]
	if !ok || v == nil {
		return "", false
	}
	key := fmt.Sprint(v)
	if f, isFloat := v.(float64); isFloat && f == float64(int64(f)) {
		key = fmt.Sprintf("%d", int64(f))
	}
	return key, key != ""
}

// nextSeq returns the next logical time. Transactions are serialized by
// the single connection, so MAX+1 is unique.
func nextSeq(ctx context.Context, tx *sql.Tx) (int64, error) {
	var seq int64
	if err := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(seq), 0) + 1 FROM commits`).Scan(&seq); err != nil {
		return 0, fmt.Errorf("next seq: %w", err)
	}
	return seq, nil
}

// logCommit appends to the commit log. rec is fingerprinted when non-nil.
func logCommit(ctx context.Context, tx *sql.Tx, seq int64, op, key string, rec record.Record) error {
	var fp string
	if rec != nil {
		var err error
		if fp, err = record.Fingerprint(rec); err != nil {
			return fmt.Errorf("log %s %s: %w", op, key, err)
		}
	}
	_, err := tx.ExecContext(ctx, `
		INSERT INTO commits (seq, operation, key, fingerprint)
		VALUES (?, ?, ?, ?)
	`, seq, op, key, fp)
	if err != nil {
		return fmt.Errorf("log %s %s: %w", op, key, err)
	}
	return nil
}

// getRecord loads one record inside tx.
func getRecord(ctx context.Context, tx *sql.Tx, key string) (record.Record, bool, error) {
	var (
		data    string
		deleted bool
	)
	err := tx.QueryRowContext(ctx, `SELECT data, deleted FROM records WHERE key = ?`, key).Scan(&data, &deleted)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, ErrNotFound
	}
	if err != nil {
		return nil, false, err
	}
	rec, err := unmarshalRecord(data)
	if err != nil {
		return nil, false, err
	}
	return rec, deleted, nil
}
