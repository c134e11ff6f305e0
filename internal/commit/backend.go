// Package commit executes commits against the caller's collaborators and
// turns their outcomes into row transitions.
//
// The coordinator never holds engine state. Each method takes the rows it
// needs, calls out, and returns the resulting rows (or writes them into a
// rowstate.Builder) for the engine to publish atomically.
//
// No call is ever retried.
package commit

import (
	"context"
	"errors"

	"github.com/roach88/gridedit/internal/record"
	"github.com/roach88/gridedit/internal/tracker"
)

// ErrNotSupported is returned by Funcs for collaborators left unset.
var ErrNotSupported = errors.New("operation not supported by backend")

// Saver commits one record. original is nil for records not yet created.
// The returned record is the server-confirmed version.
type Saver interface {
	Save(ctx context.Context, current, original record.Record) (record.Record, error)
}

// BulkSaver commits every pending creation and update in one call and
// reports per-item outcomes. A non-nil error means the call as a whole
// failed and no item outcome is known.
type BulkSaver interface {
	BulkSave(ctx context.Context, changes tracker.ChangeSet) (BulkResult, error)
}

// Deleter hard-deletes a record by key.
type Deleter interface {
	Delete(ctx context.Context, id string) error
}

// SoftRemover marks a record hidden by key.
type SoftRemover interface {
	SoftRemove(ctx context.Context, id string) error
}

// Backend bundles every collaborator the engine calls.
type Backend interface {
	Saver
	BulkSaver
	Deleter
	SoftRemover
}

// BulkResult is the per-item outcome of a batch commit.
//
// Created records should be listed in the order they were submitted;
// records without a key already known to the engine are matched to
// pending new rows by position.
type BulkResult struct {
	Success []record.Record `json:"success"`
	Failed  []Failure       `json:"failed"`
}

// Failure is one rejected item of a batch commit. Row is the record as
// it was submitted.
type Failure struct {
	Row   record.Record `json:"row"`
	Error string        `json:"error"`
}

// Funcs builds a Backend from plain functions. Unset functions return
// ErrNotSupported.
type Funcs struct {
	SaveFn       func(ctx context.Context, current, original record.Record) (record.Record, error)
	BulkSaveFn   func(ctx context.Context, changes tracker.ChangeSet) (BulkResult, error)
	DeleteFn     func(ctx context.Context, id string) error
	SoftRemoveFn func(ctx context.Context, id string) error
}

var _ Backend = Funcs{}

// Save calls SaveFn.
func (f Funcs) Save(ctx context.Context, current, original record.Record) (record.Record, error) {
	if f.SaveFn == nil {
		return nil, ErrNotSupported
	}
	return f.SaveFn(ctx, current, original)
}

// BulkSave calls BulkSaveFn.
func (f Funcs) BulkSave(ctx context.Context, changes tracker.ChangeSet) (BulkResult, error) {
	if f.BulkSaveFn == nil {
		return BulkResult{}, ErrNotSupported
	}
	return f.BulkSaveFn(ctx, changes)
}

// Delete calls DeleteFn.
func (f Funcs) Delete(ctx context.Context, id string) error {
	if f.DeleteFn == nil {
		return ErrNotSupported
	}
	return f.DeleteFn(ctx, id)
}

// SoftRemove calls SoftRemoveFn.
func (f Funcs) SoftRemove(ctx context.Context, id string) error {
	if f.SoftRemoveFn == nil {
		return ErrNotSupported
	}
	return f.SoftRemoveFn(ctx, id)
}
