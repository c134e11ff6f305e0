package rowstate

import (
	"fmt"

	"github.com/roach88/gridedit/internal/record"
)

// Lifecycle is the discrete state of a tracked record.
type Lifecycle string

const (
	Idle    Lifecycle = "idle"
	Editing Lifecycle = "editing"
	Saving  Lifecycle = "saving"
	Error   Lifecycle = "error"
	Deleted Lifecycle = "deleted"
)

// Valid reports whether l is one of the known lifecycles.
func (l Lifecycle) Valid() bool {
	switch l {
	case Idle, Editing, Saving, Error, Deleted:
		return true
	}
	return false
}

// ParseLifecycle converts a string to a Lifecycle.
func ParseLifecycle(s string) (Lifecycle, error) {
	l := Lifecycle(s)
	if !l.Valid() {
		return "", fmt.Errorf("unknown lifecycle %q", s)
	}
	return l, nil
}

// Row is the state of one tracked record.
//
// Rows are values. Transition methods return a new Row and never modify
// the receiver's maps, so a Row read from a published Collection stays
// unchanged.
type Row struct {
	Key         string             `json:"key"`
	Original    record.Record      `json:"original"`
	Current     record.Record      `json:"current"`
	Lifecycle   Lifecycle          `json:"lifecycle"`
	FieldErrors record.FieldErrors `json:"field_errors,omitempty"`
	RowError    string             `json:"row_error,omitempty"`
	IsNew       bool               `json:"is_new"`
	IsDirty     bool               `json:"is_dirty"`

	// Version is the collection version at which this row last changed.
	Version uint64 `json:"version"`
}

// NewRow creates an idle, clean row from a server-confirmed record.
func NewRow(key string, rec record.Record) Row {
	return Row{
		Key:       key,
		Original:  rec.Clone(),
		Current:   rec.Clone(),
		Lifecycle: Idle,
	}
}

// NewBlankRow creates the row for a record inserted by the user:
// editing, new, with empty snapshots.
func NewBlankRow(key string) Row {
	return Row{
		Key:       key,
		Original:  record.Empty(),
		Current:   record.Empty(),
		Lifecycle: Editing,
		IsNew:     true,
	}
}

// Clone returns a deep copy of r.
func (r Row) Clone() Row {
	out := r
	out.Original = r.Original.Clone()
	out.Current = r.Current.Clone()
	out.FieldErrors = r.FieldErrors.Clone()
	return out
}

// Dirty recomputes whether Current differs from Original.
func (r Row) Dirty() bool {
	return !record.Equal(r.Current, r.Original)
}

// Visible reports whether the row belongs in the visible dataset.
func (r Row) Visible() bool {
	return r.Lifecycle != Deleted
}

// HasError reports whether the row carries field or commit errors.
func (r Row) HasError() bool {
	return len(r.FieldErrors) > 0 || r.RowError != ""
}

// WithLifecycle returns r in lifecycle l.
func (r Row) WithLifecycle(l Lifecycle) Row {
	r.Lifecycle = l
	return r
}

// WithField returns r with one field of the working copy changed.
// The row moves to editing, dirty is recomputed, and any message for
// that field is dropped.
func (r Row) WithField(field string, value any) Row {
	r.Current = r.Current.With(field, value)
	r.IsDirty = r.Dirty()
	r.FieldErrors = r.FieldErrors.Without(field)
	r.Lifecycle = Editing
	return r
}

// Reverted returns r with the working copy restored to Original and all
// errors cleared.
func (r Row) Reverted() Row {
	r.Current = r.Original.Clone()
	r.IsDirty = false
	r.FieldErrors = nil
	r.RowError = ""
	r.Lifecycle = Idle
	return r
}

// Confirmed returns r after the server accepted result: both snapshots
// become result, the row is idle, clean and no longer new.
func (r Row) Confirmed(key string, result record.Record) Row {
	out := NewRow(key, result)
	out.Version = r.Version
	return out
}

// Invalid returns r in the error lifecycle holding field-level messages.
// A commit failure from an earlier attempt is dropped.
func (r Row) Invalid(fe record.FieldErrors) Row {
	r.FieldErrors = fe.Clone()
	r.RowError = ""
	r.Lifecycle = Error
	return r
}

// Failed returns r in the error lifecycle with a commit failure message.
func (r Row) Failed(msg string) Row {
	r.RowError = msg
	r.Lifecycle = Error
	return r
}

// Flagged returns r with a commit failure message but its lifecycle
// unchanged. Used when a delete fails.
func (r Row) Flagged(msg string) Row {
	r.RowError = msg
	return r
}

// Cleared returns r with field and row errors removed.
func (r Row) Cleared() Row {
	r.FieldErrors = nil
	r.RowError = ""
	return r
}
