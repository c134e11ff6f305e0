package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/roach88/gridedit/internal/record"
	"github.com/roach88/gridedit/internal/tracker"
)

// Operation tags the kind of work that failed.
type Operation string

const (
	// OpCreate is a single-record save of a row that is new.
	OpCreate Operation = "create"

	// OpUpdate is a single-record save of an existing row, or an edit
	// rejected by the row's lifecycle.
	OpUpdate Operation = "update"

	// OpDelete is a hard delete or, with Error.Soft set, a soft remove.
	OpDelete Operation = "delete"

	// OpBulkSave is a batch commit.
	OpBulkSave Operation = "bulk_save"

	// OpValidation is a save stopped before commit by validation.
	OpValidation Operation = "validation"
)

var (
	// ErrRowNotFound is returned for keys the engine does not track.
	ErrRowNotFound = errors.New("row not found")

	// ErrRowBusy is returned for operations on a row that is saving.
	ErrRowBusy = errors.New("row is saving")

	// ErrRowDeleted is returned for operations on a soft-removed row.
	ErrRowDeleted = errors.New("row is deleted")

	// ErrValidationFailed is wrapped by every validation Error.
	ErrValidationFailed = errors.New("validation failed")

	// ErrPartialCommit is wrapped by the Error returned when a batch
	// commit succeeded for some records and failed for others.
	ErrPartialCommit = errors.New("batch commit partially failed")
)

// Error describes a failed engine operation. The same value is passed to
// the ErrorSink and returned to the caller.
type Error struct {
	// Op identifies the failed operation.
	Op Operation

	// Key is the affected row. Empty for whole-batch failures.
	Key string

	// Soft is set for soft-remove failures (Op == OpDelete).
	Soft bool

	// Record is a copy of the affected record as submitted.
	Record record.Record

	// Changes is the change set attempted by a batch commit.
	Changes *tracker.ChangeSet

	// FieldErrors holds merged validation messages (Op == OpValidation).
	FieldErrors record.FieldErrors

	// Err is the underlying cause.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	op := string(e.Op)
	if e.Soft {
		op = "soft_remove"
	}
	if e.Key != "" {
		return fmt.Sprintf("%s %s: %v", op, e.Key, e.Err)
	}
	return fmt.Sprintf("%s: %v", op, e.Err)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// LogValue renders the error as a slog group.
func (e *Error) LogValue() slog.Value {
	attrs := []slog.Attr{
		slog.String("op", string(e.Op)),
		slog.String("error", fmt.Sprint(e.Err)),
	}
	if e.Key != "" {
		attrs = append(attrs, slog.String("key", e.Key))
	}
	if e.Soft {
		attrs = append(attrs, slog.Bool("soft", true))
	}
	if len(e.FieldErrors) > 0 {
		attrs = append(attrs, slog.Any("fields", e.FieldErrors.Fields()))
	}
	if e.Changes != nil {
		attrs = append(attrs,
			slog.Int("new", len(e.Changes.New)),
			slog.Int("modified", len(e.Changes.Modified)))
	}
	return slog.GroupValue(attrs...)
}

// IsValidationError returns true if err is a validation Error.
// Uses errors.As to handle wrapped errors.
func IsValidationError(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Op == OpValidation
	}
	return false
}

// IsBusyError returns true if err rejected an operation on a saving row.
func IsBusyError(err error) bool {
	return errors.Is(err, ErrRowBusy)
}

// ErrorSink receives every commit and validation failure.
type ErrorSink interface {
	HandleError(ctx context.Context, err *Error)
}

// SinkFunc adapts a function to ErrorSink.
type SinkFunc func(ctx context.Context, err *Error)

// HandleError calls f.
func (f SinkFunc) HandleError(ctx context.Context, err *Error) {
	f(ctx, err)
}

// logSink is the default sink. It logs at Warn.
type logSink struct {
	logger *slog.Logger
}

func (s logSink) HandleError(ctx context.Context, err *Error) {
	s.logger.WarnContext(ctx, "record operation failed", "failure", err)
}
