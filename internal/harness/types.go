package harness

import (
	"github.com/roach88/gridedit/internal/record"
	"github.com/roach88/gridedit/internal/rowstate"
)

// RowTrace is the observable state of one row after a step.
type RowTrace struct {
	Key         string             `json:"key"`
	Lifecycle   rowstate.Lifecycle `json:"lifecycle"`
	Dirty       bool               `json:"dirty"`
	New         bool               `json:"new"`
	Current     record.Record      `json:"current"`
	FieldErrors record.FieldErrors `json:"field_errors,omitempty"`
	RowError    string             `json:"row_error,omitempty"`
}

// BulkTrace summarises how a batch result was applied.
type BulkTrace struct {
	Confirmed      []string `json:"confirmed,omitempty"`
	Replaced       []string `json:"replaced,omitempty"`
	Failed         []string `json:"failed,omitempty"`
	Unacknowledged []string `json:"unacknowledged,omitempty"`
}

// TraceEvent records one executed step and the rows it left behind.
type TraceEvent struct {
	Step    int        `json:"step"`
	Action  Action     `json:"action"`
	Key     string     `json:"key,omitempty"`
	Field   string     `json:"field,omitempty"`
	Error   string     `json:"error,omitempty"`
	Version uint64     `json:"version"`
	Editing string     `json:"editing,omitempty"`
	Bulk    *BulkTrace `json:"bulk,omitempty"`
	Rows    []RowTrace `json:"rows"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true when every step behaved as declared and every
	// expectation matched.
	Pass bool `json:"pass"`

	// Trace holds one event per step, in order.
	Trace []TraceEvent `json:"trace"`

	// Errors holds failure messages. Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// Sink lists the operations of errors delivered to the error sink,
	// in delivery order.
	Sink []string `json:"sink,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError adds a failure message and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

func rowTraces(rows []rowstate.Row) []RowTrace {
	out := make([]RowTrace, len(rows))
	for i, r := range rows {
		out[i] = RowTrace{
			Key:         r.Key,
			Lifecycle:   r.Lifecycle,
			Dirty:       r.IsDirty,
			New:         r.IsNew,
			Current:     r.Current,
			FieldErrors: r.FieldErrors,
			RowError:    r.RowError,
		}
	}
	return out
}
