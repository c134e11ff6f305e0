package harness

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/roach88/gridedit/internal/record"
	"github.com/roach88/gridedit/internal/rowstate"
)

// AssertionError is returned when an expectation fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string // Expectation kind for categorization
	Subject  string // Row key or other subject, if any
	Expected string // Human-readable expected outcome
	Actual   string // Human-readable actual outcome
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder
	if e.Subject != "" {
		fmt.Fprintf(&buf, "Expectation failed: %s %s\n", e.Type, e.Subject)
	} else {
		fmt.Fprintf(&buf, "Expectation failed: %s\n", e.Type)
	}
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s", e.Actual)
	return buf.String()
}

// evaluate checks the scenario's expectations against the final state and
// returns one message per failure.
func (h *Harness) evaluate(ctx context.Context) []string {
	exp := h.scenario.Expect
	var errs []error

	for _, key := range slices.Sorted(maps.Keys(exp.Rows)) {
		errs = append(errs, h.assertRow(key, exp.Rows[key])...)
	}
	for _, key := range exp.Absent {
		if _, ok := h.engine.Row(key); ok {
			errs = append(errs, &AssertionError{Type: "absent", Subject: key, Expected: "not tracked", Actual: "tracked"})
		}
	}
	if exp.Visible != nil {
		errs = append(errs, assertKeys("visible", exp.Visible, h.visibleKeys()))
	}
	if exp.Pending != nil {
		got := h.engine.Summary()
		want := *exp.Pending
		if got.New != want.New || got.Modified != want.Modified || got.Deleted != want.Deleted {
			errs = append(errs, &AssertionError{
				Type:     "pending",
				Expected: fmt.Sprintf("new=%d modified=%d deleted=%d", want.New, want.Modified, want.Deleted),
				Actual:   fmt.Sprintf("new=%d modified=%d deleted=%d", got.New, got.Modified, got.Deleted),
			})
		}
	}
	if exp.Editing != nil {
		got, _ := h.engine.Editing()
		if got != *exp.Editing {
			errs = append(errs, &AssertionError{Type: "editing", Expected: quoteOrNone(*exp.Editing), Actual: quoteOrNone(got)})
		}
	}
	if exp.Sink != nil {
		errs = append(errs, assertKeys("sink", exp.Sink, h.sinkOps))
	}
	if exp.Stored != nil {
		errs = append(errs, h.assertStored(ctx, exp.Stored))
	}

	var out []string
	for _, err := range errs {
		if err != nil {
			out = append(out, err.Error())
		}
	}
	return out
}

func (h *Harness) assertRow(key string, want RowExpect) []error {
	row, ok := h.engine.Row(key)
	if !ok {
		return []error{&AssertionError{Type: "row", Subject: key, Expected: "tracked", Actual: "not tracked"}}
	}

	var errs []error
	fail := func(what, expected, actual string) {
		errs = append(errs, &AssertionError{Type: "row " + what, Subject: key, Expected: expected, Actual: actual})
	}

	if want.Lifecycle != "" && rowstate.Lifecycle(want.Lifecycle) != row.Lifecycle {
		fail("lifecycle", want.Lifecycle, string(row.Lifecycle))
	}
	if want.Dirty != nil && *want.Dirty != row.IsDirty {
		fail("dirty", fmt.Sprint(*want.Dirty), fmt.Sprint(row.IsDirty))
	}
	if want.New != nil && *want.New != row.IsNew {
		fail("new", fmt.Sprint(*want.New), fmt.Sprint(row.IsNew))
	}
	if want.RowError != nil && *want.RowError != row.RowError {
		fail("row_error", quoteOrNone(*want.RowError), quoteOrNone(row.RowError))
	}
	if want.Current != nil && !matchSubset(row.Current, want.Current) {
		fail("current", formatRecord(want.Current), formatRecord(row.Current))
	}
	if want.FieldErrors != nil {
		wantFields := slices.Sorted(slices.Values(want.FieldErrors))
		if gotFields := row.FieldErrors.Fields(); !slices.Equal(wantFields, gotFields) {
			fail("field_errors", fmt.Sprint(wantFields), fmt.Sprint(gotFields))
		}
	}
	for _, field := range slices.Sorted(maps.Keys(want.Messages)) {
		if got := row.FieldErrors[field]; got != want.Messages[field] {
			fail("message "+field, quoteOrNone(want.Messages[field]), quoteOrNone(got))
		}
	}
	return errs
}

func (h *Harness) visibleKeys() []string {
	var keys []string
	for _, r := range h.engine.Rows() {
		if r.Visible() {
			keys = append(keys, r.Key)
		}
	}
	return keys
}

func (h *Harness) assertStored(ctx context.Context, want []map[string]any) error {
	got, err := h.store.List(ctx)
	if err != nil {
		return &AssertionError{Type: "stored", Expected: "readable store", Actual: err.Error()}
	}
	if len(got) != len(want) {
		return &AssertionError{
			Type:     "stored",
			Expected: fmt.Sprintf("%d records", len(want)),
			Actual:   fmt.Sprintf("%d records: %s", len(got), formatRecords(got)),
		}
	}
	for i := range want {
		if !matchSubset(got[i], want[i]) {
			return &AssertionError{
				Type:     "stored",
				Subject:  fmt.Sprintf("[%d]", i),
				Expected: formatRecord(want[i]),
				Actual:   formatRecord(got[i]),
			}
		}
	}
	return nil
}

// assertKeys compares two ordered string lists exactly.
func assertKeys(kind string, want, got []string) error {
	if slices.Equal(want, got) || (len(want) == 0 && len(got) == 0) {
		return nil
	}
	return &AssertionError{Type: kind, Expected: fmt.Sprint(want), Actual: fmt.Sprint(got)}
}

// matchSubset reports whether every field of want is present in got with
// an equivalent value. Extra fields in got are ignored.
func matchSubset(got record.Record, want map[string]any) bool {
	for field, w := range want {
		g, ok := got[field]
		if !ok || !record.ValueEqual(g, w) {
			return false
		}
	}
	return true
}

func formatRecord(rec map[string]any) string {
	b, err := record.MarshalCanonical(rec)
	if err != nil {
		return fmt.Sprint(rec)
	}
	return string(b)
}

func formatRecords(recs []record.Record) string {
	parts := make([]string, len(recs))
	for i, r := range recs {
		parts[i] = formatRecord(r)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

func quoteOrNone(s string) string {
	if s == "" {
		return "(none)"
	}
	return fmt.Sprintf("%q", s)
}
