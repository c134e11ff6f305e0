// Package rowstate holds the per-record state tracked by the engine.
//
// A Row pairs the last server-confirmed snapshot of a record with its
// working copy and a lifecycle. Rows live in a Collection, which is
// immutable once built: every change produces a new Collection with a
// higher version, so a reader holding an older snapshot never observes a
// partial update.
//
// INVARIANTS:
//   - Exactly one Row per key in a Collection
//   - Row.Original is never nil ({} for rows not yet created)
//   - Row.IsDirty == !record.Equal(Row.Current, Row.Original) after every
//     transition that touches either snapshot
package rowstate
