// Package store provides a SQLite-backed record store that implements
// commit.Backend.
//
// The store holds one row per record plus an append-only commit log:
//   - records: key, canonical JSON data, soft-delete flag, creation seq
//   - commits: seq, operation, key, fingerprint of the written data
//
// # Critical Patterns
//
// Logical Time:
//   - Every write takes the next seq inside its transaction
//   - List order uses the creation seq, NEVER timestamps
//
// Optimistic Updates:
//   - An update carries the snapshot it was based on
//   - The write is rejected with ErrConflict unless the stored data is
//     canonically equal to that snapshot
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
//
// Data is stored as RFC 8785 canonical JSON (record.MarshalCanonical) so
// equal records always have equal bytes.
package store
