// Package engine implements the editable-record state engine.
//
// The engine tracks a working set of records, each as a rowstate.Row,
// and runs every edit through a fixed protocol: edit, validate, commit,
// reconcile. It never talks to a server itself; commits go through a
// commit.Backend supplied by the caller.
//
// ARCHITECTURE:
//
// Copy-on-Write Collection:
// The tracked rows live in an immutable rowstate.Collection. Each
// transition takes the engine mutex, derives the next Collection from the
// published one, and swaps the pointer. Readers load the pointer without
// locking and never observe a partial update.
//
// Transition Flow for Save:
//  1. Lock the row in the saving lifecycle (rejects concurrent operations)
//  2. Validate outside the mutex: schema, cell, async
//  3. Commit outside the mutex through the backend
//  4. Publish the outcome: idle and re-keyed, or error with messages
//
// Every failure leaves the row as it was apart from error bookkeeping,
// is sent to the ErrorSink, and is returned to the caller as *Error.
//
// CRITICAL PATTERNS:
//
// No Background Work:
// The engine starts no goroutines. Validators, backend calls and
// subscribers all run on the caller's goroutine with the caller's context.
//
// Placeholder Keys:
// Rows created with AddNew carry a generated key until the server returns
// a record with a natural identity. Keys come from a KeyGenerator, never
// from record content.
package engine
