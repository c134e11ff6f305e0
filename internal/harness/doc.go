// Package harness replays editing sessions against the record engine.
//
// A scenario seeds an in-memory store, scripts backend failures, runs a
// sequence of engine calls and checks the final state. Every step leaves a
// trace event with the rows it produced, so a run can also be compared
// against a golden file.
//
// # Scenario Format
//
// Scenarios are defined in YAML files with the following structure:
//
//	name: scenario_name
//	description: "What this scenario validates"
//	schema: |
//	  #Record: { id?: string, name: string }
//	cell_rules:
//	  price: "min:0"
//	async_rules:
//	  name: { taken: "name already exists" }
//	records:
//	  - { id: r1, name: Widget, price: 10 }
//	failures:
//	  - { op: save, key: r1, message: "conflict", times: 1 }
//	steps:
//	  - { action: change, key: r1, field: price, value: 12 }
//	  - { action: save, key: r1, error: update }
//	expect:
//	  rows:
//	    r1: { lifecycle: error, dirty: true, row_error: conflict }
//	  pending: { new: 0, modified: 1, deleted: 0 }
//	  sink: [update]
//
// Actions are start_edit, change, cancel, save, delete, soft_remove,
// add_new, bulk_save, reload (reconcile with the store's current records)
// and heal (drop all scripted failures). add_new rows get the keys
// new-1, new-2 and so on; records the store creates get r<seq>.
//
// # Determinism
//
// Placeholder keys come from a counter, store ids from the store's commit
// sequence, and the trace is encoded as canonical JSON. Two runs of the
// same scenario produce byte-identical traces.
package harness
