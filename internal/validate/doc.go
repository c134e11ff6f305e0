// Package validate runs the three validation layers for one record and
// merges their results.
//
// Layers, always all three, in order:
//  1. Schema: synchronous structural checks (SchemaValidator)
//  2. Cell: one CellValidator per registered field (Registry)
//  3. Async: a single server-side check (AsyncValidator)
//
// Layer 3 never starts before every layer-2 validator has returned.
// Results are combined by an ordered fold with shallow overwrite, so a
// later layer's message for a field replaces an earlier one. Only
// top-level field keys are considered.
package validate
