// Package record provides the value model shared by every other package.
//
// A Record is an opaque mapping of field name to value supplied by the
// caller. The engine never interprets fields; it only needs to copy records
// and decide whether two of them are equivalent.
//
// Equivalence is defined over canonical JSON:
//   - Object keys sorted by UTF-16 code units (RFC 8785)
//   - Strings NFC normalised, no HTML escaping
//   - Numbers printed in one normal form, so 10, int64(10) and 10.0 agree
//   - nil prints as null, which is distinct from an absent key
//
// This package imports nothing internal.
package record
