// Package identity derives stable keys for records.
//
// A key comes from, in order: a caller-supplied Func, the first non-nil
// id-like field, or a KeyGenerator. Generated keys are placeholders for
// records the server has not seen yet; they are never derived from record
// content and never reused.
package identity

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/roach88/gridedit/internal/record"
)

// Func extracts the key of a record. When set it is authoritative.
// Callers must supply one whenever records lack a natural key and false
// collisions would be unacceptable.
type Func func(rec record.Record) string

// DefaultIDFields are the id-like fields consulted when no Func is set.
var DefaultIDFields = []string{"id", "_id", "ID"}

// KeyGenerator produces placeholder keys for records without identity.
// Implemented by CounterGenerator, UUIDv7Generator and FixedGenerator.
type KeyGenerator interface {
	Generate() string
}

// Identifier resolves record keys.
type Identifier struct {
	fn       Func
	idFields []string
	gen      KeyGenerator
}

// New creates an Identifier. A nil gen defaults to UUIDv7Generator and
// empty idFields default to DefaultIDFields.
func New(fn Func, idFields []string, gen KeyGenerator) *Identifier {
	if gen == nil {
		gen = UUIDv7Generator{}
	}
	if len(idFields) == 0 {
		idFields = DefaultIDFields
	}
	return &Identifier{
		fn:       fn,
		idFields: append([]string(nil), idFields...),
		gen:      gen,
	}
}

// Identify returns the key of rec and whether it is natural (from the
// Func or an id field) rather than generated.
func (i *Identifier) Identify(rec record.Record) (key string, natural bool) {
	if key, ok := i.Natural(rec); ok {
		return key, true
	}
	return i.gen.Generate(), false
}

// Natural returns the key of rec without ever generating one.
// An empty string from the Func counts as no key.
func (i *Identifier) Natural(rec record.Record) (string, bool) {
	if i.fn != nil {
		key := i.fn(rec)
		return key, key != ""
	}
	for _, field := range i.idFields {
		if v, ok := rec[field]; ok && v != nil {
			return formatKey(v), true
		}
	}
	return "", false
}

// Generate returns a fresh placeholder key.
func (i *Identifier) Generate() string {
	return i.gen.Generate()
}

// formatKey renders an id value. Numbers decoded from JSON arrive as
// float64, so integral floats print without a fraction.
func formatKey(v any) string {
	if f, ok := v.(float64); ok && f == float64(int64(f)) {
		return fmt.Sprintf("%d", int64(f))
	}
	return fmt.Sprint(v)
}

// CounterGenerator produces keys from a monotonic counter: "new-1", "new-2", ...
//
// Thread-safety: CounterGenerator is safe for concurrent use (atomic operations).
type CounterGenerator struct {
	prefix string
	seq    atomic.Int64
}

// NewCounterGenerator creates a counter generator. An empty prefix
// defaults to "new".
func NewCounterGenerator(prefix string) *CounterGenerator {
	if prefix == "" {
		prefix = "new"
	}
	return &CounterGenerator{prefix: prefix}
}

// Generate returns the next key.
func (g *CounterGenerator) Generate() string {
	return fmt.Sprintf("%s-%d", g.prefix, g.seq.Add(1))
}

// UUIDv7Generator generates time-sortable UUIDv7 keys.
//
// Thread-safety: UUIDv7Generator is stateless and safe for concurrent use.
type UUIDv7Generator struct{}

// Generate creates a new UUIDv7 and returns it as a hyphenated string.
//
// Panics if UUID generation fails (should never happen in practice).
func (g UUIDv7Generator) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}

// FixedGenerator returns predetermined keys in order.
//
// Thread-safety: FixedGenerator is safe for concurrent use via internal mutex.
type FixedGenerator struct {
	mu   sync.Mutex
	keys []string
	idx  int
}

// NewFixedGenerator creates a generator that returns keys in order.
func NewFixedGenerator(keys ...string) *FixedGenerator {
	return &FixedGenerator{keys: keys}
}

// Generate returns the next predetermined key.
//
// Panics if all keys have been consumed, to catch test misconfiguration.
func (g *FixedGenerator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.idx >= len(g.keys) {
		panic("FixedGenerator: all keys exhausted")
	}
	key := g.keys[g.idx]
	g.idx++
	return key
}
