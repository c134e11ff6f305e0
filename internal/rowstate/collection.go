package rowstate

import "github.com/roach88/gridedit/internal/record"

// Collection is an immutable, ordered, versioned set of rows keyed by
// identity. Use Apply (or the single-step helpers) to derive a new one.
//
// Thread-safety: a Collection is never modified after it is built and is
// safe to share between goroutines.
type Collection struct {
	version uint64
	order   []string
	rows    map[string]Row
}

// NewCollection returns an empty collection at version 0.
func NewCollection() *Collection {
	return &Collection{rows: map[string]Row{}}
}

// Version returns the collection version. Every derived collection has
// a strictly higher version than its parent.
func (c *Collection) Version() uint64 {
	return c.version
}

// Len returns the number of tracked rows.
func (c *Collection) Len() int {
	return len(c.order)
}

// Keys returns the row keys in display order.
func (c *Collection) Keys() []string {
	return append([]string(nil), c.order...)
}

// Get returns the row for key.
func (c *Collection) Get(key string) (Row, bool) {
	r, ok := c.rows[key]
	return r, ok
}

// Has reports whether key is tracked.
func (c *Collection) Has(key string) bool {
	_, ok := c.rows[key]
	return ok
}

// Rows returns all rows in display order.
// The rows share maps with the collection; treat them as read-only.
func (c *Collection) Rows() []Row {
	out := make([]Row, 0, len(c.order))
	for _, k := range c.order {
		out = append(out, c.rows[k])
	}
	return out
}

// Visible returns deep copies of the working copies of all rows that are
// not deleted, in display order.
func (c *Collection) Visible() []record.Record {
	out := make([]record.Record, 0, len(c.order))
	for _, k := range c.order {
		if r := c.rows[k]; r.Visible() {
			out = append(out, r.Current.Clone())
		}
	}
	return out
}

// Apply derives a new collection by running fn against a builder seeded
// with c's rows. The result has version c.Version()+1 and every row fn
// wrote is stamped with it.
func (c *Collection) Apply(fn func(b *Builder)) *Collection {
	b := &Builder{
		version: c.version + 1,
		order:   append([]string(nil), c.order...),
		rows:    make(map[string]Row, len(c.rows)),
	}
	for k, v := range c.rows {
		b.rows[k] = v
	}
	fn(b)
	return &Collection{
		version: b.version,
		order:   b.order,
		rows:    b.rows,
	}
}

// Put returns a collection with row stored under row.Key.
func (c *Collection) Put(row Row) *Collection {
	return c.Apply(func(b *Builder) { b.Put(row) })
}

// Delete returns a collection without the given keys.
func (c *Collection) Delete(keys ...string) *Collection {
	return c.Apply(func(b *Builder) {
		for _, k := range keys {
			b.Delete(k)
		}
	})
}

// Builder accumulates changes for one collection version.
// A Builder must not be retained after Apply returns.
type Builder struct {
	version uint64
	order   []string
	rows    map[string]Row
}

// Get returns the row for key as currently staged.
func (b *Builder) Get(key string) (Row, bool) {
	r, ok := b.rows[key]
	return r, ok
}

// Keys returns the staged keys in order.
func (b *Builder) Keys() []string {
	return append([]string(nil), b.order...)
}

// Put stores row under row.Key, keeping its position if the key exists
// and appending it otherwise.
func (b *Builder) Put(row Row) {
	row.Version = b.version
	if _, ok := b.rows[row.Key]; !ok {
		b.order = append(b.order, row.Key)
	}
	b.rows[row.Key] = row
}

// Rekey stores row under row.Key in the position held by oldKey.
// Any other row already stored under row.Key is dropped so keys stay
// unique. If oldKey is not tracked, Rekey behaves like Put.
func (b *Builder) Rekey(oldKey string, row Row) {
	if oldKey == row.Key {
		b.Put(row)
		return
	}
	if _, ok := b.rows[oldKey]; !ok {
		b.Put(row)
		return
	}
	if _, ok := b.rows[row.Key]; ok {
		b.Delete(row.Key)
	}
	row.Version = b.version
	for i, k := range b.order {
		if k == oldKey {
			b.order[i] = row.Key
			break
		}
	}
	delete(b.rows, oldKey)
	b.rows[row.Key] = row
}

// Delete removes key. Missing keys are ignored.
func (b *Builder) Delete(key string) {
	if _, ok := b.rows[key]; !ok {
		return
	}
	delete(b.rows, key)
	for i, k := range b.order {
		if k == key {
			b.order = append(b.order[:i:i], b.order[i+1:]...)
			break
		}
	}
}

// Reorder replaces the display order. Keys missing from order keep their
// relative position after the listed ones; unknown keys are ignored.
func (b *Builder) Reorder(order []string) {
	seen := make(map[string]bool, len(order))
	next := make([]string, 0, len(b.order))
	for _, k := range order {
		if _, ok := b.rows[k]; ok && !seen[k] {
			next = append(next, k)
			seen[k] = true
		}
	}
	for _, k := range b.order {
		if !seen[k] {
			next = append(next, k)
		}
	}
	b.order = next
}
