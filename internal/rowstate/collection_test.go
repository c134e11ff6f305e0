package rowstate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/gridedit/internal/record"
)

func seeded(t *testing.T, keys ...string) *Collection {
	t.Helper()
	c := NewCollection()
	return c.Apply(func(b *Builder) {
		for _, k := range keys {
			b.Put(NewRow(k, record.Record{"id": k}))
		}
	})
}

func TestCollection_CopyOnWrite(t *testing.T) {
	c1 := seeded(t, "a", "b")
	row, _ := c1.Get("a")

	c2 := c1.Put(row.WithField("x", 1))

	before, _ := c1.Get("a")
	after, _ := c2.Get("a")
	assert.False(t, before.IsDirty, "older snapshot must not see the change")
	assert.True(t, after.IsDirty)
	assert.Greater(t, c2.Version(), c1.Version())
}

func TestCollection_VersionStampsWrittenRows(t *testing.T) {
	c := seeded(t, "a", "b")
	require.Equal(t, uint64(1), c.Version())

	row, _ := c.Get("b")
	c = c.Put(row.WithLifecycle(Editing))

	a, _ := c.Get("a")
	b, _ := c.Get("b")
	assert.Equal(t, uint64(1), a.Version)
	assert.Equal(t, uint64(2), b.Version)
}

func TestCollection_PutKeepsPositionAndUniqueness(t *testing.T) {
	c := seeded(t, "a", "b", "c")
	row, _ := c.Get("b")
	c = c.Put(row.WithField("n", 1))

	assert.Equal(t, []string{"a", "b", "c"}, c.Keys())
	assert.Equal(t, 3, c.Len())

	c = c.Put(NewBlankRow("d"))
	assert.Equal(t, []string{"a", "b", "c", "d"}, c.Keys())
}

func TestCollection_Delete(t *testing.T) {
	c := seeded(t, "a", "b", "c").Delete("b", "missing")
	assert.Equal(t, []string{"a", "c"}, c.Keys())
	assert.False(t, c.Has("b"))
}

func TestBuilder_Rekey(t *testing.T) {
	c := seeded(t, "a", "tmp", "c")

	c = c.Apply(func(b *Builder) {
		row, _ := b.Get("tmp")
		b.Rekey("tmp", row.Confirmed("r9", record.Record{"id": "r9"}))
	})

	assert.Equal(t, []string{"a", "r9", "c"}, c.Keys())
	assert.False(t, c.Has("tmp"))
}

func TestBuilder_RekeyOntoExistingKeyDropsDuplicate(t *testing.T) {
	c := seeded(t, "r9", "tmp", "c")

	c = c.Apply(func(b *Builder) {
		row, _ := b.Get("tmp")
		b.Rekey("tmp", row.Confirmed("r9", record.Record{"id": "r9", "fresh": true}))
	})

	assert.Equal(t, []string{"r9", "c"}, c.Keys())
	r, _ := c.Get("r9")
	assert.Equal(t, true, r.Current["fresh"])
}

func TestBuilder_Reorder(t *testing.T) {
	c := seeded(t, "a", "b", "c", "d").Apply(func(b *Builder) {
		b.Reorder([]string{"c", "zzz", "a"})
	})
	assert.Equal(t, []string{"c", "a", "b", "d"}, c.Keys())
}

func TestCollection_VisibleExcludesDeleted(t *testing.T) {
	c := seeded(t, "a", "b")
	row, _ := c.Get("a")
	c = c.Put(row.WithLifecycle(Deleted))

	visible := c.Visible()
	require.Len(t, visible, 1)
	assert.Equal(t, "b", visible[0]["id"])

	// visible rows are copies
	visible[0]["id"] = "mutated"
	b, _ := c.Get("b")
	assert.Equal(t, "b", b.Current["id"])
	assert.Equal(t, 2, c.Len(), "deleted rows stay tracked")
}
