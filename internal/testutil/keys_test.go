package testutil

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyGen_Sequence(t *testing.T) {
	g := NewKeyGen("temp")
	assert.Equal(t, int64(0), g.Current())
	assert.Equal(t, "temp-1", g.Generate())
	assert.Equal(t, "temp-2", g.Generate())
	assert.Equal(t, int64(2), g.Current())
}

func TestKeyGen_DefaultPrefix(t *testing.T) {
	assert.Equal(t, "new-1", NewKeyGen("").Generate())
}

func TestKeyGen_Reset(t *testing.T) {
	g := NewKeyGen("k")
	g.Generate()
	g.Generate()
	g.Reset()
	assert.Equal(t, "k-1", g.Generate())
}

func TestKeyGen_ThreadSafe(t *testing.T) {
	g := NewKeyGen("k")
	const workers = 50
	const perWorker = 40

	var wg sync.WaitGroup
	results := make([][]string, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			for j := 0; j < perWorker; j++ {
				results[idx] = append(results[idx], g.Generate())
			}
		}(i)
	}
	wg.Wait()

	seen := make(map[string]bool)
	for _, keys := range results {
		for _, k := range keys {
			require.False(t, seen[k], "duplicate key %s", k)
			seen[k] = true
		}
	}
	assert.Len(t, seen, workers*perWorker)
}
