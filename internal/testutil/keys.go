package testutil

import (
	"fmt"
	"sync"
)

// KeyGen produces deterministic placeholder keys: "<prefix>-1", "<prefix>-2", ...
//
// Unlike identity.CounterGenerator, KeyGen can be reset for test reuse.
// This enables the same scenario to run multiple times with identical keys,
// which golden snapshots depend on.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type KeyGen struct {
	mu     sync.Mutex
	prefix string
	seq    int64
}

// NewKeyGen creates a generator. An empty prefix defaults to "new".
func NewKeyGen(prefix string) *KeyGen {
	if prefix == "" {
		prefix = "new"
	}
	return &KeyGen{prefix: prefix}
}

// Generate returns the next key.
func (g *KeyGen) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.seq++
	return fmt.Sprintf("%s-%d", g.prefix, g.seq)
}

// Current returns how many keys have been generated.
func (g *KeyGen) Current() int64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.seq
}

// Reset restarts the sequence. The next key is "<prefix>-1".
func (g *KeyGen) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.seq = 0
}
