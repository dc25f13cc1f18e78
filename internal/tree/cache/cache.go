// Package cache memoizes decoded, validated trees keyed by the sha256 of
// their JSON source. One compute runs per key at a time; errors are not
// cached; a panicking compute is converted into an error for every waiter.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"

	"github.com/caire-health/triage-engine/internal/tree"
)

type InMemory struct {
	mu       sync.Mutex
	max      int
	items    map[string]*tree.Tree
	inflight map[string]*call
}

type call struct {
	done chan struct{}
	t    *tree.Tree
	err  error
}

func NewInMemory(max int) *InMemory {
	return &InMemory{
		max:      max,
		items:    make(map[string]*tree.Tree, max),
		inflight: make(map[string]*call),
	}
}

// GetOrCompute returns the cached tree for source, computing it with fn if
// absent. Concurrent callers for the same source share a single compute.
func (c *InMemory) GetOrCompute(source string, fn func() (*tree.Tree, error)) (*tree.Tree, error) {
	key := hash(source)

	c.mu.Lock()
	if t, ok := c.items[key]; ok {
		c.mu.Unlock()
		return t, nil
	}
	if cl, ok := c.inflight[key]; ok {
		c.mu.Unlock()
		<-cl.done
		return cl.t, cl.err
	}

	cl := &call{done: make(chan struct{})}
	c.inflight[key] = cl
	c.mu.Unlock()

	cl.t, cl.err = run(fn)
	close(cl.done)

	c.mu.Lock()
	delete(c.inflight, key)
	if cl.err == nil && len(c.items) < c.max {
		c.items[key] = cl.t
	}
	c.mu.Unlock()

	return cl.t, cl.err
}

func run(fn func() (*tree.Tree, error)) (t *tree.Tree, err error) {
	defer func() {
		if r := recover(); r != nil {
			t, err = nil, fmt.Errorf("tree compute panicked: %v", r)
		}
	}()
	return fn()
}

func hash(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}
