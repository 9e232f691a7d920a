package cache

import (
	"bytes"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dgraph-io/ristretto/v2"
)

// NearCache is a small in-process cache backed by ristretto that sits in
// front of the façade for hot read views. Entries are bounded by a TTL, so a
// value invalidated by another process is served stale for at most that
// long.
type NearCache struct {
	rc  *ristretto.Cache[string, []byte]
	ttl time.Duration
}

// NewNearCache creates a NearCache holding at most size entries, each for at
// most ttl. Every entry costs 1, so ristretto's per-item bookkeeping cost is
// left out of the budget.
func NewNearCache(size int64, ttl time.Duration) (*NearCache, error) {
	rc, err := ristretto.NewCache(&ristretto.Config[string, []byte]{
		NumCounters:        size * 10,
		MaxCost:            size,
		BufferItems:        64,
		IgnoreInternalCost: true,
	})
	if err != nil {
		return nil, err
	}
	return &NearCache{rc: rc, ttl: ttl}, nil
}

// Get returns a copy of the value stored under key.
func (n *NearCache) Get(key string) ([]byte, bool) {
	v, ok := n.rc.Get(key)
	if !ok {
		return nil, false
	}
	return bytes.Clone(v), true
}

// Set stores a copy of val. The write is visible to Get on return.
func (n *NearCache) Set(key string, val []byte) {
	n.rc.SetWithTTL(key, bytes.Clone(val), 1, n.ttl)
	n.rc.Wait()
}

// Del removes key.
func (n *NearCache) Del(key string) {
	n.rc.Del(key)
}

// Close stops ristretto's background goroutines.
func (n *NearCache) Close() {
	n.rc.Close()
}

// ErrLoadPanicked is returned to callers that shared a load whose function
// panicked. The caller that ran the load gets the panic re-raised.
var ErrLoadPanicked = errors.New("cache: load panicked")

// errLoadAborted covers a load that left through runtime.Goexit.
var errLoadAborted = errors.New("cache: load aborted")

// call is an in-flight or completed load.
type call struct {
	wg  sync.WaitGroup
	val []byte
	err error
}

// Group deduplicates concurrent loads for the same key. The zero value is
// ready to use.
type Group struct {
	mu    sync.Mutex
	loads map[string]*call
}

// Do runs fn once for all concurrent callers with the same key and hands
// each of them a private copy of the result. shared reports whether the
// result came from another caller's load.
func (g *Group) Do(key string, fn func() ([]byte, error)) (val []byte, shared bool, err error) {
	g.mu.Lock()
	if g.loads == nil {
		g.loads = make(map[string]*call)
	}
	if c, ok := g.loads[key]; ok {
		g.mu.Unlock()
		c.wg.Wait()
		if c.err != nil {
			return nil, true, c.err
		}
		return bytes.Clone(c.val), true, nil
	}

	c := &call{}
	c.wg.Add(1)
	g.loads[key] = c
	g.mu.Unlock()

	if r := g.run(c, key, fn); r != nil {
		panic(r)
	}
	if c.err != nil {
		return nil, false, c.err
	}
	return bytes.Clone(c.val), false, nil
}

// run calls fn for c and always releases waiters and forgets key, even when
// fn panics. The recovered panic value is returned.
func (g *Group) run(c *call, key string, fn func() ([]byte, error)) (panicked any) {
	c.err = errLoadAborted
	defer func() {
		if r := recover(); r != nil {
			panicked = r
			c.val, c.err = nil, fmt.Errorf("%w: %v", ErrLoadPanicked, r)
		}
		c.wg.Done()

		g.mu.Lock()
		delete(g.loads, key)
		g.mu.Unlock()
	}()
	c.val, c.err = fn()
	return nil
}
