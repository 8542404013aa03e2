// Package cache is the shared store for loaded data-source results.
//
// Entries are keyed by (type, key) and carry an absolute expiry. The store
// never sweeps: a read of an expired entry removes it and reports a miss.
package cache

import (
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultMaxEntries bounds the store when no size is configured.
const DefaultMaxEntries = 256

// Provider is the cache collaborator consumed by data sources.
type Provider interface {
	TryGet(typ, key string) (any, bool)
	Put(typ, key string, value any, expiresAt time.Time)
}

type entry struct {
	value     any
	expiresAt time.Time
}

// Stats counts lookups since creation.
type Stats struct {
	Hits    uint64
	Misses  uint64
	Expired uint64
}

// LRU is a size-bounded Provider safe for concurrent use.
type LRU struct {
	entries *lru.Cache[string, entry]

	// Now is the clock used for expiry checks.
	Now func() time.Time

	hits, misses, expired atomic.Uint64
}

// NewLRU returns a store holding at most maxEntries values.
func NewLRU(maxEntries int) (*LRU, error) {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	c, err := lru.New[string, entry](maxEntries)
	if err != nil {
		return nil, err
	}
	return &LRU{entries: c, Now: time.Now}, nil
}

func cacheKey(typ, key string) string {
	return typ + "\x00" + key
}

// TryGet returns a live value for (typ, key).
func (c *LRU) TryGet(typ, key string) (any, bool) {
	k := cacheKey(typ, key)
	e, ok := c.entries.Get(k)
	if !ok {
		c.misses.Add(1)
		return nil, false
	}
	if !e.expiresAt.IsZero() && !c.Now().Before(e.expiresAt) {
		c.entries.Remove(k)
		c.expired.Add(1)
		c.misses.Add(1)
		return nil, false
	}
	c.hits.Add(1)
	return e.value, true
}

// Put stores value until expiresAt. A zero expiresAt never expires.
func (c *LRU) Put(typ, key string, value any, expiresAt time.Time) {
	c.entries.Add(cacheKey(typ, key), entry{value: value, expiresAt: expiresAt})
}

// Len returns the number of stored entries, live or stale.
func (c *LRU) Len() int { return c.entries.Len() }

// Stats returns lookup counters.
func (c *LRU) Stats() Stats {
	return Stats{Hits: c.hits.Load(), Misses: c.misses.Load(), Expired: c.expired.Load()}
}
