// Package dedup collapses identical concurrent calls onto one shared
// in-flight result.
package dedup

import (
	"context"
	"encoding/hex"
	"sync"
	"time"

	"github.com/zeebo/blake3"
)

// Key derives the cache key for a method and its canonical argument string.
// The BLAKE3 digest keeps map keys fixed-size regardless of argument bulk.
func Key(method, canonical string) string {
	sum := blake3.Sum256([]byte(method + ":" + canonical))
	return hex.EncodeToString(sum[:])
}

// Entry is one in-flight or recently settled call. Every caller holding the
// same entry receives the identical value or error.
type Entry struct {
	once  sync.Once
	done  chan struct{}
	value any
	err   error
}

func newEntry() *Entry {
	return &Entry{done: make(chan struct{})}
}

// Resolve settles the entry. Only the first call has any effect.
func (e *Entry) Resolve(value any, err error) {
	e.once.Do(func() {
		e.value = value
		e.err = err
		close(e.done)
	})
}

// Wait blocks until the entry settles or ctx is done.
func (e *Entry) Wait(ctx context.Context) (any, error) {
	select {
	case <-e.done:
		return e.value, e.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Settled reports whether the entry has a result.
func (e *Entry) Settled() bool {
	select {
	case <-e.done:
		return true
	default:
		return false
	}
}

// Cache maps dedup keys to shared in-flight entries. Entries are evicted TTL
// after they settle, not after they are created, so a burst of identical
// calls collapses while a call issued after the previous one aged out starts
// fresh.
type Cache struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]*Entry
	timers  map[string]*time.Timer
}

// NewCache creates a cache with the given post-settle TTL.
func NewCache(ttl time.Duration) *Cache {
	return &Cache{
		ttl:     ttl,
		entries: make(map[string]*Entry),
		timers:  make(map[string]*time.Timer),
	}
}

// GetOrCreate returns the live entry for key, creating it if absent. The
// second return is true when the caller created the entry and therefore owns
// issuing the underlying call and resolving it.
func (c *Cache) GetOrCreate(key string) (*Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key]; ok {
		return e, false
	}
	e := newEntry()
	c.entries[key] = e
	return e, true
}

// ScheduleExpiry arms eviction of key TTL from now. The entry owner calls
// this once the underlying call has settled.
func (c *Cache) ScheduleExpiry(key string, e *Entry) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.entries[key] != e {
		return
	}
	if t, ok := c.timers[key]; ok {
		t.Stop()
	}
	c.timers[key] = time.AfterFunc(c.ttl, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.entries[key] == e {
			delete(c.entries, key)
			delete(c.timers, key)
		}
	})
}

// Len returns the number of live entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Clear drops every entry and cancels pending evictions. Unsettled entries
// are left to their owners; waiting sharers still resolve through them.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, t := range c.timers {
		t.Stop()
	}
	c.entries = make(map[string]*Entry)
	c.timers = make(map[string]*time.Timer)
}
