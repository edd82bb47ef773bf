// Package cache holds recently used records in process memory, bounded
// by a TTL. It is never a source of truth: every entry also lives in a
// durable backend or the sync queue, so losing the cache loses nothing.
package cache

import (
	"strings"
	"sync"
	"time"

	"github.com/mwantia/recordstore/data"
	"github.com/tidwall/btree"
)

// DefaultTTL is how long an entry may be served without revalidation.
const DefaultTTL = 5 * time.Minute

// Entry wraps a cached record with its cache timestamp and the backend
// that served it.
type Entry struct {
	Record      *data.Record
	Timestamp   time.Time
	FromBackend string
}

type Cache struct {
	mu  sync.RWMutex
	ttl time.Duration

	entries *btree.Map[string, *Entry]

	done chan struct{}
	once sync.Once
}

// New creates a cache with the given TTL (DefaultTTL when zero) and
// starts the background sweep. The sweep is advisory housekeeping;
// correctness comes from the expiry check on every Get.
func New(ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	c := &Cache{
		ttl:     ttl,
		entries: btree.NewMap[string, *Entry](0),
		done:    make(chan struct{}),
	}

	go c.sweep()
	return c
}

// Get returns the entry for a full key, or false on miss or expiry.
// Expired entries are removed on access.
func (c *Cache) Get(fullKey string) (*Entry, bool) {
	c.mu.RLock()
	entry, exists := c.entries.Get(fullKey)
	c.mu.RUnlock()

	if !exists {
		return nil, false
	}

	if c.Expired(entry) {
		c.Invalidate(fullKey)
		return nil, false
	}

	return entry, true
}

// Set stores a record under a full key, replacing any previous entry.
func (c *Cache) Set(fullKey string, record *data.Record, fromBackend string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries.Set(fullKey, &Entry{
		Record:      record,
		Timestamp:   time.Now(),
		FromBackend: fromBackend,
	})
}

// Invalidate removes a single entry.
func (c *Cache) Invalidate(fullKey string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries.Delete(fullKey)
}

// InvalidateCollection removes every entry belonging to a collection,
// including derived query-result entries.
func (c *Cache) InvalidateCollection(collection string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	doomed := make([]string, 0)
	prefix := collection + ":"
	queryPrefix := "query:" + collection
	c.entries.Scan(func(fullKey string, _ *Entry) bool {
		if strings.HasPrefix(fullKey, prefix) || strings.HasPrefix(fullKey, queryPrefix) {
			doomed = append(doomed, fullKey)
		}
		return true
	})

	for _, fullKey := range doomed {
		c.entries.Delete(fullKey)
	}
}

// InvalidateQueries removes only the derived query-result entries of a
// collection, leaving record entries alone. Called on every write so a
// stale result set never outlives the mutation that broke it.
func (c *Cache) InvalidateQueries(collection string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	doomed := make([]string, 0)
	prefix := "query:" + collection
	c.entries.Scan(func(fullKey string, _ *Entry) bool {
		if strings.HasPrefix(fullKey, prefix) {
			doomed = append(doomed, fullKey)
		}
		return true
	})

	for _, fullKey := range doomed {
		c.entries.Delete(fullKey)
	}
}

// Expired reports whether an entry is past the cache TTL. The record's
// own TTL counts too, so a record that expires mid-cache is not served.
func (c *Cache) Expired(entry *Entry) bool {
	now := time.Now()
	if now.Sub(entry.Timestamp) > c.ttl {
		return true
	}
	return entry.Record != nil && entry.Record.Expired(now)
}

// Len returns the number of cached entries, expired ones included.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.entries.Len()
}

// Clear drops every entry.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries.Clear()
}

// Close stops the background sweep.
func (c *Cache) Close() {
	c.once.Do(func() {
		close(c.done)
	})
}

// sweep periodically removes expired entries.
func (c *Cache) sweep() {
	ticker := time.NewTicker(c.ttl)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.removeExpired()
		}
	}
}

func (c *Cache) removeExpired() {
	c.mu.Lock()
	defer c.mu.Unlock()

	doomed := make([]string, 0)
	c.entries.Scan(func(fullKey string, entry *Entry) bool {
		if c.Expired(entry) {
			doomed = append(doomed, fullKey)
		}
		return true
	})

	for _, fullKey := range doomed {
		c.entries.Delete(fullKey)
	}
}
