package client

import (
	"fmt"
	"sync"
	"time"
)

// Cache keys. The queue has a single key; details are keyed per request id.
const KeyQueue = "queue"

// DetailKey builds the cache key for one request's detail payload.
func DetailKey(id uint) string {
	return fmt.Sprintf("detail:%d", id)
}

type cacheEntry struct {
	value     interface{}
	fetchedAt time.Time
}

// Cache is an explicit, owner-passed query cache with TTL freshness and an
// invalidation bus. Entries past their TTL stay readable (stale-but-available);
// freshness only controls whether a read should trigger a refetch.
type Cache struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]cacheEntry
	subs    []chan string
}

// NewCache constructs a cache whose entries stay fresh for ttl.
func NewCache(ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &Cache{
		ttl:     ttl,
		entries: make(map[string]cacheEntry),
	}
}

// Get returns the cached value for key, whether it exists, and whether it is
// still fresh.
func (c *Cache) Get(key string) (interface{}, bool, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[key]
	if !ok {
		return nil, false, false
	}
	return entry.value, true, time.Since(entry.fetchedAt) < c.ttl
}

// Put stores a freshly fetched value and notifies subscribers.
func (c *Cache) Put(key string, value interface{}) {
	c.mu.Lock()
	c.entries[key] = cacheEntry{value: value, fetchedAt: time.Now()}
	c.notifyLocked(key)
	c.mu.Unlock()
}

// Invalidate marks keys as stale without dropping their values, so views keep
// showing the last known data while a refetch is underway.
func (c *Cache) Invalidate(keys ...string) {
	c.mu.Lock()
	for _, key := range keys {
		if entry, ok := c.entries[key]; ok {
			entry.fetchedAt = time.Time{}
			c.entries[key] = entry
		}
		c.notifyLocked(key)
	}
	c.mu.Unlock()
}

// Subscribe returns a channel that receives the key of every entry written or
// invalidated. Slow subscribers miss notifications rather than blocking writers.
func (c *Cache) Subscribe() <-chan string {
	ch := make(chan string, 16)
	c.mu.Lock()
	c.subs = append(c.subs, ch)
	c.mu.Unlock()
	return ch
}

// Unsubscribe removes a channel handed out by Subscribe and closes it. Keys
// already buffered on the channel stay readable until it drains.
func (c *Cache) Unsubscribe(ch <-chan string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, sub := range c.subs {
		if sub == ch {
			c.subs = append(c.subs[:i], c.subs[i+1:]...)
			close(sub)
			return
		}
	}
}

func (c *Cache) notifyLocked(key string) {
	for _, ch := range c.subs {
		select {
		case ch <- key:
		default:
		}
	}
}
