// Package searchcache serves pool listing queries from a short-TTL cache that the ledger invalidates per pool.
package searchcache

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/singleflight"
)

const (
	DefaultTTL  = 10 * time.Second
	DefaultSize = 1024

	// MembershipTag marks entries whose contents depend on which pools exist.  Invalidating a pool no entry was
	// tagged with (a new pool) invalidates these.
	MembershipTag = "*"
)

// LoadFunc computes a cache miss.  tags names the pools the value was derived from.
type LoadFunc func(ctx context.Context) (value []byte, tags []string, err error)

// Cache maps query signatures to serialized results.  Entries expire after the TTL and are dropped early when a
// pool they are tagged with is invalidated.
type Cache struct {
	lru   *expirable.LRU[string, *entry]
	group singleflight.Group

	// mu guards the tag index.  It is taken from the lru eviction callback, so lru methods must never be called
	// with mu held.
	mu      sync.Mutex
	tags    map[string]map[string]struct{}
	keyTags map[string]tagged

	// epoch bumps on every invalidation; loads that raced one are not stored.
	epoch atomic.Uint64
}

type entry struct {
	val []byte
}

// tagged is the tag set of the entry currently stored under a key.  An eviction callback for an older entry of the
// same key (an expiry racing a put) must leave it alone.
type tagged struct {
	ent  *entry
	tags []string
}

func NewCache(size int, ttl time.Duration) *Cache {
	if size <= 0 {
		size = DefaultSize
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	c := &Cache{
		tags:    map[string]map[string]struct{}{},
		keyTags: map[string]tagged{},
	}
	c.lru = expirable.NewLRU[string, *entry](size, c.onEvict, ttl)
	return c
}

func (c *Cache) onEvict(key string, ent *entry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.keyTags[key].ent == ent {
		c.untag(key)
	}
}

func (c *Cache) untag(key string) {
	for _, tag := range c.keyTags[key].tags {
		if keys := c.tags[tag]; keys != nil {
			delete(keys, key)
			if len(keys) == 0 {
				delete(c.tags, tag)
			}
		}
	}
	delete(c.keyTags, key)
}

func (c *Cache) Get(key string) ([]byte, bool) {
	ent, found := c.lru.Get(key)
	if !found {
		promMisses.Inc()
		return nil, false
	}
	promHits.Inc()
	return ent.val, true
}

// GetOrLoad returns the cached value for key, or runs load once for all concurrent callers of the same key and
// caches the result.
func (c *Cache) GetOrLoad(ctx context.Context, key string, load LoadFunc) ([]byte, bool, error) {
	if val, found := c.Get(key); found {
		return val, true, nil
	}
	epoch := c.epoch.Load()
	val, err, _ := c.group.Do(key, func() (any, error) {
		val, tags, err := load(ctx)
		if err != nil {
			return nil, err
		}
		c.put(key, val, tags, epoch)
		return val, nil
	})
	if err != nil {
		return nil, false, err
	}
	return val.([]byte), false, nil
}

// Put stores val under key tagged with tags.
func (c *Cache) Put(key string, val []byte, tags ...string) {
	c.put(key, val, tags, c.epoch.Load())
}

func (c *Cache) put(key string, val []byte, tags []string, epoch uint64) bool {
	c.mu.Lock()
	if c.epoch.Load() != epoch {
		c.mu.Unlock()
		return false
	}
	ent := &entry{val: val}
	c.untag(key)
	c.keyTags[key] = tagged{ent: ent, tags: tags}
	for _, tag := range tags {
		keys := c.tags[tag]
		if keys == nil {
			keys = map[string]struct{}{}
			c.tags[tag] = keys
		}
		keys[key] = struct{}{}
	}
	c.mu.Unlock()

	c.lru.Add(key, ent)
	if c.epoch.Load() != epoch {
		// an invalidation ran between tagging and insert
		c.lru.Remove(key)
		return false
	}
	return true
}

// InvalidatePool drops every entry derived from poolID.
func (c *Cache) InvalidatePool(poolID string) {
	c.epoch.Add(1)
	c.mu.Lock()
	var keys []string
	affected := c.tags[poolID]
	if len(affected) == 0 {
		affected = c.tags[MembershipTag]
	}
	for key := range affected {
		keys = append(keys, key)
	}
	c.mu.Unlock()

	for _, key := range keys {
		c.lru.Remove(key)
	}
	promInvalidations.Inc()
	promInvalidatedEntries.Add(float64(len(keys)))
}

func (c *Cache) Purge() {
	c.epoch.Add(1)
	c.lru.Purge()
}

func (c *Cache) Len() int {
	return c.lru.Len()
}
