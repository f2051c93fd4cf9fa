// Package cache provides a typed, in-memory TTL cache.
// It uses patrickmn/go-cache for expiry and janitor cleanup.
package cache

import (
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// Cache is a TTL cache holding values of a single type.
type Cache[V any] struct {
	store *gocache.Cache
}

// New creates a cache. defaultTTL applies to Set; cleanupInterval is how
// often expired entries are evicted from memory.
func New[V any](defaultTTL, cleanupInterval time.Duration) *Cache[V] {
	return &Cache[V]{
		store: gocache.New(defaultTTL, cleanupInterval),
	}
}

// Get returns the value for key if present and not expired.
func (c *Cache[V]) Get(key string) (V, bool) {
	var zero V
	v, ok := c.store.Get(key)
	if !ok {
		return zero, false
	}
	typed, ok := v.(V)
	if !ok {
		return zero, false
	}
	return typed, true
}

// Set stores a value with the default TTL.
func (c *Cache[V]) Set(key string, value V) {
	c.store.Set(key, value, gocache.DefaultExpiration)
}

// SetWithTTL stores a value with a custom TTL.
func (c *Cache[V]) SetWithTTL(key string, value V, ttl time.Duration) {
	c.store.Set(key, value, ttl)
}

// Take returns the value for key and removes it.
func (c *Cache[V]) Take(key string) (V, bool) {
	v, ok := c.Get(key)
	if ok {
		c.store.Delete(key)
	}
	return v, ok
}

// Delete removes a key.
func (c *Cache[V]) Delete(key string) {
	c.store.Delete(key)
}

// Clear removes every entry.
func (c *Cache[V]) Clear() {
	c.store.Flush()
}

// Len returns the number of entries, including expired ones not yet evicted.
func (c *Cache[V]) Len() int {
	return c.store.ItemCount()
}
