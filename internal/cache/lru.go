package cache

import (
	lru "github.com/hashicorp/golang-lru/v2"
)

// LRUCache is a thread-safe string cache used for the per-course
// last-played pointer.
type LRUCache struct {
	items *lru.Cache[string, string]
}

// NewLRUCache creates a cache holding at most capacity entries. A
// non-positive capacity falls back to 1.
func NewLRUCache(capacity int) *LRUCache {
	if capacity < 1 {
		capacity = 1
	}
	items, err := lru.New[string, string](capacity)
	if err != nil {
		// lru.New only fails on a non-positive size.
		panic(err)
	}
	return &LRUCache{items: items}
}

func (c *LRUCache) Get(key string) (string, bool) {
	return c.items.Get(key)
}

func (c *LRUCache) Set(key, value string) {
	c.items.Add(key, value)
}

func (c *LRUCache) Delete(key string) {
	c.items.Remove(key)
}

func (c *LRUCache) Len() int {
	return c.items.Len()
}

func (c *LRUCache) Clear() {
	c.items.Purge()
}
