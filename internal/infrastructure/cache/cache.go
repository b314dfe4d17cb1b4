// Package cache provides a bounded in-memory implementation of ports.Cache
// backed by an LRU.
package cache

import (
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/tdex-network/tdex-authtrade/internal/core/ports"
)

const defaultSize = 1024

type entry struct {
	value      interface{}
	validUntil time.Time
}

type lruCache struct {
	entries *lru.Cache[string, entry]
}

// NewCache returns a cache holding at most size entries. Expired entries are
// still returned by Get together with their deadline, it's up to the caller
// to decide whether they're still usable.
func NewCache(size int) (ports.Cache, error) {
	if size <= 0 {
		size = defaultSize
	}
	entries, err := lru.New[string, entry](size)
	if err != nil {
		return nil, err
	}
	return &lruCache{entries}, nil
}

func (c *lruCache) Get(key string) (interface{}, time.Time, bool) {
	e, ok := c.entries.Get(key)
	if !ok {
		return nil, time.Time{}, false
	}
	return e.value, e.validUntil, true
}

func (c *lruCache) Set(key string, value interface{}, validUntil time.Time) {
	c.entries.Add(key, entry{value, validUntil})
}

func (c *lruCache) Delete(key string) {
	c.entries.Remove(key)
}
