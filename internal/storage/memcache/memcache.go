// Package memcache provides an in-process expiring LRU cache for derived
// projections such as cart snapshots.
package memcache

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/xenking/kart-store/internal/domain/cart"
)

var _ cart.Cache = (*Cache)(nil)

// Cache is a size-bounded byte cache whose entries expire after a fixed TTL.
type Cache struct {
	lru *expirable.LRU[string, []byte]
}

// New creates a Cache holding at most size entries for ttl each.
func New(size int, ttl time.Duration) *Cache {
	if size <= 0 {
		size = 10000
	}
	return &Cache{lru: expirable.NewLRU[string, []byte](size, nil, ttl)}
}

func (c *Cache) Get(_ context.Context, key string) ([]byte, bool, error) {
	v, ok := c.lru.Get(key)
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), v...), true, nil
}

func (c *Cache) Set(_ context.Context, key string, value []byte) error {
	c.lru.Add(key, append([]byte(nil), value...))
	return nil
}

func (c *Cache) Delete(_ context.Context, key string) error {
	c.lru.Remove(key)
	return nil
}

// Len returns the number of live entries.
func (c *Cache) Len() int {
	return c.lru.Len()
}
