package cache

import (
	"context"

	lru "github.com/hashicorp/golang-lru/v2"
)

// LRU is a bounded in-memory Cache evicting the least recently used entry.
type LRU struct {
	c *lru.Cache[Key, string]
}

// NewLRU creates an LRU holding at most size entries (DefaultSize if <= 0).
func NewLRU(size int) *LRU {
	if size <= 0 {
		size = DefaultSize
	}
	// lru.New only fails for a non-positive size.
	c, _ := lru.New[Key, string](size)
	return &LRU{c: c}
}

func (l *LRU) Get(_ context.Context, key Key) (string, bool, error) {
	v, ok := l.c.Get(key)
	return v, ok, nil
}

func (l *LRU) Set(_ context.Context, key Key, completion string) error {
	l.c.Add(key, completion)
	return nil
}

// Len reports the number of cached entries.
func (l *LRU) Len() int { return l.c.Len() }
