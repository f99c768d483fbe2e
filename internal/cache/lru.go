package cache

import (
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
)

// LRU evicts the least recently used entry.
type LRU[V any] struct {
	c *lru.Cache[Key, V]
}

func NewLRU[V any](capacity int) (*LRU[V], error) {
	c, err := lru.New[Key, V](capacity)
	if err != nil {
		return nil, fmt.Errorf("NewLRU(%d): %w", capacity, err)
	}
	return &LRU[V]{c: c}, nil
}

func (l *LRU[V]) Get(k Key) (V, bool) {
	return l.c.Get(k)
}

func (l *LRU[V]) Put(k Key, v V) {
	l.c.Add(k, v)
}

func (l *LRU[V]) Remove(k Key) {
	l.c.Remove(k)
}

func (l *LRU[V]) Purge() {
	l.c.Purge()
}

func (l *LRU[V]) Len() int {
	return l.c.Len()
}
