// Package cache holds decoded B-tree nodes keyed by region and offset.
//
// The cache is write-through: callers store a value whenever they write the
// bytes it was decoded from, and invalidate it when the bytes are freed.
// Nothing is ever written back on eviction, so dropping any entry at any
// time is safe.
package cache

import (
	"errors"
	"fmt"
)

const (
	PolicyLRU     = "lru"
	PolicyTinyLFU = "tinylfu"
	PolicyNone    = "none"
)

var ErrUnknownPolicy = errors.New("unknown cache policy")

// Key addresses one node: the region it lives in and its byte offset there.
type Key struct {
	Region uint8
	Offset uint64
}

func (k Key) String() string {
	return fmt.Sprintf("%d@%d", k.Region, k.Offset)
}

// Policy is a bounded map that decides what to evict.
type Policy[V any] interface {
	Get(k Key) (V, bool)
	Put(k Key, v V)
	Remove(k Key)
	Purge()
	Len() int
}

// NewPolicy builds the policy named kind with room for capacity entries.
// PolicyNone returns a nil policy.
func NewPolicy[V any](kind string, capacity int) (Policy[V], error) {
	switch kind {
	case PolicyLRU, "":
		return NewLRU[V](capacity)
	case PolicyTinyLFU:
		return NewTinyLFU[V](capacity)
	case PolicyNone:
		return nil, nil
	}
	return nil, fmt.Errorf("NewPolicy(%q): %w", kind, ErrUnknownPolicy)
}
