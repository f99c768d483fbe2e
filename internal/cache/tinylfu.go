package cache

import (
	"fmt"
	"sync"

	"github.com/dgraph-io/ristretto/v2"
)

// TinyLFU admits entries by estimated access frequency, so a single scan
// over cold nodes does not flush the hot ones.
type TinyLFU[V any] struct {
	c *ristretto.Cache[uint64, V]

	mu   sync.Mutex
	keys map[uint64]struct{}
}

func NewTinyLFU[V any](capacity int) (*TinyLFU[V], error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("NewTinyLFU(%d): capacity must be positive", capacity)
	}

	t := &TinyLFU[V]{keys: make(map[uint64]struct{})}
	c, err := ristretto.NewCache(&ristretto.Config[uint64, V]{
		NumCounters:        int64(capacity) * 10,
		MaxCost:            int64(capacity),
		BufferItems:        64,
		IgnoreInternalCost: true,
		OnEvict:            t.drop,
		OnReject:           t.drop,
	})
	if err != nil {
		return nil, fmt.Errorf("NewTinyLFU(%d): %w", capacity, err)
	}
	t.c = c
	return t, nil
}

// hash packs the region into the top byte; offsets stay far below 2^56.
func hash(k Key) uint64 {
	return uint64(k.Region)<<56 | k.Offset
}

func (t *TinyLFU[V]) drop(item *ristretto.Item[V]) {
	t.mu.Lock()
	delete(t.keys, item.Key)
	t.mu.Unlock()
}

func (t *TinyLFU[V]) Get(k Key) (V, bool) {
	return t.c.Get(hash(k))
}

// Put blocks until the value is visible to Get or has been rejected.
func (t *TinyLFU[V]) Put(k Key, v V) {
	h := hash(k)

	t.mu.Lock()
	t.keys[h] = struct{}{}
	t.mu.Unlock()

	if !t.c.Set(h, v, 1) {
		t.mu.Lock()
		delete(t.keys, h)
		t.mu.Unlock()
		// A dropped update must not leave the old value behind.
		t.c.Del(h)
	}
	t.c.Wait()
}

func (t *TinyLFU[V]) Remove(k Key) {
	h := hash(k)
	t.c.Del(h)
	t.c.Wait()

	t.mu.Lock()
	delete(t.keys, h)
	t.mu.Unlock()
}

func (t *TinyLFU[V]) Purge() {
	t.c.Clear()

	t.mu.Lock()
	clear(t.keys)
	t.mu.Unlock()
}

func (t *TinyLFU[V]) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.keys)
}

func (t *TinyLFU[V]) Close() {
	t.c.Close()
}
