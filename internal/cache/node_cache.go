package cache

type Stats struct {
	Hits   uint64
	Misses uint64
	Len    int
}

// NodeCache counts hits and misses over a Policy. A nil *NodeCache is a
// valid cache that never holds anything.
type NodeCache[V any] struct {
	policy Policy[V]
	hits   uint64
	misses uint64
}

func NewNodeCache[V any](p Policy[V]) *NodeCache[V] {
	if p == nil {
		return nil
	}
	return &NodeCache[V]{policy: p}
}

// New builds a NodeCache with the named policy. It returns nil for
// PolicyNone or a zero capacity.
func New[V any](kind string, capacity int) (*NodeCache[V], error) {
	if capacity <= 0 {
		return nil, nil
	}
	p, err := NewPolicy[V](kind, capacity)
	if err != nil {
		return nil, err
	}
	return NewNodeCache(p), nil
}

// GetOrLoad returns the cached value for k, calling load and caching its
// result on a miss.
func (c *NodeCache[V]) GetOrLoad(k Key, load func() (V, error)) (V, error) {
	if c == nil {
		return load()
	}

	if v, ok := c.policy.Get(k); ok {
		c.hits++
		return v, nil
	}
	c.misses++

	v, err := load()
	if err != nil {
		return v, err
	}
	c.policy.Put(k, v)
	return v, nil
}

func (c *NodeCache[V]) Store(k Key, v V) {
	if c == nil {
		return
	}
	c.policy.Put(k, v)
}

func (c *NodeCache[V]) Invalidate(k Key) {
	if c == nil {
		return
	}
	c.policy.Remove(k)
}

func (c *NodeCache[V]) Purge() {
	if c == nil {
		return
	}
	c.policy.Purge()
}

func (c *NodeCache[V]) Stats() Stats {
	if c == nil {
		return Stats{}
	}
	return Stats{Hits: c.hits, Misses: c.misses, Len: c.policy.Len()}
}
