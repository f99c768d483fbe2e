package storage

import "go.stablemem/internal/cache"

// NodeCache holds decoded nodes. One cache may serve several trees as long
// as each uses its own region.
type NodeCache = cache.NodeCache[*node]

// NewNodeCache builds a cache of capacity nodes with the named policy. It
// returns nil, a valid disabled cache, for cache.PolicyNone.
func NewNodeCache(kind string, capacity int) (*NodeCache, error) {
	return cache.New[*node](kind, capacity)
}
