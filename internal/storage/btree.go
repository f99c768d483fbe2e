// Package storage implements a persistent ordered map: a B-tree of byte
// keys and values laid out inside any memory.Memory.
//
// Every mutation is copy-on-write. Nodes of the committed tree are never
// overwritten; replacements go to new blocks and the map header, written
// last, switches to the new root. A failed mutation leaves the committed
// tree untouched.
package storage

import (
	"fmt"
	"slices"

	"go.stablemem/internal/cache"
	"go.stablemem/internal/logger"
	"go.stablemem/internal/memory"
)

// BTree is not safe for concurrent use.
type BTree struct {
	mem  memory.Memory
	meta meta
	tx   *txn
	gen  uint64

	cache  *NodeCache
	region uint8
	log    *logger.Logger
}

type Option func(*BTree)

func WithLogger(l *logger.Logger) Option {
	return func(bt *BTree) {
		bt.log = l
	}
}

// WithCache shares c between trees. region keeps their offsets apart and
// must differ for every tree using the same cache.
func WithCache(c *NodeCache, region uint8) Option {
	return func(bt *BTree) {
		bt.cache = c
		bt.region = region
	}
}

func newBTree(mem memory.Memory, opts []Option) *BTree {
	bt := &BTree{
		mem: mem,
		log: logger.Discard(),
	}
	for _, opt := range opts {
		opt(bt)
	}
	return bt
}

// New formats mem as an empty map, discarding anything stored there.
func New(mem memory.Memory, opts ...Option) (*BTree, error) {
	bt := newBTree(mem, opts)

	if err := memory.EnsureCapacity(mem, metaSize); err != nil {
		return nil, fmt.Errorf("storage.New: %w", err)
	}

	bt.meta = newMeta()
	bt.writeMeta()
	bt.cache.Purge()
	return bt, nil
}

// Load opens the map previously stored in mem.
func Load(mem memory.Memory, opts ...Option) (*BTree, error) {
	bt := newBTree(mem, opts)

	if memory.Bytes(mem) < metaSize {
		return nil, fmt.Errorf("storage.Load: memory holds %d bytes: %w", memory.Bytes(mem), ErrInvalidSig)
	}
	if err := bt.readMeta(); err != nil {
		return nil, fmt.Errorf("storage.Load: %w", err)
	}

	bt.log.Debugf("storage: loaded map with %d entries, %d bytes used", bt.meta.length, bt.meta.bump)
	return bt, nil
}

// Open loads the map in mem, or formats a new one when mem is empty. A
// header of zeros counts as empty: the memory grew but the map was never
// written.
func Open(mem memory.Memory, opts ...Option) (*BTree, error) {
	if mem.Size() == 0 || unformatted(mem) {
		return New(mem, opts...)
	}
	return Load(mem, opts...)
}

func unformatted(mem memory.Memory) bool {
	buf := make([]byte, metaSize)
	mem.Read(0, buf)
	return !slices.ContainsFunc(buf, func(b byte) bool { return b != 0 })
}

func (bt *BTree) Memory() memory.Memory {
	return bt.mem
}

func (bt *BTree) Len() uint64 {
	return bt.meta.length
}

func (bt *BTree) IsEmpty() bool {
	return bt.meta.length == 0
}

// Used returns the number of bytes handed out by the allocator so far.
func (bt *BTree) Used() uint64 {
	return bt.meta.bump
}

func (bt *BTree) CacheStats() cache.Stats {
	return bt.cache.Stats()
}

// readNode returns the node at off, possibly shared with the cache.
func (bt *BTree) readNode(off uint64) (*node, error) {
	return bt.cache.GetOrLoad(bt.cacheKey(off), func() (*node, error) {
		buf, err := bt.readPayload(off)
		if err != nil {
			bt.log.Errorf("readNode: %v", err)
			return nil, err
		}
		n, err := decodeNode(off, buf)
		if err != nil {
			bt.log.Errorf("readNode: %v", err)
			return nil, err
		}
		return n, nil
	})
}

// own returns a private copy of the node at off that may be mutated and
// written back.
func (bt *BTree) own(off uint64) (*node, error) {
	n, err := bt.readNode(off)
	if err != nil {
		return nil, err
	}
	return n.clone(), nil
}

// writeNode stores n and returns its offset. A node allocated by the
// current mutation is rewritten in place when it still fits its block;
// anything else moves to a new block and the old one is freed on commit.
func (bt *BTree) writeNode(n *node) (uint64, error) {
	buf := n.encode()

	cls, fresh := bt.tx.fresh[n.off]
	if !fresh || n.off == 0 || uint64(len(buf))+blockHeader > classSize(cls) {
		off, _, err := bt.alloc(len(buf))
		if err != nil {
			return 0, err
		}
		if n.off != 0 {
			bt.freeLater(n.off)
		}
		n.off = off
	}

	bt.writePayload(n.off, buf)
	bt.cache.Store(bt.cacheKey(n.off), n.clone())
	return n.off, nil
}

// Get returns a copy of the value stored under key.
func (bt *BTree) Get(key []byte) ([]byte, bool, error) {
	v, ok, err := bt.lookup(key)
	if err != nil || !ok {
		return nil, ok, err
	}

	val, err := bt.loadValue(v)
	if err != nil {
		return nil, false, err
	}
	return val, true, nil
}

func (bt *BTree) Contains(key []byte) (bool, error) {
	_, ok, err := bt.lookup(key)
	return ok, err
}

// First returns the smallest entry.
func (bt *BTree) First() ([]byte, []byte, bool, error) {
	return bt.edge(true)
}

// Last returns the largest entry.
func (bt *BTree) Last() ([]byte, []byte, bool, error) {
	return bt.edge(false)
}

func (bt *BTree) edge(first bool) ([]byte, []byte, bool, error) {
	if bt.meta.root == 0 {
		return nil, nil, false, nil
	}

	n, err := bt.readNode(bt.meta.root)
	if err != nil {
		return nil, nil, false, err
	}
	for !n.leaf {
		child := n.children[0]
		if !first {
			child = n.children[len(n.children)-1]
		}
		if n, err = bt.readNode(child); err != nil {
			return nil, nil, false, err
		}
	}
	if len(n.keys) == 0 {
		return nil, nil, false, fmt.Errorf("edge: empty leaf %d: %w", n.off, ErrCorruptTree)
	}

	i := 0
	if !first {
		i = len(n.keys) - 1
	}
	val, err := bt.loadValue(n.vals[i])
	if err != nil {
		return nil, nil, false, err
	}
	return append([]byte(nil), n.keys[i]...), val, true, nil
}

// Clear removes every entry. The freed blocks are reused by later inserts;
// the memory itself never shrinks.
func (bt *BTree) Clear() error {
	if bt.meta.root == 0 {
		return nil
	}

	return bt.update(func() error {
		err := bt.walk(bt.meta.root, func(n *node) error {
			for _, v := range n.vals {
				if err := bt.freeValue(v); err != nil {
					return err
				}
			}
			bt.freeLater(n.off)
			return nil
		})
		if err != nil {
			return err
		}

		bt.meta.root = 0
		bt.meta.length = 0
		return nil
	})
}

// walk visits every node below off in pre-order.
func (bt *BTree) walk(off uint64, fn func(*node) error) error {
	n, err := bt.readNode(off)
	if err != nil {
		return err
	}
	if err := fn(n); err != nil {
		return err
	}
	for _, c := range n.children {
		if err := bt.walk(c, fn); err != nil {
			return err
		}
	}
	return nil
}
