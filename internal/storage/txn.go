package storage

import (
	"slices"

	"go.stablemem/internal/cache"
)

// txn tracks one mutation. Blocks allocated during it are fresh and may
// be rewritten in place; every other block belongs to the committed tree
// and is only replaced, never overwritten.
type txn struct {
	saved meta

	fresh  map[uint64]uint8
	popped []uint64
	bumped map[uint64]struct{}

	freed    []uint64
	freedSet map[uint64]struct{}
}

func (bt *BTree) freeLater(off uint64) {
	if _, ok := bt.tx.freedSet[off]; ok {
		return
	}
	bt.tx.freedSet[off] = struct{}{}
	bt.tx.freed = append(bt.tx.freed, off)
}

// update runs fn as one atomic mutation. The header write at the end is
// the commit point; on error or panic the in-memory header is restored
// and every block touched by fn is dropped from the cache.
func (bt *BTree) update(fn func() error) error {
	tx := &txn{
		saved:    bt.meta,
		fresh:    make(map[uint64]uint8),
		bumped:   make(map[uint64]struct{}),
		freedSet: make(map[uint64]struct{}),
	}
	bt.tx = tx

	committed := false
	defer func() {
		bt.tx = nil
		if !committed {
			bt.rollback(tx)
		}
	}()

	if err := fn(); err != nil {
		return err
	}
	if err := bt.releaseFreed(tx); err != nil {
		return err
	}

	bt.writeMeta()
	bt.gen++
	committed = true
	return nil
}

// releaseFreed pushes the blocks freed by tx onto the free lists. Blocks
// taken from a free list go back first, newest first, so the chain seen
// by the committed header only ever reaches blocks that were free in it.
func (bt *BTree) releaseFreed(tx *txn) error {
	var reused, bumped, committed []uint64
	for _, off := range tx.freed {
		_, fresh := tx.fresh[off]
		_, fromBump := tx.bumped[off]
		switch {
		case fresh && fromBump:
			bumped = append(bumped, off)
		case fresh:
			reused = append(reused, off)
		default:
			committed = append(committed, off)
		}
	}

	slices.SortFunc(reused, func(a, b uint64) int {
		return slices.Index(tx.popped, b) - slices.Index(tx.popped, a)
	})

	for _, group := range [][]uint64{reused, bumped, committed} {
		for _, off := range group {
			if err := bt.release(off); err != nil {
				return err
			}
			bt.cache.Invalidate(bt.cacheKey(off))
		}
	}
	return nil
}

func (bt *BTree) rollback(tx *txn) {
	bt.meta = tx.saved
	for off := range tx.fresh {
		bt.cache.Invalidate(bt.cacheKey(off))
	}
	bt.log.Warnf("btree: rolled back mutation touching %d blocks", len(tx.fresh))
}

func (bt *BTree) cacheKey(off uint64) cache.Key {
	return cache.Key{Region: bt.region, Offset: off}
}
