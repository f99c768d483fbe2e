package storage

import (
	"bytes"
	"fmt"
)

// Verify walks the whole tree and checks ordering, fill and depth
// invariants, the entry count and every overflow chain.
func (bt *BTree) Verify() error {
	if bt.meta.root == 0 {
		if bt.meta.length != 0 {
			return fmt.Errorf("Verify: empty tree with length %d: %w", bt.meta.length, ErrCorruptTree)
		}
		return nil
	}

	var count uint64
	leafDepth := -1

	var check func(off uint64, lo, hi []byte, depth int, root bool) error
	check = func(off uint64, lo, hi []byte, depth int, root bool) error {
		n, err := bt.readNode(off)
		if err != nil {
			return err
		}

		if len(n.keys) > maxKeys || (!root && len(n.keys) < minKeys) || len(n.keys) == 0 {
			return fmt.Errorf("Verify: node %d holds %d keys: %w", off, len(n.keys), ErrCorruptTree)
		}
		for i, k := range n.keys {
			if i > 0 && bytes.Compare(n.keys[i-1], k) >= 0 {
				return fmt.Errorf("Verify: node %d keys out of order at %d: %w", off, i, ErrCorruptTree)
			}
			if (lo != nil && bytes.Compare(k, lo) <= 0) || (hi != nil && bytes.Compare(k, hi) >= 0) {
				return fmt.Errorf("Verify: node %d key %d outside its separators: %w", off, i, ErrCorruptTree)
			}
			if n.vals[i].isOverflow() {
				if err := bt.walkChunks(n.vals[i], func(uint64, []byte) {}); err != nil {
					return err
				}
			}
		}
		count += uint64(len(n.keys))

		if n.leaf {
			if leafDepth == -1 {
				leafDepth = depth
			}
			if depth != leafDepth {
				return fmt.Errorf("Verify: leaf %d at depth %d, want %d: %w", off, depth, leafDepth, ErrCorruptTree)
			}
			return nil
		}

		if len(n.children) != len(n.keys)+1 {
			return fmt.Errorf("Verify: node %d has %d children for %d keys: %w", off, len(n.children), len(n.keys), ErrCorruptTree)
		}
		for i, c := range n.children {
			clo, chi := lo, hi
			if i > 0 {
				clo = n.keys[i-1]
			}
			if i < len(n.keys) {
				chi = n.keys[i]
			}
			if err := check(c, clo, chi, depth+1, false); err != nil {
				return err
			}
		}
		return nil
	}

	if err := check(bt.meta.root, nil, nil, 0, true); err != nil {
		bt.log.Errorf("Verify: %v", err)
		return err
	}
	if count != bt.meta.length {
		return fmt.Errorf("Verify: counted %d entries, header says %d: %w", count, bt.meta.length, ErrCorruptTree)
	}
	return nil
}
