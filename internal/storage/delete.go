package storage

import "fmt"

// Remove deletes key and returns the value it held.
func (bt *BTree) Remove(key []byte) (prev []byte, removed bool, err error) {
	if len(key) > MaxKeySize {
		return nil, false, nil
	}

	// Absent keys leave the tree untouched instead of rebalancing the path.
	v, ok, err := bt.lookup(key)
	if err != nil || !ok {
		return nil, false, err
	}
	if prev, err = bt.loadValue(v); err != nil {
		return nil, false, err
	}

	err = bt.update(func() error {
		root, err := bt.own(bt.meta.root)
		if err != nil {
			return err
		}

		off, old, found, err := bt.removeFrom(root, key)
		if err != nil {
			return err
		}
		if !found {
			bt.log.Errorf("Remove: key %q vanished during descent", key)
			return fmt.Errorf("Remove: %w", ErrCorruptTree)
		}

		// Shrink the tree when the root ran out of keys.
		switch {
		case len(root.keys) > 0:
			bt.meta.root = off
		case root.leaf:
			bt.meta.root = 0
			bt.freeLater(off)
		default:
			bt.meta.root = root.children[0]
			bt.freeLater(off)
		}

		bt.meta.length--
		return bt.freeValue(old)
	})
	if err != nil {
		return nil, false, err
	}
	return prev, true, nil
}

// removeFrom deletes key from the subtree of the owned node n. Every child
// it descends into has more than minKeys keys, so a removal never leaves a
// non-root node underfull. It returns n's new offset and the removed value.
func (bt *BTree) removeFrom(n *node, key []byte) (uint64, value, bool, error) {
	i, found := n.search(key)

	if n.leaf {
		if !found {
			return n.off, value{}, false, nil
		}
		_, old := n.removeAt(i)
		off, err := bt.writeNode(n)
		return off, old, true, err
	}

	if found {
		return bt.removeInternal(n, i, key)
	}

	child, ci, err := bt.fillChild(n, i)
	if err != nil {
		return 0, value{}, false, err
	}

	coff, old, found, err := bt.removeFrom(child, key)
	if err != nil {
		return 0, value{}, false, err
	}
	n.children[ci] = coff

	off, err := bt.writeNode(n)
	return off, old, found, err
}

// removeInternal deletes entry i of the internal node n, replacing it with
// its predecessor or successor, or merging its children around it.
func (bt *BTree) removeInternal(n *node, i int, key []byte) (uint64, value, bool, error) {
	old := n.vals[i]

	left, err := bt.own(n.children[i])
	if err != nil {
		return 0, value{}, false, err
	}
	if len(left.keys) > minKeys {
		pk, pv, err := bt.maxEntry(left)
		if err != nil {
			return 0, value{}, false, err
		}
		coff, _, _, err := bt.removeFrom(left, pk)
		if err != nil {
			return 0, value{}, false, err
		}
		n.keys[i], n.vals[i] = pk, pv
		n.children[i] = coff

		off, err := bt.writeNode(n)
		return off, old, true, err
	}

	right, err := bt.own(n.children[i+1])
	if err != nil {
		return 0, value{}, false, err
	}
	if len(right.keys) > minKeys {
		sk, sv, err := bt.minEntry(right)
		if err != nil {
			return 0, value{}, false, err
		}
		coff, _, _, err := bt.removeFrom(right, sk)
		if err != nil {
			return 0, value{}, false, err
		}
		n.keys[i], n.vals[i] = sk, sv
		n.children[i+1] = coff

		off, err := bt.writeNode(n)
		return off, old, true, err
	}

	// Both neighbours are minimal: fold key and right into left and
	// delete from there.
	bt.merge(n, i, left, right)

	coff, old, found, err := bt.removeFrom(left, key)
	if err != nil {
		return 0, value{}, false, err
	}
	n.children[i] = coff

	off, err := bt.writeNode(n)
	return off, old, found, err
}
