package storage

import (
	"bytes"
	"fmt"
)

// Insert stores val under key. When key was already present its previous
// value is returned and replaced is true.
func (bt *BTree) Insert(key, val []byte) (prev []byte, replaced bool, err error) {
	if len(key) > MaxKeySize {
		return nil, false, fmt.Errorf("Insert: key of %d bytes: %w", len(key), ErrKeyTooLarge)
	}
	if len(val) > MaxValueSize {
		return nil, false, fmt.Errorf("Insert: value of %d bytes: %w", len(val), ErrValTooLarge)
	}
	key = bytes.Clone(key)
	if key == nil {
		key = []byte{}
	}

	err = bt.update(func() error {
		v, err := bt.storeValue(val)
		if err != nil {
			return err
		}

		if bt.meta.root == 0 {
			off, err := bt.writeNode(&node{leaf: true, keys: [][]byte{key}, vals: []value{v}})
			if err != nil {
				return err
			}
			bt.meta.root = off
			bt.meta.length = 1
			return nil
		}

		root, err := bt.own(bt.meta.root)
		if err != nil {
			return err
		}
		if root.full() {
			if root, err = bt.growRoot(root); err != nil {
				return err
			}
		}

		off, old, found, err := bt.insertNonFull(root, key, v)
		if err != nil {
			return err
		}
		bt.meta.root = off

		if !found {
			bt.meta.length++
			return nil
		}

		if prev, err = bt.loadValue(old); err != nil {
			return err
		}
		replaced = true
		return bt.freeValue(old)
	})
	if err != nil {
		return nil, false, err
	}
	return prev, replaced, nil
}

// insertNonFull puts key into the subtree of n, which is owned and not
// full, splitting full children on the way down. It returns n's new
// offset and the replaced value, if any.
func (bt *BTree) insertNonFull(n *node, key []byte, v value) (uint64, value, bool, error) {
	i, found := n.search(key)
	if found {
		old := n.vals[i]
		n.vals[i] = v
		off, err := bt.writeNode(n)
		return off, old, true, err
	}

	if n.leaf {
		n.insertAt(i, key, v)
		off, err := bt.writeNode(n)
		return off, value{}, false, err
	}

	child, err := bt.own(n.children[i])
	if err != nil {
		return 0, value{}, false, err
	}

	if child.full() {
		medKey, medVal, right, err := bt.splitChild(child)
		if err != nil {
			return 0, value{}, false, err
		}
		n.insertAt(i, medKey, medVal)
		n.children[i] = child.off
		n.insertChild(i+1, right.off)

		switch c := bytes.Compare(key, medKey); {
		case c == 0:
			old := n.vals[i]
			n.vals[i] = v
			off, err := bt.writeNode(n)
			return off, old, true, err
		case c > 0:
			i++
			child = right
		}
	}

	coff, old, found, err := bt.insertNonFull(child, key, v)
	if err != nil {
		return 0, value{}, false, err
	}
	n.children[i] = coff

	off, err := bt.writeNode(n)
	return off, old, found, err
}
