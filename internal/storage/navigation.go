package storage

import "fmt"

// lookup descends from the root to the entry for key.
func (bt *BTree) lookup(key []byte) (value, bool, error) {
	off := bt.meta.root
	for off != 0 {
		n, err := bt.readNode(off)
		if err != nil {
			return value{}, false, err
		}

		i, found := n.search(key)
		if found {
			return n.vals[i], true, nil
		}
		if n.leaf {
			return value{}, false, nil
		}
		off = n.children[i]
	}
	return value{}, false, nil
}

// maxEntry returns the largest entry below n.
func (bt *BTree) maxEntry(n *node) ([]byte, value, error) {
	var err error
	for !n.leaf {
		if n, err = bt.readNode(n.children[len(n.children)-1]); err != nil {
			return nil, value{}, err
		}
	}
	if len(n.keys) == 0 {
		return nil, value{}, fmt.Errorf("maxEntry: empty leaf %d: %w", n.off, ErrCorruptTree)
	}
	last := len(n.keys) - 1
	return n.keys[last], n.vals[last], nil
}

// minEntry returns the smallest entry below n.
func (bt *BTree) minEntry(n *node) ([]byte, value, error) {
	var err error
	for !n.leaf {
		if n, err = bt.readNode(n.children[0]); err != nil {
			return nil, value{}, err
		}
	}
	if len(n.keys) == 0 {
		return nil, value{}, fmt.Errorf("minEntry: empty leaf %d: %w", n.off, ErrCorruptTree)
	}
	return n.keys[0], n.vals[0], nil
}
