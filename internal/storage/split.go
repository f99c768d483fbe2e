package storage

// splitChild splits the full node child around its median. child keeps the
// lower half and a new node takes the upper half; both are written. The
// median entry is returned for the parent.
func (bt *BTree) splitChild(child *node) ([]byte, value, *node, error) {
	mid := minKeys
	medKey, medVal := child.keys[mid], child.vals[mid]

	right := &node{
		leaf: child.leaf,
		keys: append([][]byte(nil), child.keys[mid+1:]...),
		vals: append([]value(nil), child.vals[mid+1:]...),
	}
	if !child.leaf {
		right.children = append([]uint64(nil), child.children[mid+1:]...)
		child.children = child.children[:mid+1]
	}
	child.keys = child.keys[:mid]
	child.vals = child.vals[:mid]

	if _, err := bt.writeNode(child); err != nil {
		return nil, value{}, nil, err
	}
	if _, err := bt.writeNode(right); err != nil {
		return nil, value{}, nil, err
	}
	return medKey, medVal, right, nil
}

// growRoot splits a full root, returning the new root that holds only the
// median. The new root is not written yet.
func (bt *BTree) growRoot(root *node) (*node, error) {
	medKey, medVal, right, err := bt.splitChild(root)
	if err != nil {
		return nil, err
	}

	bt.log.Debugf("growRoot: split root %d", root.off)
	return &node{
		leaf:     false,
		keys:     [][]byte{medKey},
		vals:     []value{medVal},
		children: []uint64{root.off, right.off},
	}, nil
}
