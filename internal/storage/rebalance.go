package storage

// fillChild returns an owned copy of child i of parent that holds more
// than minKeys keys, borrowing from or merging with a sibling first when
// it does not. The returned index is where the child now sits in parent.
func (bt *BTree) fillChild(parent *node, i int) (*node, int, error) {
	child, err := bt.own(parent.children[i])
	if err != nil {
		return nil, 0, err
	}
	if len(child.keys) > minKeys {
		return child, i, nil
	}

	hasLeft := i > 0
	hasRight := i < len(parent.children)-1

	var left, right *node
	if hasLeft {
		if left, err = bt.own(parent.children[i-1]); err != nil {
			return nil, 0, err
		}
		if len(left.keys) > minKeys {
			bt.borrowLeft(parent, i, left, child)
			if parent.children[i-1], err = bt.writeNode(left); err != nil {
				return nil, 0, err
			}
			return child, i, nil
		}
	}

	if hasRight {
		if right, err = bt.own(parent.children[i+1]); err != nil {
			return nil, 0, err
		}
		if len(right.keys) > minKeys {
			bt.borrowRight(parent, i, child, right)
			if parent.children[i+1], err = bt.writeNode(right); err != nil {
				return nil, 0, err
			}
			return child, i, nil
		}
		bt.merge(parent, i, child, right)
		return child, i, nil
	}

	bt.merge(parent, i-1, left, child)
	return left, i - 1, nil
}
