package storage

// merge folds separator i of parent and the whole of right into left.
// right's block is freed; left and parent are left for the caller to
// write.
func (bt *BTree) merge(parent *node, i int, left, right *node) {
	left.keys = append(left.keys, parent.keys[i])
	left.vals = append(left.vals, parent.vals[i])
	left.keys = append(left.keys, right.keys...)
	left.vals = append(left.vals, right.vals...)
	if !left.leaf {
		left.children = append(left.children, right.children...)
	}

	parent.removeAt(i)
	parent.removeChild(i + 1)
	parent.children[i] = left.off

	if right.off != 0 {
		bt.freeLater(right.off)
	}
}
