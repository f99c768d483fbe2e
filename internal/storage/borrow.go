package storage

// borrowLeft rotates the last entry of left up into parent and the
// separator down into the front of child.
func (bt *BTree) borrowLeft(parent *node, i int, left, child *node) {
	last := len(left.keys) - 1

	child.insertAt(0, parent.keys[i-1], parent.vals[i-1])
	if !child.leaf {
		child.insertChild(0, left.removeChild(len(left.children)-1))
	}

	k, v := left.removeAt(last)
	parent.keys[i-1], parent.vals[i-1] = k, v
}

// borrowRight rotates the first entry of right up into parent and the
// separator down onto the end of child.
func (bt *BTree) borrowRight(parent *node, i int, child, right *node) {
	child.insertAt(len(child.keys), parent.keys[i], parent.vals[i])
	if !child.leaf {
		child.insertChild(len(child.children), right.removeChild(0))
	}

	k, v := right.removeAt(0)
	parent.keys[i], parent.vals[i] = k, v
}
