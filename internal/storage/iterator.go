package storage

import (
	"bytes"
	"iter"
)

type frame struct {
	off uint64
	idx int
}

// Iterator walks the entries in [start, end) in key order. It holds node
// offsets only; when the tree changes between two steps it seeks again
// just past the last key it returned.
type Iterator struct {
	bt         *BTree
	start, end []byte

	stack []frame
	gen   uint64

	started bool
	done    bool
	key     []byte
	val     []byte
	err     error
}

// Range returns an iterator over [start, end). A nil bound is open.
func (bt *BTree) Range(start, end []byte) *Iterator {
	return &Iterator{
		bt:    bt,
		start: bytes.Clone(start),
		end:   bytes.Clone(end),
	}
}

// All yields the entries in [start, end). Errors end the sequence early;
// use Range to observe them.
func (bt *BTree) All(start, end []byte) iter.Seq2[[]byte, []byte] {
	return func(yield func([]byte, []byte) bool) {
		it := bt.Range(start, end)
		for it.Next() {
			if !yield(it.Key(), it.Value()) {
				return
			}
		}
	}
}

func (it *Iterator) Next() bool {
	if it.done || it.err != nil {
		return false
	}

	if !it.started || it.gen != it.bt.gen {
		it.seek()
		it.started = true
		if it.err != nil {
			return false
		}
	}

	k, v, ok := it.step()
	if it.err != nil || !ok || (it.end != nil && bytes.Compare(k, it.end) >= 0) {
		it.done = true
		it.stack = nil
		return false
	}

	val, err := it.bt.loadValue(v)
	if err != nil {
		it.err = err
		return false
	}

	it.key = bytes.Clone(k)
	it.val = val
	return true
}

func (it *Iterator) Key() []byte {
	return it.key
}

func (it *Iterator) Value() []byte {
	return it.val
}

func (it *Iterator) Err() error {
	return it.err
}

// seek rebuilds the stack so that the next step returns the first key at
// or after start, or strictly after the last key returned.
func (it *Iterator) seek() {
	it.stack = it.stack[:0]
	it.gen = it.bt.gen

	target, inclusive := it.start, true
	if it.key != nil {
		target, inclusive = it.key, false
	}

	off := it.bt.meta.root
	for off != 0 {
		n, err := it.bt.readNode(off)
		if err != nil {
			it.err = err
			return
		}

		i := 0
		if target != nil {
			if inclusive {
				var found bool
				if i, found = n.search(target); found {
					// Everything below children[i] is smaller than target.
					it.stack = append(it.stack, frame{off: off, idx: i})
					return
				}
			} else {
				i = n.upper(target)
			}
		}

		it.stack = append(it.stack, frame{off: off, idx: i})
		if n.leaf {
			return
		}
		off = n.children[i]
	}
}

// step pops the next entry in order. A frame {off, i} means every entry
// below children[i] of off has been returned and key i is next.
func (it *Iterator) step() ([]byte, value, bool) {
	for len(it.stack) > 0 {
		top := &it.stack[len(it.stack)-1]
		n, err := it.bt.readNode(top.off)
		if err != nil {
			it.err = err
			return nil, value{}, false
		}

		if top.idx >= len(n.keys) {
			it.stack = it.stack[:len(it.stack)-1]
			continue
		}

		i := top.idx
		top.idx++
		if !n.leaf {
			it.pushLeftmost(n.children[i+1])
		}
		return n.keys[i], n.vals[i], true
	}
	return nil, value{}, false
}

func (it *Iterator) pushLeftmost(off uint64) {
	for {
		it.stack = append(it.stack, frame{off: off})
		n, err := it.bt.readNode(off)
		if err != nil {
			it.err = err
			return
		}
		if n.leaf {
			return
		}
		off = n.children[0]
	}
}
