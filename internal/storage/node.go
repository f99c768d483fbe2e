package storage

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"slices"
	"sort"
)

// Node payload:
//
//	0   magic  [3]byte "BTN"
//	3   kind   uint8   nodeLeaf or nodeInternal
//	4   count  uint16
//	6   count entries:
//	      keyLen uint16, key, valKind uint8, valLen uint32,
//	      valLen inline bytes | overflow offset uint64
//	    count+1 child offsets uint64 (internal nodes only)
const (
	nodeLeaf     = 0
	nodeInternal = 1

	valInline   = 0
	valOverflow = 1

	nodeHeader = 6

	// Minimum degree. Every node but the root holds between minKeys and
	// maxKeys entries.
	degree  = 6
	maxKeys = 2*degree - 1
	minKeys = degree - 1

	MaxKeySize     = 1024
	MaxInlineValue = 256
	MaxValueSize   = 16 << 20
)

var nodeMagic = []byte("BTN")

// value is a node's reference to the bytes of one entry. Short values are
// held inline; longer ones live in a chain of overflow chunks.
type value struct {
	inline   []byte
	overflow uint64
	length   uint32
}

func (v value) isOverflow() bool {
	return v.overflow != 0
}

func (v value) encodedSize() int {
	if v.isOverflow() {
		return 1 + 4 + 8
	}
	return 1 + 4 + len(v.inline)
}

// node is the decoded form of a B-tree node. Nodes handed out by readNode
// may be shared through the cache and must be cloned before mutation.
type node struct {
	off      uint64
	leaf     bool
	keys     [][]byte
	vals     []value
	children []uint64
}

func (n *node) clone() *node {
	return &node{
		off:      n.off,
		leaf:     n.leaf,
		keys:     slices.Clone(n.keys),
		vals:     slices.Clone(n.vals),
		children: slices.Clone(n.children),
	}
}

func (n *node) full() bool {
	return len(n.keys) >= maxKeys
}

// search returns the index of key in n, or the index of the first key
// greater than it.
func (n *node) search(key []byte) (int, bool) {
	i := sort.Search(len(n.keys), func(i int) bool {
		return bytes.Compare(n.keys[i], key) >= 0
	})
	return i, i < len(n.keys) && bytes.Equal(n.keys[i], key)
}

// upper returns the index of the first key strictly greater than key.
func (n *node) upper(key []byte) int {
	return sort.Search(len(n.keys), func(i int) bool {
		return bytes.Compare(n.keys[i], key) > 0
	})
}

func (n *node) insertAt(i int, key []byte, v value) {
	n.keys = slices.Insert(n.keys, i, key)
	n.vals = slices.Insert(n.vals, i, v)
}

func (n *node) removeAt(i int) ([]byte, value) {
	k, v := n.keys[i], n.vals[i]
	n.keys = slices.Delete(n.keys, i, i+1)
	n.vals = slices.Delete(n.vals, i, i+1)
	return k, v
}

func (n *node) insertChild(i int, off uint64) {
	n.children = slices.Insert(n.children, i, off)
}

func (n *node) removeChild(i int) uint64 {
	off := n.children[i]
	n.children = slices.Delete(n.children, i, i+1)
	return off
}

func (n *node) encodedSize() int {
	size := nodeHeader
	for i, k := range n.keys {
		size += 2 + len(k) + n.vals[i].encodedSize()
	}
	if !n.leaf {
		size += 8 * len(n.children)
	}
	return size
}

func (n *node) encode() []byte {
	buf := make([]byte, n.encodedSize())

	copy(buf[0:3], nodeMagic)
	if n.leaf {
		buf[3] = nodeLeaf
	} else {
		buf[3] = nodeInternal
	}
	binary.LittleEndian.PutUint16(buf[4:], uint16(len(n.keys)))

	pos := nodeHeader
	for i, k := range n.keys {
		binary.LittleEndian.PutUint16(buf[pos:], uint16(len(k)))
		pos += 2
		pos += copy(buf[pos:], k)

		v := n.vals[i]
		if v.isOverflow() {
			buf[pos] = valOverflow
			binary.LittleEndian.PutUint32(buf[pos+1:], v.length)
			binary.LittleEndian.PutUint64(buf[pos+5:], v.overflow)
			pos += 13
		} else {
			buf[pos] = valInline
			binary.LittleEndian.PutUint32(buf[pos+1:], uint32(len(v.inline)))
			pos += 5
			pos += copy(buf[pos:], v.inline)
		}
	}

	if !n.leaf {
		for _, c := range n.children {
			binary.LittleEndian.PutUint64(buf[pos:], c)
			pos += 8
		}
	}
	return buf
}

// decodeNode parses a node payload. Keys and inline values are copied out
// of buf.
func decodeNode(off uint64, buf []byte) (*node, error) {
	corrupt := func(format string, args ...any) error {
		return fmt.Errorf("decodeNode(%d): %s: %w", off, fmt.Sprintf(format, args...), ErrCorruptTree)
	}

	if len(buf) < nodeHeader || !bytes.Equal(buf[0:3], nodeMagic) {
		return nil, corrupt("bad magic")
	}

	n := &node{off: off}
	switch buf[3] {
	case nodeLeaf:
		n.leaf = true
	case nodeInternal:
	default:
		return nil, corrupt("kind %d", buf[3])
	}

	count := int(binary.LittleEndian.Uint16(buf[4:]))
	if count > maxKeys {
		return nil, corrupt("%d keys", count)
	}

	n.keys = make([][]byte, count)
	n.vals = make([]value, count)

	pos := nodeHeader
	for i := 0; i < count; i++ {
		if pos+2 > len(buf) {
			return nil, corrupt("entry %d truncated", i)
		}
		klen := int(binary.LittleEndian.Uint16(buf[pos:]))
		pos += 2
		if klen > MaxKeySize || pos+klen+5 > len(buf) {
			return nil, corrupt("key %d length %d", i, klen)
		}
		n.keys[i] = bytes.Clone(buf[pos : pos+klen])
		pos += klen

		kind := buf[pos]
		vlen := binary.LittleEndian.Uint32(buf[pos+1:])
		pos += 5

		switch kind {
		case valInline:
			if vlen > MaxInlineValue || pos+int(vlen) > len(buf) {
				return nil, corrupt("inline value %d length %d", i, vlen)
			}
			n.vals[i] = value{inline: bytes.Clone(buf[pos : pos+int(vlen)]), length: vlen}
			pos += int(vlen)
		case valOverflow:
			if pos+8 > len(buf) || vlen <= MaxInlineValue || vlen > MaxValueSize {
				return nil, corrupt("overflow value %d length %d", i, vlen)
			}
			ov := binary.LittleEndian.Uint64(buf[pos:])
			if ov == 0 {
				return nil, corrupt("overflow value %d without chunks", i)
			}
			n.vals[i] = value{overflow: ov, length: vlen}
			pos += 8
		default:
			return nil, corrupt("value %d kind %d", i, kind)
		}
	}

	if !n.leaf {
		if pos+8*(count+1) > len(buf) {
			return nil, corrupt("children truncated")
		}
		n.children = make([]uint64, count+1)
		for i := range n.children {
			n.children[i] = binary.LittleEndian.Uint64(buf[pos:])
			pos += 8
		}
	}
	return n, nil
}
