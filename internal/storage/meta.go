package storage

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"go.stablemem/internal/memory"
)

// Map header, always at offset 0 of the map's memory:
//
//	0   magic     [3]byte "BTM"
//	3   version   uint8
//	4   reserved  [4]byte
//	8   root      uint64  offset of the root node, 0 when empty
//	16  length    uint64  number of entries
//	24  bump      uint64  first byte never handed out
//	32  free      [numClasses]uint64 free list heads
//
// Writing the header is the commit point of every mutation.
const (
	metaSize    = 128
	metaVersion = 1

	rootOffset   = 8
	lengthOffset = 16
	bumpOffset   = 24
	freeOffset   = 32
)

var metaMagic = []byte("BTM")

type meta struct {
	root   uint64
	length uint64
	bump   uint64
	free   [numClasses]uint64
}

func newMeta() meta {
	return meta{bump: metaSize}
}

func (m *meta) encode() []byte {
	buf := make([]byte, metaSize)
	copy(buf[0:3], metaMagic)
	buf[3] = metaVersion

	binary.LittleEndian.PutUint64(buf[rootOffset:], m.root)
	binary.LittleEndian.PutUint64(buf[lengthOffset:], m.length)
	binary.LittleEndian.PutUint64(buf[bumpOffset:], m.bump)
	for i, head := range m.free {
		binary.LittleEndian.PutUint64(buf[freeOffset+8*i:], head)
	}
	return buf
}

// decodeMeta parses and sanity checks a header read from a memory of
// limit bytes.
func decodeMeta(buf []byte, limit uint64) (meta, error) {
	var m meta

	if !bytes.Equal(buf[0:3], metaMagic) {
		return m, fmt.Errorf("decodeMeta: magic %q: %w", buf[0:3], ErrInvalidSig)
	}
	if buf[3] != metaVersion {
		return m, fmt.Errorf("decodeMeta: version %d: %w", buf[3], ErrInvalidSig)
	}

	m.root = binary.LittleEndian.Uint64(buf[rootOffset:])
	m.length = binary.LittleEndian.Uint64(buf[lengthOffset:])
	m.bump = binary.LittleEndian.Uint64(buf[bumpOffset:])
	for i := range m.free {
		m.free[i] = binary.LittleEndian.Uint64(buf[freeOffset+8*i:])
	}

	if m.bump < metaSize || m.bump > limit {
		return m, fmt.Errorf("decodeMeta: bump %d outside [%d, %d]: %w", m.bump, metaSize, limit, ErrInvalidPointer)
	}
	if m.root == 0 && m.length != 0 {
		return m, fmt.Errorf("decodeMeta: empty tree with length %d: %w", m.length, ErrCorruptTree)
	}
	if m.root != 0 && m.length == 0 {
		return m, fmt.Errorf("decodeMeta: root %d with zero length: %w", m.root, ErrCorruptTree)
	}
	if m.root != 0 && !m.inBounds(m.root) {
		return m, fmt.Errorf("decodeMeta: root %d: %w", m.root, ErrInvalidPointer)
	}
	for i, head := range m.free {
		if head != 0 && !m.inBounds(head) {
			return m, fmt.Errorf("decodeMeta: free head %d of class %d: %w", head, i, ErrInvalidPointer)
		}
	}
	return m, nil
}

// inBounds reports whether off can be the start of an allocated block.
func (m *meta) inBounds(off uint64) bool {
	return off >= metaSize && off+blockHeader <= m.bump
}

func (bt *BTree) writeMeta() {
	bt.mem.Write(0, bt.meta.encode())
}

func (bt *BTree) readMeta() error {
	buf := make([]byte, metaSize)
	bt.mem.Read(0, buf)

	m, err := decodeMeta(buf, memory.Bytes(bt.mem))
	if err != nil {
		bt.log.Errorf("readMeta: %v", err)
		return err
	}
	bt.meta = m
	return nil
}
