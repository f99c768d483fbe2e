package storage

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// Overflow chunk payload:
//
//	0   magic  [3]byte "BTO"
//	3   next   uint64  next chunk, 0 on the last one
//	11  len    uint32
//	15  data
const (
	chunkHeader = 15

	// Values are cut into chunks that fit a 16 KiB block.
	chunkData = 16<<10 - blockHeader - chunkHeader
)

var chunkMagic = []byte("BTO")

// storeValue makes val referable from a node, writing it to overflow
// chunks when it is too long to sit inline.
func (bt *BTree) storeValue(val []byte) (value, error) {
	if len(val) <= MaxInlineValue {
		return value{inline: bytes.Clone(val), length: uint32(len(val))}, nil
	}

	// Written back to front so each chunk knows its successor.
	var next uint64
	for end := len(val); end > 0; {
		start := (end - 1) / chunkData * chunkData
		data := val[start:end]

		buf := make([]byte, chunkHeader+len(data))
		copy(buf[0:3], chunkMagic)
		binary.LittleEndian.PutUint64(buf[3:], next)
		binary.LittleEndian.PutUint32(buf[11:], uint32(len(data)))
		copy(buf[chunkHeader:], data)

		off, _, err := bt.alloc(len(buf))
		if err != nil {
			return value{}, err
		}
		bt.writePayload(off, buf)

		next = off
		end = start
	}

	return value{overflow: next, length: uint32(len(val))}, nil
}

// loadValue returns a copy of the bytes v refers to.
func (bt *BTree) loadValue(v value) ([]byte, error) {
	if !v.isOverflow() {
		return bytes.Clone(v.inline), nil
	}

	out := make([]byte, 0, v.length)
	err := bt.walkChunks(v, func(_ uint64, data []byte) {
		out = append(out, data...)
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// freeValue schedules the overflow chunks of v for release.
func (bt *BTree) freeValue(v value) error {
	if !v.isOverflow() {
		return nil
	}
	return bt.walkChunks(v, func(off uint64, _ []byte) {
		bt.freeLater(off)
	})
}

func (bt *BTree) walkChunks(v value, fn func(off uint64, data []byte)) error {
	remaining := uint64(v.length)
	off := v.overflow

	for off != 0 {
		buf, err := bt.readPayload(off)
		if err != nil {
			return err
		}
		if !bytes.Equal(buf[0:3], chunkMagic) {
			return fmt.Errorf("overflow chunk %d: bad magic: %w", off, ErrCorruptTree)
		}

		next := binary.LittleEndian.Uint64(buf[3:])
		n := uint64(binary.LittleEndian.Uint32(buf[11:]))
		if n == 0 || n > remaining || chunkHeader+n > uint64(len(buf)) {
			return fmt.Errorf("overflow chunk %d: length %d of %d: %w", off, n, remaining, ErrCorruptTree)
		}

		fn(off, buf[chunkHeader:chunkHeader+n])
		remaining -= n
		off = next
	}

	if remaining != 0 {
		return fmt.Errorf("overflow value at %d: %d bytes missing: %w", v.overflow, remaining, ErrCorruptTree)
	}
	return nil
}
