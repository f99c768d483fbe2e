package storage

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"go.stablemem/internal/memory"
)

// Cell layout at offset 0 of its memory:
//
//	0   magic    [3]byte "SCL"
//	3   version  uint8
//	4   length   uint32
//	8   value
const (
	cellHeader  = 8
	cellVersion = 1
)

var cellMagic = []byte("SCL")

// Cell stores a single value in a memory of its own. Each Set rewrites
// the header and value with one write.
type Cell[T any] struct {
	mem   memory.Memory
	codec Codec[T]
	value T
}

// NewCell formats mem with initial.
func NewCell[T any](mem memory.Memory, codec Codec[T], initial T) (*Cell[T], error) {
	c := &Cell[T]{mem: mem, codec: codec}
	if _, err := c.Set(initial); err != nil {
		return nil, err
	}
	return c, nil
}

// LoadCell reads the value stored in mem.
func LoadCell[T any](mem memory.Memory, codec Codec[T]) (*Cell[T], error) {
	if memory.Bytes(mem) < cellHeader {
		return nil, fmt.Errorf("LoadCell: %w", ErrCorruptCell)
	}

	hdr := make([]byte, cellHeader)
	mem.Read(0, hdr)
	if !bytes.Equal(hdr[0:3], cellMagic) || hdr[3] != cellVersion {
		return nil, fmt.Errorf("LoadCell: header %q: %w", hdr[0:4], ErrCorruptCell)
	}

	n := uint64(binary.LittleEndian.Uint32(hdr[4:]))
	if cellHeader+n > memory.Bytes(mem) {
		return nil, fmt.Errorf("LoadCell: length %d: %w", n, ErrCorruptCell)
	}

	buf := make([]byte, n)
	mem.Read(cellHeader, buf)
	v, err := codec.Decode(buf)
	if err != nil {
		return nil, fmt.Errorf("LoadCell: %w", err)
	}
	return &Cell[T]{mem: mem, codec: codec, value: v}, nil
}

// OpenCell loads the cell in mem, or formats it with initial when mem is
// empty.
func OpenCell[T any](mem memory.Memory, codec Codec[T], initial T) (*Cell[T], error) {
	if mem.Size() == 0 {
		return NewCell(mem, codec, initial)
	}
	return LoadCell(mem, codec)
}

func (c *Cell[T]) Get() T {
	return c.value
}

// Set stores v and returns the previous value.
func (c *Cell[T]) Set(v T) (T, error) {
	prev := c.value

	data := c.codec.Encode(v)
	if uint64(len(data)) > uint64(^uint32(0)) {
		return prev, fmt.Errorf("Cell.Set: %d bytes: %w", len(data), ErrValTooLarge)
	}

	buf := make([]byte, cellHeader+len(data))
	copy(buf[0:3], cellMagic)
	buf[3] = cellVersion
	binary.LittleEndian.PutUint32(buf[4:], uint32(len(data)))
	copy(buf[cellHeader:], data)

	if err := memory.EnsureCapacity(c.mem, uint64(len(buf))); err != nil {
		return prev, fmt.Errorf("Cell.Set: %w", err)
	}
	c.mem.Write(0, buf)

	c.value = v
	return prev, nil
}
