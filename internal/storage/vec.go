package storage

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"iter"

	"go.stablemem/internal/memory"
)

// Vec layout at offset 0 of its memory:
//
//	0   magic     [3]byte "SVC"
//	3   version   uint8
//	4   elemSize  uint32
//	8   length    uint64
//	16  elements, elemSize bytes each
const (
	vecHeader  = 16
	vecVersion = 1
)

var vecMagic = []byte("SVC")

// Vec is a growable array of fixed-size elements. The codec must encode
// every element to exactly the element size.
type Vec[T any] struct {
	mem      memory.Memory
	codec    Codec[T]
	elemSize uint64
	length   uint64
}

func NewVec[T any](mem memory.Memory, codec Codec[T], elemSize uint32) (*Vec[T], error) {
	if elemSize == 0 {
		return nil, fmt.Errorf("NewVec: %w", ErrElemSize)
	}
	if err := memory.EnsureCapacity(mem, vecHeader); err != nil {
		return nil, fmt.Errorf("NewVec: %w", err)
	}

	v := &Vec[T]{mem: mem, codec: codec, elemSize: uint64(elemSize)}
	v.writeLen(0)
	return v, nil
}

func LoadVec[T any](mem memory.Memory, codec Codec[T]) (*Vec[T], error) {
	if memory.Bytes(mem) < vecHeader {
		return nil, fmt.Errorf("LoadVec: %w", ErrCorruptVec)
	}

	hdr := make([]byte, vecHeader)
	mem.Read(0, hdr)
	if !bytes.Equal(hdr[0:3], vecMagic) || hdr[3] != vecVersion {
		return nil, fmt.Errorf("LoadVec: header %q: %w", hdr[0:4], ErrCorruptVec)
	}

	v := &Vec[T]{
		mem:      mem,
		codec:    codec,
		elemSize: uint64(binary.LittleEndian.Uint32(hdr[4:])),
		length:   binary.LittleEndian.Uint64(hdr[8:]),
	}
	if v.elemSize == 0 || v.length > (memory.Bytes(mem)-vecHeader)/v.elemSize {
		return nil, fmt.Errorf("LoadVec: %d elements of %d bytes: %w", v.length, v.elemSize, ErrCorruptVec)
	}
	return v, nil
}

// OpenVec loads the vec in mem, or formats an empty one when mem is empty.
// A stored vec with another element size is an error.
func OpenVec[T any](mem memory.Memory, codec Codec[T], elemSize uint32) (*Vec[T], error) {
	if mem.Size() == 0 {
		return NewVec(mem, codec, elemSize)
	}

	v, err := LoadVec(mem, codec)
	if err != nil {
		return nil, err
	}
	if v.elemSize != uint64(elemSize) {
		return nil, fmt.Errorf("OpenVec: stored element size %d, want %d: %w", v.elemSize, elemSize, ErrElemSize)
	}
	return v, nil
}

func (v *Vec[T]) writeLen(n uint64) {
	hdr := make([]byte, vecHeader)
	copy(hdr, vecMagic)
	hdr[3] = vecVersion
	binary.LittleEndian.PutUint32(hdr[4:], uint32(v.elemSize))
	binary.LittleEndian.PutUint64(hdr[8:], n)
	v.mem.Write(0, hdr)
	v.length = n
}

func (v *Vec[T]) offset(i uint64) uint64 {
	return vecHeader + i*v.elemSize
}

func (v *Vec[T]) encode(x T) ([]byte, error) {
	b := v.codec.Encode(x)
	if uint64(len(b)) != v.elemSize {
		return nil, fmt.Errorf("%d bytes, want %d: %w", len(b), v.elemSize, ErrElemSize)
	}
	return b, nil
}

func (v *Vec[T]) Len() uint64 {
	return v.length
}

func (v *Vec[T]) IsEmpty() bool {
	return v.length == 0
}

func (v *Vec[T]) Push(x T) error {
	b, err := v.encode(x)
	if err != nil {
		return fmt.Errorf("Vec.Push: %w", err)
	}
	if err := memory.EnsureCapacity(v.mem, v.offset(v.length+1)); err != nil {
		return fmt.Errorf("Vec.Push: %w", err)
	}

	v.mem.Write(v.offset(v.length), b)
	v.writeLen(v.length + 1)
	return nil
}

// Pop removes and returns the last element.
func (v *Vec[T]) Pop() (T, bool, error) {
	var zero T
	if v.length == 0 {
		return zero, false, nil
	}

	x, _, err := v.Get(v.length - 1)
	if err != nil {
		return zero, false, err
	}
	v.writeLen(v.length - 1)
	return x, true, nil
}

func (v *Vec[T]) Get(i uint64) (T, bool, error) {
	var zero T
	if i >= v.length {
		return zero, false, nil
	}

	buf := make([]byte, v.elemSize)
	v.mem.Read(v.offset(i), buf)
	x, err := v.codec.Decode(buf)
	if err != nil {
		return zero, false, err
	}
	return x, true, nil
}

func (v *Vec[T]) Set(i uint64, x T) error {
	if i >= v.length {
		return fmt.Errorf("Vec.Set(%d) with length %d: %w", i, v.length, ErrIndexRange)
	}
	b, err := v.encode(x)
	if err != nil {
		return fmt.Errorf("Vec.Set: %w", err)
	}
	v.mem.Write(v.offset(i), b)
	return nil
}

// Clear drops every element. The memory keeps its pages.
func (v *Vec[T]) Clear() {
	v.writeLen(0)
}

func (v *Vec[T]) All() iter.Seq2[uint64, T] {
	return func(yield func(uint64, T) bool) {
		for i := uint64(0); i < v.length; i++ {
			x, _, err := v.Get(i)
			if err != nil {
				return
			}
			if !yield(i, x) {
				return
			}
		}
	}
}
