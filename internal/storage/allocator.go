package storage

import (
	"encoding/binary"
	"fmt"

	"go.stablemem/internal/memory"
)

// Block layout:
//
//	0   class     uint8   size class, the block spans 64<<class bytes
//	1   reserved  [3]byte
//	4   freeNext  uint64  next block of the same class while free
//	12  payload
//
// Allocation never writes freeNext and freeing writes nothing else, so a
// block's payload survives until it is handed out again.
const (
	numClasses  = 11
	minBlock    = 64
	blockHeader = 12

	maxPayload = minBlock<<(numClasses-1) - blockHeader
)

func classSize(c uint8) uint64 {
	return uint64(minBlock) << c
}

// classFor returns the smallest class whose blocks hold n payload bytes.
func classFor(n int) (uint8, bool) {
	need := uint64(n) + blockHeader
	for c := uint8(0); c < numClasses; c++ {
		if classSize(c) >= need {
			return c, true
		}
	}
	return 0, false
}

// alloc hands out a block for n payload bytes: the head of the smallest
// non-empty free list that fits, otherwise fresh space at the bump offset.
func (bt *BTree) alloc(n int) (uint64, uint8, error) {
	want, ok := classFor(n)
	if !ok {
		return 0, 0, fmt.Errorf("alloc(%d): payload exceeds %d bytes: %w", n, maxPayload, ErrValTooLarge)
	}

	for c := want; c < numClasses; c++ {
		off := bt.meta.free[c]
		if off == 0 {
			continue
		}

		cls, next, err := bt.readBlockHeader(off)
		if err != nil {
			return 0, 0, err
		}
		if cls != c || (next != 0 && !bt.meta.inBounds(next)) {
			bt.log.Errorf("alloc: block %d on free list %d has class %d next %d", off, c, cls, next)
			return 0, 0, fmt.Errorf("alloc: block %d: %w", off, ErrCorruptFree)
		}

		bt.meta.free[c] = next
		bt.tx.popped = append(bt.tx.popped, off)
		bt.tx.fresh[off] = c
		return off, c, nil
	}

	off := bt.meta.bump
	end := off + classSize(want)
	if err := memory.EnsureCapacity(bt.mem, end); err != nil {
		return 0, 0, fmt.Errorf("alloc(%d): %w", n, err)
	}

	var hdr [4]byte
	hdr[0] = want
	bt.mem.Write(off, hdr[:])

	bt.meta.bump = end
	bt.tx.bumped[off] = struct{}{}
	bt.tx.fresh[off] = want
	return off, want, nil
}

// release pushes the block at off onto its class free list.
func (bt *BTree) release(off uint64) error {
	cls, _, err := bt.readBlockHeader(off)
	if err != nil {
		return err
	}

	var next [8]byte
	binary.LittleEndian.PutUint64(next[:], bt.meta.free[cls])
	bt.mem.Write(off+4, next[:])

	bt.meta.free[cls] = off
	return nil
}

func (bt *BTree) readBlockHeader(off uint64) (uint8, uint64, error) {
	if !bt.meta.inBounds(off) {
		return 0, 0, fmt.Errorf("block %d beyond %d: %w", off, bt.meta.bump, ErrInvalidPointer)
	}

	var hdr [blockHeader]byte
	bt.mem.Read(off, hdr[:])

	cls := hdr[0]
	if cls >= numClasses || off+classSize(cls) > bt.meta.bump {
		return 0, 0, fmt.Errorf("block %d class %d: %w", off, cls, ErrInvalidPointer)
	}
	return cls, binary.LittleEndian.Uint64(hdr[4:]), nil
}

// readPayload returns the full payload area of the block at off.
func (bt *BTree) readPayload(off uint64) ([]byte, error) {
	cls, _, err := bt.readBlockHeader(off)
	if err != nil {
		return nil, err
	}

	buf := make([]byte, classSize(cls)-blockHeader)
	bt.mem.Read(off+blockHeader, buf)
	return buf, nil
}

func (bt *BTree) writePayload(off uint64, buf []byte) {
	bt.mem.Write(off+blockHeader, buf)
}
