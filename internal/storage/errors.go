package storage

import (
	"errors"
	"fmt"

	"go.stablemem/internal/memory"
)

var (
	// btree
	ErrCorruptTree = fmt.Errorf("btree is corrupt: %w", memory.ErrCorruption)
	ErrKeyTooLarge = errors.New("key exceeds maximum size")
	ErrValTooLarge = errors.New("value exceeds maximum size")
	// allocator
	ErrInvalidPointer = fmt.Errorf("invalid block pointer: %w", memory.ErrCorruption)
	ErrInvalidSig     = fmt.Errorf("invalid map signature: %w", memory.ErrCorruption)
	ErrCorruptFree    = fmt.Errorf("free list is corrupt: %w", memory.ErrCorruption)
	// cell
	ErrCorruptCell = fmt.Errorf("cell is corrupt: %w", memory.ErrCorruption)
	// multimap
	ErrCorruptPair = fmt.Errorf("multimap key is corrupt: %w", memory.ErrCorruption)
	// log and vec
	ErrCorruptLog = fmt.Errorf("log is corrupt: %w", memory.ErrCorruption)
	ErrCorruptVec = fmt.Errorf("vec is corrupt: %w", memory.ErrCorruption)
	ErrIndexRange = errors.New("index out of range")
	ErrElemSize   = errors.New("encoded element has the wrong size")
)
