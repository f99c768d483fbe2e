package memory

import (
	"errors"
	"fmt"
)

var (
	ErrOutOfBounds     = errors.New("memory access out of bounds")
	ErrGrowthExhausted = errors.New("memory cannot grow any further")
	ErrNotGrowable     = errors.New("memory region is not growable")
	ErrCorruption      = errors.New("memory layout is corrupt")
	ErrClosed          = errors.New("memory is closed")
)

// BoundsError is the panic value raised by an access outside the usable
// size of a Memory.
type BoundsError struct {
	Offset uint64
	Length uint64
	Size   uint64
}

func (e *BoundsError) Error() string {
	return fmt.Sprintf("access [%d, %d) beyond %d bytes: %v", e.Offset, e.Offset+e.Length, e.Size, ErrOutOfBounds)
}

func (e *BoundsError) Unwrap() error {
	return ErrOutOfBounds
}

// IOError is the panic value raised when a provider cannot complete a read
// or write against its backing store.
type IOError struct {
	Op  string
	Err error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *IOError) Unwrap() error {
	return e.Err
}

// Guard converts a trap raised by a Memory into an error. It must be
// deferred directly:
//
//	defer memory.Guard(&err)
//
// Any other panic is re-raised.
func Guard(err *error) {
	r := recover()
	if r == nil {
		return
	}

	switch e := r.(type) {
	case *BoundsError:
		*err = e
	case *IOError:
		*err = e
	default:
		panic(r)
	}
}
