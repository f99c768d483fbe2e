// Package memory defines the page-granular Memory capability that every
// layer of the engine is built on, together with its providers.
//
// A Memory starts with zero usable pages and only ever grows. Reads and
// writes must stay within Size()*PageSize bytes; an access outside that
// range is a programming error and panics with a *BoundsError.
package memory

import "fmt"

const (
	// PageSize is the size of one page in bytes (64 KiB).
	PageSize uint64 = 65536

	// MaxPages is the hard ceiling on the number of pages (8 GiB).
	MaxPages uint64 = 131072
)

// Memory is a growable, page-addressable byte space.
type Memory interface {
	// Size returns the number of usable pages.
	Size() uint64

	// Grow converts pages more pages to usable and returns the previous
	// size. It fails with ErrGrowthExhausted without changing Size.
	Grow(pages uint64) (uint64, error)

	// Read fills dst with the bytes starting at offset.
	Read(offset uint64, dst []byte)

	// Write copies src to the bytes starting at offset.
	Write(offset uint64, src []byte)
}

// Bytes returns the usable size of mem in bytes.
func Bytes(mem Memory) uint64 {
	return mem.Size() * PageSize
}

// PagesFor returns the number of pages needed to hold n bytes.
func PagesFor(n uint64) uint64 {
	return (n + PageSize - 1) / PageSize
}

// EnsureCapacity grows mem until it holds at least n bytes.
func EnsureCapacity(mem Memory, n uint64) error {
	have := Bytes(mem)
	if n <= have {
		return nil
	}

	need := PagesFor(n) - mem.Size()
	if _, err := mem.Grow(need); err != nil {
		return fmt.Errorf("EnsureCapacity(%d): %w", n, err)
	}
	return nil
}

func checkBounds(offset uint64, n int, size uint64) {
	end := offset + uint64(n)
	if end < offset || end > size*PageSize {
		panic(&BoundsError{Offset: offset, Length: uint64(n), Size: size * PageSize})
	}
}

func checkGrowth(size, pages uint64) error {
	if pages > MaxPages || size+pages > MaxPages {
		return fmt.Errorf("grow %d pages at size %d: %w", pages, size, ErrGrowthExhausted)
	}
	return nil
}
