package memory

import "fmt"

// LimitedMemory refuses to grow its underlying memory past a page count.
type LimitedMemory struct {
	Memory
	pages uint64
}

// Limit caps mem at pages pages.
func Limit(mem Memory, pages uint64) *LimitedMemory {
	return &LimitedMemory{Memory: mem, pages: pages}
}

func (l *LimitedMemory) Grow(pages uint64) (uint64, error) {
	if size := l.Size(); size+pages > l.pages {
		return 0, fmt.Errorf("grow %d pages at size %d beyond limit %d: %w", pages, size, l.pages, ErrGrowthExhausted)
	}
	return l.Memory.Grow(pages)
}
