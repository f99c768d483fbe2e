package manager

import (
	"sort"

	"go.stablemem/internal/memory"
)

// Segment is a run of bytes at a physical offset.
type Segment struct {
	Physical uint64
	Length   uint64
}

// Translate maps length bytes at offset in id's address space to physical
// segments. Segments that are physically contiguous are merged. An access
// beyond the id's size fails with a *memory.BoundsError.
func (m *Manager) Translate(id ID, offset, length uint64) ([]Segment, error) {
	var ranges []PageRange
	if id != FreeID {
		ranges = m.table.byID[id]
	}

	size := m.Size(id) * memory.PageSize
	end := offset + length
	if end < offset || end > size {
		return nil, &memory.BoundsError{Offset: offset, Length: length, Size: size}
	}
	if length == 0 {
		return nil, nil
	}

	page := offset / memory.PageSize
	i := sort.Search(len(ranges), func(i int) bool {
		return ranges[i].logicalEnd() > page
	})

	var segs []Segment
	for pos := offset; pos < end; i++ {
		r := ranges[i]
		rangeStart := uint64(r.Logical) * memory.PageSize
		rangeEnd := r.logicalEnd() * memory.PageSize

		n := min(end, rangeEnd) - pos
		phys := uint64(r.Physical)*memory.PageSize + (pos - rangeStart)

		if k := len(segs); k > 0 && segs[k-1].Physical+segs[k-1].Length == phys {
			segs[k-1].Length += n
		} else {
			segs = append(segs, Segment{Physical: phys, Length: n})
		}
		pos += n
	}
	return segs, nil
}
