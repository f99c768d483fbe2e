package manager

import (
	"bytes"
	"cmp"
	"encoding/binary"
	"fmt"
	"slices"

	"go.stablemem/internal/memory"
	"golang.org/x/crypto/blake2b"
)

// Header layout, pages [0, HeaderPages) of the physical memory:
//
//	0   magic      [4]byte "SVMT"
//	4   version    uint16
//	6   pages      uint16  reserved header pages
//	8   image id   [16]byte
//	24  count      uint32  number of entries
//	28  reserved   uint32
//	32  checksum   [32]byte blake2b-256 of [0,32) and the entries
//	64  entries    count * entrySize
//
// Entry layout:
//
//	0   id         uint8   (FreeID for released ranges)
//	1   reserved   [3]byte
//	4   logical    uint32  first page in the id's address space
//	8   physical   uint32  first physical page
//	12  count      uint32  number of pages
const (
	HeaderPages   = 2
	FormatVersion = 1

	versionOffset  = 4
	pagesOffset    = 6
	imageIDOffset  = 8
	countOffset    = 24
	checksumOffset = 32
	entriesOffset  = 64

	entrySize = 16

	headerBytes = HeaderPages * memory.PageSize

	// MaxEntries is the number of page ranges the header can record.
	MaxEntries = int((headerBytes - entriesOffset) / entrySize)
)

var magic = []byte{'S', 'V', 'M', 'T'}

// ID identifies one virtual memory.
type ID uint8

// FreeID marks page ranges released by Forget. It cannot be registered.
const FreeID ID = 0xFF

// PageRange assigns Count physical pages starting at Physical to the pages
// [Logical, Logical+Count) of a virtual memory.
type PageRange struct {
	ID       ID
	Logical  uint32
	Physical uint32
	Count    uint32
}

func byPhysical(a, b PageRange) int { return cmp.Compare(a.Physical, b.Physical) }
func byLogical(a, b PageRange) int { return cmp.Compare(a.Logical, b.Logical) }

func (r PageRange) logicalEnd() uint64 {
	return uint64(r.Logical) + uint64(r.Count)
}

func (r PageRange) physicalEnd() uint64 {
	return uint64(r.Physical) + uint64(r.Count)
}

// table is the in-memory copy of the persisted header. entries keeps the
// on-disk order; byID is derived from it and sorted by logical page.
type table struct {
	imageID [16]byte
	entries []PageRange
	byID    map[ID][]PageRange
}

func newTable(imageID [16]byte) *table {
	t := &table{imageID: imageID}
	t.index()
	return t
}

func (t *table) clone() *table {
	c := &table{
		imageID: t.imageID,
		entries: slices.Clone(t.entries),
	}
	c.index()
	return c
}

func (t *table) index() {
	t.byID = make(map[ID][]PageRange)
	for _, e := range t.entries {
		t.byID[e.ID] = append(t.byID[e.ID], e)
	}
	for id, ranges := range t.byID {
		if id == FreeID {
			slices.SortFunc(ranges, byPhysical)
		} else {
			slices.SortFunc(ranges, byLogical)
		}
	}
}

// pages returns the size of id's address space in pages.
func (t *table) pages(id ID) uint64 {
	ranges := t.byID[id]
	if len(ranges) == 0 {
		return 0
	}
	return ranges[len(ranges)-1].logicalEnd()
}

// physicalEnd returns the first physical page after every recorded range.
func (t *table) physicalEnd() uint64 {
	end := uint64(HeaderPages)
	for _, e := range t.entries {
		end = max(end, e.physicalEnd())
	}
	return end
}

// assign records count pages at physical as the next pages of id, merging
// with the id's last range when both are adjacent.
func (t *table) assign(id ID, physical, count uint32) {
	logical := uint32(t.pages(id))

	for i := range t.entries {
		e := &t.entries[i]
		if e.ID == id && e.logicalEnd() == uint64(logical) && e.physicalEnd() == uint64(physical) {
			e.Count += count
			t.index()
			return
		}
	}

	t.entries = append(t.entries, PageRange{ID: id, Logical: logical, Physical: physical, Count: count})
	t.index()
}

// takeFree removes up to want pages from the free ranges, lowest physical
// page first, and returns them as (physical, count) pairs.
func (t *table) takeFree(want uint64) []PageRange {
	var taken []PageRange

	for want > 0 {
		free := t.byID[FreeID]
		if len(free) == 0 {
			break
		}
		first := free[0]

		i := slices.IndexFunc(t.entries, func(e PageRange) bool {
			return e.ID == FreeID && e.Physical == first.Physical
		})

		n := uint32(min(uint64(first.Count), want))
		taken = append(taken, PageRange{ID: FreeID, Physical: first.Physical, Count: n})

		if n == first.Count {
			t.entries = slices.Delete(t.entries, i, i+1)
		} else {
			t.entries[i].Physical += n
			t.entries[i].Count -= n
		}
		t.index()
		want -= uint64(n)
	}

	return taken
}

// release turns every range of id into a free range and coalesces
// physically adjacent free ranges.
func (t *table) release(id ID) {
	var free []PageRange
	kept := t.entries[:0]
	for _, e := range t.entries {
		if e.ID == id || e.ID == FreeID {
			free = append(free, PageRange{ID: FreeID, Physical: e.Physical, Count: e.Count})
			continue
		}
		kept = append(kept, e)
	}

	slices.SortFunc(free, byPhysical)

	var merged []PageRange
	for _, f := range free {
		if n := len(merged); n > 0 && merged[n-1].physicalEnd() == uint64(f.Physical) {
			merged[n-1].Count += f.Count
			continue
		}
		merged = append(merged, f)
	}

	t.entries = append(kept, merged...)
	t.index()
}

// addFree records the pages [physical, physical+count) as free, merging
// with an adjacent free range when possible.
func (t *table) addFree(physical, count uint32) {
	for i := range t.entries {
		e := &t.entries[i]
		if e.ID == FreeID && e.physicalEnd() == uint64(physical) {
			e.Count += count
			t.index()
			return
		}
	}
	t.entries = append(t.entries, PageRange{ID: FreeID, Physical: physical, Count: count})
	t.index()
}

// encode returns the used prefix of the header.
func (t *table) encode() []byte {
	buf := make([]byte, entriesOffset+len(t.entries)*entrySize)

	copy(buf[0:4], magic)
	binary.LittleEndian.PutUint16(buf[versionOffset:], FormatVersion)
	binary.LittleEndian.PutUint16(buf[pagesOffset:], HeaderPages)
	copy(buf[imageIDOffset:imageIDOffset+16], t.imageID[:])
	binary.LittleEndian.PutUint32(buf[countOffset:], uint32(len(t.entries)))

	for i, e := range t.entries {
		off := entriesOffset + i*entrySize
		buf[off] = byte(e.ID)
		binary.LittleEndian.PutUint32(buf[off+4:], e.Logical)
		binary.LittleEndian.PutUint32(buf[off+8:], e.Physical)
		binary.LittleEndian.PutUint32(buf[off+12:], e.Count)
	}

	sum := checksum(buf)
	copy(buf[checksumOffset:entriesOffset], sum[:])
	return buf
}

func checksum(buf []byte) [32]byte {
	h, _ := blake2b.New256(nil)
	h.Write(buf[:checksumOffset])
	h.Write(buf[entriesOffset:])

	var sum [32]byte
	copy(sum[:], h.Sum(nil))
	return sum
}

// readTable loads and validates the header stored in mem.
func readTable(mem memory.Memory, usable uint64) (*table, error) {
	head := make([]byte, entriesOffset)
	mem.Read(0, head)

	if !bytes.Equal(head[0:4], magic) {
		return nil, fmt.Errorf("readTable: bad magic %q: %w", head[0:4], memory.ErrCorruption)
	}
	if v := binary.LittleEndian.Uint16(head[versionOffset:]); v != FormatVersion {
		return nil, fmt.Errorf("readTable: unsupported version %d: %w", v, memory.ErrCorruption)
	}
	if p := binary.LittleEndian.Uint16(head[pagesOffset:]); p != HeaderPages {
		return nil, fmt.Errorf("readTable: header spans %d pages, want %d: %w", p, HeaderPages, memory.ErrCorruption)
	}

	count := int(binary.LittleEndian.Uint32(head[countOffset:]))
	if count > MaxEntries {
		return nil, fmt.Errorf("readTable: %d entries exceed capacity %d: %w", count, MaxEntries, memory.ErrCorruption)
	}

	buf := make([]byte, entriesOffset+count*entrySize)
	mem.Read(0, buf)

	want := checksum(buf)
	if !bytes.Equal(buf[checksumOffset:entriesOffset], want[:]) {
		return nil, fmt.Errorf("readTable: checksum mismatch: %w", memory.ErrCorruption)
	}

	t := &table{entries: make([]PageRange, count)}
	copy(t.imageID[:], buf[imageIDOffset:imageIDOffset+16])
	for i := range t.entries {
		off := entriesOffset + i*entrySize
		t.entries[i] = PageRange{
			ID:       ID(buf[off]),
			Logical:  binary.LittleEndian.Uint32(buf[off+4:]),
			Physical: binary.LittleEndian.Uint32(buf[off+8:]),
			Count:    binary.LittleEndian.Uint32(buf[off+12:]),
		}
	}
	t.index()

	if err := t.validate(usable); err != nil {
		return nil, err
	}
	return t, nil
}

// validate checks that ranges are non-empty, lie inside the usable pages,
// never overlap, and that each id's logical pages are contiguous from 0.
func (t *table) validate(usable uint64) error {
	byPhys := slices.Clone(t.entries)
	slices.SortFunc(byPhys, byPhysical)

	prevEnd := uint64(HeaderPages)
	for _, e := range byPhys {
		if e.Count == 0 {
			return fmt.Errorf("validate: empty range at page %d: %w", e.Physical, memory.ErrCorruption)
		}
		if uint64(e.Physical) < prevEnd {
			return fmt.Errorf("validate: range at page %d overlaps: %w", e.Physical, memory.ErrCorruption)
		}
		if uint64(e.Physical) >= usable || e.physicalEnd() > usable {
			return fmt.Errorf("validate: range [%d, %d) beyond %d pages: %w", e.Physical, e.physicalEnd(), usable, memory.ErrCorruption)
		}
		prevEnd = e.physicalEnd()
	}

	for id, ranges := range t.byID {
		if id == FreeID {
			continue
		}
		var next uint64
		for _, r := range ranges {
			if uint64(r.Logical) != next {
				return fmt.Errorf("validate: id %d has a gap at logical page %d: %w", id, next, memory.ErrCorruption)
			}
			next = r.logicalEnd()
		}
	}
	return nil
}
