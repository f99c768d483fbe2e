package memory

import "fmt"

// Unbounded marks the end of a trailing window.
const Unbounded = MaxPages

// RestrictedMemory exposes the pages [start, end) of an underlying Memory
// as a Memory of its own. Offsets are translated by plain addition.
//
// Only a trailing window (end == Unbounded) can grow, since growing any
// earlier window would shift the pages of every window after it.
type RestrictedMemory struct {
	mem   Memory
	start uint64
	end   uint64
}

// Restrict returns the window [start, end) of mem.
func Restrict(mem Memory, start, end uint64) *RestrictedMemory {
	if start > end || end > MaxPages {
		panic(fmt.Sprintf("Restrict: invalid page range [%d, %d)", start, end))
	}

	return &RestrictedMemory{
		mem:   mem,
		start: start,
		end:   end,
	}
}

// Partition splits mem into consecutive fixed windows of the given page
// sizes followed by one trailing window that owns every remaining page.
// The underlying memory is grown so that all fixed windows are fully usable.
func Partition(mem Memory, sizes ...uint64) ([]*RestrictedMemory, error) {
	views := make([]*RestrictedMemory, 0, len(sizes)+1)

	var start uint64
	for _, n := range sizes {
		if start+n > MaxPages {
			return nil, fmt.Errorf("Partition: windows exceed %d pages: %w", MaxPages, ErrGrowthExhausted)
		}
		views = append(views, Restrict(mem, start, start+n))
		start += n
	}

	if have := mem.Size(); have < start {
		if _, err := mem.Grow(start - have); err != nil {
			return nil, fmt.Errorf("Partition: %w", err)
		}
	}

	views = append(views, Restrict(mem, start, Unbounded))
	return views, nil
}

func (r *RestrictedMemory) Start() uint64 {
	return r.start
}

func (r *RestrictedMemory) End() uint64 {
	return r.end
}

func (r *RestrictedMemory) Trailing() bool {
	return r.end == Unbounded
}

func (r *RestrictedMemory) Size() uint64 {
	base := r.mem.Size()
	if base <= r.start {
		return 0
	}
	return min(base, r.end) - r.start
}

func (r *RestrictedMemory) Grow(pages uint64) (uint64, error) {
	size := r.Size()
	if pages == 0 {
		return size, nil
	}
	if !r.Trailing() {
		return 0, fmt.Errorf("grow window [%d, %d): %w", r.start, r.end, ErrNotGrowable)
	}

	// A trailing window that starts past the end of the underlying memory
	// first has to pull the gap in.
	base := r.mem.Size()
	need := pages
	if base < r.start {
		need += r.start - base
	}

	if _, err := r.mem.Grow(need); err != nil {
		return 0, err
	}
	return size, nil
}

func (r *RestrictedMemory) Read(offset uint64, dst []byte) {
	checkBounds(offset, len(dst), r.Size())
	r.mem.Read(r.start*PageSize+offset, dst)
}

func (r *RestrictedMemory) Write(offset uint64, src []byte) {
	checkBounds(offset, len(src), r.Size())
	r.mem.Write(r.start*PageSize+offset, src)
}
