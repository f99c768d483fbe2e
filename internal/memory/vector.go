package memory

// VectorMemory keeps all pages in a single byte slice. It is the in-process
// provider used by tests and by the "memory" backend.
type VectorMemory struct {
	buf   []byte
	limit uint64
}

type VectorOption func(*VectorMemory)

// WithPageLimit caps the number of pages the memory may grow to. It is
// mostly useful for exercising growth failures.
func WithPageLimit(pages uint64) VectorOption {
	return func(v *VectorMemory) {
		v.limit = pages
	}
}

func NewVectorMemory(opts ...VectorOption) *VectorMemory {
	v := &VectorMemory{limit: MaxPages}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

func (v *VectorMemory) Size() uint64 {
	return uint64(len(v.buf)) / PageSize
}

func (v *VectorMemory) Grow(pages uint64) (uint64, error) {
	prev := v.Size()
	if err := checkGrowth(prev, pages); err != nil {
		return 0, err
	}
	if prev+pages > v.limit {
		return 0, ErrGrowthExhausted
	}

	v.buf = append(v.buf, make([]byte, pages*PageSize)...)
	return prev, nil
}

func (v *VectorMemory) Read(offset uint64, dst []byte) {
	checkBounds(offset, len(dst), v.Size())
	copy(dst, v.buf[offset:])
}

func (v *VectorMemory) Write(offset uint64, src []byte) {
	checkBounds(offset, len(src), v.Size())
	copy(v.buf[offset:], src)
}
