package manager

import "go.stablemem/internal/memory"

// VirtualMemory presents one id's pages as a memory.Memory. It holds no
// copy of the table: every call translates against the manager's current
// state.
type VirtualMemory struct {
	m  *Manager
	id ID
}

var _ memory.Memory = (*VirtualMemory)(nil)

func (v *VirtualMemory) ID() ID {
	return v.id
}

func (v *VirtualMemory) Size() uint64 {
	if _, ok := v.m.live[v.id]; !ok {
		return 0
	}
	return v.m.Size(v.id)
}

func (v *VirtualMemory) Grow(pages uint64) (uint64, error) {
	return v.m.Grow(v.id, pages)
}

func (v *VirtualMemory) Read(offset uint64, dst []byte) {
	var pos uint64
	for _, s := range v.segments(offset, len(dst)) {
		v.m.phys.Read(s.Physical, dst[pos:pos+s.Length])
		pos += s.Length
	}
}

func (v *VirtualMemory) Write(offset uint64, src []byte) {
	var pos uint64
	for _, s := range v.segments(offset, len(src)) {
		v.m.phys.Write(s.Physical, src[pos:pos+s.Length])
		pos += s.Length
	}
}

func (v *VirtualMemory) segments(offset uint64, n int) []Segment {
	segs, err := v.m.Translate(v.id, offset, uint64(n))
	if err != nil {
		panic(err)
	}
	return segs
}
