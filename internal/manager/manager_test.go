package manager

import (
	"bytes"
	"errors"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.stablemem/internal/memory"
)

const ps = memory.PageSize

func newManager(t *testing.T, mem memory.Memory) *Manager {
	t.Helper()
	m, err := New(mem)
	require.NoError(t, err)
	return m
}

func TestFormatReservesHeader(t *testing.T) {
	mem := memory.NewVectorMemory()
	m := newManager(t, mem)

	require.Equal(t, uint64(HeaderPages), mem.Size())
	require.NotEqual(t, uuid.Nil, m.ImageID())
	require.Empty(t, m.Table())
}

func TestFirstGrowAndRoundTrip(t *testing.T) {
	mem := memory.NewVectorMemory()
	m := newManager(t, mem)

	vm, err := m.Register(1)
	require.NoError(t, err)

	prev, err := vm.Grow(2)
	require.NoError(t, err)
	require.Equal(t, uint64(0), prev)
	require.Equal(t, uint64(2), vm.Size())
	require.Equal(t, []PageRange{{ID: 1, Logical: 0, Physical: 2, Count: 2}}, m.Ranges(1))

	src := bytes.Repeat([]byte{0xAB}, 100)
	vm.Write(0, src)

	dst := make([]byte, 100)
	vm.Read(0, dst)
	require.Equal(t, src, dst)

	// The bytes live at physical page 2.
	mem.Read(2*ps, dst)
	require.Equal(t, src, dst)
}

func TestRegisterErrors(t *testing.T) {
	m := newManager(t, memory.NewVectorMemory())

	_, err := m.Register(FreeID)
	require.ErrorIs(t, err, ErrInvalidID)

	_, err = m.Register(3)
	require.NoError(t, err)
	_, err = m.Register(3)
	require.ErrorIs(t, err, ErrDuplicateID)

	_, err = m.Lookup(4)
	require.ErrorIs(t, err, ErrUnknownID)

	_, err = m.Grow(4, 1)
	require.ErrorIs(t, err, ErrUnknownID)

	require.ErrorIs(t, m.Forget(4), ErrUnknownID)

	vm, err := m.Acquire(4)
	require.NoError(t, err)
	require.Equal(t, ID(4), vm.ID())
	require.Equal(t, []ID{3, 4}, m.Registered())
}

func TestIsolation(t *testing.T) {
	m := newManager(t, memory.NewVectorMemory())

	a, err := m.Register(0)
	require.NoError(t, err)
	b, err := m.Register(1)
	require.NoError(t, err)

	// Interleaved growth fragments both ids.
	for i := 0; i < 3; i++ {
		_, err = a.Grow(1)
		require.NoError(t, err)
		_, err = b.Grow(1)
		require.NoError(t, err)
	}
	require.Len(t, m.Ranges(0), 3)
	require.Len(t, m.Ranges(1), 3)

	pa := bytes.Repeat([]byte{'a'}, int(3*ps))
	pb := bytes.Repeat([]byte{'b'}, int(3*ps))
	a.Write(0, pa)
	b.Write(0, pb)

	got := make([]byte, 3*ps)
	a.Read(0, got)
	require.Equal(t, pa, got)
	b.Read(0, got)
	require.Equal(t, pb, got)
}

func TestTranslateSplitsAndCoalesces(t *testing.T) {
	m := newManager(t, memory.NewVectorMemory())
	_, err := m.Register(0)
	require.NoError(t, err)
	_, err = m.Register(1)
	require.NoError(t, err)

	// id 0: pages 2,3 (adjacent, merged), then 5 after id 1 takes 4.
	_, err = m.Grow(0, 1)
	require.NoError(t, err)
	_, err = m.Grow(0, 1)
	require.NoError(t, err)
	_, err = m.Grow(1, 1)
	require.NoError(t, err)
	_, err = m.Grow(0, 1)
	require.NoError(t, err)

	require.Equal(t, []PageRange{
		{ID: 0, Logical: 0, Physical: 2, Count: 2},
		{ID: 0, Logical: 2, Physical: 5, Count: 1},
	}, m.Ranges(0))

	segs, err := m.Translate(0, ps-10, 20)
	require.NoError(t, err)
	require.Equal(t, []Segment{{Physical: 3*ps - 10, Length: 20}}, segs)

	segs, err = m.Translate(0, 2*ps-10, 20)
	require.NoError(t, err)
	require.Equal(t, []Segment{
		{Physical: 4*ps - 10, Length: 10},
		{Physical: 5 * ps, Length: 10},
	}, segs)

	_, err = m.Translate(0, 3*ps-5, 10)
	var be *memory.BoundsError
	require.ErrorAs(t, err, &be)
	require.ErrorIs(t, err, memory.ErrOutOfBounds)
}

func TestOutOfBoundsPanics(t *testing.T) {
	m := newManager(t, memory.NewVectorMemory())
	vm, err := m.Register(7)
	require.NoError(t, err)

	require.Panics(t, func() { vm.Read(0, make([]byte, 1)) })

	_, err = vm.Grow(1)
	require.NoError(t, err)

	require.NotPanics(t, func() { vm.Write(ps-1, []byte{1}) })
	require.Panics(t, func() { vm.Write(ps-1, []byte{1, 2}) })
}

func TestReload(t *testing.T) {
	mem := memory.NewVectorMemory()
	m := newManager(t, mem)

	a, _ := m.Register(0)
	b, _ := m.Register(9)
	_, err := a.Grow(2)
	require.NoError(t, err)
	_, err = b.Grow(1)
	require.NoError(t, err)
	_, err = a.Grow(1)
	require.NoError(t, err)

	a.Write(2*ps+7, []byte("hello"))
	b.Write(0, []byte("world"))

	again := newManager(t, mem)
	require.Equal(t, m.ImageID(), again.ImageID())
	require.Equal(t, m.Table(), again.Table())
	require.Equal(t, []ID{0, 9}, again.Registered())

	ra, err := again.Lookup(0)
	require.NoError(t, err)
	require.Equal(t, uint64(3), ra.Size())

	got := make([]byte, 5)
	ra.Read(2*ps+7, got)
	require.Equal(t, "hello", string(got))

	rb, err := again.Lookup(9)
	require.NoError(t, err)
	rb.Read(0, got)
	require.Equal(t, "world", string(got))
}

func TestImageIDSurvivesReload(t *testing.T) {
	mem := memory.NewVectorMemory()
	id := uuid.MustParse("6f1c2b9e-4d3a-4e1f-9a55-0c8d7e2f1b34")

	m, err := New(mem, WithImageID(id))
	require.NoError(t, err)
	require.Equal(t, id, m.ImageID())
	require.Same(t, mem, m.Physical())

	vm, err := m.Register(1)
	require.NoError(t, err)
	_, err = vm.Grow(2)
	require.NoError(t, err)
	vm.Write(0, []byte("kept"))

	// The option only applies when formatting.
	again, err := New(mem, WithImageID(uuid.New()))
	require.NoError(t, err)
	require.Equal(t, id, again.ImageID())
	require.Equal(t, []PageRange{{ID: 1, Logical: 0, Physical: 2, Count: 2}}, again.Ranges(1))

	got := make([]byte, 4)
	rv, err := again.Lookup(1)
	require.NoError(t, err)
	rv.Read(0, got)
	require.Equal(t, "kept", string(got))
}

func TestReloadFileBacked(t *testing.T) {
	path := filepath.Join(t.TempDir(), "image.mem")

	fm, err := memory.OpenFile(path)
	require.NoError(t, err)
	m := newManager(t, fm)
	vm, _ := m.Register(2)
	_, err = vm.Grow(1)
	require.NoError(t, err)
	vm.Write(10, []byte("persisted"))
	require.NoError(t, fm.Close())

	fm, err = memory.OpenFile(path)
	require.NoError(t, err)
	defer fm.Close()

	m = newManager(t, fm)
	vm, err = m.Lookup(2)
	require.NoError(t, err)

	got := make([]byte, 9)
	vm.Read(10, got)
	require.Equal(t, "persisted", string(got))
}

func TestCorruptionDetected(t *testing.T) {
	build := func() *memory.VectorMemory {
		mem := memory.NewVectorMemory()
		m := newManager(t, mem)
		vm, _ := m.Register(1)
		_, err := vm.Grow(2)
		require.NoError(t, err)
		return mem
	}

	cases := map[string]func(mem *memory.VectorMemory){
		"magic":   func(mem *memory.VectorMemory) { mem.Write(0, []byte("XXXX")) },
		"version": func(mem *memory.VectorMemory) { mem.Write(versionOffset, []byte{9, 0}) },
		"checksum": func(mem *memory.VectorMemory) {
			b := make([]byte, 1)
			mem.Read(checksumOffset, b)
			mem.Write(checksumOffset, []byte{^b[0]})
		},
		"entry": func(mem *memory.VectorMemory) { mem.Write(entriesOffset+8, []byte{0x7F}) },
		"count": func(mem *memory.VectorMemory) { mem.Write(countOffset, []byte{0xFF, 0xFF, 0, 0}) },
	}

	for name, corrupt := range cases {
		t.Run(name, func(t *testing.T) {
			mem := build()
			corrupt(mem)

			_, err := New(mem)
			require.ErrorIs(t, err, memory.ErrCorruption)
		})
	}
}

func TestValidateRejectsBadLayout(t *testing.T) {
	cases := map[string][]PageRange{
		"overlap": {
			{ID: 0, Logical: 0, Physical: 2, Count: 2},
			{ID: 1, Logical: 0, Physical: 3, Count: 1},
		},
		"header": {
			{ID: 0, Logical: 0, Physical: 1, Count: 1},
		},
		"gap": {
			{ID: 0, Logical: 1, Physical: 2, Count: 1},
		},
		"beyond": {
			{ID: 0, Logical: 0, Physical: 2, Count: 100},
		},
		"empty": {
			{ID: 0, Logical: 0, Physical: 2, Count: 0},
		},
		"start beyond": {
			{ID: 0, Logical: 0, Physical: 6, Count: 1},
		},
		"end wraps": {
			{ID: 0, Logical: 0, Physical: 0xFFFFFFF0, Count: 0x20},
		},
	}

	for name, entries := range cases {
		t.Run(name, func(t *testing.T) {
			mem := memory.NewVectorMemory()
			_, err := mem.Grow(6)
			require.NoError(t, err)

			tbl := &table{entries: entries}
			tbl.index()
			mem.Write(0, tbl.encode())

			_, err = New(mem)
			require.ErrorIs(t, err, memory.ErrCorruption)
		})
	}
}

func TestForgetReusesPages(t *testing.T) {
	mem := memory.NewVectorMemory()
	m := newManager(t, mem)

	a, _ := m.Register(1)
	b, _ := m.Register(2)
	_, err := a.Grow(3)
	require.NoError(t, err)
	_, err = b.Grow(1)
	require.NoError(t, err)
	a.Write(0, []byte("stale"))

	require.NoError(t, m.Forget(1))
	require.Equal(t, uint64(0), a.Size())
	require.Equal(t, []PageRange{{ID: FreeID, Physical: 2, Count: 3}}, m.Ranges(FreeID))

	_, err = m.Lookup(1)
	require.ErrorIs(t, err, ErrUnknownID)

	c, _ := m.Register(3)
	_, err = c.Grow(2)
	require.NoError(t, err)

	require.Equal(t, uint64(6), mem.Size(), "free pages reused before growing")
	require.Equal(t, []PageRange{{ID: 3, Logical: 0, Physical: 2, Count: 2}}, m.Ranges(3))
	require.Equal(t, []PageRange{{ID: FreeID, Physical: 4, Count: 1}}, m.Ranges(FreeID))

	got := make([]byte, 5)
	c.Read(0, got)
	require.Equal(t, make([]byte, 5), got, "reused pages are zeroed")

	// Reuse spills into fresh pages once the free ranges run out.
	_, err = c.Grow(2)
	require.NoError(t, err)
	require.Equal(t, uint64(7), mem.Size())
	require.Empty(t, m.Ranges(FreeID))
	require.Equal(t, uint64(4), c.Size())

	// A forgotten id can be registered again from scratch.
	again, err := m.Register(1)
	require.NoError(t, err)
	require.Equal(t, uint64(0), again.Size())

	reloaded := newManager(t, mem)
	require.Equal(t, m.Table(), reloaded.Table())
}

func TestForgetCoalescesFreeRanges(t *testing.T) {
	m := newManager(t, memory.NewVectorMemory())
	for id := ID(0); id < 3; id++ {
		_, err := m.Register(id)
		require.NoError(t, err)
		_, err = m.Grow(id, 1)
		require.NoError(t, err)
	}

	require.NoError(t, m.Forget(0))
	require.NoError(t, m.Forget(2))
	require.Len(t, m.Ranges(FreeID), 2)

	require.NoError(t, m.Forget(1))
	require.Equal(t, []PageRange{{ID: FreeID, Physical: 2, Count: 3}}, m.Ranges(FreeID))
}

func TestUnrecordedPagesBecomeFree(t *testing.T) {
	mem := memory.NewVectorMemory()
	m := newManager(t, mem)
	vm, _ := m.Register(0)
	_, err := vm.Grow(1)
	require.NoError(t, err)

	// Growth that never reached the table, as after a crash.
	_, err = mem.Grow(2)
	require.NoError(t, err)

	m = newManager(t, mem)
	require.Equal(t, []PageRange{{ID: FreeID, Physical: 3, Count: 2}}, m.Ranges(FreeID))

	_, err = m.Grow(0, 2)
	require.NoError(t, err)
	require.Equal(t, uint64(5), mem.Size())
	require.Equal(t, []PageRange{{ID: 0, Logical: 0, Physical: 2, Count: 3}}, m.Ranges(0))
}

func TestGrowFailureLeavesTableUnchanged(t *testing.T) {
	mem := memory.NewVectorMemory(memory.WithPageLimit(4))
	m := newManager(t, mem)
	vm, _ := m.Register(0)

	_, err := vm.Grow(1)
	require.NoError(t, err)
	before := m.Table()

	_, err = vm.Grow(2)
	require.ErrorIs(t, err, memory.ErrGrowthExhausted)
	require.Equal(t, before, m.Table())
	require.Equal(t, uint64(1), vm.Size())
	require.Equal(t, uint64(3), mem.Size())

	reloaded := newManager(t, mem)
	require.Equal(t, before, reloaded.Table())
}

func TestTableFull(t *testing.T) {
	mem := memory.NewVectorMemory()
	m := newManager(t, mem)

	// Fill the table with single-page ranges alternating between two ids.
	next := newTable(m.table.imageID)
	for i := 0; i < MaxEntries; i++ {
		next.entries = append(next.entries, PageRange{
			ID:       ID(i % 2),
			Logical:  uint32(i / 2),
			Physical: uint32(HeaderPages + i),
			Count:    1,
		})
	}
	next.index()
	m.table = next
	m.live[0] = &VirtualMemory{m: m, id: 0}
	m.live[1] = &VirtualMemory{m: m, id: 1}

	vm, err := m.Register(2)
	require.NoError(t, err)

	_, err = vm.Grow(1)
	require.ErrorIs(t, err, ErrTableFull)
	require.True(t, errors.Is(err, memory.ErrGrowthExhausted))
	require.Equal(t, uint64(HeaderPages), mem.Size())
}
