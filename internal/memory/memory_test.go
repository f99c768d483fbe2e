package memory_test

import (
	"errors"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.stablemem/internal/memory"
)

// Interface compliance
var (
	_ memory.Memory = (*memory.VectorMemory)(nil)
	_ memory.Memory = (*memory.FileMemory)(nil)
	_ memory.Memory = (*memory.BadgerMemory)(nil)
	_ memory.Memory = (*memory.RestrictedMemory)(nil)
	_ memory.Memory = (*memory.LimitedMemory)(nil)
)

func providers(t *testing.T) map[string]memory.Memory {
	t.Helper()

	fm, err := memory.OpenFile(filepath.Join(t.TempDir(), "image.mem"))
	require.NoError(t, err)
	t.Cleanup(func() { fm.Close() })

	bm, err := memory.OpenBadger("")
	require.NoError(t, err)
	t.Cleanup(func() { bm.Close() })

	return map[string]memory.Memory{
		"vector": memory.NewVectorMemory(),
		"file":   fm,
		"badger": bm,
	}
}

func TestRoundTrip(t *testing.T) {
	for name, mem := range providers(t) {
		t.Run(name, func(t *testing.T) {
			prev, err := mem.Grow(3)
			require.NoError(t, err)
			require.Equal(t, uint64(0), prev)

			rng := rand.New(rand.NewSource(42))
			for i := 0; i < 50; i++ {
				n := rng.Intn(int(memory.PageSize) + 100)
				off := uint64(rng.Intn(int(3*memory.PageSize) - n))

				src := make([]byte, n)
				rng.Read(src)
				mem.Write(off, src)

				dst := make([]byte, n)
				mem.Read(off, dst)
				require.Equal(t, src, dst, "offset %d length %d", off, n)
			}
		})
	}
}

func TestGrowthMonotonic(t *testing.T) {
	for name, mem := range providers(t) {
		t.Run(name, func(t *testing.T) {
			var size uint64
			for _, n := range []uint64{0, 1, 5, 0, 2} {
				prev, err := mem.Grow(n)
				require.NoError(t, err)
				require.Equal(t, size, prev)
				require.Equal(t, size+n, mem.Size())
				size += n
			}

			before := mem.Size()
			_, err := mem.Grow(memory.MaxPages)
			require.ErrorIs(t, err, memory.ErrGrowthExhausted)
			require.Equal(t, before, mem.Size())
		})
	}
}

func TestFreshPagesAreZero(t *testing.T) {
	for name, mem := range providers(t) {
		t.Run(name, func(t *testing.T) {
			_, err := mem.Grow(2)
			require.NoError(t, err)

			buf := make([]byte, 2*memory.PageSize)
			for i := range buf {
				buf[i] = 0xAA
			}
			mem.Read(0, buf)
			require.Equal(t, make([]byte, 2*memory.PageSize), buf)
		})
	}
}

func TestOutOfBoundsPanics(t *testing.T) {
	for name, mem := range providers(t) {
		t.Run(name, func(t *testing.T) {
			_, err := mem.Grow(1)
			require.NoError(t, err)

			require.PanicsWithError(t, (&memory.BoundsError{Offset: memory.PageSize - 1, Length: 2, Size: memory.PageSize}).Error(), func() {
				mem.Read(memory.PageSize-1, make([]byte, 2))
			})
			require.Panics(t, func() {
				mem.Write(memory.PageSize, []byte{1})
			})

			// Zero-length accesses at the very end are allowed.
			mem.Read(memory.PageSize, nil)
		})
	}
}

func TestGuard(t *testing.T) {
	mem := memory.NewVectorMemory()

	run := func() (err error) {
		defer memory.Guard(&err)
		mem.Read(0, make([]byte, 1))
		return nil
	}

	err := run()
	require.ErrorIs(t, err, memory.ErrOutOfBounds)

	var be *memory.BoundsError
	require.True(t, errors.As(err, &be))
	require.Equal(t, uint64(1), be.Length)

	require.Panics(t, func() {
		var err error
		defer memory.Guard(&err)
		panic("unrelated")
	})
}

func TestVectorPageLimit(t *testing.T) {
	mem := memory.NewVectorMemory(memory.WithPageLimit(4))

	_, err := mem.Grow(4)
	require.NoError(t, err)

	_, err = mem.Grow(1)
	require.ErrorIs(t, err, memory.ErrGrowthExhausted)
	require.Equal(t, uint64(4), mem.Size())
}

func TestLimit(t *testing.T) {
	mem := memory.Limit(memory.NewVectorMemory(), 3)

	prev, err := mem.Grow(2)
	require.NoError(t, err)
	require.Equal(t, uint64(0), prev)

	_, err = mem.Grow(2)
	require.ErrorIs(t, err, memory.ErrGrowthExhausted)
	require.Equal(t, uint64(2), mem.Size())

	mem.Write(2*memory.PageSize-1, []byte{9})
}

func TestFileMemoryReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reopen.mem")

	fm, err := memory.OpenFile(path)
	require.NoError(t, err)
	_, err = fm.Grow(2)
	require.NoError(t, err)
	fm.Write(memory.PageSize-3, []byte("across"))
	require.NoError(t, fm.Close())

	fm, err = memory.OpenFile(path)
	require.NoError(t, err)
	defer fm.Close()

	require.Equal(t, uint64(2), fm.Size())
	buf := make([]byte, 6)
	fm.Read(memory.PageSize-3, buf)
	require.Equal(t, "across", string(buf))
}

func TestFileMemoryRejectsPartialPage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "partial.mem")

	fm, err := memory.OpenFile(path)
	require.NoError(t, err)
	_, err = fm.Grow(1)
	require.NoError(t, err)
	require.NoError(t, fm.Close())

	require.NoError(t, os.Truncate(path, int64(memory.PageSize)+10))

	_, err = memory.OpenFile(path)
	require.ErrorIs(t, err, memory.ErrCorruption)
}

func TestBadgerMemoryReopen(t *testing.T) {
	dir := t.TempDir()

	bm, err := memory.OpenBadger(dir)
	require.NoError(t, err)
	_, err = bm.Grow(20)
	require.NoError(t, err)

	// Crosses 19 page boundaries in one transaction.
	src := make([]byte, 18*memory.PageSize)
	for i := range src {
		src[i] = byte(i % 251)
	}
	bm.Write(100, src)
	require.NoError(t, bm.Close())

	bm, err = memory.OpenBadger(dir)
	require.NoError(t, err)
	defer bm.Close()

	require.Equal(t, uint64(20), bm.Size())
	dst := make([]byte, len(src))
	bm.Read(100, dst)
	require.Equal(t, src, dst)
}

func TestBadgerWriteIsAllOrNothing(t *testing.T) {
	bm, err := memory.OpenBadger("")
	require.NoError(t, err)
	defer bm.Close()

	const pages = 200
	_, err = bm.Grow(pages)
	require.NoError(t, err)
	bm.Write(0, []byte("keep"))

	big := make([]byte, pages*memory.PageSize)
	for i := range big {
		big[i] = 0xFF
	}

	var werr error
	func() {
		defer memory.Guard(&werr)
		bm.Write(0, big)
	}()
	require.Error(t, werr)

	var ioErr *memory.IOError
	require.True(t, errors.As(werr, &ioErr))

	got := make([]byte, 4)
	bm.Read(0, got)
	require.Equal(t, "keep", string(got))
	bm.Read((pages-1)*memory.PageSize, got)
	require.Equal(t, make([]byte, 4), got)
}
