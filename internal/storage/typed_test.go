package storage_test

import (
	"slices"
	"testing"

	"github.com/stretchr/testify/require"
	"go.stablemem/internal/memory"
	"go.stablemem/internal/storage"
)

func TestTypedMapOrdersNumerically(t *testing.T) {
	bt, _ := newTree(t)
	m := storage.NewTypedMap[uint64, string](bt, storage.Uint64Codec{}, storage.StringCodec{})

	for _, k := range []uint64{5, 3, 9, 1, 256, 1 << 40} {
		_, replaced, err := m.Insert(k, "v")
		require.NoError(t, err)
		require.False(t, replaced)
	}

	var keys []uint64
	for k := range m.All(nil, nil) {
		keys = append(keys, k)
	}
	require.Equal(t, []uint64{1, 3, 5, 9, 256, 1 << 40}, keys)

	lo, hi := uint64(3), uint64(256)
	keys = keys[:0]
	for k := range m.All(&lo, &hi) {
		keys = append(keys, k)
	}
	require.Equal(t, []uint64{3, 5, 9}, keys)
}

func TestTypedMapOperations(t *testing.T) {
	bt, _ := newTree(t)
	m := storage.NewTypedMap[string, []byte](bt, storage.StringCodec{}, storage.BytesCodec{})

	_, ok, err := m.Get("missing")
	require.NoError(t, err)
	require.False(t, ok)

	_, _, err = m.Insert("a", []byte("1"))
	require.NoError(t, err)

	prev, replaced, err := m.Insert("a", []byte("2"))
	require.NoError(t, err)
	require.True(t, replaced)
	require.Equal(t, []byte("1"), prev)

	ok, err = m.Contains("a")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint64(1), m.Len())

	prev, removed, err := m.Remove("a")
	require.NoError(t, err)
	require.True(t, removed)
	require.Equal(t, []byte("2"), prev)
	require.True(t, m.IsEmpty())
}

func TestUint64CodecRejectsBadLength(t *testing.T) {
	_, err := storage.Uint64Codec{}.Decode([]byte{1, 2, 3})
	require.ErrorIs(t, err, memory.ErrCorruption)

	enc := storage.Uint64Codec{}
	a, b := enc.Encode(255), enc.Encode(256)
	require.Equal(t, -1, slices.Compare(a, b))
}

func TestCell(t *testing.T) {
	mem := memory.NewVectorMemory()

	c, err := storage.OpenCell[string](mem, storage.StringCodec{}, "initial")
	require.NoError(t, err)
	require.Equal(t, "initial", c.Get())

	prev, err := c.Set("second")
	require.NoError(t, err)
	require.Equal(t, "initial", prev)

	again, err := storage.OpenCell[string](mem, storage.StringCodec{}, "ignored")
	require.NoError(t, err)
	require.Equal(t, "second", again.Get())

	big := string(make([]byte, 3*memory.PageSize))
	_, err = again.Set(big)
	require.NoError(t, err)
	require.Equal(t, uint64(4), mem.Size())

	reloaded, err := storage.LoadCell[string](mem, storage.StringCodec{})
	require.NoError(t, err)
	require.Len(t, reloaded.Get(), len(big))
}

func TestCellRejectsGarbage(t *testing.T) {
	mem := memory.NewVectorMemory()
	_, err := storage.LoadCell[uint64](mem, storage.Uint64Codec{})
	require.ErrorIs(t, err, storage.ErrCorruptCell)

	mem.Grow(1)
	mem.Write(0, []byte("BTM\x01"))
	_, err = storage.LoadCell[uint64](mem, storage.Uint64Codec{})
	require.ErrorIs(t, err, memory.ErrCorruption)
}
