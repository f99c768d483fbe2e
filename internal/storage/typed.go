package storage

import (
	"encoding/binary"
	"fmt"
	"iter"
)

// Codec converts between T and its stored bytes. Key codecs must preserve
// order: a < b exactly when Encode(a) sorts before Encode(b).
type Codec[T any] interface {
	Encode(v T) []byte
	Decode(b []byte) (T, error)
}

// Uint64Codec stores integers big endian so byte order matches numeric
// order.
type Uint64Codec struct{}

func (Uint64Codec) Encode(v uint64) []byte {
	return binary.BigEndian.AppendUint64(nil, v)
}

func (Uint64Codec) Decode(b []byte) (uint64, error) {
	if len(b) != 8 {
		return 0, fmt.Errorf("Uint64Codec: %d bytes: %w", len(b), ErrCorruptTree)
	}
	return binary.BigEndian.Uint64(b), nil
}

type StringCodec struct{}

func (StringCodec) Encode(v string) []byte {
	return []byte(v)
}

func (StringCodec) Decode(b []byte) (string, error) {
	return string(b), nil
}

type BytesCodec struct{}

func (BytesCodec) Encode(v []byte) []byte {
	return v
}

func (BytesCodec) Decode(b []byte) ([]byte, error) {
	return b, nil
}

// TypedMap is a BTree with encoded keys and values.
type TypedMap[K, V any] struct {
	bt   *BTree
	keys Codec[K]
	vals Codec[V]
}

func NewTypedMap[K, V any](bt *BTree, keys Codec[K], vals Codec[V]) *TypedMap[K, V] {
	return &TypedMap[K, V]{bt: bt, keys: keys, vals: vals}
}

func (m *TypedMap[K, V]) Tree() *BTree {
	return m.bt
}

func (m *TypedMap[K, V]) Get(k K) (V, bool, error) {
	var zero V

	b, ok, err := m.bt.Get(m.keys.Encode(k))
	if err != nil || !ok {
		return zero, ok, err
	}
	v, err := m.vals.Decode(b)
	if err != nil {
		return zero, false, err
	}
	return v, true, nil
}

func (m *TypedMap[K, V]) Insert(k K, v V) (V, bool, error) {
	prev, replaced, err := m.bt.Insert(m.keys.Encode(k), m.vals.Encode(v))
	return m.decodePrev(prev, replaced, err)
}

func (m *TypedMap[K, V]) Remove(k K) (V, bool, error) {
	prev, removed, err := m.bt.Remove(m.keys.Encode(k))
	return m.decodePrev(prev, removed, err)
}

func (m *TypedMap[K, V]) decodePrev(prev []byte, ok bool, err error) (V, bool, error) {
	var zero V
	if err != nil || !ok {
		return zero, ok, err
	}
	v, err := m.vals.Decode(prev)
	if err != nil {
		return zero, true, err
	}
	return v, true, nil
}

func (m *TypedMap[K, V]) Contains(k K) (bool, error) {
	return m.bt.Contains(m.keys.Encode(k))
}

func (m *TypedMap[K, V]) Len() uint64 {
	return m.bt.Len()
}

func (m *TypedMap[K, V]) IsEmpty() bool {
	return m.bt.IsEmpty()
}

// All yields the entries in [start, end) in key order; a nil bound is
// open. Entries that fail to decode end the sequence.
func (m *TypedMap[K, V]) All(start, end *K) iter.Seq2[K, V] {
	var lo, hi []byte
	if start != nil {
		lo = m.keys.Encode(*start)
	}
	if end != nil {
		hi = m.keys.Encode(*end)
	}

	return func(yield func(K, V) bool) {
		for kb, vb := range m.bt.All(lo, hi) {
			k, err := m.keys.Decode(kb)
			if err != nil {
				return
			}
			v, err := m.vals.Decode(vb)
			if err != nil {
				return
			}
			if !yield(k, v) {
				return
			}
		}
	}
}
