package storage

import (
	"bytes"
	"fmt"
	"iter"
)

// Composite keys put the escaped first key before the raw second key.
// Every 0x00 in the first key becomes 0x00 0xFF and the key ends with
// 0x00 0x01, so pairs sort by first key, then by second key, and all pairs
// of one first key share a prefix.
const (
	pairEscape = 0x00
	pairLit    = 0xFF
	pairEnd    = 0x01
)

func appendFirst(dst, first []byte) []byte {
	for _, b := range first {
		dst = append(dst, b)
		if b == pairEscape {
			dst = append(dst, pairLit)
		}
	}
	return append(dst, pairEscape, pairEnd)
}

// firstBounds returns the key range [lo, hi) holding every pair of first.
func firstBounds(first []byte) (lo, hi []byte) {
	lo = appendFirst(nil, first)
	hi = bytes.Clone(lo)
	hi[len(hi)-1]++
	return lo, hi
}

func splitPair(key []byte) (first, second []byte, err error) {
	for i := 0; i < len(key); i++ {
		if key[i] != pairEscape {
			first = append(first, key[i])
			continue
		}
		if i+1 == len(key) {
			break
		}
		switch key[i+1] {
		case pairLit:
			first = append(first, pairEscape)
			i++
		case pairEnd:
			return first, key[i+2:], nil
		default:
			return nil, nil, fmt.Errorf("splitPair: escape %#x at %d: %w", key[i+1], i, ErrCorruptPair)
		}
	}
	return nil, nil, fmt.Errorf("splitPair: unterminated key: %w", ErrCorruptPair)
}

// Pair is the two-part key of a Multimap entry.
type Pair[K1, K2 any] struct {
	First  K1
	Second K2
}

// Multimap stores values under (first, second) key pairs in a BTree. All
// values of one first key can be listed or removed together.
type Multimap[K1, K2, V any] struct {
	bt     *BTree
	first  Codec[K1]
	second Codec[K2]
	vals   Codec[V]
}

func NewMultimap[K1, K2, V any](bt *BTree, first Codec[K1], second Codec[K2], vals Codec[V]) *Multimap[K1, K2, V] {
	return &Multimap[K1, K2, V]{bt: bt, first: first, second: second, vals: vals}
}

func (m *Multimap[K1, K2, V]) key(k1 K1, k2 K2) []byte {
	return append(appendFirst(nil, m.first.Encode(k1)), m.second.Encode(k2)...)
}

func (m *Multimap[K1, K2, V]) Tree() *BTree {
	return m.bt
}

func (m *Multimap[K1, K2, V]) Get(k1 K1, k2 K2) (V, bool, error) {
	var zero V

	b, ok, err := m.bt.Get(m.key(k1, k2))
	if err != nil || !ok {
		return zero, ok, err
	}
	v, err := m.vals.Decode(b)
	if err != nil {
		return zero, false, err
	}
	return v, true, nil
}

// Insert stores v under (k1, k2) and returns the value it replaced.
func (m *Multimap[K1, K2, V]) Insert(k1 K1, k2 K2, v V) (V, bool, error) {
	prev, replaced, err := m.bt.Insert(m.key(k1, k2), m.vals.Encode(v))
	return m.decodePrev(prev, replaced, err)
}

func (m *Multimap[K1, K2, V]) Remove(k1 K1, k2 K2) (V, bool, error) {
	prev, removed, err := m.bt.Remove(m.key(k1, k2))
	return m.decodePrev(prev, removed, err)
}

func (m *Multimap[K1, K2, V]) decodePrev(prev []byte, ok bool, err error) (V, bool, error) {
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

// RemovePartial removes every value stored under k1 and reports whether
// there was any.
func (m *Multimap[K1, K2, V]) RemovePartial(k1 K1) (bool, error) {
	lo, hi := firstBounds(m.first.Encode(k1))

	var keys [][]byte
	it := m.bt.Range(lo, hi)
	for it.Next() {
		keys = append(keys, it.Key())
	}
	if err := it.Err(); err != nil {
		return false, err
	}

	for _, k := range keys {
		if _, _, err := m.bt.Remove(k); err != nil {
			return false, err
		}
	}
	return len(keys) > 0, nil
}

func (m *Multimap[K1, K2, V]) Len() uint64 {
	return m.bt.Len()
}

func (m *Multimap[K1, K2, V]) IsEmpty() bool {
	return m.bt.IsEmpty()
}

func (m *Multimap[K1, K2, V]) Clear() error {
	return m.bt.Clear()
}

// Range yields the second keys and values stored under k1, in order of
// second key.
func (m *Multimap[K1, K2, V]) Range(k1 K1) iter.Seq2[K2, V] {
	lo, hi := firstBounds(m.first.Encode(k1))

	return func(yield func(K2, V) bool) {
		for kb, vb := range m.bt.All(lo, hi) {
			k2, v, err := m.decodeSecond(kb, vb)
			if err != nil {
				return
			}
			if !yield(k2, v) {
				return
			}
		}
	}
}

// All yields every entry ordered by first key, then second key. Entries
// that fail to decode end the sequence.
func (m *Multimap[K1, K2, V]) All() iter.Seq2[Pair[K1, K2], V] {
	return func(yield func(Pair[K1, K2], V) bool) {
		for kb, vb := range m.bt.All(nil, nil) {
			fb, _, err := splitPair(kb)
			if err != nil {
				return
			}
			k1, err := m.first.Decode(fb)
			if err != nil {
				return
			}
			k2, v, err := m.decodeSecond(kb, vb)
			if err != nil {
				return
			}
			if !yield(Pair[K1, K2]{First: k1, Second: k2}, v) {
				return
			}
		}
	}
}

func (m *Multimap[K1, K2, V]) decodeSecond(kb, vb []byte) (K2, V, error) {
	var (
		k2 K2
		v  V
	)
	_, sb, err := splitPair(kb)
	if err != nil {
		return k2, v, err
	}
	if k2, err = m.second.Decode(sb); err != nil {
		return k2, v, err
	}
	v, err = m.vals.Decode(vb)
	return k2, v, err
}
