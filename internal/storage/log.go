package storage

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"iter"

	"go.stablemem/internal/memory"
)

// A Log keeps append-only entries in two memories. The index memory holds
// the entry count and, for every entry, the end offset of its bytes in the
// data memory:
//
//	index: 0 magic "SLI" | 3 version | 8 count u64 | 16 ends []u64
//	data:  0 magic "SLD" | 3 version | 8 entry bytes
//
// Append writes the data and the new end before the count, which is the
// commit point.
const (
	logIndexHeader = 16
	logDataHeader  = 8
	logVersion     = 1
	logCountOffset = 8
)

var (
	logIndexMagic = []byte("SLI")
	logDataMagic  = []byte("SLD")
)

type Log[T any] struct {
	index memory.Memory
	data  memory.Memory
	codec Codec[T]
	count uint64
	end   uint64
}

// NewLog formats index and data as an empty log.
func NewLog[T any](index, data memory.Memory, codec Codec[T]) (*Log[T], error) {
	if err := memory.EnsureCapacity(index, logIndexHeader); err != nil {
		return nil, fmt.Errorf("NewLog: %w", err)
	}
	if err := memory.EnsureCapacity(data, logDataHeader); err != nil {
		return nil, fmt.Errorf("NewLog: %w", err)
	}

	hdr := make([]byte, logDataHeader)
	copy(hdr, logDataMagic)
	hdr[3] = logVersion
	data.Write(0, hdr)

	l := &Log[T]{index: index, data: data, codec: codec}
	l.writeCount(0)
	return l, nil
}

// LoadLog opens the log stored in index and data.
func LoadLog[T any](index, data memory.Memory, codec Codec[T]) (*Log[T], error) {
	if memory.Bytes(index) < logIndexHeader || memory.Bytes(data) < logDataHeader {
		return nil, fmt.Errorf("LoadLog: memory too small: %w", ErrCorruptLog)
	}

	ih := make([]byte, logIndexHeader)
	index.Read(0, ih)
	dh := make([]byte, logDataHeader)
	data.Read(0, dh)
	if !bytes.Equal(ih[0:3], logIndexMagic) || ih[3] != logVersion {
		return nil, fmt.Errorf("LoadLog: index header %q: %w", ih[0:4], ErrCorruptLog)
	}
	if !bytes.Equal(dh[0:3], logDataMagic) || dh[3] != logVersion {
		return nil, fmt.Errorf("LoadLog: data header %q: %w", dh[0:4], ErrCorruptLog)
	}

	l := &Log[T]{index: index, data: data, codec: codec}
	l.count = binary.LittleEndian.Uint64(ih[logCountOffset:])
	if l.count > (memory.Bytes(index)-logIndexHeader)/8 {
		return nil, fmt.Errorf("LoadLog: count %d: %w", l.count, ErrCorruptLog)
	}
	if l.count > 0 {
		l.end = l.readEnd(l.count - 1)
		if logDataHeader+l.end > memory.Bytes(data) {
			return nil, fmt.Errorf("LoadLog: data ends at %d: %w", l.end, ErrCorruptLog)
		}
	}
	return l, nil
}

// OpenLog loads the log in index and data, or formats one when both are
// empty.
func OpenLog[T any](index, data memory.Memory, codec Codec[T]) (*Log[T], error) {
	if index.Size() == 0 && data.Size() == 0 {
		return NewLog(index, data, codec)
	}
	return LoadLog(index, data, codec)
}

func (l *Log[T]) writeCount(n uint64) {
	hdr := make([]byte, logIndexHeader)
	copy(hdr, logIndexMagic)
	hdr[3] = logVersion
	binary.LittleEndian.PutUint64(hdr[logCountOffset:], n)
	l.index.Write(0, hdr)
	l.count = n
}

func (l *Log[T]) readEnd(i uint64) uint64 {
	var b [8]byte
	l.index.Read(logIndexHeader+i*8, b[:])
	return binary.LittleEndian.Uint64(b[:])
}

func (l *Log[T]) Len() uint64 {
	return l.count
}

func (l *Log[T]) IsEmpty() bool {
	return l.count == 0
}

// Append adds v and returns its index.
func (l *Log[T]) Append(v T) (uint64, error) {
	buf := l.codec.Encode(v)
	end := l.end + uint64(len(buf))

	if err := memory.EnsureCapacity(l.data, logDataHeader+end); err != nil {
		return 0, fmt.Errorf("Log.Append: %w", err)
	}
	if err := memory.EnsureCapacity(l.index, logIndexHeader+(l.count+1)*8); err != nil {
		return 0, fmt.Errorf("Log.Append: %w", err)
	}

	l.data.Write(logDataHeader+l.end, buf)
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], end)
	l.index.Write(logIndexHeader+l.count*8, b[:])

	idx := l.count
	l.writeCount(l.count + 1)
	l.end = end
	return idx, nil
}

// Get returns entry i, or false when i is past the end.
func (l *Log[T]) Get(i uint64) (T, bool, error) {
	var zero T
	if i >= l.count {
		return zero, false, nil
	}

	var start uint64
	if i > 0 {
		start = l.readEnd(i - 1)
	}
	end := l.readEnd(i)
	if end < start || logDataHeader+end > memory.Bytes(l.data) {
		return zero, false, fmt.Errorf("Log.Get(%d): entry [%d, %d): %w", i, start, end, ErrCorruptLog)
	}

	buf := make([]byte, end-start)
	l.data.Read(logDataHeader+start, buf)
	v, err := l.codec.Decode(buf)
	if err != nil {
		return zero, false, err
	}
	return v, true, nil
}

// Clear drops every entry. The memories keep their pages.
func (l *Log[T]) Clear() {
	l.writeCount(0)
	l.end = 0
}

// All yields the entries in append order. An entry that fails to read
// ends the sequence.
func (l *Log[T]) All() iter.Seq2[uint64, T] {
	return func(yield func(uint64, T) bool) {
		for i := uint64(0); i < l.count; i++ {
			v, ok, err := l.Get(i)
			if err != nil || !ok {
				return
			}
			if !yield(i, v) {
				return
			}
		}
	}
}
