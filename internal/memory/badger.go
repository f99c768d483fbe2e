package memory

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
)

var badgerSizeKey = []byte("meta:pages")

// BadgerMemory keeps every page as one Badger value under the key
// 'p' + page index. Pages that were never written read back as zeros, so
// growing only has to persist the new page count.
type BadgerMemory struct {
	db       *badger.DB
	numPages uint64
	inMemory bool
}

// OpenBadger opens (or creates) a Badger-backed memory in dir. An empty
// dir opens an in-memory instance.
func OpenBadger(dir string) (*BadgerMemory, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	if dir == "" {
		opts = opts.WithInMemory(true)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}

	bm := &BadgerMemory{db: db, inMemory: dir == ""}
	if err := bm.loadSize(); err != nil {
		db.Close()
		return nil, err
	}
	return bm, nil
}

func (bm *BadgerMemory) loadSize() error {
	return bm.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(badgerSizeKey)
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("load page count: %w", err)
		}

		return item.Value(func(val []byte) error {
			if len(val) != 8 {
				return fmt.Errorf("page count has %d bytes: %w", len(val), ErrCorruption)
			}
			bm.numPages = binary.BigEndian.Uint64(val)
			return nil
		})
	})
}

func (bm *BadgerMemory) Size() uint64 {
	return bm.numPages
}

func (bm *BadgerMemory) Grow(pages uint64) (uint64, error) {
	prev := bm.numPages
	if err := checkGrowth(prev, pages); err != nil {
		return 0, err
	}
	if pages == 0 {
		return prev, nil
	}

	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], prev+pages)
	err := bm.db.Update(func(txn *badger.Txn) error {
		return txn.Set(badgerSizeKey, buf[:])
	})
	if err != nil {
		return 0, fmt.Errorf("grow: %v: %w", err, ErrGrowthExhausted)
	}

	bm.numPages = prev + pages
	return prev, nil
}

func (bm *BadgerMemory) Read(offset uint64, dst []byte) {
	checkBounds(offset, len(dst), bm.numPages)

	err := bm.db.View(func(txn *badger.Txn) error {
		return forEachPage(offset, len(dst), func(page, inPage uint64, pos, n int) error {
			item, err := txn.Get(badgerPageKey(page))
			if errors.Is(err, badger.ErrKeyNotFound) {
				clear(dst[pos : pos+n])
				return nil
			}
			if err != nil {
				return err
			}

			return item.Value(func(val []byte) error {
				copy(dst[pos:pos+n], val[inPage:])
				return nil
			})
		})
	})
	if err != nil {
		panic(&IOError{Op: fmt.Sprintf("badger read at %d", offset), Err: err})
	}
}

// Write applies src in one Badger transaction, so it lands completely or
// not at all. A write larger than Badger's batch limit (about 15% of the
// memtable, roughly 140 pages with default options) fails with ErrTxnTooBig.
func (bm *BadgerMemory) Write(offset uint64, src []byte) {
	checkBounds(offset, len(src), bm.numPages)

	if err := bm.writeTxn(offset, src); err != nil {
		panic(&IOError{Op: fmt.Sprintf("badger write at %d", offset), Err: err})
	}
}

func (bm *BadgerMemory) writeTxn(offset uint64, src []byte) error {
	return bm.db.Update(func(txn *badger.Txn) error {
		return forEachPage(offset, len(src), func(page, inPage uint64, pos, n int) error {
			key := badgerPageKey(page)
			buf := make([]byte, PageSize)

			item, err := txn.Get(key)
			switch {
			case errors.Is(err, badger.ErrKeyNotFound):
			case err != nil:
				return err
			default:
				val, err := item.ValueCopy(nil)
				if err != nil {
					return err
				}
				copy(buf, val)
			}

			copy(buf[inPage:], src[pos:pos+n])
			return txn.Set(key, buf)
		})
	})
}

func (bm *BadgerMemory) Sync() error {
	if bm.inMemory {
		return nil
	}
	return bm.db.Sync()
}

func (bm *BadgerMemory) Close() error {
	return bm.db.Close()
}

// forEachPage splits the byte range [offset, offset+length) at page
// boundaries. fn receives the page index, the offset within that page, the
// position within the caller's buffer and the segment length.
func forEachPage(offset uint64, length int, fn func(page, inPage uint64, pos, n int) error) error {
	pos := 0
	for pos < length {
		abs := offset + uint64(pos)
		page := abs / PageSize
		inPage := abs % PageSize

		n := int(PageSize - inPage)
		if n > length-pos {
			n = length - pos
		}

		if err := fn(page, inPage, pos, n); err != nil {
			return err
		}
		pos += n
	}
	return nil
}

func badgerPageKey(page uint64) []byte {
	key := make([]byte, 9)
	key[0] = 'p'
	binary.BigEndian.PutUint64(key[1:], page)
	return key
}
