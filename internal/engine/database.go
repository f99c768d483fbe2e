package engine

import (
	"errors"
	"fmt"
	"sync"

	"go.stablemem/internal/cache"
	"go.stablemem/internal/config"
	"go.stablemem/internal/logger"
	"go.stablemem/internal/manager"
	"go.stablemem/internal/memory"
	"go.stablemem/internal/storage"
)

// Database is one physical image split into named regions, each holding
// an ordered map. All methods are safe for concurrent use; they run one
// at a time.
type Database struct {
	mu sync.Mutex

	cfg     *config.Config
	log     *logger.Logger
	phys    memory.Memory
	mgr     *manager.Manager
	cache   *storage.NodeCache
	maps    map[string]*storage.BTree
	closers []func() error
	closed  bool
}

type Entry struct {
	Key   string
	Value []byte
}

type RegionStats struct {
	Name    string
	ID      uint8
	Pages   uint64
	Entries uint64
	Used    uint64
}

type Stats struct {
	ImageID       string
	Backend       string
	PhysicalPages uint64
	Regions       []RegionStats
	Cache         cache.Stats
}

func (db *Database) regionID(region string) (manager.ID, error) {
	id, ok := db.cfg.Regions[region]
	if !ok {
		return 0, fmt.Errorf("%q: %w", region, ErrUnknownRegion)
	}
	return manager.ID(id), nil
}

// tree returns the map of region, opening it on first use.
func (db *Database) tree(region string) (*storage.BTree, error) {
	if db.closed {
		return nil, ErrClosed
	}
	if bt, ok := db.maps[region]; ok {
		return bt, nil
	}

	id, err := db.regionID(region)
	if err != nil {
		return nil, err
	}
	vm, err := db.mgr.Acquire(id)
	if err != nil {
		return nil, err
	}

	bt, err := storage.Open(vm, storage.WithCache(db.cache, uint8(id)), storage.WithLogger(db.log))
	if err != nil {
		db.log.Errorf("engine: open region %q: %v", region, err)
		return nil, fmt.Errorf("region %q: %w", region, err)
	}

	db.maps[region] = bt
	return bt, nil
}

// existing returns the map of region, or nil when the region holds no
// pages yet. Read paths use it so that they never allocate.
func (db *Database) existing(region string) (*storage.BTree, error) {
	if db.closed {
		return nil, ErrClosed
	}
	if bt, ok := db.maps[region]; ok {
		return bt, nil
	}

	id, err := db.regionID(region)
	if err != nil {
		return nil, err
	}
	if db.mgr.Size(id) == 0 {
		return nil, nil
	}
	return db.tree(region)
}

func (db *Database) Set(region, key string, val []byte) (err error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	defer memory.Guard(&err)

	bt, err := db.tree(region)
	if err != nil {
		return err
	}

	_, _, err = bt.Insert([]byte(key), val)
	return err
}

func (db *Database) Get(region, key string) (val []byte, err error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	defer memory.Guard(&err)

	bt, err := db.existing(region)
	if err != nil {
		return nil, err
	}
	if bt == nil {
		return nil, fmt.Errorf("%q: %w", key, ErrKeyNotFound)
	}

	val, ok, err := bt.Get([]byte(key))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%q: %w", key, ErrKeyNotFound)
	}
	return val, nil
}

func (db *Database) Delete(region, key string) (err error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	defer memory.Guard(&err)

	bt, err := db.existing(region)
	if err != nil {
		return err
	}
	if bt == nil {
		return fmt.Errorf("%q: %w", key, ErrKeyNotFound)
	}

	_, removed, err := bt.Remove([]byte(key))
	if err != nil {
		return err
	}
	if !removed {
		return fmt.Errorf("%q: %w", key, ErrKeyNotFound)
	}
	return nil
}

// Scan returns up to limit entries of region in [start, end). Empty bounds
// are open and a limit of zero or less means no limit.
func (db *Database) Scan(region, start, end string, limit int) (entries []Entry, err error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	defer memory.Guard(&err)

	bt, err := db.existing(region)
	if err != nil || bt == nil {
		return nil, err
	}

	var lo, hi []byte
	if start != "" {
		lo = []byte(start)
	}
	if end != "" {
		hi = []byte(end)
	}

	it := bt.Range(lo, hi)
	for (limit <= 0 || len(entries) < limit) && it.Next() {
		entries = append(entries, Entry{Key: string(it.Key()), Value: it.Value()})
	}
	return entries, it.Err()
}

// Grow reserves pages more pages for region ahead of use and returns its
// previous size.
func (db *Database) Grow(region string, pages uint64) (prev uint64, err error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	defer memory.Guard(&err)

	bt, err := db.tree(region)
	if err != nil {
		return 0, err
	}
	return bt.Memory().Grow(pages)
}

// Forget drops region and everything in it. Its pages are reused by the
// other regions; the region itself starts empty on next use.
func (db *Database) Forget(region string) (err error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	defer memory.Guard(&err)

	if db.closed {
		return ErrClosed
	}
	id, err := db.regionID(region)
	if err != nil {
		return err
	}

	if err := db.mgr.Forget(id); err != nil && !errors.Is(err, manager.ErrUnknownID) {
		return err
	}

	delete(db.maps, region)
	db.cache.Purge()
	db.log.Infof("engine: forgot region %q", region)
	return nil
}

// Verify checks the structure of every configured region.
func (db *Database) Verify() (err error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	defer memory.Guard(&err)

	for _, name := range db.cfg.RegionNames() {
		bt, err := db.existing(name)
		if err != nil {
			return err
		}
		if bt == nil {
			continue
		}
		if err := bt.Verify(); err != nil {
			return fmt.Errorf("region %q: %w", name, err)
		}
	}
	return nil
}

func (db *Database) Stat() (st Stats, err error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	defer memory.Guard(&err)

	if db.closed {
		return st, ErrClosed
	}

	st = Stats{
		ImageID:       db.mgr.ImageID().String(),
		Backend:       db.cfg.Backend,
		PhysicalPages: db.phys.Size(),
		Cache:         db.cache.Stats(),
	}

	for _, name := range db.cfg.RegionNames() {
		id := db.cfg.Regions[name]
		rs := RegionStats{Name: name, ID: id, Pages: db.mgr.Size(manager.ID(id))}
		bt, err := db.existing(name)
		if err != nil {
			return st, err
		}
		if bt != nil {
			rs.Entries = bt.Len()
			rs.Used = bt.Used()
		}
		st.Regions = append(st.Regions, rs)
	}
	return st, nil
}

func (db *Database) Close() error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if db.closed {
		return nil
	}
	db.closed = true
	db.log.Infof("engine: closing image %s", db.mgr.ImageID())
	return db.closeAll()
}

func (db *Database) closeAll() error {
	var errs []error
	for i := len(db.closers) - 1; i >= 0; i-- {
		errs = append(errs, db.closers[i]())
	}
	db.closers = nil
	return errors.Join(errs...)
}
