// Package manager splits one physical Memory into independent virtual
// memories. Each virtual memory is a list of physical page ranges that is
// recorded in a checksummed table stored in the first pages of the
// physical memory itself, so the layout survives a restart.
package manager

import (
	"fmt"
	"slices"

	"github.com/google/uuid"
	"go.stablemem/internal/logger"
	"go.stablemem/internal/memory"
)

// Manager is not safe for concurrent use. Callers serialize access.
type Manager struct {
	phys   memory.Memory
	header *memory.RestrictedMemory
	table  *table
	live   map[ID]*VirtualMemory
	log    *logger.Logger

	imageID uuid.UUID
}

type Option func(*Manager)

func WithLogger(l *logger.Logger) Option {
	return func(m *Manager) {
		m.log = l
	}
}

// WithImageID sets the id written into a freshly formatted header.
// It has no effect when an existing header is loaded.
func WithImageID(id uuid.UUID) Option {
	return func(m *Manager) {
		m.imageID = id
	}
}

// New formats phys when it has no pages and loads the existing table
// otherwise.
func New(phys memory.Memory, opts ...Option) (m *Manager, err error) {
	defer memory.Guard(&err)

	m = &Manager{
		phys: phys,
		live: make(map[ID]*VirtualMemory),
		log:  logger.Discard(),
	}
	for _, opt := range opts {
		opt(m)
	}

	if phys.Size() == 0 {
		if err := m.format(); err != nil {
			return nil, err
		}
		return m, nil
	}

	if phys.Size() < HeaderPages {
		return nil, fmt.Errorf("manager.New: %d pages is smaller than the header: %w", phys.Size(), memory.ErrCorruption)
	}

	m.header = memory.Restrict(phys, 0, HeaderPages)
	t, err := readTable(m.header, phys.Size())
	if err != nil {
		m.log.Errorf("manager: %v", err)
		return nil, err
	}

	// Pages grown but never recorded belong to nobody.
	if end, size := t.physicalEnd(), phys.Size(); size > end {
		m.log.Warnf("manager: %d unrecorded pages at %d marked free", size-end, end)
		t.addFree(uint32(end), uint32(size-end))
	}

	m.table = t
	m.imageID = uuid.UUID(t.imageID)
	for id := range t.byID {
		if id != FreeID {
			m.live[id] = &VirtualMemory{m: m, id: id}
		}
	}

	m.log.Infof("manager: loaded image %s with %d ranges", m.imageID, len(t.entries))
	return m, nil
}

func (m *Manager) format() error {
	if _, err := m.phys.Grow(HeaderPages); err != nil {
		return fmt.Errorf("manager.format: %w", err)
	}
	if m.imageID == uuid.Nil {
		m.imageID = uuid.New()
	}

	m.header = memory.Restrict(m.phys, 0, HeaderPages)
	t := newTable(m.imageID)
	m.persist(t)
	m.table = t

	m.log.Infof("manager: formatted image %s", m.imageID)
	return nil
}

func (m *Manager) persist(t *table) {
	buf := t.encode()
	m.header.Write(0, buf)
	m.log.Debugf("manager: persisted %d ranges", len(t.entries))
}

// Register makes id available with an empty address space.
func (m *Manager) Register(id ID) (*VirtualMemory, error) {
	if id == FreeID {
		return nil, fmt.Errorf("Register(%d): %w", id, ErrInvalidID)
	}
	if _, ok := m.live[id]; ok {
		return nil, fmt.Errorf("Register(%d): %w", id, ErrDuplicateID)
	}

	vm := &VirtualMemory{m: m, id: id}
	m.live[id] = vm
	return vm, nil
}

// Lookup returns the view of a registered id.
func (m *Manager) Lookup(id ID) (*VirtualMemory, error) {
	vm, ok := m.live[id]
	if !ok {
		return nil, fmt.Errorf("Lookup(%d): %w", id, ErrUnknownID)
	}
	return vm, nil
}

// Acquire returns the view of id, registering it first if needed.
func (m *Manager) Acquire(id ID) (*VirtualMemory, error) {
	if vm, ok := m.live[id]; ok {
		return vm, nil
	}
	return m.Register(id)
}

// Registered lists the live ids in ascending order.
func (m *Manager) Registered() []ID {
	ids := make([]ID, 0, len(m.live))
	for id := range m.live {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Size returns the number of pages assigned to id.
func (m *Manager) Size(id ID) uint64 {
	if id == FreeID {
		return 0
	}
	return m.table.pages(id)
}

// Grow adds pages to id and returns its previous size. Free ranges are
// reused before the physical memory grows and always read back as zeros. The table is persisted before
// Grow returns; on error nothing changes.
func (m *Manager) Grow(id ID, pages uint64) (prev uint64, err error) {
	defer memory.Guard(&err)

	if _, ok := m.live[id]; !ok {
		return 0, fmt.Errorf("Grow(%d): %w", id, ErrUnknownID)
	}

	prev = m.table.pages(id)
	if pages == 0 {
		return prev, nil
	}
	if prev+pages > memory.MaxPages {
		return 0, fmt.Errorf("Grow(%d, %d): %w", id, pages, memory.ErrGrowthExhausted)
	}

	next := m.table.clone()
	want := pages
	reused := next.takeFree(want)
	for _, r := range reused {
		next.assign(id, r.Physical, r.Count)
		want -= uint64(r.Count)
	}

	var start uint64
	if want > 0 {
		start = m.phys.Size()
		next.assign(id, uint32(start), uint32(want))
	}
	if len(next.entries) > MaxEntries {
		return 0, fmt.Errorf("Grow(%d, %d): %w", id, pages, ErrTableFull)
	}

	if want > 0 {
		if _, err := m.phys.Grow(want); err != nil {
			return 0, fmt.Errorf("Grow(%d, %d): %w", id, pages, err)
		}
	}

	// Reused pages still hold whatever their previous owner left there.
	for _, r := range reused {
		m.zero(r)
	}

	m.persist(next)
	m.table = next

	m.log.Debugf("manager: id %d grew %d -> %d pages (%d reused)", id, prev, prev+pages, pages-want)
	return prev, nil
}

func (m *Manager) zero(r PageRange) {
	page := make([]byte, memory.PageSize)
	for p := uint64(r.Physical); p < r.physicalEnd(); p++ {
		m.phys.Write(p*memory.PageSize, page)
	}
}

// Forget releases every page of id for reuse and unregisters it. Views of
// id obtained earlier see an empty memory afterwards.
func (m *Manager) Forget(id ID) (err error) {
	defer memory.Guard(&err)

	if _, ok := m.live[id]; !ok {
		return fmt.Errorf("Forget(%d): %w", id, ErrUnknownID)
	}

	next := m.table.clone()
	next.release(id)
	m.persist(next)
	m.table = next
	delete(m.live, id)

	m.log.Infof("manager: forgot id %d", id)
	return nil
}

// Ranges returns id's page ranges ordered by logical page.
func (m *Manager) Ranges(id ID) []PageRange {
	return slices.Clone(m.table.byID[id])
}

// Table returns a copy of every recorded range in table order.
func (m *Manager) Table() []PageRange {
	return slices.Clone(m.table.entries)
}

func (m *Manager) ImageID() uuid.UUID {
	return m.imageID
}

// Physical returns the memory the manager allocates from.
func (m *Manager) Physical() memory.Memory {
	return m.phys
}
