package engine

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"go.stablemem/internal/config"
	"go.stablemem/internal/logger"
)

var ErrAlreadyOpen = errors.New("database already open")

// Registry keeps several independently opened databases by name.
type Registry struct {
	mu  sync.Mutex
	dbs map[string]*Database
}

func NewRegistry() *Registry {
	return &Registry{dbs: make(map[string]*Database)}
}

func (r *Registry) Open(name string, cfg *config.Config, log *logger.Logger) (*Database, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.dbs[name]; ok {
		return nil, fmt.Errorf("Open(%q): %w", name, ErrAlreadyOpen)
	}

	db, err := Open(cfg, log)
	if err != nil {
		return nil, err
	}
	r.dbs[name] = db
	return db, nil
}

func (r *Registry) Get(name string) (*Database, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	db, ok := r.dbs[name]
	return db, ok
}

func (r *Registry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	names := make([]string, 0, len(r.dbs))
	for name := range r.dbs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (r *Registry) Close(name string) error {
	r.mu.Lock()
	db, ok := r.dbs[name]
	delete(r.dbs, name)
	r.mu.Unlock()

	if !ok {
		return nil
	}
	return db.Close()
}

func (r *Registry) CloseAll() error {
	r.mu.Lock()
	dbs := r.dbs
	r.dbs = make(map[string]*Database)
	r.mu.Unlock()

	var errs []error
	for _, db := range dbs {
		errs = append(errs, db.Close())
	}
	return errors.Join(errs...)
}
