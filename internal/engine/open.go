package engine

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"go.stablemem/internal/config"
	"go.stablemem/internal/logger"
	"go.stablemem/internal/manager"
	"go.stablemem/internal/memory"
	"go.stablemem/internal/storage"
)

// Open opens the image described by cfg. When log is nil the database
// logs to stablemem.log under cfg.LogDir.
func Open(cfg *config.Config, log *logger.Logger) (*Database, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	db := &Database{
		cfg:  cfg,
		log:  log,
		maps: make(map[string]*storage.BTree),
	}

	if db.log == nil {
		logPath := filepath.Join(cfg.LogDir, "stablemem.log")
		logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o666)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}
		db.log = logger.New(logFile, cfg.Level())
		db.closers = append(db.closers, logFile.Close)
	}

	phys, err := db.openBackend()
	if err != nil {
		db.closeAll()
		return nil, err
	}
	db.phys = phys

	if db.mgr, err = manager.New(phys, manager.WithLogger(db.log)); err != nil {
		db.closeAll()
		return nil, err
	}

	if db.cache, err = storage.NewNodeCache(cfg.Cache.Policy, cfg.Cache.Capacity); err != nil {
		db.closeAll()
		return nil, err
	}

	db.log.Infof("engine: opened %s image %s (%d pages)", cfg.Backend, db.mgr.ImageID(), phys.Size())
	return db, nil
}

func (db *Database) openBackend() (memory.Memory, error) {
	cfg := db.cfg

	switch cfg.Backend {
	case config.BackendMemory:
		return memory.NewVectorMemory(memory.WithPageLimit(cfg.MaxPages)), nil

	case config.BackendFile:
		fm, err := memory.OpenFile(cfg.ImagePath())
		if err != nil {
			return nil, fmt.Errorf("engine: %w", err)
		}
		db.closers = append(db.closers, func() error {
			return errors.Join(fm.Sync(), fm.Close())
		})
		return memory.Limit(fm, cfg.MaxPages), nil

	case config.BackendBadger:
		bm, err := memory.OpenBadger(cfg.ImagePath())
		if err != nil {
			return nil, fmt.Errorf("engine: %w", err)
		}
		db.closers = append(db.closers, func() error {
			return errors.Join(bm.Sync(), bm.Close())
		})
		return memory.Limit(bm, cfg.MaxPages), nil
	}

	return nil, fmt.Errorf("engine: backend %q: %w", cfg.Backend, config.ErrInvalidConfig)
}
