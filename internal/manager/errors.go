package manager

import (
	"errors"
	"fmt"

	"go.stablemem/internal/memory"
)

var (
	ErrDuplicateID = errors.New("virtual memory id already registered")
	ErrUnknownID   = errors.New("virtual memory id not registered")
	ErrInvalidID   = errors.New("virtual memory id is reserved")
	ErrTableFull   = fmt.Errorf("manager table is full: %w", memory.ErrGrowthExhausted)
)
