package engine

import (
	"errors"

	"go.stablemem/internal/memory"
)

var (
	ErrKeyNotFound   = errors.New("key does not exist")
	ErrUnknownRegion = errors.New("region is not configured")
	ErrClosed        = memory.ErrClosed
)
