//go:build !linux

package uring

import (
	"os"

	"github.com/ehrlich-b/go-aio/internal/interfaces"
)

// Ring is unavailable off Linux
type Ring struct{}

// NewRing always fails off Linux
func NewRing(cfg Config) (*Ring, error) {
	return nil, ErrUnsupported
}

func (r *Ring) submit(op opcode, fd int, p []byte, off int64, h interfaces.CompletionHandler) {
	h.Failed(os.ErrClosed)
}

// Stats returns no counters
func (r *Ring) Stats() map[string]int64 { return nil }

// Close is a no-op
func (r *Ring) Close() error { return nil }
