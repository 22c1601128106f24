// Package uring issues file reads and writes through io_uring. A Ring has
// one submitter side guarded by a mutex and one reaper goroutine that
// turns completion queue events into handler calls.
package uring

import (
	"errors"
	"os"
	"sync/atomic"

	"github.com/ehrlich-b/go-aio/internal/constants"
	"github.com/ehrlich-b/go-aio/internal/interfaces"
	"github.com/ehrlich-b/go-aio/internal/logging"
)

// ErrUnsupported is returned by NewRing where io_uring is unavailable
var ErrUnsupported = errors.New("uring: io_uring is not supported on this platform")

// Config contains configuration for creating a ring
type Config struct {
	Entries uint32 // submission queue entries, also the in-flight bound
	Logger  *logging.Logger
}

func (c *Config) defaults() {
	if c.Entries == 0 {
		c.Entries = constants.DefaultRingEntries
	}
	if c.Logger == nil {
		c.Logger = logging.Default()
	}
}

type opcode uint8

const (
	opRead opcode = iota
	opWrite
)

func (o opcode) String() string {
	if o == opWrite {
		return "pwrite"
	}
	return "pread"
}

// Channel is an open file whose transfers go through a Ring
type Channel struct {
	f    *os.File
	fd   int
	ring *Ring
	open atomic.Bool
}

// NewChannel wraps f. The channel owns f and closes it on Close.
func NewChannel(f *os.File, ring *Ring) *Channel {
	c := &Channel{f: f, fd: int(f.Fd()), ring: ring}
	c.open.Store(true)
	return c
}

// Name returns the path the file was opened with
func (c *Channel) Name() string { return c.f.Name() }

// ReadAt implements interfaces.Channel
func (c *Channel) ReadAt(p []byte, off int64, h interfaces.CompletionHandler) {
	if !c.open.Load() {
		h.Failed(os.ErrClosed)
		return
	}
	c.ring.submit(opRead, c.fd, p, off, h)
}

// WriteAt implements interfaces.Channel
func (c *Channel) WriteAt(p []byte, off int64, h interfaces.CompletionHandler) {
	if !c.open.Load() {
		h.Failed(os.ErrClosed)
		return
	}
	c.ring.submit(opWrite, c.fd, p, off, h)
}

// IsOpen implements interfaces.Channel
func (c *Channel) IsOpen() bool { return c.open.Load() }

// Close implements interfaces.Channel
func (c *Channel) Close() error {
	if !c.open.CompareAndSwap(true, false) {
		return os.ErrClosed
	}
	return c.f.Close()
}

var _ interfaces.Channel = (*Channel)(nil)
