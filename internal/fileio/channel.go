package fileio

import (
	"os"
	"sync/atomic"

	"github.com/ehrlich-b/go-aio/internal/interfaces"
)

// Channel is an open file whose transfers run on an Executor
type Channel struct {
	f    *os.File
	exec *Executor
	open atomic.Bool

	inflight atomic.Int64
	bytes    atomic.Int64
}

// NewChannel wraps f. The channel owns f and closes it on Close.
func NewChannel(f *os.File, exec *Executor) *Channel {
	c := &Channel{f: f, exec: exec}
	c.open.Store(true)
	return c
}

// Name returns the path the file was opened with
func (c *Channel) Name() string { return c.f.Name() }

// ReadAt implements interfaces.Channel
func (c *Channel) ReadAt(p []byte, off int64, h interfaces.CompletionHandler) {
	c.issue(jobRead, p, off, h)
}

// WriteAt implements interfaces.Channel
func (c *Channel) WriteAt(p []byte, off int64, h interfaces.CompletionHandler) {
	c.issue(jobWrite, p, off, h)
}

func (c *Channel) issue(kind jobKind, p []byte, off int64, h interfaces.CompletionHandler) {
	if !c.open.Load() {
		h.Failed(os.ErrClosed)
		return
	}
	c.inflight.Add(1)
	c.exec.submit(job{kind: kind, f: c.f, p: p, off: off, h: &tracked{c: c, h: h}})
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

// Stats implements interfaces.StatChannel
func (c *Channel) Stats() map[string]int64 {
	return map[string]int64{
		"inflight": c.inflight.Load(),
		"bytes":    c.bytes.Load(),
	}
}

// tracked keeps the channel counters in step with completions
type tracked struct {
	c *Channel
	h interfaces.CompletionHandler
}

func (t *tracked) Completed(n int) {
	t.c.inflight.Add(-1)
	t.c.bytes.Add(int64(n))
	t.h.Completed(n)
}

func (t *tracked) Failed(err error) {
	t.c.inflight.Add(-1)
	t.h.Failed(err)
}

var _ interfaces.StatChannel = (*Channel)(nil)
