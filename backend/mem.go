package backend

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"syscall"

	aio "github.com/ehrlich-b/go-aio"
	"github.com/ehrlich-b/go-aio/internal/logging"
)

// MemoryConfig configures a Memory opener
type MemoryConfig struct {
	Capacity    int64 // total bytes across all objects, 0 for unlimited
	MaxTransfer int   // max bytes per I/O call, 0 for no cap
	Async       bool  // deliver completions on new goroutines
	Logger      *logging.Logger
}

// Memory is an in-memory object store opener. Objects are keyed by the
// resolved destination path; faults can be injected per key.
type Memory struct {
	cfg    MemoryConfig
	logger *logging.Logger

	mu      sync.RWMutex
	objects map[string]*memObject
	used    int64
	faults  map[string]error
	dirs    map[string]struct{}
}

type memObject struct {
	mu   sync.Mutex
	data []byte
}

// NewMemory creates an empty memory opener
func NewMemory(cfg MemoryConfig) *Memory {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}
	return &Memory{
		cfg:     cfg,
		logger:  logger,
		objects: make(map[string]*memObject),
		faults:  make(map[string]error),
		dirs:    make(map[string]struct{}),
	}
}

// FailOpen makes every open of key fail with err. A nil err clears the
// fault.
func (m *Memory) FailOpen(key string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.faults, key)
		return
	}
	m.faults[key] = err
}

// Put stores a copy of data under key
func (m *Memory) Put(key string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	old := int64(0)
	if obj, ok := m.objects[key]; ok {
		old = int64(len(obj.data))
	}
	if !m.reserveLocked(int64(len(data)) - old) {
		return &fs.PathError{Op: "put", Path: key, Err: syscall.ENOSPC}
	}
	m.objects[key] = &memObject{data: append([]byte(nil), data...)}
	return nil
}

// Get returns a copy of the object stored under key
func (m *Memory) Get(key string) ([]byte, bool) {
	m.mu.RLock()
	obj, ok := m.objects[key]
	m.mu.RUnlock()
	if !ok {
		return nil, false
	}
	obj.mu.Lock()
	defer obj.mu.Unlock()
	return append([]byte(nil), obj.data...), true
}

// Delete removes the object stored under key
func (m *Memory) Delete(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if obj, ok := m.objects[key]; ok {
		m.used -= int64(len(obj.data))
		delete(m.objects, key)
	}
}

// Len returns the number of stored objects
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.objects)
}

// Used returns the stored bytes
func (m *Memory) Used() int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.used
}

// Free returns the bytes left under the capacity
func (m *Memory) Free() (uint64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.cfg.Capacity <= 0 {
		return ^uint64(0), nil
	}
	if m.used >= m.cfg.Capacity {
		return 0, nil
	}
	return uint64(m.cfg.Capacity - m.used), nil
}

func (m *Memory) reserveLocked(delta int64) bool {
	if m.cfg.Capacity > 0 && delta > 0 && m.used+delta > m.cfg.Capacity {
		return false
	}
	m.used += delta
	return true
}

// OpenDestination implements aio.Opener
func (m *Memory) OpenDestination(ctx context.Context, op *aio.Operation) (aio.Channel, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	key := DestinationPath(op)

	m.mu.Lock()
	if err := m.faults[key]; err != nil {
		m.mu.Unlock()
		return m.fail(op, "OPEN_DST", err)
	}
	obj, ok := m.objects[key]
	switch {
	case !ok && m.cfg.Capacity > 0 && m.used >= m.cfg.Capacity:
		m.mu.Unlock()
		return m.fail(op, "OPEN_DST", &fs.PathError{Op: "open", Path: key, Err: syscall.ENOSPC})
	case !ok:
		obj = &memObject{}
		m.objects[key] = obj
	case op.BytesDone() == 0 && (op.Type() == aio.OpCreate || op.Type() == aio.OpCopy):
		obj.mu.Lock()
		m.used -= int64(len(obj.data))
		obj.data = obj.data[:0]
		obj.mu.Unlock()
	}
	m.mu.Unlock()

	return m.channel(key, obj), nil
}

// OpenSource implements aio.Opener
func (m *Memory) OpenSource(ctx context.Context, op *aio.Operation) (aio.Channel, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if generatesContent(op) {
		return nil, nil
	}
	key := SourcePath(op)

	m.mu.RLock()
	fault := m.faults[key]
	obj, ok := m.objects[key]
	m.mu.RUnlock()

	if fault != nil {
		return m.fail(op, "OPEN_SRC", fault)
	}
	if !ok {
		return m.fail(op, "OPEN_SRC", &fs.PathError{Op: "open", Path: key, Err: fs.ErrNotExist})
	}
	return m.channel(key, obj), nil
}

func (m *Memory) fail(op *aio.Operation, step string, err error) (aio.Channel, error) {
	status, ierr := aio.ClassifyError(err, m.Free)
	if ierr != nil {
		return nil, ierr
	}
	op.Fail(status, aio.WrapError(step, err))
	m.logger.Debug("memory open failed", "op_id", op.ID(), "step", step, "status", status.String(), "error", err)
	return nil, nil
}

// RequestNewPath implements aio.PathRequester
func (m *Memory) RequestNewPath(path string) (string, error) {
	m.mu.Lock()
	m.dirs[filepath.Clean(path)] = struct{}{}
	m.mu.Unlock()
	return path, nil
}

// Stats returns store counters
func (m *Memory) Stats() map[string]interface{} {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return map[string]interface{}{
		"type":     "memory",
		"objects":  len(m.objects),
		"used":     m.used,
		"capacity": m.cfg.Capacity,
		"paths":    len(m.dirs),
	}
}

func (m *Memory) channel(key string, obj *memObject) *memChannel {
	c := &memChannel{m: m, key: key, obj: obj}
	c.open = true
	return c
}

// memChannel is one open handle on a memory object
type memChannel struct {
	m   *Memory
	key string
	obj *memObject

	mu   sync.Mutex
	open bool
}

func (c *memChannel) deliver(fn func()) {
	if c.m.cfg.Async {
		go fn()
		return
	}
	fn()
}

func (c *memChannel) limit(n int) int {
	if maxN := c.m.cfg.MaxTransfer; maxN > 0 && n > maxN {
		return maxN
	}
	return n
}

// ReadAt implements aio.Channel
func (c *memChannel) ReadAt(p []byte, off int64, h aio.CompletionHandler) {
	if !c.IsOpen() {
		c.deliver(func() { h.Failed(os.ErrClosed) })
		return
	}
	c.obj.mu.Lock()
	n := 0
	if off < int64(len(c.obj.data)) {
		n = copy(p[:c.limit(len(p))], c.obj.data[off:])
	}
	c.obj.mu.Unlock()
	c.deliver(func() { h.Completed(n) })
}

// WriteAt implements aio.Channel
func (c *memChannel) WriteAt(p []byte, off int64, h aio.CompletionHandler) {
	if !c.IsOpen() {
		c.deliver(func() { h.Failed(os.ErrClosed) })
		return
	}
	n := c.limit(len(p))

	c.m.mu.Lock()
	c.obj.mu.Lock()
	end, size := off+int64(n), int64(len(c.obj.data))
	if grow := end - size; grow > 0 {
		if !c.m.reserveLocked(grow) {
			c.obj.mu.Unlock()
			c.m.mu.Unlock()
			err := &fs.PathError{Op: "write", Path: c.key, Err: syscall.ENOSPC}
			c.deliver(func() { h.Failed(err) })
			return
		}
		if end > int64(cap(c.obj.data)) {
			grown := make([]byte, end, end*2)
			copy(grown, c.obj.data)
			c.obj.data = grown
		} else {
			c.obj.data = c.obj.data[:end]
			if off > size {
				clear(c.obj.data[size:off])
			}
		}
	}
	copy(c.obj.data[off:end], p[:n])
	c.obj.mu.Unlock()
	c.m.mu.Unlock()

	c.deliver(func() { h.Completed(n) })
}

// IsOpen implements aio.Channel
func (c *memChannel) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.open
}

// Close implements aio.Channel
func (c *memChannel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.open {
		return os.ErrClosed
	}
	c.open = false
	return nil
}

// Compile-time interface checks
var (
	_ aio.Opener        = (*Memory)(nil)
	_ aio.PathRequester = (*Memory)(nil)
	_ aio.Channel       = (*memChannel)(nil)
)
