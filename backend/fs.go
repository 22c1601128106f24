package backend

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	aio "github.com/ehrlich-b/go-aio"
	"github.com/ehrlich-b/go-aio/internal/constants"
	"github.com/ehrlich-b/go-aio/internal/fileio"
	"github.com/ehrlich-b/go-aio/internal/logging"
	"github.com/ehrlich-b/go-aio/internal/uring"
)

// Channel engines for FS
const (
	EnginePool  = "pool"
	EngineURing = "uring"
)

// FSConfig configures a filesystem opener
type FSConfig struct {
	Engine      string // EnginePool (default) or EngineURing
	Workers     int    // pool workers
	QueueSize   int    // pool job queue
	RingEntries uint32 // io_uring entries
	FilePerm    os.FileMode
	DirPerm     os.FileMode
	Logger      *logging.Logger
}

// FS opens items as files on a local filesystem
type FS struct {
	cfg    FSConfig
	logger *logging.Logger
	exec   *fileio.Executor
	ring   *uring.Ring

	dirsMu sync.Mutex
	dirs   map[string]struct{}

	avgIO  atomic.Int64
	opened atomic.Uint64
	failed atomic.Uint64
	statfs func(path string) (uint64, error)
}

// NewFS creates a filesystem opener and starts its channel engine
func NewFS(cfg FSConfig) (*FS, error) {
	if cfg.Engine == "" {
		cfg.Engine = EnginePool
	}
	if cfg.FilePerm == 0 {
		cfg.FilePerm = constants.DefaultFilePerm
	}
	if cfg.DirPerm == 0 {
		cfg.DirPerm = constants.DefaultDirPerm
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}

	f := &FS{
		cfg:    cfg,
		logger: logger,
		dirs:   make(map[string]struct{}),
		statfs: freeSpace,
	}

	switch cfg.Engine {
	case EnginePool:
		f.exec = fileio.NewExecutor(fileio.Config{Workers: cfg.Workers, QueueSize: cfg.QueueSize, Logger: logger})
	case EngineURing:
		ring, err := uring.NewRing(uring.Config{Entries: cfg.RingEntries, Logger: logger})
		if err != nil {
			return nil, fmt.Errorf("start %s engine: %w", cfg.Engine, err)
		}
		f.ring = ring
	default:
		return nil, fmt.Errorf("unknown I/O engine %q", cfg.Engine)
	}

	logger.Info("filesystem backend ready", "engine", cfg.Engine)
	return f, nil
}

// Engine returns the channel engine in use
func (f *FS) Engine() string { return f.cfg.Engine }

// OpenDestination implements aio.Opener
func (f *FS) OpenDestination(ctx context.Context, op *aio.Operation) (aio.Channel, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path := DestinationPath(op)
	if err := f.ensureDir(filepath.Dir(path)); err != nil {
		return f.fail(op, "OPEN_DST", path, err)
	}

	flags := os.O_WRONLY
	if op.Type() == aio.OpCreate || op.Type() == aio.OpCopy {
		flags |= os.O_CREATE
		if op.BytesDone() == 0 {
			flags |= os.O_TRUNC
		}
	}
	file, err := os.OpenFile(path, flags, f.cfg.FilePerm)
	if err != nil {
		return f.fail(op, "OPEN_DST", path, err)
	}
	f.opened.Add(1)
	return f.channel(file), nil
}

// OpenSource implements aio.Opener
func (f *FS) OpenSource(ctx context.Context, op *aio.Operation) (aio.Channel, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if generatesContent(op) {
		return nil, nil
	}
	path := SourcePath(op)
	file, err := os.Open(path)
	if err != nil {
		return f.fail(op, "OPEN_SRC", path, err)
	}
	f.opened.Add(1)
	return f.channel(file), nil
}

func (f *FS) channel(file *os.File) aio.Channel {
	if f.ring != nil {
		return uring.NewChannel(file, f.ring)
	}
	return fileio.NewChannel(file, f.exec)
}

// fail maps an open error onto the operation status. Free space is looked
// up on the nearest existing ancestor of path.
func (f *FS) fail(op *aio.Operation, step, path string, err error) (aio.Channel, error) {
	free := func() (uint64, error) { return f.statfs(existingAncestor(path)) }
	status, ierr := aio.ClassifyError(err, free)
	if ierr != nil {
		return nil, ierr
	}
	f.failed.Add(1)
	op.Fail(status, aio.WrapError(step, err))
	f.logger.Debug("file open failed", "op_id", op.ID(), "step", step, "path", path,
		"status", status.String(), "error", err)
	return nil, nil
}

// ensureDir creates a destination directory once per path
func (f *FS) ensureDir(dir string) error {
	if dir == "" || dir == "." {
		return nil
	}
	f.dirsMu.Lock()
	defer f.dirsMu.Unlock()
	if _, ok := f.dirs[dir]; ok {
		return nil
	}
	if err := os.MkdirAll(dir, f.cfg.DirPerm); err != nil {
		return err
	}
	f.dirs[dir] = struct{}{}
	return nil
}

// RequestNewPath implements aio.PathRequester
func (f *FS) RequestNewPath(path string) (string, error) {
	if err := f.ensureDir(filepath.Clean(path)); err != nil {
		return "", aio.WrapError("REQUEST_PATH", err)
	}
	return path, nil
}

// AdjustIOBuffers implements aio.BufferAdjuster. The size is kept as a
// hint only.
func (f *FS) AdjustIOBuffers(avgTransferSize int64, typ aio.OpType) {
	f.avgIO.Store(avgTransferSize)
	f.logger.Debug("I/O size hint", "avg_transfer_size", avgTransferSize, "op", typ.String())
}

// Stats returns backend counters
func (f *FS) Stats() map[string]interface{} {
	stats := map[string]interface{}{
		"type":        "fs",
		"engine":      f.cfg.Engine,
		"opened":      f.opened.Load(),
		"open_failed": f.failed.Load(),
		"avg_io_hint": f.avgIO.Load(),
	}
	if f.exec != nil {
		stats["pool"] = f.exec.Stats()
	}
	if f.ring != nil {
		stats["ring"] = f.ring.Stats()
	}
	return stats
}

// Close stops the channel engine. Channels still open fail their next
// call with os.ErrClosed.
func (f *FS) Close() error {
	var errs []error
	if f.exec != nil {
		errs = append(errs, f.exec.Close())
	}
	if f.ring != nil {
		errs = append(errs, f.ring.Close())
	}
	return errors.Join(errs...)
}

func existingAncestor(path string) string {
	dir := filepath.Dir(path)
	for {
		if _, err := os.Stat(dir); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return dir
		}
		dir = parent
	}
}

// Compile-time interface checks
var (
	_ aio.Opener         = (*FS)(nil)
	_ aio.PathRequester  = (*FS)(nil)
	_ aio.BufferAdjuster = (*FS)(nil)
)
