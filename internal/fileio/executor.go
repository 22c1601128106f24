// Package fileio runs positional file reads and writes on a fixed pool of
// worker goroutines and reports each transfer through a completion handler.
package fileio

import (
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ehrlich-b/go-aio/internal/constants"
	"github.com/ehrlich-b/go-aio/internal/interfaces"
	"github.com/ehrlich-b/go-aio/internal/logging"
)

type jobKind uint8

const (
	jobRead jobKind = iota
	jobWrite
)

// job is one pread or pwrite
type job struct {
	kind jobKind
	f    *os.File
	p    []byte
	off  int64
	h    interfaces.CompletionHandler
}

// Config configures an Executor
type Config struct {
	Workers   int // worker goroutines (default: 16)
	QueueSize int // buffered jobs before submitters spill (default: 4*Workers)
	Logger    *logging.Logger
}

// Executor is a worker pool for file I/O. Submission never blocks: when
// the job queue is full the job runs on its own goroutine.
type Executor struct {
	jobs   chan job
	stopCh chan struct{}
	wg     sync.WaitGroup

	// mu orders submissions against Close so no job is sent on a
	// stopped pool.
	mu     sync.RWMutex
	closed bool

	reads        atomic.Uint64
	writes       atomic.Uint64
	spilled      atomic.Uint64
	failures     atomic.Uint64
	pending      atomic.Int64
	totalLatency atomic.Uint64

	logger *logging.Logger
}

// NewExecutor starts the worker pool
func NewExecutor(cfg Config) *Executor {
	if cfg.Workers <= 0 {
		cfg.Workers = constants.DefaultWorkers
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = cfg.Workers * 4
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}

	e := &Executor{
		jobs:   make(chan job, cfg.QueueSize),
		stopCh: make(chan struct{}),
		logger: logger,
	}
	for i := 0; i < cfg.Workers; i++ {
		e.wg.Add(1)
		go e.worker()
	}
	logger.Debug("file I/O executor started", "workers", cfg.Workers, "queue_size", cfg.QueueSize)
	return e
}

func (e *Executor) submit(j job) {
	e.mu.RLock()
	if e.closed {
		e.mu.RUnlock()
		e.failures.Add(1)
		j.h.Failed(os.ErrClosed)
		return
	}
	e.pending.Add(1)
	select {
	case e.jobs <- j:
		e.mu.RUnlock()
	default:
		e.mu.RUnlock()
		e.spilled.Add(1)
		go e.run(j)
	}
}

func (e *Executor) worker() {
	defer e.wg.Done()
	for {
		select {
		case j := <-e.jobs:
			e.run(j)
		case <-e.stopCh:
			// finish what was queued before Close
			for {
				select {
				case j := <-e.jobs:
					e.run(j)
				default:
					return
				}
			}
		}
	}
}

func (e *Executor) run(j job) {
	start := time.Now()
	var (
		n   int
		err error
	)
	switch j.kind {
	case jobRead:
		n, err = j.f.ReadAt(j.p, j.off)
		e.reads.Add(1)
		if err == io.EOF {
			err = nil
		}
	case jobWrite:
		n, err = j.f.WriteAt(j.p, j.off)
		e.writes.Add(1)
		if n > 0 {
			// a partial write is progress; the error resurfaces on the next call
			err = nil
		}
	}
	e.totalLatency.Add(uint64(time.Since(start).Nanoseconds()))
	e.pending.Add(-1)

	if err != nil {
		e.failures.Add(1)
		j.h.Failed(err)
		return
	}
	j.h.Completed(n)
}

// Pending returns the number of submitted jobs not yet completed
func (e *Executor) Pending() int64 {
	return e.pending.Load()
}

// Stats returns executor counters
func (e *Executor) Stats() map[string]int64 {
	reads, writes := e.reads.Load(), e.writes.Load()
	stats := map[string]int64{
		"reads":    int64(reads),
		"writes":   int64(writes),
		"spilled":  int64(e.spilled.Load()),
		"failures": int64(e.failures.Load()),
		"pending":  e.pending.Load(),
	}
	if total := reads + writes; total > 0 {
		stats["avg_latency_ns"] = int64(e.totalLatency.Load() / total)
	}
	return stats
}

// Close stops accepting jobs, runs the queued ones and waits for the
// workers to exit. Later submissions fail with os.ErrClosed.
func (e *Executor) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	close(e.stopCh)
	e.mu.Unlock()

	e.wg.Wait()
	e.logger.Debug("file I/O executor stopped", "reads", e.reads.Load(), "writes", e.writes.Load())
	return nil
}
