// Package aio executes storage load operations (CREATE, READ, UPDATE,
// COPY) with non-blocking, completion-based I/O.
//
// A Driver admits operations through a Throttle, opens channels through a
// backend Opener, issues one I/O call per invocation and hands unfinished
// operations back to the Scheduler. Completion callbacks may arrive on any
// goroutine; each operation has at most one I/O call in flight.
package aio

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/ehrlich-b/go-aio/internal/constants"
	"github.com/ehrlich-b/go-aio/internal/logging"
)

// Params contains parameters for creating a driver
type Params struct {
	// Name identifies the driver (load step) in logs
	Name string

	// Admission
	Concurrency int     // Max ACTIVE operations (default: 64)
	RateLimit   float64 // Max admissions per second, 0 for unlimited
	RateBurst   int     // Burst for RateLimit (default: 1)

	// Transfer
	ChunkSize int  // Max bytes per I/O invocation (default: 1MB)
	Verify    bool // Verify content on READ/UPDATE
}

// DefaultParams returns default driver parameters
func DefaultParams() Params {
	return Params{
		Name:        "aio",
		Concurrency: constants.DefaultConcurrency,
		ChunkSize:   constants.DefaultChunkSize,
		Verify:      true,
	}
}

func (p *Params) validate() error {
	if p.Concurrency < 0 {
		return NewError("NEW", ErrCodeInvalidParameters, fmt.Sprintf("concurrency %d", p.Concurrency))
	}
	if p.ChunkSize < 0 || p.ChunkSize > constants.MaxChunkSize {
		return NewError("NEW", ErrCodeInvalidParameters, fmt.Sprintf("chunk size %d outside (0, %d]", p.ChunkSize, constants.MaxChunkSize))
	}
	if p.RateLimit < 0 {
		return NewError("NEW", ErrCodeInvalidParameters, fmt.Sprintf("rate limit %v", p.RateLimit))
	}
	if p.Concurrency == 0 {
		p.Concurrency = constants.DefaultConcurrency
	}
	if p.ChunkSize == 0 {
		p.ChunkSize = constants.DefaultChunkSize
	}
	if p.Name == "" {
		p.Name = "aio"
	}
	return nil
}

// Options contains additional options for driver creation
type Options struct {
	// Logger for engine events (if nil, the default logger is used)
	Logger *logging.Logger

	// Observer receives metrics events in addition to the driver's own
	// Metrics
	Observer Observer
}

// Driver is the execution engine. It owns no goroutines: it is driven by
// Submit calls and by completions delivered by the backend.
type Driver struct {
	params   Params
	opener   Opener
	sched    Scheduler
	throttle *Throttle
	cache    *channelCache
	metrics  *Metrics
	observer Observer
	logger   *logging.Logger

	closed  atomic.Bool
	errMu   sync.Mutex
	lastErr error
	avgIO   atomic.Int64
}

// New creates a driver over the given backend opener and scheduler
func New(opener Opener, sched Scheduler, params Params, options *Options) (*Driver, error) {
	if opener == nil {
		return nil, NewError("NEW", ErrCodeInvalidParameters, "opener is required")
	}
	if sched == nil {
		return nil, NewError("NEW", ErrCodeInvalidParameters, "scheduler is required")
	}
	if err := params.validate(); err != nil {
		return nil, err
	}
	if options == nil {
		options = &Options{}
	}

	logger := options.Logger
	if logger == nil {
		logger = logging.Default()
	}

	metrics := NewMetrics()
	var observer Observer = NewMetricsObserver(metrics)
	if options.Observer != nil {
		observer = multiObserver{observer, options.Observer}
	}

	return &Driver{
		params:   params,
		opener:   opener,
		sched:    sched,
		throttle: NewThrottle(params.Concurrency, params.RateLimit, params.RateBurst),
		cache:    newChannelCache(),
		metrics:  metrics,
		observer: observer,
		logger:   logger.WithDriver(params.Name),
	}, nil
}

// Name returns the driver name
func (d *Driver) Name() string { return d.params.Name }

// Params returns the effective parameters
func (d *Driver) Params() Params { return d.params }

// Throttle returns the admission throttle
func (d *Driver) Throttle() *Throttle { return d.throttle }

// Metrics returns the driver metrics
func (d *Driver) Metrics() *Metrics { return d.metrics }

// MetricsSnapshot returns a point-in-time snapshot of the driver metrics
func (d *Driver) MetricsSnapshot() MetricsSnapshot { return d.metrics.Snapshot() }

// OpenChannels returns the number of operations holding cached channels
func (d *Driver) OpenChannels() int { return d.cache.len() }

// HasChannels reports whether the operation has a channel cache entry
func (d *Driver) HasChannels(op *Operation) bool { return d.cache.has(op.ID()) }

// IsClosed reports whether Close was called
func (d *Driver) IsClosed() bool { return d.closed.Load() }

// LastError returns the most recent driver-level error, such as a lost
// continuation.
func (d *Driver) LastError() error {
	d.errMu.Lock()
	defer d.errMu.Unlock()
	return d.lastErr
}

func (d *Driver) recordError(err error) {
	d.errMu.Lock()
	d.lastErr = err
	d.errMu.Unlock()
}

// RequestNewPath ensures a destination root exists
func (d *Driver) RequestNewPath(path string) (string, error) {
	if pr, ok := d.opener.(PathRequester); ok {
		return pr.RequestNewPath(path)
	}
	return "", NewError("REQUEST_PATH", ErrCodeNotSupported, "backend cannot create paths")
}

// RequestNewAuthToken is not available for path-only backends
func (d *Driver) RequestNewAuthToken(credential string) (string, error) {
	return "", NewError("REQUEST_AUTH_TOKEN", ErrCodeNotSupported, "backend has no authentication")
}

// List enumerates items under a path. Listing is not part of this engine.
func (d *Driver) List(ctx context.Context, path, prefix string, count int) ([]string, error) {
	return nil, NewError("LIST", ErrCodeNotSupported, "listing is not supported")
}

// AdjustIOBuffers records the average transfer size as a sizing hint and
// forwards it to the backend when it can use it
func (d *Driver) AdjustIOBuffers(avgTransferSize int64, typ OpType) {
	d.avgIO.Store(avgTransferSize)
	if ba, ok := d.opener.(BufferAdjuster); ok {
		ba.AdjustIOBuffers(avgTransferSize, typ)
	}
}

// AvgTransferSize returns the last sizing hint passed to AdjustIOBuffers
func (d *Driver) AvgTransferSize() int64 { return d.avgIO.Load() }

// Close force-closes every cached channel and marks the driver closed.
// Close failures are logged and returned joined; they never stop the
// shutdown.
func (d *Driver) Close() error {
	if !d.closed.CompareAndSwap(false, true) {
		return nil
	}

	var errs []error
	for _, ch := range d.cache.drain() {
		if !ch.IsOpen() {
			continue
		}
		if err := ch.Close(); err != nil {
			d.logger.Warn("failed to close channel on shutdown", "error", err)
			errs = append(errs, err)
		}
	}
	d.metrics.Stop()
	d.logger.Debug("driver closed", "close_errors", len(errs))
	return errors.Join(errs...)
}
