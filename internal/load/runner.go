// Package load drives a set of operations through an aio.Driver. The
// Runner is the driver's Scheduler: it admits pending operations in
// batches, resubmits continuations and collects finished operations.
package load

import (
	"context"
	"errors"
	"sync"
	"time"

	aio "github.com/ehrlich-b/go-aio"
	"github.com/ehrlich-b/go-aio/internal/constants"
	"github.com/ehrlich-b/go-aio/internal/logging"
	"github.com/ehrlich-b/go-aio/internal/queue"
)

// ErrNoDriver is returned by Run before Attach
var ErrNoDriver = errors.New("load: runner has no driver")

// Config configures a Runner
type Config struct {
	Name         string        // step name for logs
	QueueSize    int           // continuation queue capacity
	RetryBackoff time.Duration // wait after a refused admission
	DrainTimeout time.Duration // how long in-flight work may finish after cancellation
	Logger       *logging.Logger
}

// Result summarizes one Run
type Result struct {
	Admitted int
	Finished int
	Skipped  int // already terminal when Run started
	ByStatus map[aio.Status]int
	Elapsed  time.Duration
}

// Failed returns the number of finished operations that did not succeed
func (r Result) Failed() int {
	return r.Finished - r.ByStatus[aio.StatusSucc]
}

// Runner schedules operations for one driver
type Runner struct {
	driver *aio.Driver
	cfg    Config
	logger *logging.Logger

	cont   *queue.Continuation[*aio.Operation]
	notify chan struct{}

	mu   sync.Mutex
	done []*aio.Operation
}

// NewRunner creates a runner. d may be nil when the driver is built with
// the runner as its scheduler; Attach it before Run.
func NewRunner(d *aio.Driver, cfg Config) *Runner {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = constants.DefaultContinuationQueueSize
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = constants.RetryBackoff
	}
	if cfg.DrainTimeout <= 0 {
		cfg.DrainTimeout = constants.ShutdownGrace
	}
	if cfg.Name == "" {
		cfg.Name = "load"
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}
	return &Runner{
		driver: d,
		cfg:    cfg,
		logger: logger.WithDriver(cfg.Name),
		cont:   queue.NewContinuation[*aio.Operation](cfg.QueueSize),
		notify: make(chan struct{}, 1),
	}
}

// Attach sets the driver the runner submits to
func (r *Runner) Attach(d *aio.Driver) { r.driver = d }

// Resubmit implements aio.Scheduler
func (r *Runner) Resubmit(op *aio.Operation) bool {
	ok := r.cont.Offer(op)
	r.wake()
	return ok
}

// Done implements aio.Scheduler
func (r *Runner) Done(op *aio.Operation) {
	r.mu.Lock()
	r.done = append(r.done, op)
	r.mu.Unlock()
	r.wake()
}

func (r *Runner) wake() {
	select {
	case r.notify <- struct{}{}:
	default:
	}
}

// Backlog returns the number of queued continuations
func (r *Runner) Backlog() int { return r.cont.Len() }

// Close refuses further continuations
func (r *Runner) Close() { r.cont.Close() }

// Run drives ops until each one is terminal or ctx is done. On
// cancellation no new operation is admitted; admitted ones get up to
// DrainTimeout to finish and ctx.Err() is returned.
func (r *Runner) Run(ctx context.Context, ops []*aio.Operation) (Result, error) {
	res := Result{ByStatus: make(map[aio.Status]int)}
	if r.driver == nil {
		return res, ErrNoDriver
	}
	start := time.Now()

	pending := make([]*aio.Operation, 0, len(ops))
	for _, op := range ops {
		if op.Status().IsTerminal() {
			res.Skipped++
			continue
		}
		pending = append(pending, op)
	}
	target := len(pending)
	r.logger.Info("load step started", "ops", target, "skipped", res.Skipped)

	timer := time.NewTimer(r.cfg.RetryBackoff)
	defer timer.Stop()

	for {
		progressed, err := r.continuations(ctx)
		if err != nil {
			return r.stop(start, &res, err)
		}

		if len(pending) > 0 {
			n, err := r.driver.SubmitBatch(ctx, pending, 0, len(pending))
			res.Admitted += n
			pending = pending[n:]
			if err != nil {
				return r.stop(start, &res, err)
			}
			progressed = progressed || n > 0
		}

		r.collect(&res)
		if res.Finished >= target {
			break
		}
		if progressed {
			continue
		}

		// admission refused or everything in flight
		timer.Reset(r.cfg.RetryBackoff)
		select {
		case <-r.notify:
		case <-timer.C:
		case <-ctx.Done():
			return r.stop(start, &res, ctx.Err())
		}
	}

	res.Elapsed = time.Since(start)
	r.logger.Info("load step finished", "finished", res.Finished, "failed", res.Failed(),
		"elapsed", res.Elapsed.String())
	return res, nil
}

// continuations resubmits every queued continuation. A continuation that
// could not be issued is queued again.
func (r *Runner) continuations(ctx context.Context) (bool, error) {
	progressed := false
	for {
		op, ok := r.cont.Poll()
		if !ok {
			return progressed, nil
		}
		progressed = true
		if _, err := r.driver.Submit(ctx, op); err != nil {
			if op.Status() == aio.StatusActive {
				r.cont.Offer(op)
			}
			return progressed, err
		}
	}
}

func (r *Runner) collect(res *Result) {
	r.mu.Lock()
	done := r.done
	r.done = nil
	r.mu.Unlock()
	for _, op := range done {
		res.Finished++
		res.ByStatus[op.Status()]++
	}
}

// stop lets admitted operations finish within DrainTimeout
func (r *Runner) stop(start time.Time, res *Result, cause error) (Result, error) {
	ctx, cancel := context.WithTimeout(context.Background(), r.cfg.DrainTimeout)
	defer cancel()

	r.collect(res)
	for res.Finished < res.Admitted {
		if _, err := r.continuations(ctx); err != nil {
			break
		}
		r.collect(res)
		if res.Finished >= res.Admitted {
			break
		}
		select {
		case <-r.notify:
		case <-ctx.Done():
		}
		if ctx.Err() != nil {
			break
		}
	}
	r.collect(res)
	res.Elapsed = time.Since(start)

	r.logger.Warn("load step interrupted", "error", cause, "admitted", res.Admitted,
		"finished", res.Finished, "abandoned", res.Admitted-res.Finished)
	return *res, cause
}

var _ aio.Scheduler = (*Runner)(nil)
