package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"runtime/pprof"
	"syscall"
	"time"

	aio "github.com/ehrlich-b/go-aio"
	"github.com/ehrlich-b/go-aio/backend"
	"github.com/ehrlich-b/go-aio/internal/config"
	"github.com/ehrlich-b/go-aio/internal/constants"
	"github.com/ehrlich-b/go-aio/internal/load"
	"github.com/ehrlich-b/go-aio/internal/logging"
	"github.com/ehrlich-b/go-aio/internal/promexport"
	"github.com/ehrlich-b/go-aio/internal/store"
)

func main() {
	os.Exit(run())
}

func run() int {
	var (
		configPath  = flag.String("config", "", "Path to a YAML config file (default: $XDG_CONFIG_HOME/aio/config.yaml)")
		op          = flag.String("op", "", "Operation type: noop, create, read, update, copy")
		count       = flag.Int("count", 0, "Number of items (0 for every stored item on read/update/copy)")
		size        = flag.String("size", "", "Item size (e.g., 64K, 1M)")
		dst         = flag.String("dst", "", "Destination directory")
		src         = flag.String("src", "", "Source directory")
		concurrency = flag.Int("concurrency", 0, "Max operations in flight")
		chunk       = flag.String("chunk", "", "Max bytes per I/O call (e.g., 256K)")
		engine      = flag.String("engine", "", "File I/O engine: pool or uring")
		verify      = flag.Bool("verify", true, "Verify content on read and update")
		db          = flag.String("db", "", "bbolt item store path")
		verbose     = flag.Bool("v", false, "Verbose output")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		return 2
	}

	set := map[string]bool{}
	flag.Visit(func(f *flag.Flag) { set[f.Name] = true })
	if err := applyFlags(cfg, set, flagValues{
		op: *op, count: *count, size: *size, dst: *dst, src: *src,
		concurrency: *concurrency, chunk: *chunk, engine: *engine,
		verify: *verify, db: *db, verbose: *verbose,
	}); err != nil {
		fmt.Fprintf(os.Stderr, "flags: %v\n", err)
		return 2
	}

	logger, closeLog, err := newLogger(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logging: %v\n", err)
		return 2
	}
	defer closeLog()
	logging.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	go dumpStacksOnSignal(logger)

	if err := runStep(ctx, cfg, logger); err != nil {
		logger.Error("load step failed", "error", err)
		if errors.Is(err, errFailures) {
			return 1
		}
		return 3
	}
	return 0
}

var errFailures = errors.New("operations failed")

// runStep wires backend, scheduler and driver for one load step
func runStep(ctx context.Context, cfg *config.Config, logger *logging.Logger) error {
	typ, ok := aio.ParseOpType(cfg.Load.Op)
	if !ok {
		return fmt.Errorf("unknown op %q", cfg.Load.Op)
	}

	var st *store.Store
	if cfg.Store.Path != "" {
		s, err := store.Open(cfg.Store.Path)
		if err != nil {
			return err
		}
		defer s.Close()
		st = s
	}

	plan, err := planStep(st, cfg.Load, typ)
	if err != nil {
		return err
	}
	if len(plan.ops) == 0 {
		logger.Warn("nothing to do", "op", typ.String())
		return nil
	}

	fs, err := backend.NewFS(backend.FSConfig{
		Engine:      cfg.Driver.IOEngine,
		Workers:     cfg.Driver.Workers,
		QueueSize:   cfg.Driver.Concurrency * 2,
		RingEntries: cfg.Driver.RingEntries,
		Logger:      logger,
	})
	if err != nil {
		return err
	}
	defer fs.Close()

	options := &aio.Options{Logger: logger}
	if cfg.Metrics.Enabled {
		obs := promexport.NewObserver(plan.step.Op.String())
		srv, err := promexport.NewServer(cfg.Metrics.Listen, obs.Registry(), logger)
		if err != nil {
			return err
		}
		srv.Start()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), constants.ShutdownGrace)
			defer cancel()
			if err := srv.Stop(shutdownCtx); err != nil {
				logger.Warn("metrics server stop", "error", err)
			}
		}()
		options.Observer = obs
	}

	params := aio.Params{
		Name:        plan.step.ID[:8],
		Concurrency: cfg.Driver.Concurrency,
		RateLimit:   cfg.Driver.RateLimit,
		RateBurst:   cfg.Driver.RateBurst,
		ChunkSize:   int(cfg.Driver.ChunkSize),
		Verify:      cfg.Driver.Verify,
	}

	runner := load.NewRunner(nil, load.Config{
		Name:         params.Name,
		QueueSize:    cfg.Load.QueueSize,
		DrainTimeout: constants.ShutdownGrace,
		Logger:       logger,
	})
	defer runner.Close()

	driver, err := aio.New(fs, runner, params, options)
	if err != nil {
		return err
	}
	defer func() {
		if err := driver.Close(); err != nil {
			logger.Warn("driver close", "error", err)
		}
	}()
	runner.Attach(driver)

	if cfg.Load.ItemSize > 0 {
		driver.AdjustIOBuffers(cfg.Load.ItemSize.Int64(), typ)
	}

	if dst := plan.step.DstPath; dst != "" && (typ == aio.OpCreate || typ == aio.OpCopy) {
		if _, err := driver.RequestNewPath(dst); err != nil {
			logger.Error("cannot prepare destination", "path", dst, "error", err)
			return fmt.Errorf("destination %s: %w", dst, err)
		}
	}

	logger.Info("starting load step",
		"step", plan.step.ID, "op", typ.String(), "items", len(plan.ops),
		"engine", fs.Engine(), "concurrency", params.Concurrency,
		"chunk", config.FormatSize(int64(params.ChunkSize)))

	started := time.Now()
	res, runErr := runner.Run(ctx, plan.ops)
	driver.Metrics().Stop()

	printSummary(os.Stdout, typ, res, driver.MetricsSnapshot())

	if st != nil {
		if err := plan.persist(st, res, started, runErr); err != nil {
			logger.Error("failed to persist step", "error", err)
		}
	}

	if runErr != nil {
		return runErr
	}
	if res.Failed() > 0 {
		if last := driver.LastError(); last != nil {
			logger.Warn("last failure", "error", last)
		}
		return fmt.Errorf("%w: %d of %d", errFailures, res.Failed(), res.Finished)
	}
	return nil
}

// dumpStacksOnSignal writes all goroutine stacks to stderr and a file on SIGUSR1
func dumpStacksOnSignal(logger *logging.Logger) {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGUSR1)
	for range ch {
		buf := make([]byte, 1024*1024)
		n := runtime.Stack(buf, true)
		fmt.Fprintf(os.Stderr, "\n=== FULL GOROUTINE STACK DUMP ===\n%s\n=== END STACK DUMP ===\n\n", buf[:n])

		filename := fmt.Sprintf("aio-stacks-%d.txt", time.Now().Unix())
		f, err := os.Create(filename)
		if err != nil {
			continue
		}
		fmt.Fprintf(f, "Goroutine stack dump at %s\nProcess ID: %d\n\n", time.Now().Format(time.RFC3339), os.Getpid())
		f.Write(buf[:n])
		fmt.Fprintf(f, "\n\n=== GOROUTINE PROFILE ===\n")
		pprof.Lookup("goroutine").WriteTo(f, 2)
		f.Close()
		logger.Info("stack trace written to file", "file", filename)
	}
}
