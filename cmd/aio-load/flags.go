package main

import (
	"fmt"
	"io"
	"os"

	"github.com/ehrlich-b/go-aio/internal/config"
	"github.com/ehrlich-b/go-aio/internal/logging"
)

type flagValues struct {
	op          string
	count       int
	size        string
	dst         string
	src         string
	concurrency int
	chunk       string
	engine      string
	verify      bool
	db          string
	verbose     bool
}

// applyFlags overrides cfg with the flags present in set and validates the
// result. Flags take precedence over file and environment.
func applyFlags(cfg *config.Config, set map[string]bool, v flagValues) error {
	if set["op"] {
		cfg.Load.Op = v.op
	}
	if set["count"] {
		cfg.Load.Count = v.count
	}
	if set["size"] {
		s, err := config.ParseSize(v.size)
		if err != nil {
			return fmt.Errorf("-size: %w", err)
		}
		cfg.Load.ItemSize = s
	}
	if set["dst"] {
		cfg.Load.DstPath = v.dst
	}
	if set["src"] {
		cfg.Load.SrcPath = v.src
	}
	if set["concurrency"] {
		cfg.Driver.Concurrency = v.concurrency
	}
	if set["chunk"] {
		s, err := config.ParseSize(v.chunk)
		if err != nil {
			return fmt.Errorf("-chunk: %w", err)
		}
		cfg.Driver.ChunkSize = s
	}
	if set["engine"] {
		cfg.Driver.IOEngine = v.engine
	}
	if set["verify"] {
		cfg.Driver.Verify = v.verify
	}
	if set["db"] {
		cfg.Store.Path = v.db
	}
	if v.verbose {
		cfg.Logging.Level = "DEBUG"
	}

	config.ApplyDefaults(cfg)
	return config.Validate(cfg)
}

// newLogger builds the root logger. The returned func flushes it and
// closes a log file if one was opened.
func newLogger(lc config.LoggingConfig) (*logging.Logger, func(), error) {
	level, err := logging.ParseLevel(lc.Level)
	if err != nil {
		return nil, nil, err
	}

	var (
		out  io.Writer
		file *os.File
	)
	switch lc.Output {
	case "stdout":
		out = os.Stdout
	case "stderr", "":
		out = os.Stderr
	default:
		file, err = os.OpenFile(lc.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file: %w", err)
		}
		out = file
	}

	logger := logging.NewLogger(&logging.Config{
		Level:   level,
		Format:  lc.Format,
		Output:  out,
		NoColor: file != nil,
	})
	return logger, func() {
		logger.Close()
		if file != nil {
			file.Close()
		}
	}, nil
}
