package promexport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ehrlich-b/go-aio/internal/logging"
)

// Server serves a registry at GET /metrics.
type Server struct {
	server       *http.Server
	listener     net.Listener
	logger       *logging.Logger
	errCh        chan error
	shutdownOnce sync.Once
}

// NewServer binds listen immediately so the caller learns about address
// conflicts before any load runs. Go runtime and process collectors are
// added to reg.
func NewServer(listen string, reg *prometheus.Registry, logger *logging.Logger) (*Server, error) {
	if logger == nil {
		logger = logging.Default()
	}

	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	}))

	ln, err := net.Listen("tcp", listen)
	if err != nil {
		return nil, fmt.Errorf("metrics listen %s: %w", listen, err)
	}

	return &Server{
		server: &http.Server{
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
		listener: ln,
		logger:   logger,
		errCh:    make(chan error, 1),
	}, nil
}

// Addr returns the bound address
func (s *Server) Addr() string {
	return s.listener.Addr().String()
}

// Start serves in the background. Errors other than a clean shutdown are
// reported by Stop.
func (s *Server) Start() {
	s.logger.Info("metrics server listening", "addr", s.Addr())
	go func() {
		if err := s.server.Serve(s.listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("metrics server failed", "error", err)
			s.errCh <- err
		}
	}()
}

// Stop shuts the server down. Safe to call more than once.
func (s *Server) Stop(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		if shutdownErr := s.server.Shutdown(ctx); shutdownErr != nil {
			err = fmt.Errorf("metrics server shutdown: %w", shutdownErr)
			return
		}
		select {
		case err = <-s.errCh:
		default:
		}
		s.logger.Debug("metrics server stopped")
	})
	return err
}
