// Package tether supervises a bundled backend server for a desktop shell.
// It launches the backend executable, learns its port from the
// SERVER_PORT:<port> line the backend prints, and kills it on shutdown.
package tether

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/loykin/tether/internal/backend"
	"github.com/loykin/tether/internal/config"
	"github.com/loykin/tether/internal/history"
	"github.com/loykin/tether/internal/history/factory"
	"github.com/loykin/tether/internal/metrics"
	"github.com/loykin/tether/internal/server"
	"github.com/loykin/tether/internal/supervisor"
)

// Re-export core types for external consumers.

type Spec = backend.Spec

type Status = supervisor.Status

type State = supervisor.State

type Supervisor = supervisor.Supervisor

type Option = supervisor.Option

type Resolver = backend.Resolver

type Config = config.Config

type HistorySink = history.Sink

type HistoryEvent = history.Event

var (
	ErrNotFound            = backend.ErrNotFound
	ErrPermission          = backend.ErrPermission
	ErrSpawn               = backend.ErrSpawn
	ErrHandshakeIncomplete = backend.ErrHandshakeIncomplete
	ErrHandshakeTimeout    = backend.ErrHandshakeTimeout
	ErrDrain               = backend.ErrDrain
	ErrShutdown            = backend.ErrShutdown
	ErrAlreadyStarted      = supervisor.ErrAlreadyStarted
	ErrNotReady            = supervisor.ErrNotReady
)

// IsStartupErr reports whether err should abort application startup.
func IsStartupErr(err error) bool { return backend.IsStartupErr(err) }

// New returns an idle supervisor for spec.
func New(spec Spec, opts ...Option) *Supervisor { return supervisor.New(spec, opts...) }

func WithLogger(l *slog.Logger) Option     { return supervisor.WithLogger(l) }
func WithResolver(r Resolver) Option       { return supervisor.WithResolver(r) }
func WithHTTPClient(c *http.Client) Option { return supervisor.WithHTTPClient(c) }

// WithHistory records lifecycle events to sink.
func WithHistory(sink HistorySink, logger *slog.Logger) Option {
	return supervisor.WithRecorder(history.NewRecorder(sink, logger))
}

// HistorySinkFromDSN opens a sqlite, postgres, clickhouse or opensearch sink.
func HistorySinkFromDSN(dsn string) (HistorySink, error) { return factory.NewSinkFromDSN(dsn) }

func FixedDir(path string) Resolver     { return backend.FixedDir(path) }
func ExecutableDir(sub string) Resolver { return backend.ExecutableDir(sub) }

// LoadConfig reads a TOML config, applying TETHER_* environment overrides.
func LoadConfig(path string) (*Config, error) { return config.Load(path) }

// NewFromConfig loads path and returns a supervisor for its backend section.
func NewFromConfig(path string, opts ...Option) (*Supervisor, error) {
	c, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	spec, err := c.BackendSpec()
	if err != nil {
		return nil, err
	}
	return supervisor.New(spec, opts...), nil
}

// NewHTTPServer starts the read-only query API for s.
func NewHTTPServer(addr, basePath string, s *Supervisor) (*http.Server, error) {
	return server.NewServer(addr, basePath, s)
}

// Metrics helpers (public facade)

func RegisterMetrics(r prometheus.Registerer) error { return metrics.Register(r) }
func RegisterMetricsDefault() error                 { return metrics.Register(prometheus.DefaultRegisterer) }

// ServeMetrics serves /metrics from the default registry on addr. It blocks.
func ServeMetrics(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return srv.ListenAndServe()
}
