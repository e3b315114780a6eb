package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/loykin/tether/internal/backend"
	"github.com/loykin/tether/internal/config"
	"github.com/loykin/tether/internal/history"
	"github.com/loykin/tether/internal/history/factory"
	"github.com/loykin/tether/internal/logger"
	"github.com/loykin/tether/internal/metrics"
	"github.com/loykin/tether/internal/server"
	"github.com/loykin/tether/internal/supervisor"
)

func createRunCommand(globalFlags *GlobalFlags) *cobra.Command {
	f := &RunFlags{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Launch the backend and supervise it until interrupted",
		Long: `Run launches the backend, waits for its port handshake and serves the
query API. SIGINT or SIGTERM kills the backend and exits. A missing or
unlaunchable backend exits with status 1.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHost(cmd, globalFlags.ConfigPath)
		},
	}
	cmd.Flags().StringVar(&f.InstallDir, "install-dir", "", `directory holding the backend executable, or "exe:<sub>"`)
	cmd.Flags().DurationVar(&f.HandshakeTimeout, "handshake-timeout", backend.DefaultHandshakeTimeout, "how long to wait for SERVER_PORT (0 waits forever)")
	cmd.Flags().StringVar(&f.Listen, "listen", "", "query API address; empty disables it")
	return cmd
}

func runHost(cmd *cobra.Command, configPath string) error {
	fl := cmd.Flags()
	cfg, err := config.Load(configPath,
		config.FlagBinding{Key: "backend.install_dir", Flag: fl.Lookup("install-dir")},
		config.FlagBinding{Key: "backend.handshake_timeout", Flag: fl.Lookup("handshake-timeout")},
		config.FlagBinding{Key: "server.listen", Flag: fl.Lookup("listen")},
	)
	if err != nil {
		return err
	}

	log, closer, err := logger.New(cfg.LoggerSettings())
	if err != nil {
		return err
	}
	defer func() { _ = closer.Close() }()

	spec, err := cfg.BackendSpec()
	if err != nil {
		return err
	}

	opts := []supervisor.Option{supervisor.WithLogger(log)}
	if cfg.History.Enabled {
		sink, err := factory.NewSinkFromDSN(cfg.History.DSN)
		if err != nil {
			log.Warn("History disabled", "error", err)
		} else {
			rec := history.NewRecorder(sink, log)
			defer func() { _ = rec.Close() }()
			opts = append(opts, supervisor.WithRecorder(rec))
		}
	}

	var routerOpts []server.RouterOption
	if cfg.Metrics.Enabled {
		if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
			return fmt.Errorf("register metrics: %w", err)
		}
		if cfg.Metrics.Listen != "" {
			msrv := &http.Server{Addr: cfg.Metrics.Listen, Handler: metrics.Handler(), ReadHeaderTimeout: 10 * time.Second}
			go func() {
				if err := msrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Error("Metrics listener failed", "addr", cfg.Metrics.Listen, "error", err)
				}
			}()
			defer func() { _ = msrv.Close() }()
		} else {
			routerOpts = append(routerOpts, server.WithMetrics())
		}
	}

	sup := supervisor.New(spec, opts...)

	if cfg.Server.Listen != "" {
		gin.SetMode(gin.ReleaseMode)
		srv, err := server.NewServer(cfg.Server.Listen, cfg.Server.BasePath, sup, routerOpts...)
		if err != nil {
			return fmt.Errorf("query API: %w", err)
		}
		log.Info("Query API listening", "addr", srv.Addr, "base_path", cfg.Server.BasePath)
		defer shutdownServer(srv, log)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := sup.Start(ctx); err != nil {
		if ctx.Err() == nil {
			return err
		}
	}
	defer sup.Shutdown()

	if port, ok := sup.Port(); ok {
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "backend ready on http://localhost:%d\n", port)
	}

	select {
	case <-ctx.Done():
		log.Info("Shutting down")
	case <-sup.Done():
		log.Warn("Backend exited; shutting down host")
	}
	return nil
}

func shutdownServer(srv *http.Server, log *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Warn("Query API shutdown", "error", err)
	}
}
