package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/wasteaudit/wasteaudit/auditor/internal/api"
	"github.com/wasteaudit/wasteaudit/auditor/internal/auth"
	"github.com/wasteaudit/wasteaudit/auditor/internal/config"
	"github.com/wasteaudit/wasteaudit/auditor/internal/pipeline"
	"github.com/wasteaudit/wasteaudit/auditor/internal/source"
	"github.com/wasteaudit/wasteaudit/auditor/internal/store"
	"github.com/wasteaudit/wasteaudit/auditor/internal/ws"
)

const shutdownTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the REST API, WebSocket stream and metrics",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer cancel()
		return serve(ctx)
	},
}

func serve(ctx context.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	pool, err := openPool(ctx, cfg)
	if err != nil {
		return err
	}
	if pool != nil {
		defer pool.Close()
	}

	src, err := source.New(ctx, cfg.Source, "", pool)
	if err != nil {
		return err
	}

	// Results are always held in memory for the API and the stream; a
	// postgres store additionally receives every batch first.
	results := store.NewMemory(cfg.Store.TTL)
	go results.Run(ctx)
	var sink store.Sink = results
	if cfg.Store.Backend == "postgres" {
		sink = store.Tee{store.NewPostgres(pool, cfg.Store.Table), results}
	}

	d, err := buildDeps(cfg, results)
	if err != nil {
		return err
	}
	// Deferred close runs after the HTTP server has drained, so escalations
	// queued by in-flight requests are still delivered.
	d.start()
	defer d.close()

	p := pipeline.New(d.router, pipeline.Options{
		Rules:   cfg.Rules,
		Workers: cfg.Pipeline.Workers,
		Sink:    sink,
		Metrics: d.metrics,
	})

	if configPath != "" {
		go func() {
			err := config.Watch(ctx, configPath, func(c *config.Config) {
				p.SetRules(c.Rules)
				slog.Info("rules reloaded", "cost_critical", c.Rules.CostCritical, "cost_ignore", c.Rules.CostIgnore)
			})
			if err != nil {
				slog.Error("config watcher stopped", "err", err)
			}
		}()
	}

	hub := ws.New(results, cfg.Server.WSInterval)
	go hub.Run(ctx)

	resend := d.sender
	if d.dispatcher != nil {
		// Resends report their outcome to the caller, so they bypass the queue.
		resend = d.senders
	}
	apiHandler := api.New(api.Deps{
		Pipeline:      p,
		Source:        src,
		Results:       results,
		Sender:        resend,
		Compose:       d.compose,
		NotifyTimeout: cfg.Pipeline.NotifyTimeout,
		Changed:       hub.Notify,
	})
	mux := routes(cfg.Server.Auth, apiHandler, hub, d.metrics.Handler())
	srv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.Server.HTTPPort))
	if err != nil {
		return fmt.Errorf("http server: %w", err)
	}
	slog.Info("HTTP server listening", "port", cfg.Server.HTTPPort, "auth_mode", cfg.Server.Auth.Mode)
	return serveUntil(ctx, srv, ln)
}

// routes mounts the API, stream and metrics. Health and metrics stay open
// for health checks and scrapers; everything else requires the API key when set.
func routes(a config.AuthConfig, apiHandler, hub, metricsHandler http.Handler) *http.ServeMux {
	requireKey := auth.RequireAPIKey(a.Mode, a.EffectiveHeader(), a.Key())

	mux := http.NewServeMux()
	mux.Handle("/api/v1/health", apiHandler)
	mux.Handle("/api/", requireKey(apiHandler))
	mux.Handle("/metrics", metricsHandler)
	mux.Handle("/ws/stream", requireKey(hub))
	return mux
}

// serveUntil serves on ln until ctx is cancelled or the server fails, then
// shuts down gracefully, waiting for in-flight requests.
func serveUntil(ctx context.Context, srv *http.Server, ln net.Listener) error {
	errCh := make(chan error, 1)
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	}

	slog.Info("auditor shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
