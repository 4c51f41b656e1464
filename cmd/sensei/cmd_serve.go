package main

import (
	"errors"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"sensei/internal/embedding"
	"sensei/internal/server"
)

// serveCmd runs the HTTP API
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the tutoring HTTP API",
	Long: `Starts the HTTP API. Stale ingestion jobs left running by a previous
process are marked failed before the listener comes up.`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	a, err := buildApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if n, err := a.jobs.Recover(ctx); err != nil {
		return err
	} else if n > 0 {
		logger.Warn("Recovered stale ingestion jobs", zap.Int64("count", n))
	}

	// Surface an unreachable embedding backend at startup. Non-fatal: the
	// engine may come up later.
	if hc, ok := a.engine.(embedding.HealthChecker); ok {
		if err := hc.HealthCheck(ctx); err != nil {
			logger.Warn("Embedding engine health check failed",
				zap.String("engine", a.engine.Name()), zap.Error(err))
		}
	}

	logger.Info("Starting server",
		zap.String("addr", a.cfg.Server.Addr),
		zap.String("db", a.cfg.Store.DatabasePath),
		zap.String("embedding", a.engine.Name()),
		zap.Bool("reranker", a.cfg.Reranker.Enabled))

	srv := server.New(a.cfg, a.tutor, a.jobs, a.store)
	if err := srv.ListenAndServe(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	logger.Info("Server stopped")
	return nil
}
