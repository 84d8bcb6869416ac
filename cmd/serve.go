package cmd

import (
	"context"
	"time"

	"sponsor_worker/config"
	"sponsor_worker/internal/bootstrap"
	"sponsor_worker/pkg/logger"

	"github.com/spf13/cobra"
)

const shutdownTimeout = 30 * time.Second

func newServeCmd() *cobra.Command {
	var port string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the CRM API and run the pipeline on a schedule",
		Long: `Start the HTTP API over the sponsor CRM store.

When SCHEDULE_INTERVAL_MIN is set the full pipeline also runs on that
interval. Runs can be triggered manually with POST /api/v1/runs.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if port != "" {
				cfg.Port = port
			}
			return runServe(cmd.Context(), cfg)
		},
	}

	cmd.Flags().StringVar(&port, "port", "", "Listen port (overrides PORT)")
	return cmd
}

func runServe(ctx context.Context, cfg *config.Config) error {
	if err := cfg.Validate(config.ModeServe, false); err != nil {
		logger.WithError(err).Error("configuration error")
		return err
	}

	deps, cleanup, err := bootstrap.NewDependencies(cfg)
	if err != nil {
		logger.WithError(err).Error("failed to initialize dependencies")
		return err
	}
	defer cleanup()

	server := bootstrap.NewServer(deps)
	if server.Scheduler != nil {
		server.Scheduler.Start()
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("API server starting on port %s", cfg.Port)
		errCh <- server.App.Listen(":" + cfg.Port)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			logger.WithError(err).Error("server stopped")
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
		return err
	case <-ctx.Done():
	}

	logger.Info("Shutting down API server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("server shutdown error")
		return err
	}
	logger.Info("Server stopped gracefully")
	return nil
}
