package cmd

import (
	"context"
	"fmt"
	"time"

	"sponsor_worker/adapter/out/persistence"
	"sponsor_worker/config"
	"sponsor_worker/internal/bootstrap"
	"sponsor_worker/pkg/logger"

	"github.com/spf13/cobra"
)

func newSetupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "setup",
		Short: "Create database tables and MongoDB indexes",
		Long: `Apply the PostgreSQL schema and, when MONGODB_URL is set, the archive
and run report indexes. Safe to run repeatedly.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSetup(cmd, cfg)
		},
	}
}

func runSetup(cmd *cobra.Command, cfg *config.Config) error {
	if err := cfg.Validate(config.ModeStore, false); err != nil {
		return err
	}

	deps, cleanup, err := bootstrap.NewDependencies(cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	ctx, cancel := context.WithTimeout(cmd.Context(), time.Minute)
	defer cancel()

	if err := persistence.EnsureSchema(ctx, deps.SQLDB); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), "PostgreSQL schema is up to date")

	if deps.Archive != nil {
		if err := deps.Archive.EnsureIndexes(ctx); err != nil {
			return fmt.Errorf("message archive indexes: %w", err)
		}
	}
	if deps.Reports != nil {
		if err := deps.Reports.EnsureIndexes(ctx); err != nil {
			return fmt.Errorf("run report indexes: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), "MongoDB indexes are up to date")
	}

	logger.Info("setup complete")
	return nil
}
