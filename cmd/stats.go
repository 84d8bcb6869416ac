package cmd

import (
	"sponsor_worker/config"
	"sponsor_worker/internal/bootstrap"

	"github.com/spf13/cobra"
)

func newStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show thread counts from the CRM store",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.Validate(config.ModeStore, false); err != nil {
				return err
			}
			deps, cleanup, err := bootstrap.NewDependencies(cfg)
			if err != nil {
				return err
			}
			defer cleanup()

			stats, err := deps.Store.ThreadStatistics(cmd.Context())
			if err != nil {
				return err
			}
			printStats(cmd, stats)
			return nil
		},
	}
}
