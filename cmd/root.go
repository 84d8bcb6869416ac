package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"sponsor_worker/config"
	"sponsor_worker/core/domain"
	"sponsor_worker/core/service/pipeline"
	"sponsor_worker/internal/bootstrap"
	"sponsor_worker/pkg/logger"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

// rootCmd runs the sponsorship pipeline when no subcommand is given.
var rootCmd = &cobra.Command{
	Use:   "sponsor-worker",
	Short: "Collects sponsorship email threads and extracts CRM fields",
	Long: `sponsor-worker pulls sponsorship related threads from a Gmail mailbox,
deduplicates them against the CRM store, and fills in sponsor details with
a language model and a heuristic priority score.

Without a subcommand it runs the pipeline once:
  sponsor-worker                  collect then process
  sponsor-worker --collect-only   mailbox collection only
  sponsor-worker --process-only   LLM processing only
  sponsor-worker --dry-run        no writes`,
	SilenceUsage:      true,
	PersistentPreRunE: loadConfig,
	RunE:              runPipeline,
}

// version will be set by main
var version = "dev"

var (
	cfg *config.Config

	collectOnly bool
	processOnly bool
	dryRun      bool
	limit       int
)

// SetVersion sets the version for the root command
func SetVersion(v string) {
	version = v
	rootCmd.Version = v
}

// Execute is the main entry point for the CLI application. Any failure,
// including an interrupted run, exits with status 1.
func Execute(ctx context.Context) {
	rootCmd.SetVersionTemplate(`{{printf "sponsor-worker version %s\n" .Version}}`)

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.Flags().BoolVar(&collectOnly, "collect-only", false, "Only collect new threads from the mailbox")
	rootCmd.Flags().BoolVar(&processOnly, "process-only", false, "Only run LLM processing on stored threads")
	rootCmd.Flags().BoolVar(&dryRun, "dry-run", false, "Run without writing to the store")
	rootCmd.Flags().IntVar(&limit, "limit", 0, "Maximum threads to process (0 uses PROCESS_LIMIT)")
	rootCmd.MarkFlagsMutuallyExclusive("collect-only", "process-only")

	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newSetupCmd())
	rootCmd.AddCommand(newStatsCmd())
	rootCmd.AddCommand(newTaskCmd())
	rootCmd.AddCommand(newVersionCmd())
}

func loadConfig(cmd *cobra.Command, args []string) error {
	// .env is optional (local development)
	_ = godotenv.Load()

	loaded, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	logger.Init(logger.Config{
		Level:   loaded.LogLevel,
		Service: "sponsor-worker",
		Pretty:  loaded.IsDevelopment(),
	})
	cfg = loaded
	return nil
}

func runMode() config.Mode {
	switch {
	case collectOnly:
		return config.ModeCollect
	case processOnly:
		return config.ModeProcess
	default:
		return config.ModeRun
	}
}

func runPipeline(cmd *cobra.Command, args []string) error {
	mode := runMode()
	if err := cfg.Validate(mode, dryRun); err != nil {
		logger.WithError(err).Error("configuration error")
		return err
	}

	deps, cleanup, err := bootstrap.NewDependencies(cfg)
	if err != nil {
		logger.WithError(err).Error("failed to initialize dependencies")
		return err
	}
	defer cleanup()

	ctx := cmd.Context()
	opts := pipeline.Options{DryRun: dryRun, Limit: limit}

	logger.WithFields(map[string]any{
		"mode":    string(mode),
		"dry_run": dryRun,
	}).Info("starting sponsor pipeline")

	start := time.Now()
	var result *domain.ProcessingResult
	switch mode {
	case config.ModeCollect:
		result, err = deps.Pipeline.Collect(ctx, opts)
	case config.ModeProcess:
		result, err = deps.Pipeline.Process(ctx, opts)
	default:
		result, err = deps.Pipeline.Run(ctx, opts)
	}

	logger.WithDuration(time.Since(start)).Info("%s run finished", mode)
	if result != nil {
		printSummary(cmd, result)
	}
	if deps.LLMClient != nil {
		usage := deps.LLMClient.Costs().Snapshot()
		logger.WithFields(map[string]any{
			"requests":          usage.Requests,
			"prompt_tokens":     usage.PromptTokens,
			"completion_tokens": usage.CompletionTokens,
			"cost_usd":          usage.TotalCost,
		}).Info("llm usage")
	}
	if ctx.Err() != nil {
		logger.Warn("run interrupted")
		return ctx.Err()
	}
	if errors.Is(err, pipeline.ErrRunInProgress) {
		logger.Warn("another run holds the lock, nothing to do")
		return err
	}
	if err != nil {
		logger.WithError(err).Error("pipeline failed")
		return err
	}
	if result != nil && !result.Success {
		return fmt.Errorf("pipeline did not complete")
	}
	return nil
}
