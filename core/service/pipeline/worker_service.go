// Package pipeline orchestrates mailbox collection and sponsor extraction.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"sponsor_worker/core/domain"
	"sponsor_worker/core/port/out"
	"sponsor_worker/core/service/identity"
	"sponsor_worker/core/service/keyword"
	"sponsor_worker/core/service/participant"
	"sponsor_worker/core/service/priority"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ErrRunInProgress is returned when another process holds the run lock.
var ErrRunInProgress = errors.New("pipeline run already in progress")

const (
	lockName = "sponsor-pipeline"

	StageCollect = "collect"
	StageProcess = "process"
)

// Options control a single run.
type Options struct {
	DryRun bool
	// Limit caps threads per processing run; zero uses Config.ProcessLimit.
	Limit int
}

// Config holds run settings.
type Config struct {
	// Keywords searched in subjects.
	Keywords   []string
	StartDate  time.Time
	MaxResults int

	ProcessLimit int
	Workers      int
	LockTTL      time.Duration
}

func (c *Config) setDefaults() {
	if c.MaxResults <= 0 {
		c.MaxResults = 500
	}
	if c.ProcessLimit <= 0 {
		c.ProcessLimit = 100
	}
	if c.Workers <= 0 {
		c.Workers = 4
	}
	if c.LockTTL <= 0 {
		c.LockTTL = 15 * time.Minute
	}
}

// Deps are the collaborators of a Service. Archive, Lock and Reporter are
// optional.
type Deps struct {
	Source    out.MailSource
	Store     out.ThreadStore
	Extractor out.SponsorExtractor
	Archive   out.BodyArchive
	Lock      out.RunLock
	Reporter  out.RunReporter

	Filter     *keyword.Filter
	Resolver   *identity.Resolver
	Calculator *priority.Calculator
	Normalizer *participant.Normalizer
}

// Service runs the collection and processing stages.
type Service struct {
	deps Deps
	cfg  Config
	log  zerolog.Logger
	now  func() time.Time
}

// NewService creates a pipeline service.
func NewService(deps Deps, cfg Config, log zerolog.Logger) *Service {
	cfg.setDefaults()
	return &Service{
		deps: deps,
		cfg:  cfg,
		log:  log.With().Str("component", "pipeline").Logger(),
		now:  time.Now,
	}
}

// Collect searches the mailbox and persists sponsorship threads.
func (s *Service) Collect(ctx context.Context, opts Options) (*domain.ProcessingResult, error) {
	start := s.now()
	var result *domain.ProcessingResult
	err := s.locked(ctx, opts, func(ctx context.Context) error {
		var err error
		result, err = s.collect(ctx, opts)
		return err
	})
	result, err = orEmpty(result, err)
	s.record(domain.RunModeCollect, opts, start, result, err)
	return result, err
}

// Process runs extraction over threads awaiting processing.
func (s *Service) Process(ctx context.Context, opts Options) (*domain.ProcessingResult, error) {
	start := s.now()
	var result *domain.ProcessingResult
	err := s.locked(ctx, opts, func(ctx context.Context) error {
		var err error
		result, err = s.process(ctx, opts)
		return err
	})
	result, err = orEmpty(result, err)
	s.record(domain.RunModeProcess, opts, start, result, err)
	return result, err
}

// Run collects then processes, returning the combined result. Processing
// still runs when collection fails.
func (s *Service) Run(ctx context.Context, opts Options) (*domain.ProcessingResult, error) {
	start := s.now()
	var combined *domain.ProcessingResult
	err := s.locked(ctx, opts, func(ctx context.Context) error {
		collected, collectErr := s.collect(ctx, opts)
		processed, processErr := s.process(ctx, opts)
		combined = domain.Combine(collected, processed)

		s.log.Info().
			Int("new_threads", combined.NewThreads).
			Int("messages_processed", combined.MessagesProcessed).
			Int("updated_threads", combined.UpdatedThreads).
			Int("errors", len(combined.Errors)).
			Bool("dry_run", opts.DryRun).
			Msg("pipeline summary")
		for _, e := range combined.Errors {
			s.log.Warn().Str("error", e).Msg("pipeline error")
		}

		return errors.Join(collectErr, processErr)
	})
	combined, err = orEmpty(combined, err)
	s.record(domain.RunModeFull, opts, start, combined, err)
	return combined, err
}

// record stores a run report. Dry runs and runs refused by the lock are not
// recorded.
func (s *Service) record(mode domain.RunMode, opts Options, start time.Time, result *domain.ProcessingResult, err error) {
	if s.deps.Reporter == nil || opts.DryRun || errors.Is(err, ErrRunInProgress) {
		return
	}

	report := &domain.RunReport{
		ID:         uuid.New(),
		Mode:       mode,
		StartedAt:  start.UTC(),
		FinishedAt: s.now().UTC(),
		Result:     result,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.deps.Reporter.RecordRun(ctx, report); err != nil {
		s.log.Warn().Err(err).Str("mode", string(mode)).Msg("failed to record run report")
	}
}

// locked runs fn under the run lock. Dry runs write nothing and skip it.
func (s *Service) locked(ctx context.Context, opts Options, fn func(context.Context) error) error {
	if s.deps.Lock == nil || opts.DryRun {
		return fn(ctx)
	}

	release, ok, err := s.deps.Lock.Acquire(ctx, lockName, s.cfg.LockTTL)
	if err != nil {
		return fmt.Errorf("acquire run lock: %w", err)
	}
	if !ok {
		return ErrRunInProgress
	}
	defer func() {
		// 취소된 ctx로는 해제가 실패하므로 별도 ctx 사용
		releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := release(releaseCtx); err != nil {
			s.log.Warn().Err(err).Msg("failed to release run lock")
		}
	}()

	return fn(ctx)
}

func orEmpty(result *domain.ProcessingResult, err error) (*domain.ProcessingResult, error) {
	if result == nil {
		result = &domain.ProcessingResult{}
		if err != nil {
			result.AddError("%v", err)
		}
	}
	return result, err
}
