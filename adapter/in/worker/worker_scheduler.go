package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	"sponsor_worker/core/domain"
	"sponsor_worker/core/service/pipeline"

	"github.com/rs/zerolog"
)

// =============================================================================
// RunScheduler - 주기적 파이프라인 실행
// =============================================================================
//
// serve 모드에서 수집과 처리를 일정 간격으로 실행합니다.
// 다른 프로세스가 락을 잡고 있으면 해당 주기는 건너뜁니다.

const (
	DefaultStartDelay = 30 * time.Second
	DefaultRunTimeout = 10 * time.Minute
)

// Runner is the pipeline entry point driven by the scheduler.
type Runner interface {
	Run(ctx context.Context, opts pipeline.Options) (*domain.ProcessingResult, error)
}

// SchedulerConfig configures a RunScheduler.
type SchedulerConfig struct {
	Interval time.Duration
	// StartDelay waits before the first run (default 30s).
	StartDelay time.Duration
	// RunTimeout bounds a single run (default 10m).
	RunTimeout time.Duration
}

// RunScheduler triggers pipeline runs on a fixed interval.
type RunScheduler struct {
	runner Runner
	cfg    SchedulerConfig
	log    zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewRunScheduler creates a scheduler. Start does nothing when the interval
// is not positive.
func NewRunScheduler(runner Runner, cfg SchedulerConfig, log zerolog.Logger) *RunScheduler {
	if cfg.StartDelay < 0 {
		cfg.StartDelay = 0
	} else if cfg.StartDelay == 0 {
		cfg.StartDelay = DefaultStartDelay
	}
	if cfg.RunTimeout <= 0 {
		cfg.RunTimeout = DefaultRunTimeout
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &RunScheduler{
		runner: runner,
		cfg:    cfg,
		log:    log.With().Str("component", "scheduler").Logger(),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start starts the scheduler loop.
func (s *RunScheduler) Start() {
	if s.cfg.Interval <= 0 {
		s.log.Info().Msg("scheduler disabled")
		return
	}
	s.log.Info().Dur("interval", s.cfg.Interval).Msg("scheduler starting")

	s.wg.Add(1)
	go s.loop()
}

// Stop cancels the loop and waits for an in-flight run to return.
func (s *RunScheduler) Stop() {
	s.cancel()
	s.wg.Wait()
	s.log.Info().Msg("scheduler stopped")
}

func (s *RunScheduler) loop() {
	defer s.wg.Done()

	// 시작 직후 서버 안정화 대기
	select {
	case <-s.ctx.Done():
		return
	case <-time.After(s.cfg.StartDelay):
	}

	s.runOnce()

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.runOnce()
		}
	}
}

func (s *RunScheduler) runOnce() {
	ctx, cancel := context.WithTimeout(s.ctx, s.cfg.RunTimeout)
	defer cancel()

	result, err := s.runner.Run(ctx, pipeline.Options{})
	switch {
	case errors.Is(err, pipeline.ErrRunInProgress):
		s.log.Info().Msg("run skipped, another run holds the lock")
	case err != nil:
		s.log.Error().Err(err).Msg("scheduled run failed")
	default:
		s.log.Info().
			Int("new_threads", result.NewThreads).
			Int("updated_threads", result.UpdatedThreads).
			Msg("scheduled run finished")
	}
}
