package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"sponsor_worker/core/domain"
	"sponsor_worker/core/service/keyword"
	"sponsor_worker/core/service/participant"
	"sponsor_worker/core/service/priority"
	"sponsor_worker/pkg/metrics"

	"github.com/go-pkgz/pool"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// threadWorker implements pool.Worker for thread processing.
type threadWorker struct {
	svc    *Service
	opts   Options
	result *domain.ProcessingResult
}

// Do implements pool.Worker interface.
func (w *threadWorker) Do(ctx context.Context, th *domain.SponsorThread) error {
	w.svc.processThread(ctx, th, w.opts, w.result)
	return nil
}

func (s *Service) process(ctx context.Context, opts Options) (*domain.ProcessingResult, error) {
	start := time.Now()
	result := &domain.ProcessingResult{}
	defer func() {
		metrics.ObserveStage(StageProcess, time.Since(start))
		metrics.RecordErrors(StageProcess, result.ErrorCount())
	}()

	limit := opts.Limit
	if limit <= 0 {
		limit = s.cfg.ProcessLimit
	}

	threads, err := s.deps.Store.ThreadsAwaitingProcessing(ctx, limit)
	if err != nil {
		err = fmt.Errorf("load threads for processing: %w", err)
		result.AddError("LLM processing error: %v", err)
		return result, err
	}
	threads = distinctThreads(threads)
	if len(threads) == 0 {
		s.log.Info().Msg("no threads need processing")
		result.Success = true
		return result, nil
	}
	s.log.Info().Int("threads", len(threads)).Int("workers", s.cfg.Workers).Msg("processing threads")

	// 스레드 ID가 모두 다르므로 워커 간 동일 레코드 쓰기가 없음
	wg := pool.New[*domain.SponsorThread](s.cfg.Workers, &threadWorker{svc: s, opts: opts, result: result}).
		WithWorkerChanSize(len(threads)).
		WithContinueOnError()
	if err := wg.Go(ctx); err != nil {
		err = fmt.Errorf("start processing pool: %w", err)
		result.AddError("LLM processing error: %v", err)
		return result, err
	}
	for _, th := range threads {
		wg.Submit(th)
	}
	if err := wg.Close(ctx); err != nil {
		s.log.Warn().Err(err).Msg("processing pool closed with error")
	}

	if err := ctx.Err(); err != nil {
		result.AddError("LLM processing error: %v", err)
		return result, err
	}

	result.Success = true
	s.log.Info().Int("updated_threads", result.UpdatedThreads).Msg("processing complete")
	return result, nil
}

func (s *Service) processThread(ctx context.Context, th *domain.SponsorThread, opts Options, result *domain.ProcessingResult) {
	log := s.log.With().Str("thread_id", th.ProviderThreadID).Str("id", th.ID.String()).Logger()
	if ctx.Err() != nil {
		return
	}

	messages, err := s.deps.Store.MessagesForThread(ctx, th.ID)
	if err != nil {
		log.Error().Err(err).Msg("failed to load messages")
		result.AddError("Thread %s: %v", th.ID, err)
		return
	}
	if len(messages) == 0 {
		log.Warn().Msg("no messages found for thread")
		return
	}

	start := time.Now()
	info, err := s.deps.Extractor.ExtractSponsorInfo(ctx, th, messages)
	if err != nil {
		metrics.RecordProcessed("failed", time.Since(start))
		log.Error().Err(err).Msg("sponsor extraction failed")
		result.AddError("Thread %s: %v", th.ID, err)
		return
	}
	if info == nil {
		metrics.RecordProcessed("miss", time.Since(start))
		log.Warn().Msg("failed to extract sponsor info, storing calculated priority only")
		s.storeHeuristicFields(ctx, th, messages, opts, log)
		result.Add(1, 0, 0, 0)
		return
	}
	metrics.RecordProcessed("success", time.Since(start))

	fields := s.BuildLLMFields(th, info, messages)

	if opts.DryRun {
		log.Info().Str("priority", string(fields.PriorityLevel)).Msg("[DRY RUN] would update thread")
		result.Add(1, 0, 0, 1)
		return
	}

	ok, err := s.deps.Store.UpdateThreadLLMFields(ctx, th.ID, fields)
	switch {
	case err != nil:
		log.Error().Err(err).Msg("failed to update thread")
		result.AddError("Thread %s: %v", th.ID, err)
		return
	case !ok:
		log.Error().Msg("thread update matched no rows")
		result.Add(1, 0, 0, 0)
		return
	}

	result.Add(1, 0, 0, 1)
	log.Info().Str("priority", string(fields.PriorityLevel)).Msg("updated thread with sponsor info")
}

// storeHeuristicFields keeps the priority current when extraction returns
// nothing. The thread stays unprocessed so the next run retries the model.
func (s *Service) storeHeuristicFields(ctx context.Context, th *domain.SponsorThread, messages []*domain.SponsorMessage, opts Options, log zerolog.Logger) {
	fields := s.BuildLLMFields(th, &domain.SponsorInfo{}, messages)
	if opts.DryRun {
		log.Info().Str("priority", string(fields.PriorityLevel)).Msg("[DRY RUN] would store calculated priority")
		return
	}
	if _, err := s.deps.Store.UpdateThreadPriority(ctx, th.ID, fields); err != nil {
		log.Error().Err(err).Msg("failed to store calculated priority")
	}
}

// BuildLLMFields merges extraction output with the heuristic priority. The
// calculated level and reasoning override the model's suggestion. Sponsor
// fields the model left blank fall back to header and keyword hints.
func (s *Service) BuildLLMFields(th *domain.SponsorThread, info *domain.SponsorInfo, messages []*domain.SponsorMessage) *domain.ThreadLLMFields {
	assessment := s.deps.Calculator.Calculate(messages)

	status, desc := info.NextActionStatus, info.NextActionDescription
	if desc == "" {
		status, desc = priority.RecommendedAction(assessment.Level, assessment.Waiting)
	}

	pocName, orgName, valueType := info.POCName, info.OrgName, info.ValueType
	if pocName == "" && s.deps.Normalizer != nil && th != nil {
		if name, email := s.deps.Normalizer.PrimaryContact(th.Participants); email != participant.UnknownEmail {
			pocName = name
		}
	}
	if orgName == "" || valueType == "" {
		text := threadText(th, messages)
		if hints := keyword.OrganizationHints(text); orgName == "" && len(hints) > 0 {
			orgName = hints[0]
		}
		if valueType == "" {
			valueType = keyword.CategorizeSponsorshipType(text)
		}
	}

	return &domain.ThreadLLMFields{
		SponsorPOCName:        pocName,
		SponsorOrgName:        orgName,
		EstimatedValueAmount:  info.EstimatedValueAmount,
		ValueType:             valueType,
		ValueDescription:      info.ValueDescription,
		ConfidenceScore:       info.ConfidenceScore,
		PriorityLevel:         assessment.Level,
		AutoPriorityReasoning: assessment.Reasoning,
		LastActionSummary:     s.deps.Calculator.ActionSummary(messages),
		NextActionStatus:      status,
		NextActionDescription: desc,
	}
}

func threadText(th *domain.SponsorThread, messages []*domain.SponsorMessage) string {
	var sb strings.Builder
	if th != nil {
		sb.WriteString(th.Subject)
	}
	for _, m := range messages {
		sb.WriteByte('\n')
		sb.WriteString(m.Subject)
		sb.WriteByte('\n')
		sb.WriteString(m.BodyText)
	}
	return sb.String()
}

func distinctThreads(threads []*domain.SponsorThread) []*domain.SponsorThread {
	seen := make(map[uuid.UUID]struct{}, len(threads))
	out := threads[:0]
	for _, th := range threads {
		if th == nil {
			continue
		}
		if _, ok := seen[th.ID]; ok {
			continue
		}
		seen[th.ID] = struct{}{}
		out = append(out, th)
	}
	return out
}
