package pipeline

import (
	"context"
	"fmt"
	"time"

	"sponsor_worker/core/domain"
	"sponsor_worker/core/port/out"
	"sponsor_worker/core/service/identity"
	"sponsor_worker/pkg/metrics"
)

func (s *Service) collect(ctx context.Context, opts Options) (*domain.ProcessingResult, error) {
	start := time.Now()
	result := &domain.ProcessingResult{}
	defer func() {
		metrics.ObserveStage(StageCollect, time.Since(start))
		metrics.RecordErrors(StageCollect, result.ErrorCount())
	}()

	s.log.Info().Bool("dry_run", opts.DryRun).Msg("starting email collection")

	snap, err := s.snapshot(ctx)
	if err != nil {
		result.AddError("Collection error: %v", err)
		return result, err
	}
	s.log.Info().Int("existing_threads", len(snap.ThreadIDs)).Msg("loaded existing threads")

	query := identity.BuildQuery(s.cfg.Keywords, s.cfg.StartDate)
	messages, err := s.deps.Source.SearchMessages(ctx, query, s.cfg.MaxResults)
	if err != nil {
		err = fmt.Errorf("search messages: %w", err)
		result.AddError("Collection error: %v", err)
		return result, err
	}
	metrics.MessagesFetched.Add(float64(len(messages)))

	relevant := s.FilterRelevant(messages)
	if len(relevant) == 0 {
		s.log.Info().Int("fetched", len(messages)).Msg("no sponsorship threads found")
		result.Success = true
		return result, nil
	}

	res := s.deps.Resolver.Resolve(ctx, relevant, snap)
	for _, d := range res.Dropped {
		metrics.ThreadsDropped.Inc()
		s.log.Warn().Str("thread_id", d.ThreadID).Str("reason", d.Reason).Msg("thread dropped")
	}
	s.log.Info().
		Int("new", len(res.New)).
		Int("existing", len(res.Existing)).
		Msg("resolved sponsorship threads")

	for _, rt := range res.All() {
		if err := ctx.Err(); err != nil {
			result.AddError("Collection error: %v", err)
			return result, err
		}
		s.saveThread(ctx, rt, opts, result)
	}

	result.Success = true
	s.log.Info().
		Int("new_threads", result.NewThreads).
		Int("updated_threads", result.UpdatedThreads).
		Int("messages", result.MessagesProcessed).
		Msg("collection complete")
	return result, nil
}

func (s *Service) snapshot(ctx context.Context) (identity.Snapshot, error) {
	ids, err := s.deps.Store.ExistingThreadIDs(ctx)
	if err != nil {
		return identity.Snapshot{}, fmt.Errorf("load existing thread ids: %w", err)
	}
	sigs, err := s.deps.Store.ExistingParticipantSignatures(ctx)
	if err != nil {
		return identity.Snapshot{}, fmt.Errorf("load participant signatures: %w", err)
	}
	return identity.Snapshot{ThreadIDs: ids, Signatures: sigs}, nil
}

// FilterRelevant keeps every message of a thread in which at least one
// message is sponsorship related and passes the spam filter.
func (s *Service) FilterRelevant(messages []out.RawMessage) []out.RawMessage {
	order, groups := identity.GroupByThread(messages)

	keep := make(map[string]bool, len(order))
	for _, id := range order {
		for i := range groups[id] {
			m := &groups[id][i]
			d := s.deps.Filter.Evaluate(m.Header(out.HeaderSubject), m.Body, m.Snippet, m.Header(out.HeaderFrom))
			if d.Accepted() {
				s.log.Debug().Str("thread_id", id).Float64("score", d.Score).Strs("matched", d.Matched).Msg("thread is sponsorship related")
				keep[id] = true
				break
			}
		}
	}

	var kept []out.RawMessage
	for _, m := range messages {
		if keep[m.ThreadID] {
			kept = append(kept, m)
			continue
		}
		reason := "irrelevant"
		if !s.deps.Filter.PassesSpamFilter(m.Header(out.HeaderSubject), m.Body, m.Header(out.HeaderFrom)) {
			reason = "spam"
		}
		metrics.MessagesFiltered.WithLabelValues(reason).Inc()
	}
	return kept
}

func (s *Service) saveThread(ctx context.Context, rt *identity.ResolvedThread, opts Options, result *domain.ProcessingResult) {
	th := rt.Thread
	log := s.log.With().Str("thread_id", th.ProviderThreadID).Logger()

	if opts.DryRun {
		if rt.KnownByID || rt.SignatureKnown {
			result.Add(1, len(rt.Messages), 0, 1)
		} else {
			result.Add(1, len(rt.Messages), 1, 0)
		}
		log.Info().Int("messages", len(rt.Messages)).Msg("[DRY RUN] would save thread")
		return
	}

	id, outcome, err := s.deps.Store.SaveThread(ctx, th)
	if err != nil {
		log.Error().Err(err).Msg("failed to save thread")
		result.AddError("Thread %s: %v", th.ProviderThreadID, err)
		return
	}
	metrics.RecordThreadSaved(string(outcome))

	saved := 0
	for _, m := range rt.Messages {
		m.ThreadID = id
		if _, err := s.deps.Store.SaveMessage(ctx, m); err != nil {
			log.Error().Err(err).Str("message_id", m.ProviderMessageID).Msg("failed to save message")
			result.AddError("Message %s: %v", m.ProviderMessageID, err)
			continue
		}
		saved++

		if s.deps.Archive != nil {
			if err := s.deps.Archive.ArchiveMessage(ctx, m); err != nil {
				log.Warn().Err(err).Str("message_id", m.ProviderMessageID).Msg("failed to archive message body")
			}
		}
	}

	if outcome == out.SaveInserted {
		result.Add(1, saved, 1, 0)
	} else {
		result.Add(1, saved, 0, 1)
	}
	log.Info().Str("outcome", string(outcome)).Int("messages", saved).Msg("saved thread")
}
