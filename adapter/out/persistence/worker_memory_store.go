package persistence

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"sponsor_worker/core/domain"
	"sponsor_worker/core/port/out"

	"github.com/google/uuid"
)

// MemoryStore is an in-process ThreadStore. It applies the same upsert
// precedence as the SQL store and is used for dry runs without a database.
type MemoryStore struct {
	mu sync.Mutex

	threads    map[uuid.UUID]*domain.SponsorThread
	byProvider map[string]uuid.UUID
	bySig      map[string]uuid.UUID
	messages   map[uuid.UUID]*domain.SponsorMessage
	byMsgID    map[string]uuid.UUID
	tasks      []*domain.FulfillmentTask

	now func() time.Time
}

var _ out.ThreadStore = (*MemoryStore)(nil)

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		threads:    make(map[uuid.UUID]*domain.SponsorThread),
		byProvider: make(map[string]uuid.UUID),
		bySig:      make(map[string]uuid.UUID),
		messages:   make(map[uuid.UUID]*domain.SponsorMessage),
		byMsgID:    make(map[string]uuid.UUID),
		now:        time.Now,
	}
}

func (s *MemoryStore) ExistingThreadIDs(ctx context.Context) (map[string]struct{}, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make(map[string]struct{}, len(s.byProvider))
	for id := range s.byProvider {
		ids[id] = struct{}{}
	}
	return ids, nil
}

func (s *MemoryStore) ExistingParticipantSignatures(ctx context.Context) (map[string]struct{}, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sigs := make(map[string]struct{}, len(s.bySig))
	for sig := range s.bySig {
		sigs[sig] = struct{}{}
	}
	return sigs, nil
}

func (s *MemoryStore) SaveThread(ctx context.Context, thread *domain.SponsorThread) (uuid.UUID, out.SaveOutcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now().UTC()
	sig := thread.ParticipantSignature

	if id, ok := s.byProvider[thread.ProviderThreadID]; ok {
		s.mergeLocked(id, thread, now)
		return id, out.SaveUpdatedByThreadID, nil
	}
	if sig != "" {
		if id, ok := s.bySig[sig]; ok {
			s.mergeLocked(id, thread, now)
			return id, out.SaveUpdatedBySignature, nil
		}
	}

	stored := *thread
	stored.ID = uuid.New()
	if stored.Status == "" {
		stored.Status = domain.ThreadStatusNew
	}
	stored.CreatedAt, stored.UpdatedAt = now, now
	s.threads[stored.ID] = &stored
	s.byProvider[stored.ProviderThreadID] = stored.ID
	if sig != "" {
		s.bySig[sig] = stored.ID
	}
	return stored.ID, out.SaveInserted, nil
}

// mergeLocked refreshes the collection fields of an existing thread. The
// provider thread id is updated to the latest one seen.
func (s *MemoryStore) mergeLocked(id uuid.UUID, thread *domain.SponsorThread, now time.Time) {
	existing := s.threads[id]
	if existing.ProviderThreadID != thread.ProviderThreadID {
		s.byProvider[thread.ProviderThreadID] = id
	}
	// 새 메시지가 들어오면 다시 처리 대상
	if existing.MessageCount != thread.MessageCount || !existing.LastMessageAt.Equal(thread.LastMessageAt) {
		existing.LLMProcessed = false
		existing.LLMProcessedAt = nil
	}
	existing.ProviderThreadID = thread.ProviderThreadID
	existing.Subject = thread.Subject
	existing.Participants = thread.Participants
	existing.ParticipantSignature = thread.ParticipantSignature
	existing.FirstMessageAt = thread.FirstMessageAt
	existing.LastMessageAt = thread.LastMessageAt
	existing.MessageCount = thread.MessageCount
	existing.ThreadURL = thread.ThreadURL
	existing.UpdatedAt = now
	if thread.ParticipantSignature != "" {
		s.bySig[thread.ParticipantSignature] = id
	}
}

func (s *MemoryStore) SaveMessage(ctx context.Context, msg *domain.SponsorMessage) (uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id, ok := s.byMsgID[msg.ProviderMessageID]; ok {
		if existing := s.messages[id]; existing.ThreadID == uuid.Nil {
			existing.ThreadID = msg.ThreadID
		}
		return id, nil
	}

	stored := *msg
	stored.ID = uuid.New()
	stored.CreatedAt = s.now().UTC()
	s.messages[stored.ID] = &stored
	s.byMsgID[stored.ProviderMessageID] = stored.ID
	msg.ID = stored.ID
	return stored.ID, nil
}

func (s *MemoryStore) ThreadsAwaitingProcessing(ctx context.Context, limit int) ([]*domain.SponsorThread, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var pending []*domain.SponsorThread
	for _, th := range s.threads {
		if !th.LLMProcessed {
			cp := *th
			pending = append(pending, &cp)
		}
	}
	sort.Slice(pending, func(i, j int) bool {
		return pending[i].LastMessageAt.After(pending[j].LastMessageAt)
	})
	if limit > 0 && len(pending) > limit {
		pending = pending[:limit]
	}
	return pending, nil
}

func (s *MemoryStore) MessagesForThread(ctx context.Context, threadID uuid.UUID) ([]*domain.SponsorMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var msgs []*domain.SponsorMessage
	for _, m := range s.messages {
		if m.ThreadID == threadID {
			cp := *m
			msgs = append(msgs, &cp)
		}
	}
	sort.Slice(msgs, func(i, j int) bool {
		return msgs[i].ReceivedAt.Before(msgs[j].ReceivedAt)
	})
	return msgs, nil
}

func (s *MemoryStore) UpdateThreadLLMFields(ctx context.Context, threadID uuid.UUID, f *domain.ThreadLLMFields) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	th, ok := s.threads[threadID]
	if !ok {
		return false, nil
	}
	applyLLMFields(th, f, s.now().UTC())
	return true, nil
}

func (s *MemoryStore) UpdateThreadPriority(ctx context.Context, threadID uuid.UUID, f *domain.ThreadLLMFields) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	th, ok := s.threads[threadID]
	if !ok {
		return false, nil
	}
	if th.SponsorPOCName == "" {
		th.SponsorPOCName = f.SponsorPOCName
	}
	if th.SponsorOrgName == "" {
		th.SponsorOrgName = f.SponsorOrgName
	}
	if th.ValueType == "" {
		th.ValueType = f.ValueType
	}
	th.PriorityLevel = f.PriorityLevel
	th.AutoPriorityReasoning = f.AutoPriorityReasoning
	th.LastActionSummary = f.LastActionSummary
	th.NextActionStatus = f.NextActionStatus
	th.NextActionDescription = f.NextActionDescription
	th.UpdatedAt = s.now().UTC()
	return true, nil
}

func applyLLMFields(th *domain.SponsorThread, f *domain.ThreadLLMFields, now time.Time) {
	score := f.ConfidenceScore
	th.SponsorPOCName = f.SponsorPOCName
	th.SponsorOrgName = f.SponsorOrgName
	th.EstimatedValueAmount = f.EstimatedValueAmount
	th.ValueType = f.ValueType
	th.ValueDescription = f.ValueDescription
	th.ConfidenceScore = &score
	th.PriorityLevel = f.PriorityLevel
	th.AutoPriorityReasoning = f.AutoPriorityReasoning
	th.LastActionSummary = f.LastActionSummary
	th.NextActionStatus = f.NextActionStatus
	th.NextActionDescription = f.NextActionDescription
	th.LLMProcessed = true
	th.LLMProcessedAt = &now
	th.UpdatedAt = now
}

func (s *MemoryStore) GetThread(ctx context.Context, id uuid.UUID) (*domain.SponsorThread, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	th, ok := s.threads[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *th
	return &cp, nil
}

func (s *MemoryStore) ListThreads(ctx context.Context, q *out.ThreadListQuery) ([]*domain.SponsorThread, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if q == nil {
		q = &out.ThreadListQuery{}
	}

	var matched []*domain.SponsorThread
	for _, th := range s.threads {
		if q.Status != "" && th.Status != q.Status {
			continue
		}
		if q.PriorityLevel != "" && th.PriorityLevel != q.PriorityLevel {
			continue
		}
		if q.Processed != nil && th.LLMProcessed != *q.Processed {
			continue
		}
		cp := *th
		matched = append(matched, &cp)
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].LastMessageAt.After(matched[j].LastMessageAt)
	})

	total := len(matched)
	if q.Offset > 0 {
		if q.Offset >= len(matched) {
			return nil, total, nil
		}
		matched = matched[q.Offset:]
	}
	if q.Limit > 0 && len(matched) > q.Limit {
		matched = matched[:q.Limit]
	}
	return matched, total, nil
}

func (s *MemoryStore) ThreadStatistics(ctx context.Context) (*domain.ThreadStatistics, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats := &domain.ThreadStatistics{TotalThreads: len(s.threads)}
	for _, th := range s.threads {
		if th.LLMProcessed {
			stats.ProcessedThreads++
		} else {
			stats.UnprocessedThreads++
		}
		if th.PriorityLevel.IsHigh() {
			stats.HighPriorityThreads++
		}
	}
	return stats, nil
}

func (s *MemoryStore) SaveFulfillmentTask(ctx context.Context, task *domain.FulfillmentTask) (uuid.UUID, error) {
	if err := task.Validate(); err != nil {
		return uuid.Nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.threads[task.ThreadID]; !ok {
		return uuid.Nil, ErrNotFound
	}
	now := s.now().UTC()
	cp := *task
	cp.ID = uuid.New()
	cp.CreatedAt, cp.UpdatedAt = now, now
	s.tasks = append(s.tasks, &cp)
	task.ID = cp.ID
	return cp.ID, nil
}

func (s *MemoryStore) ListFulfillmentTasks(ctx context.Context, threadID *uuid.UUID) ([]*domain.FulfillmentTask, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var tasks []*domain.FulfillmentTask
	for _, t := range s.tasks {
		if threadID != nil && t.ThreadID != *threadID {
			continue
		}
		cp := *t
		tasks = append(tasks, &cp)
	}
	return tasks, nil
}
