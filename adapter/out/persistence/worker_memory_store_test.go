package persistence

import (
	"context"
	"testing"
	"time"

	"sponsor_worker/core/domain"
	"sponsor_worker/core/port/out"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func draft(threadID, sig string) *domain.SponsorThread {
	now := time.Date(2025, 8, 1, 0, 0, 0, 0, time.UTC)
	return &domain.SponsorThread{
		ProviderThreadID:     threadID,
		Subject:              "Sponsorship",
		ParticipantSignature: sig,
		FirstMessageAt:       now,
		LastMessageAt:        now,
		MessageCount:         1,
	}
}

func TestMemoryStoreSaveThreadPrecedence(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	id1, outcome, err := s.SaveThread(ctx, draft("t1", "jane@acme.com"))
	require.NoError(t, err)
	assert.Equal(t, out.SaveInserted, outcome)

	id2, outcome, err := s.SaveThread(ctx, draft("t1", "jane@acme.com|bob@acme.com"))
	require.NoError(t, err)
	assert.Equal(t, out.SaveUpdatedByThreadID, outcome)
	assert.Equal(t, id1, id2)

	id3, outcome, err := s.SaveThread(ctx, draft("t2", "jane@acme.com|bob@acme.com"))
	require.NoError(t, err)
	assert.Equal(t, out.SaveUpdatedBySignature, outcome)
	assert.Equal(t, id1, id3)

	th, err := s.GetThread(ctx, id1)
	require.NoError(t, err)
	assert.Equal(t, "t2", th.ProviderThreadID)
	assert.Equal(t, domain.ThreadStatusNew, th.Status)

	ids, err := s.ExistingThreadIDs(ctx)
	require.NoError(t, err)
	assert.Contains(t, ids, "t1")
	assert.Contains(t, ids, "t2")
}

func TestMemoryStoreEmptySignatureNeverMatches(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	a, _, err := s.SaveThread(ctx, draft("t1", ""))
	require.NoError(t, err)
	b, outcome, err := s.SaveThread(ctx, draft("t2", ""))
	require.NoError(t, err)

	assert.Equal(t, out.SaveInserted, outcome)
	assert.NotEqual(t, a, b)

	sigs, err := s.ExistingParticipantSignatures(ctx)
	require.NoError(t, err)
	assert.Empty(t, sigs)
}

func TestMemoryStoreSaveMessageDedup(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	threadID, _, err := s.SaveThread(ctx, draft("t1", "jane@acme.com"))
	require.NoError(t, err)

	first, err := s.SaveMessage(ctx, &domain.SponsorMessage{ProviderMessageID: "m1", ThreadID: threadID})
	require.NoError(t, err)
	again, err := s.SaveMessage(ctx, &domain.SponsorMessage{ProviderMessageID: "m1", ThreadID: threadID})
	require.NoError(t, err)
	assert.Equal(t, first, again)

	msgs, err := s.MessagesForThread(ctx, threadID)
	require.NoError(t, err)
	assert.Len(t, msgs, 1)
}

func TestMemoryStoreLLMFieldsAndStatistics(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	a, _, _ := s.SaveThread(ctx, draft("t1", "a@x.com"))
	_, _, _ = s.SaveThread(ctx, draft("t2", "b@x.com"))

	ok, err := s.UpdateThreadLLMFields(ctx, a, &domain.ThreadLLMFields{
		PriorityLevel:   domain.PriorityReplyNow,
		ConfidenceScore: 0.8,
	})
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.UpdateThreadLLMFields(ctx, uuid.New(), &domain.ThreadLLMFields{})
	require.NoError(t, err)
	assert.False(t, ok)

	pending, err := s.ThreadsAwaitingProcessing(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "t2", pending[0].ProviderThreadID)

	stats, err := s.ThreadStatistics(ctx)
	require.NoError(t, err)
	assert.Equal(t, &domain.ThreadStatistics{
		TotalThreads:        2,
		UnprocessedThreads:  1,
		HighPriorityThreads: 1,
		ProcessedThreads:    1,
	}, stats)

	processed := true
	list, total, err := s.ListThreads(ctx, &out.ThreadListQuery{Processed: &processed})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Equal(t, a, list[0].ID)
	assert.NotNil(t, list[0].LLMProcessedAt)
}

func TestMemoryStoreFulfillmentTasks(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	threadID, _, _ := s.SaveThread(ctx, draft("t1", "a@x.com"))

	_, err := s.SaveFulfillmentTask(ctx, &domain.FulfillmentTask{ThreadID: uuid.New(), Title: "Logo on flyer"})
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = s.SaveFulfillmentTask(ctx, &domain.FulfillmentTask{ThreadID: threadID, Title: "Logo on flyer", TaskType: domain.TaskFlyer})
	require.NoError(t, err)

	tasks, err := s.ListFulfillmentTasks(ctx, &threadID)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, domain.TaskPriorityMedium, tasks[0].Priority)
}

func TestMemoryStoreFulfillmentTaskInvalid(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	threadID, _, _ := s.SaveThread(ctx, draft("t1", "a@x.com"))

	_, err := s.SaveFulfillmentTask(ctx, &domain.FulfillmentTask{ThreadID: threadID})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = s.SaveFulfillmentTask(ctx, &domain.FulfillmentTask{ThreadID: threadID, Title: "x", Priority: "urgent"})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestMemoryStoreNewMessagesRequeueThread(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name        string
		mutate      func(th *domain.SponsorThread)
		wantPending bool
	}{
		{"unchanged", func(th *domain.SponsorThread) {}, false},
		{"subject only", func(th *domain.SponsorThread) { th.Subject = "Re: Sponsorship" }, false},
		{"message count", func(th *domain.SponsorThread) { th.MessageCount = 2 }, true},
		{"last message time", func(th *domain.SponsorThread) { th.LastMessageAt = th.LastMessageAt.Add(time.Hour) }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewMemoryStore()
			id, _, err := s.SaveThread(ctx, draft("t1", "jane@acme.com"))
			require.NoError(t, err)
			_, err = s.UpdateThreadLLMFields(ctx, id, &domain.ThreadLLMFields{PriorityLevel: domain.PriorityLow})
			require.NoError(t, err)

			next := draft("t1", "jane@acme.com")
			tt.mutate(next)
			_, _, err = s.SaveThread(ctx, next)
			require.NoError(t, err)

			th, err := s.GetThread(ctx, id)
			require.NoError(t, err)
			assert.Equal(t, !tt.wantPending, th.LLMProcessed)
			assert.Equal(t, tt.wantPending, th.LLMProcessedAt == nil)

			pending, err := s.ThreadsAwaitingProcessing(ctx, 10)
			require.NoError(t, err)
			assert.Equal(t, tt.wantPending, len(pending) == 1)
		})
	}
}

func TestMemoryStoreUpdateThreadPriority(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	id, _, err := s.SaveThread(ctx, draft("t1", "jane@acme.com"))
	require.NoError(t, err)

	ok, err := s.UpdateThreadPriority(ctx, id, &domain.ThreadLLMFields{
		SponsorPOCName:        "jane",
		SponsorOrgName:        "Acme Inc",
		ValueType:             domain.ValueMonetary,
		PriorityLevel:         domain.PriorityReplyNow,
		AutoPriorityReasoning: "Time: No response for 4 days - urgent follow-up needed",
	})
	require.NoError(t, err)
	require.True(t, ok)

	th, err := s.GetThread(ctx, id)
	require.NoError(t, err)
	assert.False(t, th.LLMProcessed)
	assert.Nil(t, th.LLMProcessedAt)
	assert.Equal(t, domain.PriorityReplyNow, th.PriorityLevel)
	assert.Equal(t, "Acme Inc", th.SponsorOrgName)

	// 이미 채워진 스폰서 필드는 유지
	_, err = s.UpdateThreadPriority(ctx, id, &domain.ThreadLLMFields{SponsorOrgName: "Other", PriorityLevel: domain.PriorityLow})
	require.NoError(t, err)
	th, _ = s.GetThread(ctx, id)
	assert.Equal(t, "Acme Inc", th.SponsorOrgName)
	assert.Equal(t, domain.PriorityLow, th.PriorityLevel)

	ok, err = s.UpdateThreadPriority(ctx, uuid.New(), &domain.ThreadLLMFields{})
	require.NoError(t, err)
	assert.False(t, ok)
}
