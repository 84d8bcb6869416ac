package out

import (
	"context"
	"time"

	"sponsor_worker/core/domain"

	"github.com/google/uuid"
)

// =============================================================================
// Mail Source
// =============================================================================

// Header keys populated in RawMessage.Headers (lowercase).
const (
	HeaderFrom    = "from"
	HeaderTo      = "to"
	HeaderCc      = "cc"
	HeaderBcc     = "bcc"
	HeaderSubject = "subject"
	HeaderDate    = "date"
)

// RawMessage is a provider message with headers already parsed.
type RawMessage struct {
	ID       string
	ThreadID string
	Snippet  string
	Headers  map[string]string
	// Body prefers text/plain, then HTML stripped to text, then the snippet.
	Body string
}

// Header returns a header value by lowercase key.
func (m *RawMessage) Header(key string) string {
	if m == nil || m.Headers == nil {
		return ""
	}
	return m.Headers[key]
}

// RawThread is the full detail of a provider thread.
type RawThread struct {
	ID       string
	Messages []RawMessage
}

// MailSource reads messages from the mailbox provider.
type MailSource interface {
	SearchMessages(ctx context.Context, query string, maxResults int) ([]RawMessage, error)
	GetThreadDetail(ctx context.Context, threadID string) (*RawThread, error)
}

// =============================================================================
// Thread Store
// =============================================================================

// SaveOutcome reports how SaveThread resolved the record.
type SaveOutcome string

const (
	SaveInserted           SaveOutcome = "inserted"
	SaveUpdatedByThreadID  SaveOutcome = "updated_by_thread_id"
	SaveUpdatedBySignature SaveOutcome = "updated_by_signature"
)

// ThreadListQuery filters ListThreads.
type ThreadListQuery struct {
	Status        domain.ThreadStatus
	PriorityLevel domain.PriorityLevel
	Processed     *bool
	Limit         int
	Offset        int
}

// ThreadStore persists threads, messages and fulfillment tasks.
//
// SaveThread is an atomic upsert keyed first by provider thread id, then by
// non-empty participant signature, else insert.
type ThreadStore interface {
	ExistingThreadIDs(ctx context.Context) (map[string]struct{}, error)
	ExistingParticipantSignatures(ctx context.Context) (map[string]struct{}, error)
	SaveThread(ctx context.Context, thread *domain.SponsorThread) (uuid.UUID, SaveOutcome, error)
	SaveMessage(ctx context.Context, msg *domain.SponsorMessage) (uuid.UUID, error)
	ThreadsAwaitingProcessing(ctx context.Context, limit int) ([]*domain.SponsorThread, error)
	MessagesForThread(ctx context.Context, threadID uuid.UUID) ([]*domain.SponsorMessage, error)
	UpdateThreadLLMFields(ctx context.Context, threadID uuid.UUID, fields *domain.ThreadLLMFields) (bool, error)
	// UpdateThreadPriority stores heuristic fields without marking the thread
	// processed. Sponsor fields only fill blanks.
	UpdateThreadPriority(ctx context.Context, threadID uuid.UUID, fields *domain.ThreadLLMFields) (bool, error)

	GetThread(ctx context.Context, id uuid.UUID) (*domain.SponsorThread, error)
	ListThreads(ctx context.Context, q *ThreadListQuery) ([]*domain.SponsorThread, int, error)
	ThreadStatistics(ctx context.Context) (*domain.ThreadStatistics, error)

	SaveFulfillmentTask(ctx context.Context, task *domain.FulfillmentTask) (uuid.UUID, error)
	ListFulfillmentTasks(ctx context.Context, threadID *uuid.UUID) ([]*domain.FulfillmentTask, error)
}

// =============================================================================
// Sponsor Extractor
// =============================================================================

// SponsorExtractor derives CRM fields from a thread. A nil result with a nil
// error is a recoverable miss.
type SponsorExtractor interface {
	ExtractSponsorInfo(ctx context.Context, thread *domain.SponsorThread, messages []*domain.SponsorMessage) (*domain.SponsorInfo, error)
}

// =============================================================================
// Optional collaborators
// =============================================================================

// BodyArchive keeps full message bodies outside the relational store.
type BodyArchive interface {
	ArchiveMessage(ctx context.Context, msg *domain.SponsorMessage) error
}

// RunLock serializes pipeline runs across processes.
type RunLock interface {
	Acquire(ctx context.Context, name string, ttl time.Duration) (release func(context.Context) error, acquired bool, err error)
}

// RunReporter keeps a history of pipeline runs.
type RunReporter interface {
	RecordRun(ctx context.Context, report *domain.RunReport) error
	RecentRuns(ctx context.Context, limit int) ([]*domain.RunReport, error)
}
