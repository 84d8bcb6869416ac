package domain

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ProcessingResult summarizes one collect or process run.
// Methods are safe for concurrent use.
type ProcessingResult struct {
	mu sync.Mutex

	Success           bool     `json:"success"`
	ThreadsProcessed  int      `json:"threads_processed"`
	MessagesProcessed int      `json:"messages_processed"`
	NewThreads        int      `json:"new_threads"`
	UpdatedThreads    int      `json:"updated_threads"`
	Errors            []string `json:"errors"`
}

// AddError appends a formatted per-item error.
func (r *ProcessingResult) AddError(format string, args ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
}

// Add applies counter deltas.
func (r *ProcessingResult) Add(threads, messages, newThreads, updatedThreads int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ThreadsProcessed += threads
	r.MessagesProcessed += messages
	r.NewThreads += newThreads
	r.UpdatedThreads += updatedThreads
}

// ErrorCount returns the number of recorded errors.
func (r *ProcessingResult) ErrorCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.Errors)
}

// Combine merges a collection result and a processing result the way the
// full pipeline reports them.
func Combine(collect, process *ProcessingResult) *ProcessingResult {
	out := &ProcessingResult{
		Success:           collect.Success && process.Success,
		ThreadsProcessed:  collect.ThreadsProcessed + process.ThreadsProcessed,
		MessagesProcessed: collect.MessagesProcessed,
		NewThreads:        collect.NewThreads,
		UpdatedThreads:    process.UpdatedThreads,
	}
	out.Errors = append(out.Errors, collect.Errors...)
	out.Errors = append(out.Errors, process.Errors...)
	return out
}

// =============================================================================
// Fulfillment Task
// =============================================================================

// TaskType classifies a sponsor obligation.
type TaskType string

const (
	TaskSocialMedia  TaskType = "social_media"
	TaskEmail        TaskType = "email"
	TaskFlyer        TaskType = "flyer"
	TaskProgram      TaskType = "program"
	TaskAnnouncement TaskType = "announcement"
	TaskWebsite      TaskType = "website"
	TaskNewsletter   TaskType = "newsletter"
	TaskEvent        TaskType = "event"
	TaskOther        TaskType = "other"
)

// TaskPriority is the urgency of a fulfillment task.
type TaskPriority string

const (
	TaskPriorityHigh   TaskPriority = "high"
	TaskPriorityMedium TaskPriority = "medium"
	TaskPriorityLow    TaskPriority = "low"
)

// FulfillmentTask is an obligation owed to a sponsor, tied to a thread.
type FulfillmentTask struct {
	ID          uuid.UUID
	ThreadID    uuid.UUID
	Title       string
	Description string
	TaskType    TaskType
	Priority    TaskPriority
	DueDate     *time.Time
	Completed   bool
	CompletedAt *time.Time
	AssignedTo  string
	Notes       string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Validate checks required fields and enums, filling defaults.
func (t *FulfillmentTask) Validate() error {
	if t.ThreadID == uuid.Nil {
		return fmt.Errorf("fulfillment task requires a thread id")
	}
	if t.Title == "" {
		return fmt.Errorf("fulfillment task requires a title")
	}
	switch t.TaskType {
	case "":
		t.TaskType = TaskOther
	case TaskSocialMedia, TaskEmail, TaskFlyer, TaskProgram, TaskAnnouncement,
		TaskWebsite, TaskNewsletter, TaskEvent, TaskOther:
	default:
		return fmt.Errorf("invalid task type %q", t.TaskType)
	}
	switch t.Priority {
	case "":
		t.Priority = TaskPriorityMedium
	case TaskPriorityHigh, TaskPriorityMedium, TaskPriorityLow:
	default:
		return fmt.Errorf("invalid task priority %q", t.Priority)
	}
	return nil
}

// =============================================================================
// Run Report
// =============================================================================

// RunMode names which pipeline stages a run executed.
type RunMode string

const (
	RunModeFull    RunMode = "full"
	RunModeCollect RunMode = "collect"
	RunModeProcess RunMode = "process"
)

// RunReport is the persisted summary of one pipeline run.
type RunReport struct {
	ID         uuid.UUID         `json:"id"`
	Mode       RunMode           `json:"mode"`
	DryRun     bool              `json:"dry_run"`
	StartedAt  time.Time         `json:"started_at"`
	FinishedAt time.Time         `json:"finished_at"`
	Result     *ProcessingResult `json:"result"`
}

// Duration returns the wall time of the run.
func (r *RunReport) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}
