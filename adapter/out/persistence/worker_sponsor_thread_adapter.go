package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"sponsor_worker/core/domain"
	"sponsor_worker/core/port/out"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// SponsorThreadAdapter implements out.ThreadStore on PostgreSQL.
type SponsorThreadAdapter struct {
	db *sqlx.DB
}

var _ out.ThreadStore = (*SponsorThreadAdapter)(nil)

// NewSponsorThreadAdapter creates a new SponsorThreadAdapter.
func NewSponsorThreadAdapter(db *sqlx.DB) *SponsorThreadAdapter {
	return &SponsorThreadAdapter{db: db}
}

// =============================================================================
// Row Mapping
// =============================================================================

const threadSelectColumns = `
	id, gmail_thread_id, subject, participants, participant_signature,
	first_message_date, last_message_date, message_count, thread_url, status,
	sponsor_poc_name, sponsor_org_name, estimated_value_amount, value_type,
	value_description, confidence_score, priority_level, auto_priority_reasoning,
	last_action_summary, next_action_status, next_action_description,
	llm_processed, llm_processed_at, created_at, updated_at`

type sponsorThreadRow struct {
	ID                    uuid.UUID       `db:"id"`
	GmailThreadID         string          `db:"gmail_thread_id"`
	Subject               string          `db:"subject"`
	Participants          pq.StringArray  `db:"participants"`
	ParticipantSignature  sql.NullString  `db:"participant_signature"`
	FirstMessageDate      time.Time       `db:"first_message_date"`
	LastMessageDate       time.Time       `db:"last_message_date"`
	MessageCount          int             `db:"message_count"`
	ThreadURL             string          `db:"thread_url"`
	Status                string          `db:"status"`
	SponsorPOCName        sql.NullString  `db:"sponsor_poc_name"`
	SponsorOrgName        sql.NullString  `db:"sponsor_org_name"`
	EstimatedValueAmount  sql.NullString  `db:"estimated_value_amount"`
	ValueType             sql.NullString  `db:"value_type"`
	ValueDescription      sql.NullString  `db:"value_description"`
	ConfidenceScore       sql.NullFloat64 `db:"confidence_score"`
	PriorityLevel         sql.NullString  `db:"priority_level"`
	AutoPriorityReasoning sql.NullString  `db:"auto_priority_reasoning"`
	LastActionSummary     sql.NullString  `db:"last_action_summary"`
	NextActionStatus      sql.NullString  `db:"next_action_status"`
	NextActionDescription sql.NullString  `db:"next_action_description"`
	LLMProcessed          bool            `db:"llm_processed"`
	LLMProcessedAt        sql.NullTime    `db:"llm_processed_at"`
	CreatedAt             time.Time       `db:"created_at"`
	UpdatedAt             time.Time       `db:"updated_at"`
}

func (r *sponsorThreadRow) toEntity() *domain.SponsorThread {
	th := &domain.SponsorThread{
		ID:                    r.ID,
		ProviderThreadID:      r.GmailThreadID,
		Subject:               r.Subject,
		Participants:          []string(r.Participants),
		ParticipantSignature:  r.ParticipantSignature.String,
		FirstMessageAt:        r.FirstMessageDate.UTC(),
		LastMessageAt:         r.LastMessageDate.UTC(),
		MessageCount:          r.MessageCount,
		ThreadURL:             r.ThreadURL,
		Status:                domain.ThreadStatus(r.Status),
		SponsorPOCName:        r.SponsorPOCName.String,
		SponsorOrgName:        r.SponsorOrgName.String,
		EstimatedValueAmount:  r.EstimatedValueAmount.String,
		ValueType:             domain.ValueType(r.ValueType.String),
		ValueDescription:      r.ValueDescription.String,
		PriorityLevel:         domain.PriorityLevel(r.PriorityLevel.String),
		AutoPriorityReasoning: r.AutoPriorityReasoning.String,
		LastActionSummary:     r.LastActionSummary.String,
		NextActionStatus:      domain.NextActionStatus(r.NextActionStatus.String),
		NextActionDescription: r.NextActionDescription.String,
		LLMProcessed:          r.LLMProcessed,
		CreatedAt:             r.CreatedAt,
		UpdatedAt:             r.UpdatedAt,
	}
	if r.ConfidenceScore.Valid {
		score := r.ConfidenceScore.Float64
		th.ConfidenceScore = &score
	}
	if r.LLMProcessedAt.Valid {
		at := r.LLMProcessedAt.Time.UTC()
		th.LLMProcessedAt = &at
	}
	return th
}

const messageSelectColumns = `
	id, thread_id, gmail_message_id, sender_email, sender_name, recipients,
	subject, body_text, snippet, received_date, is_from_owner, created_at`

type sponsorMessageRow struct {
	ID             uuid.UUID      `db:"id"`
	ThreadID       uuid.NullUUID  `db:"thread_id"`
	GmailMessageID string         `db:"gmail_message_id"`
	SenderEmail    string         `db:"sender_email"`
	SenderName     sql.NullString `db:"sender_name"`
	Recipients     pq.StringArray `db:"recipients"`
	Subject        string         `db:"subject"`
	BodyText       sql.NullString `db:"body_text"`
	Snippet        sql.NullString `db:"snippet"`
	ReceivedDate   time.Time      `db:"received_date"`
	IsFromOwner    bool           `db:"is_from_owner"`
	CreatedAt      time.Time      `db:"created_at"`
}

func (r *sponsorMessageRow) toEntity() *domain.SponsorMessage {
	return &domain.SponsorMessage{
		ID:                r.ID,
		ThreadID:          r.ThreadID.UUID,
		ProviderMessageID: r.GmailMessageID,
		SenderEmail:       r.SenderEmail,
		SenderName:        r.SenderName.String,
		Recipients:        []string(r.Recipients),
		Subject:           r.Subject,
		BodyText:          r.BodyText.String,
		Snippet:           r.Snippet.String,
		ReceivedAt:        r.ReceivedDate.UTC(),
		IsFromOwner:       r.IsFromOwner,
		CreatedAt:         r.CreatedAt,
	}
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// =============================================================================
// Snapshots
// =============================================================================

func (a *SponsorThreadAdapter) ExistingThreadIDs(ctx context.Context) (map[string]struct{}, error) {
	return a.stringSet(ctx, "SELECT gmail_thread_id FROM email_threads")
}

func (a *SponsorThreadAdapter) ExistingParticipantSignatures(ctx context.Context) (map[string]struct{}, error) {
	return a.stringSet(ctx, `
		SELECT DISTINCT participant_signature FROM email_threads
		WHERE participant_signature IS NOT NULL AND participant_signature <> ''`)
}

func (a *SponsorThreadAdapter) stringSet(ctx context.Context, query string) (map[string]struct{}, error) {
	var values []string
	if err := a.db.SelectContext(ctx, &values, query); err != nil {
		return nil, err
	}
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		set[v] = struct{}{}
	}
	return set, nil
}

// =============================================================================
// Thread Upsert
// =============================================================================

// SaveThread upserts by provider thread id, then by non-empty participant
// signature, else inserts. Advisory locks on both keys serialize concurrent
// writers for the same conversation.
func (a *SponsorThreadAdapter) SaveThread(ctx context.Context, thread *domain.SponsorThread) (uuid.UUID, out.SaveOutcome, error) {
	tx, err := a.db.BeginTxx(ctx, nil)
	if err != nil {
		return uuid.Nil, "", err
	}
	defer tx.Rollback()

	keys := []string{"thread:" + thread.ProviderThreadID}
	if thread.ParticipantSignature != "" {
		keys = append(keys, "sig:"+thread.ParticipantSignature)
	}
	for _, key := range keys {
		if _, err := tx.ExecContext(ctx, "SELECT pg_advisory_xact_lock(hashtext($1))", key); err != nil {
			return uuid.Nil, "", fmt.Errorf("advisory lock: %w", err)
		}
	}

	var (
		id      uuid.UUID
		outcome out.SaveOutcome
	)
	err = tx.GetContext(ctx, &id, "SELECT id FROM email_threads WHERE gmail_thread_id = $1", thread.ProviderThreadID)
	switch {
	case err == nil:
		outcome = out.SaveUpdatedByThreadID
	case errors.Is(err, sql.ErrNoRows) && thread.ParticipantSignature != "":
		err = tx.GetContext(ctx, &id, `
			SELECT id FROM email_threads WHERE participant_signature = $1
			ORDER BY created_at ASC LIMIT 1`, thread.ParticipantSignature)
		if err == nil {
			outcome = out.SaveUpdatedBySignature
		} else if !errors.Is(err, sql.ErrNoRows) {
			return uuid.Nil, "", err
		}
	case !errors.Is(err, sql.ErrNoRows):
		return uuid.Nil, "", err
	}

	if outcome == "" {
		status := thread.Status
		if status == "" {
			status = domain.ThreadStatusNew
		}
		err = tx.GetContext(ctx, &id, `
			INSERT INTO email_threads (
				gmail_thread_id, subject, participants, participant_signature,
				first_message_date, last_message_date, message_count, thread_url, status
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			RETURNING id`,
			thread.ProviderThreadID, thread.Subject, pq.Array(thread.Participants),
			nullString(thread.ParticipantSignature), thread.FirstMessageAt, thread.LastMessageAt,
			thread.MessageCount, thread.ThreadURL, string(status))
		if err != nil {
			return uuid.Nil, "", fmt.Errorf("insert thread: %w", err)
		}
		outcome = out.SaveInserted
	} else {
		_, err = tx.ExecContext(ctx, `
			UPDATE email_threads SET
				gmail_thread_id = $2, subject = $3, participants = $4,
				participant_signature = $5, first_message_date = $6,
				last_message_date = $7, message_count = $8, thread_url = $9,
				llm_processed = CASE
					WHEN message_count <> $8 OR last_message_date IS DISTINCT FROM $7 THEN FALSE
					ELSE llm_processed END,
				llm_processed_at = CASE
					WHEN message_count <> $8 OR last_message_date IS DISTINCT FROM $7 THEN NULL
					ELSE llm_processed_at END,
				updated_at = NOW()
			WHERE id = $1`,
			id, thread.ProviderThreadID, thread.Subject, pq.Array(thread.Participants),
			nullString(thread.ParticipantSignature), thread.FirstMessageAt, thread.LastMessageAt,
			thread.MessageCount, thread.ThreadURL)
		if err != nil {
			return uuid.Nil, "", fmt.Errorf("update thread: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return uuid.Nil, "", err
	}
	return id, outcome, nil
}

// SaveMessage inserts a message or returns the id of the existing row with
// the same provider message id.
func (a *SponsorThreadAdapter) SaveMessage(ctx context.Context, msg *domain.SponsorMessage) (uuid.UUID, error) {
	threadID := uuid.NullUUID{UUID: msg.ThreadID, Valid: msg.ThreadID != uuid.Nil}

	var id uuid.UUID
	err := a.db.GetContext(ctx, &id, `
		INSERT INTO email_messages (
			thread_id, gmail_message_id, sender_email, sender_name, recipients,
			subject, body_text, snippet, received_date, is_from_owner
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (gmail_message_id) DO UPDATE
			SET thread_id = COALESCE(email_messages.thread_id, EXCLUDED.thread_id)
		RETURNING id`,
		threadID, msg.ProviderMessageID, msg.SenderEmail, nullString(msg.SenderName),
		pq.Array(msg.Recipients), msg.Subject, nullString(msg.BodyText), nullString(msg.Snippet),
		msg.ReceivedAt, msg.IsFromOwner)
	if err != nil {
		return uuid.Nil, fmt.Errorf("save message %s: %w", msg.ProviderMessageID, err)
	}
	msg.ID = id
	return id, nil
}

// =============================================================================
// Processing
// =============================================================================

func (a *SponsorThreadAdapter) ThreadsAwaitingProcessing(ctx context.Context, limit int) ([]*domain.SponsorThread, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM email_threads
		WHERE llm_processed = FALSE
		ORDER BY last_message_date DESC`, threadSelectColumns)
	args := []any{}
	if limit > 0 {
		query += " LIMIT $1"
		args = append(args, limit)
	}
	return a.queryThreads(ctx, query, args...)
}

func (a *SponsorThreadAdapter) MessagesForThread(ctx context.Context, threadID uuid.UUID) ([]*domain.SponsorMessage, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM email_messages
		WHERE thread_id = $1
		ORDER BY received_date ASC`, messageSelectColumns)

	rows, err := a.db.QueryxContext(ctx, query, threadID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var msgs []*domain.SponsorMessage
	for rows.Next() {
		var row sponsorMessageRow
		if err := rows.StructScan(&row); err != nil {
			return nil, err
		}
		msgs = append(msgs, row.toEntity())
	}
	return msgs, rows.Err()
}

func (a *SponsorThreadAdapter) UpdateThreadLLMFields(ctx context.Context, threadID uuid.UUID, f *domain.ThreadLLMFields) (bool, error) {
	res, err := a.db.ExecContext(ctx, `
		UPDATE email_threads SET
			sponsor_poc_name = $2, sponsor_org_name = $3, estimated_value_amount = $4,
			value_type = $5, value_description = $6, confidence_score = $7,
			priority_level = $8, auto_priority_reasoning = $9, last_action_summary = $10,
			next_action_status = $11, next_action_description = $12,
			llm_processed = TRUE, llm_processed_at = NOW(), updated_at = NOW()
		WHERE id = $1`,
		threadID, nullString(f.SponsorPOCName), nullString(f.SponsorOrgName),
		nullString(f.EstimatedValueAmount), nullString(string(f.ValueType)),
		nullString(f.ValueDescription), f.ConfidenceScore, string(f.PriorityLevel),
		nullString(f.AutoPriorityReasoning), nullString(f.LastActionSummary),
		nullString(string(f.NextActionStatus)), nullString(f.NextActionDescription))
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (a *SponsorThreadAdapter) UpdateThreadPriority(ctx context.Context, threadID uuid.UUID, f *domain.ThreadLLMFields) (bool, error) {
	res, err := a.db.ExecContext(ctx, `
		UPDATE email_threads SET
			sponsor_poc_name = COALESCE(sponsor_poc_name, $2),
			sponsor_org_name = COALESCE(sponsor_org_name, $3),
			value_type = COALESCE(value_type, $4),
			priority_level = $5, auto_priority_reasoning = $6, last_action_summary = $7,
			next_action_status = $8, next_action_description = $9,
			updated_at = NOW()
		WHERE id = $1`,
		threadID, nullString(f.SponsorPOCName), nullString(f.SponsorOrgName),
		nullString(string(f.ValueType)), string(f.PriorityLevel),
		nullString(f.AutoPriorityReasoning), nullString(f.LastActionSummary),
		nullString(string(f.NextActionStatus)), nullString(f.NextActionDescription))
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// =============================================================================
// Queries
// =============================================================================

func (a *SponsorThreadAdapter) GetThread(ctx context.Context, id uuid.UUID) (*domain.SponsorThread, error) {
	var row sponsorThreadRow
	query := fmt.Sprintf("SELECT %s FROM email_threads WHERE id = $1", threadSelectColumns)
	if err := a.db.QueryRowxContext(ctx, query, id).StructScan(&row); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return row.toEntity(), nil
}

func (a *SponsorThreadAdapter) ListThreads(ctx context.Context, q *out.ThreadListQuery) ([]*domain.SponsorThread, int, error) {
	if q == nil {
		q = &out.ThreadListQuery{}
	}

	var (
		conds []string
		args  []any
	)
	if q.Status != "" {
		args = append(args, string(q.Status))
		conds = append(conds, fmt.Sprintf("status = $%d", len(args)))
	}
	if q.PriorityLevel != "" {
		args = append(args, string(q.PriorityLevel))
		conds = append(conds, fmt.Sprintf("priority_level = $%d", len(args)))
	}
	if q.Processed != nil {
		args = append(args, *q.Processed)
		conds = append(conds, fmt.Sprintf("llm_processed = $%d", len(args)))
	}
	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	var total int
	if err := a.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM email_threads"+where, args...); err != nil {
		return nil, 0, err
	}

	query := fmt.Sprintf("SELECT %s FROM email_threads%s ORDER BY last_message_date DESC", threadSelectColumns, where)
	if q.Limit > 0 {
		args = append(args, q.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if q.Offset > 0 {
		args = append(args, q.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	threads, err := a.queryThreads(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	return threads, total, nil
}

func (a *SponsorThreadAdapter) queryThreads(ctx context.Context, query string, args ...any) ([]*domain.SponsorThread, error) {
	rows, err := a.db.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var threads []*domain.SponsorThread
	for rows.Next() {
		var row sponsorThreadRow
		if err := rows.StructScan(&row); err != nil {
			return nil, err
		}
		threads = append(threads, row.toEntity())
	}
	return threads, rows.Err()
}

func (a *SponsorThreadAdapter) ThreadStatistics(ctx context.Context) (*domain.ThreadStatistics, error) {
	var row struct {
		Total        int `db:"total"`
		Unprocessed  int `db:"unprocessed"`
		HighPriority int `db:"high_priority"`
	}
	err := a.db.GetContext(ctx, &row, `
		SELECT
			COUNT(*) AS total,
			COUNT(*) FILTER (WHERE llm_processed = FALSE) AS unprocessed,
			COUNT(*) FILTER (WHERE priority_level IN ('READ_NOW', 'REPLY_NOW')) AS high_priority
		FROM email_threads`)
	if err != nil {
		return nil, err
	}
	return &domain.ThreadStatistics{
		TotalThreads:        row.Total,
		UnprocessedThreads:  row.Unprocessed,
		HighPriorityThreads: row.HighPriority,
		ProcessedThreads:    row.Total - row.Unprocessed,
	}, nil
}

// =============================================================================
// Fulfillment Tasks
// =============================================================================

type fulfillmentTaskRow struct {
	ID          uuid.UUID      `db:"id"`
	ThreadID    uuid.UUID      `db:"thread_id"`
	Title       string         `db:"title"`
	Description sql.NullString `db:"description"`
	TaskType    string         `db:"task_type"`
	Priority    string         `db:"priority"`
	DueDate     sql.NullTime   `db:"due_date"`
	Completed   bool           `db:"completed"`
	CompletedAt sql.NullTime   `db:"completed_at"`
	AssignedTo  sql.NullString `db:"assigned_to"`
	Notes       sql.NullString `db:"notes"`
	CreatedAt   time.Time      `db:"created_at"`
	UpdatedAt   time.Time      `db:"updated_at"`
}

func (r *fulfillmentTaskRow) toEntity() *domain.FulfillmentTask {
	task := &domain.FulfillmentTask{
		ID:          r.ID,
		ThreadID:    r.ThreadID,
		Title:       r.Title,
		Description: r.Description.String,
		TaskType:    domain.TaskType(r.TaskType),
		Priority:    domain.TaskPriority(r.Priority),
		Completed:   r.Completed,
		AssignedTo:  r.AssignedTo.String,
		Notes:       r.Notes.String,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
	if r.DueDate.Valid {
		task.DueDate = &r.DueDate.Time
	}
	if r.CompletedAt.Valid {
		task.CompletedAt = &r.CompletedAt.Time
	}
	return task
}

func (a *SponsorThreadAdapter) SaveFulfillmentTask(ctx context.Context, task *domain.FulfillmentTask) (uuid.UUID, error) {
	if err := task.Validate(); err != nil {
		return uuid.Nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	var dueDate sql.NullTime
	if task.DueDate != nil {
		dueDate = sql.NullTime{Time: *task.DueDate, Valid: true}
	}

	var id uuid.UUID
	err := a.db.GetContext(ctx, &id, `
		INSERT INTO fulfillment_tasks (
			thread_id, title, description, task_type, priority, due_date,
			completed, assigned_to, notes
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id`,
		task.ThreadID, task.Title, nullString(task.Description), string(task.TaskType),
		string(task.Priority), dueDate, task.Completed, nullString(task.AssignedTo),
		nullString(task.Notes))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" {
			return uuid.Nil, ErrNotFound
		}
		return uuid.Nil, err
	}
	task.ID = id
	return id, nil
}

func (a *SponsorThreadAdapter) ListFulfillmentTasks(ctx context.Context, threadID *uuid.UUID) ([]*domain.FulfillmentTask, error) {
	query := `
		SELECT id, thread_id, title, description, task_type, priority, due_date,
			completed, completed_at, assigned_to, notes, created_at, updated_at
		FROM fulfillment_tasks`
	var args []any
	if threadID != nil {
		query += " WHERE thread_id = $1"
		args = append(args, *threadID)
	}
	query += " ORDER BY due_date ASC NULLS LAST, created_at ASC"

	rows, err := a.db.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tasks []*domain.FulfillmentTask
	for rows.Next() {
		var row fulfillmentTaskRow
		if err := rows.StructScan(&row); err != nil {
			return nil, err
		}
		tasks = append(tasks, row.toEntity())
	}
	return tasks, rows.Err()
}
