package persistence

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// Schema is the idempotent DDL for the sponsor CRM tables.
const Schema = `
CREATE EXTENSION IF NOT EXISTS pgcrypto;

CREATE TABLE IF NOT EXISTS email_threads (
	id                      UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	gmail_thread_id         TEXT NOT NULL UNIQUE,
	subject                 TEXT NOT NULL DEFAULT 'No Subject',
	participants            TEXT[] NOT NULL DEFAULT '{}',
	participant_signature   TEXT,
	first_message_date      TIMESTAMPTZ NOT NULL,
	last_message_date       TIMESTAMPTZ NOT NULL,
	message_count           INTEGER NOT NULL DEFAULT 0,
	thread_url              TEXT NOT NULL DEFAULT '',
	status                  TEXT NOT NULL DEFAULT 'new'
		CHECK (status IN ('new', 'in_progress', 'responded', 'closed')),
	sponsor_poc_name        TEXT,
	sponsor_org_name        TEXT,
	estimated_value_amount  TEXT,
	value_type              TEXT
		CHECK (value_type IN ('monetary', 'in-kind', 'catering', 'equipment', 'other')),
	value_description       TEXT,
	confidence_score        DOUBLE PRECISION
		CHECK (confidence_score BETWEEN 0 AND 1),
	priority_level          TEXT
		CHECK (priority_level IN ('READ_NOW', 'REPLY_NOW', 'NORMAL', 'LOW')),
	auto_priority_reasoning TEXT,
	last_action_summary     TEXT,
	next_action_status      TEXT
		CHECK (next_action_status IN ('read', 'reply', 'other')),
	next_action_description TEXT,
	llm_processed           BOOLEAN NOT NULL DEFAULT FALSE,
	llm_processed_at        TIMESTAMPTZ,
	created_at              TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at              TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_email_threads_signature
	ON email_threads (participant_signature) WHERE participant_signature <> '';
CREATE INDEX IF NOT EXISTS idx_email_threads_unprocessed
	ON email_threads (last_message_date DESC) WHERE llm_processed = FALSE;
CREATE INDEX IF NOT EXISTS idx_email_threads_priority
	ON email_threads (priority_level);

CREATE TABLE IF NOT EXISTS email_messages (
	id               UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	thread_id        UUID REFERENCES email_threads(id) ON DELETE CASCADE,
	gmail_message_id TEXT NOT NULL UNIQUE,
	sender_email     TEXT NOT NULL DEFAULT '',
	sender_name      TEXT,
	recipients       TEXT[] NOT NULL DEFAULT '{}',
	subject          TEXT NOT NULL DEFAULT '',
	body_text        TEXT,
	snippet          TEXT,
	received_date    TIMESTAMPTZ NOT NULL,
	is_from_owner    BOOLEAN NOT NULL DEFAULT FALSE,
	created_at       TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_email_messages_thread
	ON email_messages (thread_id, received_date);

CREATE TABLE IF NOT EXISTS fulfillment_tasks (
	id           UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	thread_id    UUID NOT NULL REFERENCES email_threads(id) ON DELETE CASCADE,
	title        TEXT NOT NULL,
	description  TEXT,
	task_type    TEXT NOT NULL DEFAULT 'other'
		CHECK (task_type IN ('social_media', 'email', 'flyer', 'program', 'announcement',
			'website', 'newsletter', 'event', 'other')),
	priority     TEXT NOT NULL DEFAULT 'medium'
		CHECK (priority IN ('high', 'medium', 'low')),
	due_date     TIMESTAMPTZ,
	completed    BOOLEAN NOT NULL DEFAULT FALSE,
	completed_at TIMESTAMPTZ,
	assigned_to  TEXT,
	notes        TEXT,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_fulfillment_tasks_thread
	ON fulfillment_tasks (thread_id);
`

// EnsureSchema applies Schema. Safe to run repeatedly.
func EnsureSchema(ctx context.Context, db *sqlx.DB) error {
	if _, err := db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}
