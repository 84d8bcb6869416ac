// Package domain holds the sponsorship CRM records shared by every layer.
package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// Priority Level
// =============================================================================

// PriorityLevel is the urgency of a thread. Levels are totally ordered by Rank.
type PriorityLevel string

const (
	PriorityReadNow  PriorityLevel = "READ_NOW"
	PriorityReplyNow PriorityLevel = "REPLY_NOW"
	PriorityNormal   PriorityLevel = "NORMAL"
	PriorityLow      PriorityLevel = "LOW"
)

// Rank returns the ordering weight: READ_NOW(4) > REPLY_NOW(3) > NORMAL(2) > LOW(1).
func (p PriorityLevel) Rank() int {
	switch p {
	case PriorityReadNow:
		return 4
	case PriorityReplyNow:
		return 3
	case PriorityNormal:
		return 2
	case PriorityLow:
		return 1
	default:
		return 0
	}
}

// IsHigh reports whether the level needs attention now.
func (p PriorityLevel) IsHigh() bool {
	return p == PriorityReadNow || p == PriorityReplyNow
}

// ParsePriorityLevel validates a priority string (case-insensitive).
func ParsePriorityLevel(s string) (PriorityLevel, error) {
	p := PriorityLevel(strings.ToUpper(strings.TrimSpace(s)))
	if p.Rank() == 0 {
		return "", fmt.Errorf("invalid priority level %q", s)
	}
	return p, nil
}

// =============================================================================
// Value Type / Next Action / Thread Status
// =============================================================================

// ValueType is the kind of value a sponsor offers.
type ValueType string

const (
	ValueMonetary  ValueType = "monetary"
	ValueInKind    ValueType = "in-kind"
	ValueCatering  ValueType = "catering"
	ValueEquipment ValueType = "equipment"
	ValueOther     ValueType = "other"
)

// ParseValueType validates a value type. Empty input maps to ValueOther.
func ParseValueType(s string) (ValueType, error) {
	v := ValueType(strings.ToLower(strings.TrimSpace(s)))
	switch v {
	case "":
		return ValueOther, nil
	case ValueMonetary, ValueInKind, ValueCatering, ValueEquipment, ValueOther:
		return v, nil
	}
	return "", fmt.Errorf("invalid value type %q", s)
}

// NextActionStatus is the recommended next step on a thread.
type NextActionStatus string

const (
	ActionRead  NextActionStatus = "read"
	ActionReply NextActionStatus = "reply"
	ActionOther NextActionStatus = "other"
)

// ParseNextActionStatus validates an action. Empty input maps to ActionRead.
func ParseNextActionStatus(s string) (NextActionStatus, error) {
	a := NextActionStatus(strings.ToLower(strings.TrimSpace(s)))
	switch a {
	case "":
		return ActionRead, nil
	case ActionRead, ActionReply, ActionOther:
		return a, nil
	}
	return "", fmt.Errorf("invalid next action status %q", s)
}

// ThreadStatus is the CRM lifecycle of a thread.
type ThreadStatus string

const (
	ThreadStatusNew        ThreadStatus = "new"
	ThreadStatusInProgress ThreadStatus = "in_progress"
	ThreadStatusResponded  ThreadStatus = "responded"
	ThreadStatusClosed     ThreadStatus = "closed"
)

// Valid reports whether s is a known status.
func (s ThreadStatus) Valid() bool {
	switch s {
	case ThreadStatusNew, ThreadStatusInProgress, ThreadStatusResponded, ThreadStatusClosed:
		return true
	}
	return false
}

// =============================================================================
// Thread / Message Records
// =============================================================================

// SponsorThread is one logical conversation with a (potential) sponsor.
type SponsorThread struct {
	ID                   uuid.UUID
	ProviderThreadID     string
	Subject              string
	Participants         []string
	ParticipantSignature string
	FirstMessageAt       time.Time
	LastMessageAt        time.Time
	MessageCount         int
	ThreadURL            string
	Status               ThreadStatus

	// LLM-derived CRM fields
	SponsorPOCName        string
	SponsorOrgName        string
	EstimatedValueAmount  string
	ValueType             ValueType
	ValueDescription      string
	ConfidenceScore       *float64
	PriorityLevel         PriorityLevel
	AutoPriorityReasoning string
	LastActionSummary     string
	NextActionStatus      NextActionStatus
	NextActionDescription string

	LLMProcessed   bool
	LLMProcessedAt *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// SponsorMessage is one email belonging to a SponsorThread.
type SponsorMessage struct {
	ID                uuid.UUID
	ThreadID          uuid.UUID
	ProviderMessageID string
	SenderEmail       string
	SenderName        string
	Recipients        []string
	Subject           string
	BodyText          string
	Snippet           string
	ReceivedAt        time.Time
	IsFromOwner       bool
	CreatedAt         time.Time
}

// ThreadLLMFields is the set of columns written after LLM processing.
type ThreadLLMFields struct {
	SponsorPOCName        string
	SponsorOrgName        string
	EstimatedValueAmount  string
	ValueType             ValueType
	ValueDescription      string
	ConfidenceScore       float64
	PriorityLevel         PriorityLevel
	AutoPriorityReasoning string
	LastActionSummary     string
	NextActionStatus      NextActionStatus
	NextActionDescription string
}

// ThreadStatistics summarizes stored threads.
type ThreadStatistics struct {
	TotalThreads        int `json:"total_threads"`
	UnprocessedThreads  int `json:"unprocessed_threads"`
	HighPriorityThreads int `json:"high_priority_threads"`
	ProcessedThreads    int `json:"processed_threads"`
}
