package http

import (
	"time"

	"sponsor_worker/core/domain"
)

// ThreadResponse is the API view of a sponsor thread.
type ThreadResponse struct {
	ID               string    `json:"id"`
	GmailThreadID    string    `json:"gmail_thread_id"`
	Subject          string    `json:"subject"`
	Participants     []string  `json:"participants"`
	FirstMessageDate time.Time `json:"first_message_date"`
	LastMessageDate  time.Time `json:"last_message_date"`
	MessageCount     int       `json:"message_count"`
	ThreadURL        string    `json:"thread_url"`
	Status           string    `json:"status"`

	SponsorPOCName        string     `json:"sponsor_poc_name,omitempty"`
	SponsorOrgName        string     `json:"sponsor_org_name,omitempty"`
	EstimatedValueAmount  string     `json:"estimated_value_amount,omitempty"`
	ValueType             string     `json:"value_type,omitempty"`
	ValueDescription      string     `json:"value_description,omitempty"`
	ConfidenceScore       *float64   `json:"confidence_score,omitempty"`
	PriorityLevel         string     `json:"priority_level,omitempty"`
	AutoPriorityReasoning string     `json:"auto_priority_reasoning,omitempty"`
	LastActionSummary     string     `json:"last_action_summary,omitempty"`
	NextActionStatus      string     `json:"next_action_status,omitempty"`
	NextActionDescription string     `json:"next_action_description,omitempty"`
	LLMProcessed          bool       `json:"llm_processed"`
	LLMProcessedAt        *time.Time `json:"llm_processed_at,omitempty"`

	Messages []MessageResponse `json:"messages,omitempty"`
}

// MessageResponse is the API view of a stored message.
type MessageResponse struct {
	ID             string    `json:"id"`
	GmailMessageID string    `json:"gmail_message_id"`
	SenderEmail    string    `json:"sender_email"`
	SenderName     string    `json:"sender_name,omitempty"`
	Recipients     []string  `json:"recipients"`
	Subject        string    `json:"subject"`
	BodyText       string    `json:"body_text,omitempty"`
	Snippet        string    `json:"snippet,omitempty"`
	ReceivedDate   time.Time `json:"received_date"`
	IsFromOwner    bool      `json:"is_from_owner"`
}

// TaskResponse is the API view of a fulfillment task.
type TaskResponse struct {
	ID          string     `json:"id"`
	ThreadID    string     `json:"thread_id"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	TaskType    string     `json:"task_type"`
	Priority    string     `json:"priority"`
	DueDate     *time.Time `json:"due_date,omitempty"`
	Completed   bool       `json:"completed"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	AssignedTo  string     `json:"assigned_to,omitempty"`
	Notes       string     `json:"notes,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// CreateTaskRequest is the body of POST /threads/:id/tasks.
type CreateTaskRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	TaskType    string `json:"task_type"`
	Priority    string `json:"priority"`
	// DueDate accepts RFC 3339 or YYYY-MM-DD.
	DueDate    string `json:"due_date"`
	AssignedTo string `json:"assigned_to"`
	Notes      string `json:"notes"`
}

func toThreadResponse(t *domain.SponsorThread) ThreadResponse {
	participants := t.Participants
	if participants == nil {
		participants = []string{}
	}
	return ThreadResponse{
		ID:                    t.ID.String(),
		GmailThreadID:         t.ProviderThreadID,
		Subject:               t.Subject,
		Participants:          participants,
		FirstMessageDate:      t.FirstMessageAt,
		LastMessageDate:       t.LastMessageAt,
		MessageCount:          t.MessageCount,
		ThreadURL:             t.ThreadURL,
		Status:                string(t.Status),
		SponsorPOCName:        t.SponsorPOCName,
		SponsorOrgName:        t.SponsorOrgName,
		EstimatedValueAmount:  t.EstimatedValueAmount,
		ValueType:             string(t.ValueType),
		ValueDescription:      t.ValueDescription,
		ConfidenceScore:       t.ConfidenceScore,
		PriorityLevel:         string(t.PriorityLevel),
		AutoPriorityReasoning: t.AutoPriorityReasoning,
		LastActionSummary:     t.LastActionSummary,
		NextActionStatus:      string(t.NextActionStatus),
		NextActionDescription: t.NextActionDescription,
		LLMProcessed:          t.LLMProcessed,
		LLMProcessedAt:        t.LLMProcessedAt,
	}
}

func toMessageResponse(m *domain.SponsorMessage) MessageResponse {
	recipients := m.Recipients
	if recipients == nil {
		recipients = []string{}
	}
	return MessageResponse{
		ID:             m.ID.String(),
		GmailMessageID: m.ProviderMessageID,
		SenderEmail:    m.SenderEmail,
		SenderName:     m.SenderName,
		Recipients:     recipients,
		Subject:        m.Subject,
		BodyText:       m.BodyText,
		Snippet:        m.Snippet,
		ReceivedDate:   m.ReceivedAt,
		IsFromOwner:    m.IsFromOwner,
	}
}

func toTaskResponse(t *domain.FulfillmentTask) TaskResponse {
	return TaskResponse{
		ID:          t.ID.String(),
		ThreadID:    t.ThreadID.String(),
		Title:       t.Title,
		Description: t.Description,
		TaskType:    string(t.TaskType),
		Priority:    string(t.Priority),
		DueDate:     t.DueDate,
		Completed:   t.Completed,
		CompletedAt: t.CompletedAt,
		AssignedTo:  t.AssignedTo,
		Notes:       t.Notes,
		CreatedAt:   t.CreatedAt,
	}
}

// ParseDueDate accepts RFC 3339 timestamps and plain dates. Empty input
// returns nil.
func ParseDueDate(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return &t, nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
