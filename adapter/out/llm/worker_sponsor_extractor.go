package llm

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"

	"sponsor_worker/core/domain"
	"sponsor_worker/core/port/out"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
)

const (
	maxMessageContent = 2000
	promptTimeLayout  = "2006-01-02 15:04"
)

const sponsorSystemPrompt = `You analyze email threads between a student organization and companies it asks for sponsorship.

The sponsor is the outside organization being asked to give money, goods or services. Never report the organization asking for sponsorship as the sponsor.

Respond with a single JSON object with exactly these fields:
{
  "poc_name": "contact person at the sponsor, name only",
  "org_name": "sponsor organization name",
  "estimated_value_amount": "amount such as \"$5000\", or \"TBD\"",
  "value_type": "monetary|in-kind|catering|equipment|other",
  "value_description": "what is being offered",
  "confidence_score": 0.0-1.0,
  "priority_level": "READ_NOW|REPLY_NOW|NORMAL|LOW",
  "priority_reasoning": "why this priority",
  "last_action_summary": "most recent action in the thread",
  "next_action_status": "read|reply|other",
  "next_action_description": "concrete next step, or null"
}

Guidelines:
- Estimate value from context when no amount is given (small event $500-5000, large event $5000+), otherwise use "TBD".
- monetary is cash or funding; in-kind is free products or services; catering is food and drinks; equipment is hardware, staging and similar.
- READ_NOW for time-sensitive items, REPLY_NOW for questions or proposals awaiting a reply, NORMAL for early discussion, LOW for informational or finished threads.
- confidence_score is how likely the organization is to sponsor.`

// completer is the subset of Client used by the extractor.
type completer interface {
	CompleteJSON(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// SponsorExtractor implements out.SponsorExtractor with a chat model.
type SponsorExtractor struct {
	llm completer
	log zerolog.Logger
}

var _ out.SponsorExtractor = (*SponsorExtractor)(nil)

func NewSponsorExtractor(llm completer, log zerolog.Logger) *SponsorExtractor {
	return &SponsorExtractor{
		llm: llm,
		log: log.With().Str("component", "sponsor_extractor").Logger(),
	}
}

// ExtractSponsorInfo returns nil without error when the model output cannot
// be used, so the thread stays queued for the next run.
func (e *SponsorExtractor) ExtractSponsorInfo(ctx context.Context, thread *domain.SponsorThread, messages []*domain.SponsorMessage) (*domain.SponsorInfo, error) {
	resp, err := e.llm.CompleteJSON(ctx, sponsorSystemPrompt, FormatThread(thread, messages))
	if err != nil {
		return nil, fmt.Errorf("sponsor extraction: %w", err)
	}

	info, err := ParseSponsorInfo(resp)
	if err != nil {
		e.log.Warn().Err(err).Str("thread_id", thread.ProviderThreadID).Msg("unusable extraction output")
		e.log.Debug().Str("thread_id", thread.ProviderThreadID).Str("raw", resp).Msg("raw extraction output")
		return nil, nil
	}
	return info, nil
}

// FormatThread renders a thread and its messages, oldest first, as prompt text.
func FormatThread(thread *domain.SponsorThread, messages []*domain.SponsorMessage) string {
	sorted := make([]*domain.SponsorMessage, len(messages))
	copy(sorted, messages)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].ReceivedAt.Before(sorted[j].ReceivedAt)
	})

	var b strings.Builder
	fmt.Fprintf(&b, "THREAD SUBJECT: %s\n", thread.Subject)
	fmt.Fprintf(&b, "THREAD PARTICIPANTS: %s\n", strings.Join(thread.Participants, ", "))
	fmt.Fprintf(&b, "FIRST MESSAGE: %s\n", thread.FirstMessageAt.UTC().Format(promptTimeLayout))
	fmt.Fprintf(&b, "LAST MESSAGE: %s\n", thread.LastMessageAt.UTC().Format(promptTimeLayout))
	fmt.Fprintf(&b, "TOTAL MESSAGES: %d\n\nMESSAGES:\n", len(sorted))

	for i, m := range sorted {
		fmt.Fprintf(&b, "\n--- MESSAGE %d ---\n", i+1)
		fmt.Fprintf(&b, "FROM: %s <%s>\n", m.SenderName, m.SenderEmail)
		fmt.Fprintf(&b, "TO: %s\n", strings.Join(m.Recipients, ", "))
		fmt.Fprintf(&b, "DATE: %s\n", m.ReceivedAt.UTC().Format(promptTimeLayout))
		fmt.Fprintf(&b, "SUBJECT: %s\n\nCONTENT:\n%s\n", m.Subject, truncateBody(m.BodyText, maxMessageContent))
	}
	return b.String()
}

// sponsorResponse is the JSON shape requested from the model.
type sponsorResponse struct {
	POCName               string    `json:"poc_name"`
	OrgName               string    `json:"org_name"`
	EstimatedValueAmount  string    `json:"estimated_value_amount"`
	ValueType             string    `json:"value_type"`
	ValueDescription      string    `json:"value_description"`
	ConfidenceScore       flexFloat `json:"confidence_score"`
	PriorityLevel         string    `json:"priority_level"`
	PriorityReasoning     string    `json:"priority_reasoning"`
	LastActionSummary     string    `json:"last_action_summary"`
	NextActionStatus      string    `json:"next_action_status"`
	NextActionDescription *string   `json:"next_action_description"`
}

// ParseSponsorInfo decodes and validates model output. Markdown code fences
// around the object are tolerated.
func ParseSponsorInfo(raw string) (*domain.SponsorInfo, error) {
	raw = strings.TrimSpace(raw)
	raw = strings.TrimPrefix(raw, "```json")
	raw = strings.TrimPrefix(raw, "```")
	raw = strings.TrimSuffix(raw, "```")
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, ErrEmptyResponse
	}

	var resp sponsorResponse
	if err := json.Unmarshal([]byte(raw), &resp); err != nil {
		return nil, fmt.Errorf("failed to parse sponsor info: %w", err)
	}

	in := domain.SponsorInfoInput{
		POCName:              resp.POCName,
		OrgName:              resp.OrgName,
		EstimatedValueAmount: resp.EstimatedValueAmount,
		ValueType:            resp.ValueType,
		ValueDescription:     resp.ValueDescription,
		ConfidenceScore:      float64(resp.ConfidenceScore),
		PriorityLevel:        resp.PriorityLevel,
		PriorityReasoning:    resp.PriorityReasoning,
		LastActionSummary:    resp.LastActionSummary,
		NextActionStatus:     resp.NextActionStatus,
	}
	if resp.NextActionDescription != nil {
		in.NextActionDescription = *resp.NextActionDescription
	}
	return domain.NewSponsorInfo(in)
}

// flexFloat accepts a JSON number or a numeric string.
type flexFloat float64

func (f *flexFloat) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	if s == "null" {
		*f = 0
		return nil
	}
	s = strings.Trim(s, `"`)
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return fmt.Errorf("invalid number %q", s)
	}
	*f = flexFloat(v)
	return nil
}

func truncateBody(body string, maxLen int) string {
	if len(body) <= maxLen {
		return body
	}
	// 멀티바이트 문자 중간에서 자르지 않도록
	cut := maxLen
	for cut > 0 && !utf8.RuneStart(body[cut]) {
		cut--
	}
	return body[:cut] + "..."
}
