package priority

import (
	"strings"
	"testing"
	"time"

	"sponsor_worker/core/domain"
)

var now = time.Date(2025, 8, 1, 12, 0, 0, 0, time.UTC)

func newTestCalculator() *Calculator {
	return NewCalculator(DefaultConfig(), func() time.Time { return now })
}

func message(sender string, owner bool, ago time.Duration, subject, body string) *domain.SponsorMessage {
	return &domain.SponsorMessage{
		SenderEmail: sender,
		SenderName:  strings.Split(sender, "@")[0],
		Subject:     subject,
		BodyText:    body,
		ReceivedAt:  now.Add(-ago),
		IsFromOwner: owner,
	}
}

func TestTimeSignal(t *testing.T) {
	c := newTestCalculator()

	tests := []struct {
		name    string
		ago     time.Duration
		waiting bool
		level   domain.PriorityLevel
		reason  string
	}{
		{"waiting 100h", 100 * time.Hour, true, domain.PriorityReplyNow, "No response for 4 days - urgent follow-up needed"},
		{"waiting 50h", 50 * time.Hour, true, domain.PriorityReplyNow, "No response for 2 days - response overdue"},
		{"waiting 30h", 30 * time.Hour, true, domain.PriorityReplyNow, "Response needed - message received 1 day(s) ago"},
		{"waiting 5h", 5 * time.Hour, true, domain.PriorityNormal, "Recent message received 5 hours ago"},
		{"waiting 3h", 3 * time.Hour, true, domain.PriorityNormal, "Very recent message received"},
		{"sent 20d", 20 * 24 * time.Hour, false, domain.PriorityReadNow, "Sent message 20 days ago - check for response or follow up"},
		{"sent 10d", 10 * 24 * time.Hour, false, domain.PriorityNormal, "Sent message 10 days ago - may need follow-up"},
		{"sent 5d", 5 * 24 * time.Hour, false, domain.PriorityNormal, "Sent message 5 days ago - waiting for response"},
		{"sent 2d", 2 * 24 * time.Hour, false, domain.PriorityLow, "Recently sent message 2 day(s) ago"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := c.TimeSignal(now.Add(-tt.ago), tt.waiting)
			if got.Level != tt.level || got.Reason != tt.reason {
				t.Errorf("TimeSignal() = %+v, want {%s %s}", got, tt.level, tt.reason)
			}
		})
	}
}

func TestContentSignal(t *testing.T) {
	c := newTestCalculator()

	tests := []struct {
		name   string
		msgs   []*domain.SponsorMessage
		level  domain.PriorityLevel
		reason string
	}{
		{"none", nil, domain.PriorityNormal, "No messages to analyze"},
		{"urgent", []*domain.SponsorMessage{message("a@x.com", false, time.Hour, "URGENT: deadline today", "")}, domain.PriorityReadNow, "Urgent language detected: urgent, deadline"},
		{"medium", []*domain.SponsorMessage{message("a@x.com", false, time.Hour, "Hi", "please respond soon")}, domain.PriorityNormal, "Time-sensitive language detected: soon, please respond"},
		{"calm", []*domain.SponsorMessage{message("a@x.com", false, time.Hour, "Hello", "nice to meet you")}, domain.PriorityLow, "No urgency indicators in content"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := c.ContentSignal(tt.msgs)
			if got.Level != tt.level || got.Reason != tt.reason {
				t.Errorf("ContentSignal() = %+v, want {%s %s}", got, tt.level, tt.reason)
			}
		})
	}
}

func TestSenderSignal(t *testing.T) {
	c := newTestCalculator()

	tests := []struct {
		name   string
		msgs   []*domain.SponsorMessage
		level  domain.PriorityLevel
		reason string
	}{
		{"edu domain", []*domain.SponsorMessage{message("prof@mit.edu", false, time.Hour, "", "")}, domain.PriorityNormal, "Important organization domain detected: edu"},
		{"vip role", []*domain.SponsorMessage{message("ceo@startup.io", false, time.Hour, "", "")}, domain.PriorityNormal, "Senior role detected in sender: ceo"},
		{"owner ignored", []*domain.SponsorMessage{message("director@club.edu", true, time.Hour, "", "")}, domain.PriorityLow, "Standard sender priority"},
		{"standard", []*domain.SponsorMessage{message("jane@acme.com", false, time.Hour, "", "")}, domain.PriorityLow, "Standard sender priority"},
		{"domain word in local part", []*domain.SponsorMessage{message("eduardo@gmail.com", false, time.Hour, "", "")}, domain.PriorityLow, "Standard sender priority"},
		{"domain word inside host label", []*domain.SponsorMessage{message("team@orgchart.io", false, time.Hour, "", "")}, domain.PriorityLow, "Standard sender priority"},
		{"subdomain of important domain", []*domain.SponsorMessage{message("grants@cs.stanford.edu", false, time.Hour, "", "")}, domain.PriorityNormal, "Important organization domain detected: edu"},
		{"exact important domain", []*domain.SponsorMessage{message("info@foundation.org", false, time.Hour, "", "")}, domain.PriorityNormal, "Important organization domain detected: foundation.org"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := c.SenderSignal(tt.msgs)
			if got.Level != tt.level || got.Reason != tt.reason {
				t.Errorf("SenderSignal() = %+v, want {%s %s}", got, tt.level, tt.reason)
			}
		})
	}
}

func TestCalculateExternalWaiting100Hours(t *testing.T) {
	c := newTestCalculator()
	msgs := []*domain.SponsorMessage{
		message("owner@club.edu", true, 200*time.Hour, "Sponsorship Inquiry", "Would you sponsor our event?"),
		message("jane@acme.com", false, 100*time.Hour, "Re: Sponsorship Inquiry", "We'd like to sponsor your event"),
	}

	got := c.Calculate(msgs)
	if got.Level != domain.PriorityReplyNow {
		t.Errorf("Level = %s, want REPLY_NOW", got.Level)
	}
	if !strings.HasPrefix(got.Reasoning, "Time: ") {
		t.Errorf("Reasoning = %q, want time signal", got.Reasoning)
	}
	if !got.Waiting {
		t.Error("expected waiting")
	}
}

func TestCalculateUrgentContentFromOwner(t *testing.T) {
	c := newTestCalculator()
	msgs := []*domain.SponsorMessage{
		message("owner@club.edu", true, 24*time.Hour, "URGENT: deadline today", ""),
	}

	if got := c.TimeSignal(msgs[0].ReceivedAt, false); got.Level != domain.PriorityLow {
		t.Fatalf("time signal alone = %s, want LOW", got.Level)
	}

	got := c.Calculate(msgs)
	if got.Level != domain.PriorityReadNow {
		t.Errorf("Level = %s, want READ_NOW", got.Level)
	}
	if got.Reasoning != "Content: Urgent language detected: urgent, deadline" {
		t.Errorf("Reasoning = %q", got.Reasoning)
	}
}

func TestCalculateTiesJoinReasons(t *testing.T) {
	c := newTestCalculator()
	msgs := []*domain.SponsorMessage{
		message("ceo@startup.io", false, 10*time.Hour, "Hi", "please respond soon"),
	}

	got := c.Calculate(msgs)
	want := "Time: Recent message received 10 hours ago; " +
		"Content: Time-sensitive language detected: soon, please respond; " +
		"Sender: Senior role detected in sender: ceo"
	if got.Level != domain.PriorityNormal || got.Reasoning != want {
		t.Errorf("Calculate() = %+v, want NORMAL %q", got, want)
	}
}

func TestCalculateNoMessages(t *testing.T) {
	got := newTestCalculator().Calculate(nil)
	if got.Level != domain.PriorityNormal || got.Reasoning != "No messages in thread" {
		t.Errorf("Calculate(nil) = %+v", got)
	}
}

func TestRecommendedAction(t *testing.T) {
	tests := []struct {
		level   domain.PriorityLevel
		waiting bool
		status  domain.NextActionStatus
		desc    string
	}{
		{domain.PriorityReadNow, true, domain.ActionReply, "Urgent response needed"},
		{domain.PriorityReplyNow, false, domain.ActionRead, "Check for response or follow up"},
		{domain.PriorityNormal, true, domain.ActionReply, "Response needed"},
		{domain.PriorityNormal, false, domain.ActionRead, "Monitor for response"},
		{domain.PriorityLow, true, domain.ActionRead, "No immediate action required"},
	}
	for _, tt := range tests {
		status, desc := RecommendedAction(tt.level, tt.waiting)
		if status != tt.status || desc != tt.desc {
			t.Errorf("RecommendedAction(%s, %v) = (%s, %q), want (%s, %q)", tt.level, tt.waiting, status, desc, tt.status, tt.desc)
		}
	}
}

func TestActionSummary(t *testing.T) {
	c := newTestCalculator()

	tests := []struct {
		name string
		msgs []*domain.SponsorMessage
		want string
	}{
		{"none", nil, "No messages in thread"},
		{"owner days", []*domain.SponsorMessage{message("owner@club.edu", true, 3*24*time.Hour, "", "")}, "Sent message 3 days ago"},
		{"reply hours", []*domain.SponsorMessage{message("jane@acme.com", false, 150*time.Minute, "", "")}, "jane replied 2 hours ago"},
		{"reply minutes", []*domain.SponsorMessage{message("jane@acme.com", false, 45*time.Minute, "", "")}, "jane replied 45 minutes ago"},
		{"latest wins", []*domain.SponsorMessage{
			message("jane@acme.com", false, 45*time.Minute, "", ""),
			message("owner@club.edu", true, 5*time.Minute, "", ""),
		}, "Sent message 5 minutes ago"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := c.ActionSummary(tt.msgs); got != tt.want {
				t.Errorf("ActionSummary() = %q, want %q", got, tt.want)
			}
		})
	}
}
