package llm

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"sponsor_worker/core/domain"

	"github.com/rs/zerolog"
)

type fakeCompleter struct {
	resp   string
	err    error
	prompt string
}

func (f *fakeCompleter) CompleteJSON(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	f.prompt = userPrompt
	return f.resp, f.err
}

func testThread() (*domain.SponsorThread, []*domain.SponsorMessage) {
	t0 := time.Date(2025, 7, 20, 9, 30, 0, 0, time.UTC)
	th := &domain.SponsorThread{
		ProviderThreadID: "t1",
		Subject:          "Sponsorship Inquiry",
		Participants:     []string{"jane@acme.com"},
		FirstMessageAt:   t0,
		LastMessageAt:    t0.Add(2 * time.Hour),
	}
	msgs := []*domain.SponsorMessage{
		{SenderName: "Jane Doe", SenderEmail: "jane@acme.com", Subject: "Re: Sponsorship Inquiry", BodyText: "We can offer $2,000", ReceivedAt: t0.Add(2 * time.Hour)},
		{SenderName: "Club Owner", SenderEmail: "owner@club.edu", Recipients: []string{"jane@acme.com"}, Subject: "Sponsorship Inquiry", BodyText: strings.Repeat("x", 2500), ReceivedAt: t0},
	}
	return th, msgs
}

func TestTruncateBody(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		maxLen   int
		expected string
	}{
		{"short body", "Hello world", 100, "Hello world"},
		{"exact length", "Hello", 5, "Hello"},
		{"truncated", "Hello world, this is a long message", 10, "Hello worl..."},
		{"empty body", "", 100, ""},
		{"multibyte boundary", "안녕하세요", 4, "안..."},
		{"emoji boundary", "ok 🎉🎉", 5, "ok ..."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := truncateBody(tt.body, tt.maxLen)
			if got != tt.expected {
				t.Errorf("expected %q, got %q", tt.expected, got)
			}
			if !utf8.ValidString(got) {
				t.Errorf("truncateBody() produced invalid UTF-8: %q", got)
			}
		})
	}
}

func TestFormatThread(t *testing.T) {
	th, msgs := testThread()
	got := FormatThread(th, msgs)

	for _, want := range []string{
		"THREAD SUBJECT: Sponsorship Inquiry",
		"FIRST MESSAGE: 2025-07-20 09:30",
		"TOTAL MESSAGES: 2",
		"FROM: Jane Doe <jane@acme.com>",
		strings.Repeat("x", 2000) + "...",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("formatted thread missing %q", want)
		}
	}
	if strings.Index(got, "FROM: Club Owner") > strings.Index(got, "FROM: Jane Doe") {
		t.Error("messages should be ordered oldest first")
	}
}

func TestParseSponsorInfo(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		wantErr bool
		check   func(t *testing.T, info *domain.SponsorInfo)
	}{
		{
			name: "valid object",
			raw: `{"poc_name":"Jane Doe","org_name":"Acme","estimated_value_amount":"$2000","value_type":"monetary",
				"confidence_score":0.8,"priority_level":"REPLY_NOW","next_action_status":"reply","next_action_description":null}`,
			check: func(t *testing.T, info *domain.SponsorInfo) {
				if info.OrgName != "Acme" || info.ValueType != domain.ValueMonetary || info.ConfidenceScore != 0.8 {
					t.Errorf("info = %+v", info)
				}
				if info.NextActionDescription != "" {
					t.Errorf("NextActionDescription = %q", info.NextActionDescription)
				}
			},
		},
		{
			name: "fenced with string confidence",
			raw:  "```json\n{\"org_name\":\"Acme\",\"confidence_score\":\"0.5\",\"value_type\":\"catering\"}\n```",
			check: func(t *testing.T, info *domain.SponsorInfo) {
				if info.ConfidenceScore != 0.5 || info.ValueType != domain.ValueCatering {
					t.Errorf("info = %+v", info)
				}
				if info.PriorityLevel != domain.PriorityNormal || info.NextActionStatus != domain.ActionRead {
					t.Errorf("defaults not applied: %+v", info)
				}
			},
		},
		{name: "empty", raw: "  ", wantErr: true},
		{name: "malformed", raw: "{not json", wantErr: true},
		{name: "unknown value type", raw: `{"value_type":"crypto"}`, wantErr: true},
		{name: "confidence out of range", raw: `{"confidence_score":1.5}`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			info, err := ParseSponsorInfo(tt.raw)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseSponsorInfo() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.check != nil {
				tt.check(t, info)
			}
		})
	}
}

func TestExtractSponsorInfo(t *testing.T) {
	th, msgs := testThread()

	t.Run("malformed output is a miss", func(t *testing.T) {
		ext := NewSponsorExtractor(&fakeCompleter{resp: "sorry, I cannot help"}, zerolog.Nop())
		info, err := ext.ExtractSponsorInfo(context.Background(), th, msgs)
		if err != nil || info != nil {
			t.Errorf("got (%v, %v), want (nil, nil)", info, err)
		}
	})

	t.Run("transport error propagates", func(t *testing.T) {
		ext := NewSponsorExtractor(&fakeCompleter{err: errors.New("timeout")}, zerolog.Nop())
		if _, err := ext.ExtractSponsorInfo(context.Background(), th, msgs); err == nil {
			t.Error("expected error")
		}
	})

	t.Run("prompt carries thread", func(t *testing.T) {
		fc := &fakeCompleter{resp: `{"org_name":"Acme"}`}
		info, err := NewSponsorExtractor(fc, zerolog.Nop()).ExtractSponsorInfo(context.Background(), th, msgs)
		if err != nil || info == nil || info.OrgName != "Acme" {
			t.Fatalf("got (%+v, %v)", info, err)
		}
		if !strings.Contains(fc.prompt, "We can offer $2,000") {
			t.Error("prompt missing message content")
		}
	})
}

func TestCostTracker(t *testing.T) {
	tr := NewCostTracker()
	cost := tr.Track("gpt-4o-mini", 1_000_000, 1_000_000)
	if math.Abs(cost-0.75) > 1e-9 {
		t.Errorf("cost = %v, want 0.75", cost)
	}
	tr.Track("unknown-model", 10, 10)

	stats := tr.Snapshot()
	if stats.Requests != 2 || stats.PromptTokens != 1_000_010 || stats.CompletionTokens != 1_000_010 {
		t.Errorf("stats = %+v", stats)
	}
	if math.Abs(stats.TotalCost-0.75) > 1e-9 {
		t.Errorf("TotalCost = %v", stats.TotalCost)
	}
}

func TestCalculateCostSnapshotModel(t *testing.T) {
	tests := []struct {
		model string
		want  float64
	}{
		{"gpt-4o-mini", 0.15},
		{"gpt-4o-mini-2024-07-18", 0.15},
		{"gpt-4o-2024-08-06", 2.50},
		{"llama3", 0},
	}
	for _, tt := range tests {
		t.Run(tt.model, func(t *testing.T) {
			if got := CalculateCost(tt.model, 1_000_000, 0); math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("CalculateCost(%q) = %v, want %v", tt.model, got, tt.want)
			}
		})
	}
}
