package mongodb

import (
	"strings"
	"testing"
	"time"

	"sponsor_worker/core/domain"

	"github.com/google/uuid"
)

func TestBodyDocumentRoundTrip(t *testing.T) {
	now := time.Date(2025, 8, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name       string
		body       string
		compressed bool
	}{
		{"short body stored raw", "Thanks for reaching out!", false},
		{"long body compressed", strings.Repeat("sponsorship package details ", 100), true},
		{"empty body", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := &domain.SponsorMessage{
				ThreadID:          uuid.New(),
				ProviderMessageID: "m1",
				BodyText:          tt.body,
				ReceivedAt:        now,
			}

			doc, err := toDocument(msg, now)
			if err != nil {
				t.Fatalf("toDocument() error = %v", err)
			}
			if doc.IsCompressed != tt.compressed {
				t.Errorf("IsCompressed = %v, want %v", doc.IsCompressed, tt.compressed)
			}
			if tt.compressed && doc.CompressedSize >= doc.OriginalSize {
				t.Errorf("compressed size %d not smaller than %d", doc.CompressedSize, doc.OriginalSize)
			}

			got, err := fromDocument(doc)
			if err != nil {
				t.Fatalf("fromDocument() error = %v", err)
			}
			if got.Text != tt.body {
				t.Errorf("Text mismatch after round trip")
			}
			if got.ThreadID != msg.ThreadID.String() {
				t.Errorf("ThreadID = %q, want %q", got.ThreadID, msg.ThreadID)
			}
		})
	}
}

func TestRunReportDocumentRoundTrip(t *testing.T) {
	start := time.Date(2025, 8, 1, 12, 0, 0, 0, time.UTC)
	result := &domain.ProcessingResult{Success: true, NewThreads: 2, UpdatedThreads: 3}
	for i := 0; i < 40; i++ {
		result.AddError("Thread %d: model unavailable", i)
	}
	report := &domain.RunReport{
		ID:         uuid.New(),
		Mode:       domain.RunModeFull,
		StartedAt:  start,
		FinishedAt: start.Add(time.Minute),
		Result:     result,
	}

	doc, err := toReportDocument(report, time.Hour)
	if err != nil {
		t.Fatalf("toReportDocument() error = %v", err)
	}
	if !doc.IsCompressed {
		t.Error("large report should be compressed")
	}
	if doc.ErrorCount != 40 || !doc.ExpiresAt.Equal(start.Add(time.Minute+time.Hour)) {
		t.Errorf("doc = %+v", doc)
	}

	got, err := fromReportDocument(doc)
	if err != nil {
		t.Fatalf("fromReportDocument() error = %v", err)
	}
	if got.ID != report.ID || got.Mode != domain.RunModeFull {
		t.Errorf("got = %+v", got)
	}
	if got.Result.NewThreads != 2 || len(got.Result.Errors) != 40 {
		t.Errorf("result = %+v", got.Result)
	}
}
