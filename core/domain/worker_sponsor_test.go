package domain

import (
	"testing"

	"github.com/google/uuid"
)

func TestPriorityLevelRank(t *testing.T) {
	order := []PriorityLevel{PriorityLow, PriorityNormal, PriorityReplyNow, PriorityReadNow}
	for i := 1; i < len(order); i++ {
		if order[i].Rank() <= order[i-1].Rank() {
			t.Errorf("%s rank %d should exceed %s rank %d",
				order[i], order[i].Rank(), order[i-1], order[i-1].Rank())
		}
	}
	if PriorityLevel("SOMEDAY").Rank() != 0 {
		t.Error("unknown level should rank 0")
	}
}

func TestNewSponsorInfo(t *testing.T) {
	tests := []struct {
		name    string
		input   SponsorInfoInput
		wantErr bool
		want    SponsorInfo
	}{
		{
			name: "valid with defaults",
			input: SponsorInfoInput{
				POCName:         "  Jane Doe ",
				ConfidenceScore: 0.8,
			},
			want: SponsorInfo{
				POCName:          "Jane Doe",
				ValueType:        ValueOther,
				ConfidenceScore:  0.8,
				PriorityLevel:    PriorityNormal,
				NextActionStatus: ActionRead,
			},
		},
		{
			name: "enums are case-insensitive",
			input: SponsorInfoInput{
				ValueType:        "Catering",
				PriorityLevel:    "reply_now",
				NextActionStatus: "REPLY",
				ConfidenceScore:  1,
			},
			want: SponsorInfo{
				ValueType:        ValueCatering,
				ConfidenceScore:  1,
				PriorityLevel:    PriorityReplyNow,
				NextActionStatus: ActionReply,
			},
		},
		{
			name:    "confidence above range",
			input:   SponsorInfoInput{ConfidenceScore: 1.2},
			wantErr: true,
		},
		{
			name:    "confidence below range",
			input:   SponsorInfoInput{ConfidenceScore: -0.1},
			wantErr: true,
		},
		{
			name:    "unknown value type",
			input:   SponsorInfoInput{ValueType: "crypto"},
			wantErr: true,
		},
		{
			name:    "unknown priority",
			input:   SponsorInfoInput{PriorityLevel: "URGENT"},
			wantErr: true,
		},
		{
			name:    "unknown action",
			input:   SponsorInfoInput{NextActionStatus: "ignore"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NewSponsorInfo(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("NewSponsorInfo() error = nil, want error")
				}
				return
			}
			if err != nil {
				t.Fatalf("NewSponsorInfo() error = %v", err)
			}
			if *got != tt.want {
				t.Errorf("NewSponsorInfo() = %+v, want %+v", *got, tt.want)
			}
		})
	}
}

func TestCombineResults(t *testing.T) {
	collect := &ProcessingResult{Success: true, ThreadsProcessed: 2, MessagesProcessed: 5, NewThreads: 1}
	collect.AddError("thread %s: boom", "t1")
	process := &ProcessingResult{Success: false, ThreadsProcessed: 3, UpdatedThreads: 2}
	process.AddError("llm down")

	got := Combine(collect, process)
	if got.Success {
		t.Error("combined success should require both results to succeed")
	}
	if got.ThreadsProcessed != 5 || got.MessagesProcessed != 5 || got.NewThreads != 1 || got.UpdatedThreads != 2 {
		t.Errorf("unexpected counters: %+v", got)
	}
	if len(got.Errors) != 2 || got.Errors[0] != "thread t1: boom" {
		t.Errorf("Errors = %v", got.Errors)
	}
}

func TestFulfillmentTaskValidate(t *testing.T) {
	task := &FulfillmentTask{ThreadID: uuid.New(), Title: "Post on Instagram"}
	if err := task.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if task.TaskType != TaskOther || task.Priority != TaskPriorityMedium {
		t.Errorf("defaults not applied: %+v", task)
	}

	bad := &FulfillmentTask{ThreadID: uuid.New(), Title: "x", Priority: "urgent"}
	if err := bad.Validate(); err == nil {
		t.Error("expected invalid priority error")
	}
	if err := (&FulfillmentTask{Title: "x"}).Validate(); err == nil {
		t.Error("expected missing thread id error")
	}
}
