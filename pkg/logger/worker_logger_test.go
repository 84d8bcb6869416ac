package logger

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want zerolog.Level
	}{
		{"debug", zerolog.DebugLevel},
		{"WARNING", zerolog.WarnLevel},
		{"error", zerolog.ErrorLevel},
		{"", zerolog.InfoLevel},
		{"nonsense", zerolog.InfoLevel},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestLoggerFields(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: "info", Output: &buf, Service: "test"})

	ctx := ContextWithRequestID(context.Background(), "req-1")
	l.WithContext(ctx).WithField("thread_id", "t1").WithError(errors.New("boom")).Info("saved %d messages", 3)

	out := buf.String()
	for _, want := range []string{`"service":"test"`, `"request_id":"req-1"`, `"thread_id":"t1"`, `"error":"boom"`, `"message":"saved 3 messages"`} {
		if !strings.Contains(out, want) {
			t.Errorf("log output %s missing %s", out, want)
		}
	}
}

func TestLoggerLevelFilter(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: "warn", Output: &buf})

	l.Info("hidden")
	if buf.Len() != 0 {
		t.Errorf("info should be filtered at warn level, got %s", buf.String())
	}
	l.Warn("shown")
	if !strings.Contains(buf.String(), "shown") {
		t.Errorf("warn should be written, got %s", buf.String())
	}
}
