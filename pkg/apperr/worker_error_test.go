package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"
)

func TestAppErrorWrapping(t *testing.T) {
	base := errors.New("connection refused")
	err := fmt.Errorf("load threads: %w", DatabaseError("list threads", base))

	if !IsAppError(err) {
		t.Fatal("IsAppError() = false")
	}
	if !IsCode(err, CodeDatabaseError) {
		t.Error("IsCode(DATABASE_ERROR) = false")
	}
	if !errors.Is(err, base) {
		t.Error("wrapped cause lost")
	}
	if got := GetHTTPStatus(err); got != http.StatusInternalServerError {
		t.Errorf("GetHTTPStatus() = %d", got)
	}
}

func TestAsAppError(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		code   string
		status int
	}{
		{"plain error", errors.New("boom"), CodeInternalError, http.StatusInternalServerError},
		{"not found", NotFound("thread"), CodeNotFound, http.StatusNotFound},
		{"invalid input", InvalidInput("limit", "must be positive"), CodeInvalidInput, http.StatusBadRequest},
		{"config", ConfigError("OWNER_EMAIL is required"), CodeConfigError, http.StatusInternalServerError},
		{"unavailable", ServiceUnavailable("run history"), CodeServiceUnavailable, http.StatusServiceUnavailable},
		{"rate limited", RateLimited(10 * time.Second), CodeRateLimited, http.StatusTooManyRequests},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := AsAppError(tt.err)
			if got.Code != tt.code || got.HTTPStatus() != tt.status {
				t.Errorf("AsAppError() = %s/%d, want %s/%d", got.Code, got.HTTPStatus(), tt.code, tt.status)
			}
		})
	}
}

func TestWithDetail(t *testing.T) {
	err := ConfigError("missing settings").WithDetail("missing", []string{"OWNER_EMAIL"})
	if _, ok := err.Details["missing"]; !ok {
		t.Error("detail not set")
	}
	if err.Error() != "[CONFIG_ERROR] missing settings" {
		t.Errorf("Error() = %q", err.Error())
	}
}

func TestRateLimitedRetryAfter(t *testing.T) {
	tests := []struct {
		wait time.Duration
		want int
	}{
		{0, 1},
		{400 * time.Millisecond, 1},
		{1600 * time.Millisecond, 2},
		{time.Minute, 60},
	}
	for _, tt := range tests {
		if got := RateLimited(tt.wait).Details["retry_after"]; got != tt.want {
			t.Errorf("RateLimited(%v) retry_after = %v, want %d", tt.wait, got, tt.want)
		}
	}
}
