// Package provider implements the mailbox source on the Gmail API.
package provider

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"sponsor_worker/core/port/out"
	"sponsor_worker/pkg/httputil"

	"github.com/jaytaylor/html2text"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

const (
	gmailUser = "me"

	// Gmail caps a list page at 500 ids.
	maxPageSize = 500
)

// gmailHeaders maps Gmail header names to RawMessage header keys.
var gmailHeaders = map[string]string{
	"from":    out.HeaderFrom,
	"to":      out.HeaderTo,
	"cc":      out.HeaderCc,
	"bcc":     out.HeaderBcc,
	"subject": out.HeaderSubject,
	"date":    out.HeaderDate,
}

// =============================================================================
// Gmail Adapter
// =============================================================================

// GmailAdapter implements out.MailSource for a single Gmail mailbox.
type GmailAdapter struct {
	config       *oauth2.Config
	refreshToken string
	concurrency  int
	cb           *gobreaker.CircuitBreaker
	log          zerolog.Logger

	mu  sync.Mutex
	svc *gmail.Service
}

// GmailConfig holds Gmail configuration.
type GmailConfig struct {
	ClientID     string
	ClientSecret string
	RefreshToken string
	// MaxConcurrency bounds parallel message fetches (default 10).
	MaxConcurrency int
}

// NewGmailAdapter creates a new Gmail adapter.
func NewGmailAdapter(cfg *GmailConfig, log zerolog.Logger) *GmailAdapter {
	config := &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		Scopes:       []string{gmail.GmailReadonlyScope},
		Endpoint:     google.Endpoint,
	}

	log = log.With().Str("component", "gmail").Logger()

	cbSettings := gobreaker.Settings{
		Name:        "gmail-api",
		MaxRequests: 3,                // Half-open 상태에서 허용할 요청 수
		Interval:    60 * time.Second, // Closed 상태에서 카운터 리셋 간격
		Timeout:     30 * time.Second, // Open 상태 유지 시간 (이후 Half-open)
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			// 연속 5회 실패 또는 60% 이상 실패율 (최소 10회 요청)
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.ConsecutiveFailures > 5 ||
				(counts.Requests >= 10 && failureRatio >= 0.6)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state changed")
		},
	}

	concurrency := cfg.MaxConcurrency
	if concurrency <= 0 {
		concurrency = 10
	}

	return &GmailAdapter{
		config:       config,
		refreshToken: cfg.RefreshToken,
		concurrency:  concurrency,
		cb:           gobreaker.NewCircuitBreaker(cbSettings),
		log:          log,
	}
}

// SearchMessages lists messages matching query and fetches each one in full.
// Messages that fail to load are skipped with a warning.
func (a *GmailAdapter) SearchMessages(ctx context.Context, query string, maxResults int) ([]out.RawMessage, error) {
	svc, err := a.service(ctx)
	if err != nil {
		return nil, err
	}

	var (
		refs      []*gmail.Message
		pageToken string
	)
	for maxResults <= 0 || len(refs) < maxResults {
		pageSize := int64(maxPageSize)
		if maxResults > 0 && maxResults-len(refs) < maxPageSize {
			pageSize = int64(maxResults - len(refs))
		}

		var resp *gmail.ListMessagesResponse
		err := a.executeWithCircuitBreaker(ctx, "list_messages", func() error {
			req := svc.Users.Messages.List(gmailUser).Q(query).MaxResults(pageSize)
			if pageToken != "" {
				req = req.PageToken(pageToken)
			}
			var err error
			resp, err = req.Context(ctx).Do()
			return err
		})
		if err != nil {
			return nil, a.wrapError(err, "failed to list messages")
		}

		refs = append(refs, resp.Messages...)
		if resp.NextPageToken == "" {
			break
		}
		pageToken = resp.NextPageToken
	}

	a.log.Info().Str("query", query).Int("found", len(refs)).Msg("gmail search complete")
	return a.fetchMessagesParallel(ctx, svc, refs), nil
}

// GetThreadDetail returns every message of a thread with bodies.
func (a *GmailAdapter) GetThreadDetail(ctx context.Context, threadID string) (*out.RawThread, error) {
	svc, err := a.service(ctx)
	if err != nil {
		return nil, err
	}

	var thread *gmail.Thread
	err = a.executeWithCircuitBreaker(ctx, "get_thread", func() error {
		var err error
		thread, err = svc.Users.Threads.Get(gmailUser, threadID).Format("full").Context(ctx).Do()
		return err
	})
	if err != nil {
		return nil, a.wrapError(err, "failed to get thread")
	}

	raw := &out.RawThread{ID: thread.Id, Messages: make([]out.RawMessage, 0, len(thread.Messages))}
	for _, m := range thread.Messages {
		raw.Messages = append(raw.Messages, ConvertMessage(m))
	}
	return raw, nil
}

// Profile returns the mailbox address, used to verify credentials.
func (a *GmailAdapter) Profile(ctx context.Context) (string, error) {
	svc, err := a.service(ctx)
	if err != nil {
		return "", err
	}

	var profile *gmail.Profile
	err = a.executeWithCircuitBreaker(ctx, "get_profile", func() error {
		var err error
		profile, err = svc.Users.GetProfile(gmailUser).Context(ctx).Do()
		return err
	})
	if err != nil {
		return "", a.wrapError(err, "failed to get profile")
	}
	return profile.EmailAddress, nil
}

// fetchMessagesParallel fetches messages with a concurrency limit, keeping
// the search order. 안정성: 각 goroutine에 타임아웃 적용
func (a *GmailAdapter) fetchMessagesParallel(ctx context.Context, svc *gmail.Service, refs []*gmail.Message) []out.RawMessage {
	if len(refs) == 0 {
		return nil
	}

	const perMessageTimeout = 15 * time.Second

	type result struct {
		index int
		msg   out.RawMessage
		err   error
	}

	results := make(chan result, len(refs))
	sem := make(chan struct{}, a.concurrency)

	for i, ref := range refs {
		go func(idx int, id string) {
			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				results <- result{index: idx, err: ctx.Err()}
				return
			}

			msgCtx, cancel := context.WithTimeout(ctx, perMessageTimeout)
			defer cancel()

			var msg *gmail.Message
			err := a.executeWithCircuitBreaker(msgCtx, "get_message", func() error {
				var err error
				msg, err = svc.Users.Messages.Get(gmailUser, id).Format("full").Context(msgCtx).Do()
				return err
			})
			if err != nil {
				results <- result{index: idx, err: fmt.Errorf("message %s: %w", id, err)}
				return
			}
			results <- result{index: idx, msg: ConvertMessage(msg)}
		}(i, ref.Id)
	}

	messages := make([]out.RawMessage, len(refs))
	for range refs {
		r := <-results
		if r.err != nil {
			a.log.Warn().Err(r.err).Msg("skipping message")
			continue
		}
		messages[r.index] = r.msg
	}

	filtered := make([]out.RawMessage, 0, len(messages))
	for _, m := range messages {
		if m.ID != "" {
			filtered = append(filtered, m)
		}
	}
	return filtered
}

// =============================================================================
// Conversion
// =============================================================================

// ConvertMessage maps a Gmail message to a RawMessage.
func ConvertMessage(msg *gmail.Message) out.RawMessage {
	raw := out.RawMessage{
		ID:       msg.Id,
		ThreadID: msg.ThreadId,
		Snippet:  msg.Snippet,
		Headers:  make(map[string]string),
	}
	if msg.Payload == nil {
		raw.Body = msg.Snippet
		return raw
	}

	for _, h := range msg.Payload.Headers {
		if key, ok := gmailHeaders[strings.ToLower(h.Name)]; ok {
			if _, seen := raw.Headers[key]; !seen {
				raw.Headers[key] = h.Value
			}
		}
	}
	raw.Body = ExtractBody(msg.Payload, msg.Snippet)
	return raw
}

// ExtractBody prefers text/plain, then text/html stripped to text, then the
// snippet.
func ExtractBody(payload *gmail.MessagePart, snippet string) string {
	var plain, html string
	walkParts(payload, &plain, &html)

	if strings.TrimSpace(plain) != "" {
		return plain
	}
	if html != "" {
		text, err := html2text.FromString(html, html2text.Options{OmitLinks: true, TextOnly: true})
		if err == nil && strings.TrimSpace(text) != "" {
			return text
		}
	}
	return snippet
}

func walkParts(part *gmail.MessagePart, plain, html *string) {
	if part == nil {
		return
	}

	if part.Body != nil && part.Body.Data != "" && part.Filename == "" {
		switch part.MimeType {
		case "text/plain":
			if *plain == "" {
				*plain = decodeBody(part.Body.Data)
			}
		case "text/html":
			if *html == "" {
				*html = decodeBody(part.Body.Data)
			}
		}
	}

	for _, p := range part.Parts {
		walkParts(p, plain, html)
	}
}

// decodeBody decodes Gmail's URL-safe base64, padded or not.
func decodeBody(data string) string {
	if b, err := base64.URLEncoding.DecodeString(data); err == nil {
		return string(b)
	}
	if b, err := base64.RawURLEncoding.DecodeString(data); err == nil {
		return string(b)
	}
	return ""
}

// =============================================================================
// Internal Helpers
// =============================================================================

// service lazily builds a Gmail client whose token source refreshes the
// access token from the configured refresh token.
func (a *GmailAdapter) service(ctx context.Context) (*gmail.Service, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.svc != nil {
		return a.svc, nil
	}
	if a.refreshToken == "" {
		return nil, out.NewProviderError("gmail", out.ProviderErrAuth, "missing refresh token", nil, false)
	}

	// 토큰 갱신은 요청 ctx가 아닌 background ctx에서 수행
	base := httputil.NewClient(httputil.GmailClientConfig(a.concurrency))
	tokenCtx := context.WithValue(context.Background(), oauth2.HTTPClient, base)
	client := oauth2.NewClient(tokenCtx, a.config.TokenSource(tokenCtx, &oauth2.Token{RefreshToken: a.refreshToken}))
	svc, err := gmail.NewService(ctx, option.WithHTTPClient(client))
	if err != nil {
		return nil, out.NewProviderError("gmail", out.ProviderErrAuth, "failed to create gmail service", err, false)
	}
	a.svc = svc
	return svc, nil
}

// executeWithCircuitBreaker wraps an API call with circuit breaker protection.
// Client errors are passed through without counting as breaker failures.
func (a *GmailAdapter) executeWithCircuitBreaker(ctx context.Context, operation string, fn func() error) error {
	_, err := a.cb.Execute(func() (interface{}, error) {
		if err := fn(); err != nil {
			var apiErr *googleapi.Error
			if errors.As(err, &apiErr) {
				switch apiErr.Code {
				case 400, 401, 403, 404:
					return nil, &nonCircuitError{err: err}
				}
			}
			return nil, err
		}
		return nil, nil
	})

	var nce *nonCircuitError
	if errors.As(err, &nce) {
		return nce.err
	}
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return out.NewProviderError("gmail", out.ProviderErrCircuitOpen, "circuit open for "+operation, err, true)
	}
	if err != nil {
		a.log.Debug().Err(err).Str("operation", operation).Str("state", a.cb.State().String()).Msg("gmail call failed")
	}
	return err
}

// nonCircuitError wraps errors that should not trip the circuit breaker.
type nonCircuitError struct {
	err error
}

func (e *nonCircuitError) Error() string {
	return e.err.Error()
}

// CircuitState returns the current state of the circuit breaker.
func (a *GmailAdapter) CircuitState() string {
	return a.cb.State().String()
}

func (a *GmailAdapter) wrapError(err error, defaultMsg string) error {
	if err == nil {
		return nil
	}

	var pe *out.ProviderError
	if errors.As(err, &pe) {
		return err
	}

	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case 401:
			return out.NewProviderError("gmail", out.ProviderErrTokenExpired, "Token expired", err, false)
		case 403:
			if strings.Contains(apiErr.Message, "Rate Limit") {
				return out.NewProviderError("gmail", out.ProviderErrRateLimit, "Rate limit exceeded", err, true)
			}
			return out.NewProviderError("gmail", out.ProviderErrAuth, "Access denied", err, false)
		case 404:
			return out.NewProviderError("gmail", out.ProviderErrNotFound, "Not found", err, false)
		case 429:
			return out.NewProviderError("gmail", out.ProviderErrRateLimit, "Too many requests", err, true)
		case 500, 502, 503:
			return out.NewProviderError("gmail", out.ProviderErrServer, "Server error", err, true)
		}
	}

	return out.NewProviderError("gmail", out.ProviderErrServer, defaultMsg, err, true)
}

// =============================================================================
// Interface Compliance
// =============================================================================

var _ out.MailSource = (*GmailAdapter)(nil)
