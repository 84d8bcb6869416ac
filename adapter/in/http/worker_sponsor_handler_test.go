package http

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"sponsor_worker/adapter/out/mongodb"
	"sponsor_worker/adapter/out/persistence"
	"sponsor_worker/core/domain"
	"sponsor_worker/core/service/pipeline"
	"sponsor_worker/infra/middleware"

	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryCache struct {
	mu      sync.Mutex
	data    map[string][]byte
	deleted chan string
}

func newMemoryCache() *memoryCache {
	return &memoryCache{data: map[string][]byte{}, deleted: make(chan string, 4)}
}

func (m *memoryCache) GetJSON(ctx context.Context, key string, dest interface{}) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	raw, ok := m.data[key]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(raw, dest)
}

func (m *memoryCache) SetJSON(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = raw
	return nil
}

func (m *memoryCache) Delete(ctx context.Context, keys ...string) error {
	m.mu.Lock()
	for _, k := range keys {
		delete(m.data, k)
	}
	m.mu.Unlock()
	for _, k := range keys {
		m.deleted <- k
	}
	return nil
}

type fakeRunner struct {
	calls chan string
	err   error
}

func (f *fakeRunner) Run(ctx context.Context, opts pipeline.Options) (*domain.ProcessingResult, error) {
	f.calls <- "full"
	return &domain.ProcessingResult{}, f.err
}

func (f *fakeRunner) Collect(ctx context.Context, opts pipeline.Options) (*domain.ProcessingResult, error) {
	f.calls <- "collect"
	return &domain.ProcessingResult{}, f.err
}

func (f *fakeRunner) Process(ctx context.Context, opts pipeline.Options) (*domain.ProcessingResult, error) {
	f.calls <- "process"
	return &domain.ProcessingResult{}, f.err
}

type fakeHistory struct {
	runs []*domain.RunReport
	err  error
}

func (f *fakeHistory) RecentRuns(ctx context.Context, limit int) ([]*domain.RunReport, error) {
	return f.runs, f.err
}

type fakeBodies map[string]*mongodb.ArchivedBody

func (f fakeBodies) GetBody(ctx context.Context, id string) (*mongodb.ArchivedBody, error) {
	return f[id], nil
}

func seedStore(t *testing.T) (*persistence.MemoryStore, *domain.SponsorThread) {
	t.Helper()
	ctx := context.Background()
	store := persistence.NewMemoryStore()

	now := time.Date(2025, 8, 1, 9, 0, 0, 0, time.UTC)
	thread := &domain.SponsorThread{
		ProviderThreadID:     "t1",
		Subject:              "Sponsorship for Hack Night",
		Participants:         []string{"jane@acme.com"},
		ParticipantSignature: "jane@acme.com",
		FirstMessageAt:       now,
		LastMessageAt:        now,
		MessageCount:         1,
	}
	id, _, err := store.SaveThread(ctx, thread)
	require.NoError(t, err)
	thread.ID = id

	_, err = store.SaveMessage(ctx, &domain.SponsorMessage{
		ThreadID:          id,
		ProviderMessageID: "m1",
		SenderEmail:       "jane@acme.com",
		Subject:           thread.Subject,
		BodyText:          "We'd love to sponsor.",
		ReceivedAt:        now,
	})
	require.NoError(t, err)

	_, _, err = store.SaveThread(ctx, &domain.SponsorThread{
		ProviderThreadID:     "t2",
		Subject:              "Partnership",
		ParticipantSignature: "bob@other.org",
		FirstMessageAt:       now,
		LastMessageAt:        now,
	})
	require.NoError(t, err)

	return store, thread
}

func newHandlerApp(deps SponsorHandlerDeps) *fiber.App {
	app := fiber.New(fiber.Config{ErrorHandler: middleware.ErrorHandler()})
	NewSponsorHandler(deps).Register(app.Group("/api/v1"))
	return app
}

func doJSON(t *testing.T, app *fiber.App, method, target, body string) (int, map[string]any) {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := app.Test(req)
	require.NoError(t, err)

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded), string(raw))
	return resp.StatusCode, decoded
}

func TestListThreads(t *testing.T) {
	store, _ := seedStore(t)
	app := newHandlerApp(SponsorHandlerDeps{Store: store})

	status, body := doJSON(t, app, http.MethodGet, "/api/v1/threads?limit=1", "")
	require.Equal(t, http.StatusOK, status)

	data := body["data"].(map[string]any)
	assert.Equal(t, float64(2), data["total"])
	assert.Equal(t, true, data["has_more"])
	assert.Len(t, data["items"], 1)

	status, _ = doJSON(t, app, http.MethodGet, "/api/v1/threads?status=bogus", "")
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestGetThreadWithMessages(t *testing.T) {
	store, thread := seedStore(t)
	app := newHandlerApp(SponsorHandlerDeps{Store: store})

	status, body := doJSON(t, app, http.MethodGet, "/api/v1/threads/"+thread.ID.String(), "")
	require.Equal(t, http.StatusOK, status)

	data := body["data"].(map[string]any)
	assert.Equal(t, "t1", data["gmail_thread_id"])
	assert.Equal(t, "new", data["status"])
	messages := data["messages"].([]any)
	require.Len(t, messages, 1)
	assert.Equal(t, "m1", messages[0].(map[string]any)["gmail_message_id"])

	status, body = doJSON(t, app, http.MethodGet, "/api/v1/threads/3f1c2a56-7d7b-4a8e-9d0a-2f3b4c5d6e7f", "")
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "NOT_FOUND", body["error"].(map[string]any)["code"])
}

func TestCreateAndListTasks(t *testing.T) {
	store, thread := seedStore(t)
	app := newHandlerApp(SponsorHandlerDeps{Store: store})
	path := "/api/v1/threads/" + thread.ID.String() + "/tasks"

	status, body := doJSON(t, app, http.MethodPost, path,
		`{"title":"Logo on flyer","task_type":"flyer","due_date":"2025-09-01"}`)
	require.Equal(t, http.StatusCreated, status, body)
	created := body["data"].(map[string]any)
	assert.Equal(t, "medium", created["priority"])
	assert.NotEmpty(t, created["id"])

	status, _ = doJSON(t, app, http.MethodPost, path, `{"title":""}`)
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = doJSON(t, app, http.MethodPost, path, `{"title":"x","due_date":"next week"}`)
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = doJSON(t, app, http.MethodPost,
		"/api/v1/threads/3f1c2a56-7d7b-4a8e-9d0a-2f3b4c5d6e7f/tasks", `{"title":"x"}`)
	assert.Equal(t, http.StatusNotFound, status)

	status, body = doJSON(t, app, http.MethodGet, path, "")
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, body["data"], 1)

	status, body = doJSON(t, app, http.MethodGet, "/api/v1/tasks?thread_id="+thread.ID.String(), "")
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, body["data"], 1)

	status, _ = doJSON(t, app, http.MethodGet, "/api/v1/tasks?thread_id=nope", "")
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestStatsCached(t *testing.T) {
	store, _ := seedStore(t)
	cache := newMemoryCache()
	app := newHandlerApp(SponsorHandlerDeps{Store: store, Cache: cache})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/stats", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, "MISS", resp.Header.Get("X-Cache"))

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/stats", nil))
	require.NoError(t, err)
	assert.Equal(t, "HIT", resp.Header.Get("X-Cache"))

	_, body := doJSON(t, app, http.MethodGet, "/api/v1/stats", "")
	data := body["data"].(map[string]any)
	assert.Equal(t, float64(2), data["total_threads"])
	assert.Equal(t, float64(2), data["unprocessed_threads"])
}

func TestRunsRoutes(t *testing.T) {
	store, _ := seedStore(t)

	t.Run("unconfigured", func(t *testing.T) {
		app := newHandlerApp(SponsorHandlerDeps{Store: store})
		status, _ := doJSON(t, app, http.MethodGet, "/api/v1/runs", "")
		assert.Equal(t, http.StatusServiceUnavailable, status)
		status, _ = doJSON(t, app, http.MethodPost, "/api/v1/runs", "")
		assert.Equal(t, http.StatusServiceUnavailable, status)
	})

	t.Run("history", func(t *testing.T) {
		history := &fakeHistory{runs: []*domain.RunReport{{Mode: domain.RunModeFull, Result: &domain.ProcessingResult{NewThreads: 3}}}}
		app := newHandlerApp(SponsorHandlerDeps{Store: store, Runs: history})
		status, body := doJSON(t, app, http.MethodGet, "/api/v1/runs", "")
		require.Equal(t, http.StatusOK, status)
		assert.Len(t, body["data"], 1)

		history.err = errors.New("mongo down")
		status, _ = doJSON(t, app, http.MethodGet, "/api/v1/runs", "")
		assert.Equal(t, http.StatusInternalServerError, status)
	})

	t.Run("trigger", func(t *testing.T) {
		runner := &fakeRunner{calls: make(chan string, 1)}
		cache := newMemoryCache()
		app := newHandlerApp(SponsorHandlerDeps{Store: store, Cache: cache, Runner: runner})

		status, body := doJSON(t, app, http.MethodPost, "/api/v1/runs?mode=collect", "")
		require.Equal(t, http.StatusAccepted, status)
		assert.Equal(t, "collect", body["data"].(map[string]any)["mode"])

		select {
		case mode := <-runner.calls:
			assert.Equal(t, "collect", mode)
		case <-time.After(2 * time.Second):
			t.Fatal("run was not started")
		}
		select {
		case key := <-cache.deleted:
			assert.Equal(t, statsCacheKey, key)
		case <-time.After(2 * time.Second):
			t.Fatal("stats cache was not invalidated")
		}

		status, _ = doJSON(t, app, http.MethodPost, "/api/v1/runs?mode=everything", "")
		assert.Equal(t, http.StatusBadRequest, status)
	})
}

func TestHealthReady(t *testing.T) {
	app := fiber.New()
	NewHealthHandler(map[string]HealthChecker{
		"postgres": PingFunc(func(ctx context.Context) error { return nil }),
		"redis":    nil,
	}).Register(app)

	status, body := doJSON(t, app, http.MethodGet, "/ready", "")
	assert.Equal(t, http.StatusOK, status)
	checks := body["checks"].(map[string]any)
	assert.Equal(t, "healthy", checks["postgres"])
	assert.Equal(t, "not configured", checks["redis"])

	app = fiber.New()
	NewHealthHandler(map[string]HealthChecker{
		"mongodb": PingFunc(func(ctx context.Context) error { return errors.New("timeout") }),
	}).Register(app)
	status, _ = doJSON(t, app, http.MethodGet, "/ready", "")
	assert.Equal(t, http.StatusServiceUnavailable, status)
}

func TestGetMessageBody(t *testing.T) {
	store, _ := seedStore(t)

	app := newHandlerApp(SponsorHandlerDeps{Store: store})
	status, _ := doJSON(t, app, http.MethodGet, "/api/v1/messages/m1/body", "")
	assert.Equal(t, http.StatusServiceUnavailable, status)

	bodies := fakeBodies{"m1": {GmailMessageID: "m1", ThreadID: "t", Text: "full text"}}
	app = newHandlerApp(SponsorHandlerDeps{Store: store, Bodies: bodies})
	status, body := doJSON(t, app, http.MethodGet, "/api/v1/messages/m1/body", "")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "full text", body["data"].(map[string]any)["text"])

	status, _ = doJSON(t, app, http.MethodGet, "/api/v1/messages/missing/body", "")
	assert.Equal(t, http.StatusNotFound, status)
}
