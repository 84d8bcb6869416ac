package bootstrap

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"sponsor_worker/adapter/out/persistence"
	"sponsor_worker/config"
	"sponsor_worker/core/service/keyword"
	"sponsor_worker/core/service/pipeline"
	"sponsor_worker/core/service/priority"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func offlineConfig() *config.Config {
	return &config.Config{
		Environment:         "test",
		JWTSecret:           "secret",
		OwnerEmail:          "owner@club.edu",
		CollectionStartDate: time.Date(2025, 7, 14, 0, 0, 0, 0, time.UTC),
		MaxResults:          10,
		ProcessLimit:        10,
		ProcessWorkers:      1,
		Vocabulary:          keyword.DefaultVocabulary(),
		Priority:            priority.DefaultConfig(),
	}
}

func TestNewDependenciesOffline(t *testing.T) {
	deps, cleanup, err := NewDependencies(offlineConfig())
	require.NoError(t, err)
	defer cleanup()

	assert.IsType(t, &persistence.MemoryStore{}, deps.Store)
	assert.Nil(t, deps.SQLDB)
	assert.Nil(t, deps.Redis)
	assert.Nil(t, deps.Gmail)
	assert.Nil(t, deps.LLMClient)
	require.NotNil(t, deps.Pipeline)

	// 추출기가 없으면 처리 대상이 없어도 정상 종료
	result, err := deps.Pipeline.Process(context.Background(), pipeline.Options{DryRun: true})
	require.NoError(t, err)
	assert.True(t, result.Success)
}

func TestNewServerRoutes(t *testing.T) {
	cfg := offlineConfig()
	deps, cleanup, err := NewDependencies(cfg)
	require.NoError(t, err)
	defer cleanup()

	server := NewServer(deps)
	defer server.Shutdown(context.Background())
	assert.Nil(t, server.Scheduler)

	resp, err := server.App.Test(httptest.NewRequest(http.MethodGet, "/health", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "nosniff", resp.Header.Get("X-Content-Type-Options"))

	resp, err = server.App.Test(httptest.NewRequest(http.MethodGet, "/api/v1/threads", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "ops",
		"exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte(cfg.JWTSecret))
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/threads", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err = server.App.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))
}

func TestNewServerScheduler(t *testing.T) {
	cfg := offlineConfig()
	cfg.ScheduleInterval = time.Hour
	deps, cleanup, err := NewDependencies(cfg)
	require.NoError(t, err)
	defer cleanup()

	server := NewServer(deps)
	require.NotNil(t, server.Scheduler)
	server.Scheduler.Start()
	_ = server.Shutdown(context.Background())
}
