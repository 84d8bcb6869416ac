package bootstrap

import (
	"context"
	"strings"
	"time"

	"sponsor_worker/adapter/in/http"
	"sponsor_worker/adapter/in/worker"
	"sponsor_worker/infra/middleware"
	"sponsor_worker/pkg/logger"

	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/cors"
)

// Server is the serve-mode process: HTTP API plus the optional run
// scheduler.
type Server struct {
	App       *fiber.App
	Scheduler *worker.RunScheduler
	limiter   *middleware.RateLimiter
}

// Shutdown stops the scheduler and drains the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.Scheduler != nil {
		s.Scheduler.Stop()
	}
	s.limiter.Close()
	return s.App.ShutdownWithContext(ctx)
}

// NewServer builds the API over deps.
func NewServer(deps *Dependencies) *Server {
	cfg := deps.Config

	app := fiber.New(fiber.Config{
		ErrorHandler:          middleware.ErrorHandler(),
		DisableStartupMessage: cfg.IsProduction(),
		AppName:               "sponsor-worker",

		// go-json: 표준 encoding/json 대비 빠른 JSON 직렬화
		JSONEncoder: json.Marshal,
		JSONDecoder: json.Unmarshal,

		// 요청 본문은 작은 JSON 뿐
		BodyLimit:    1 * 1024 * 1024,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	})

	// Global middleware stack (order matters)
	app.Use(middleware.Recover())         // 1. Panic recovery
	app.Use(middleware.RequestID())       // 2. Request ID
	app.Use(middleware.SecurityHeaders()) // 3. Security headers
	app.Use(middleware.RequestLogger())   // 4. Request logging + metrics

	app.Use(compress.New(compress.Config{
		Level: compress.LevelBestSpeed,
	}))

	// CORS - production requires explicit origins
	allowOrigins := strings.Join(cfg.AllowedOrigins, ",")
	if allowOrigins == "*" && cfg.IsProduction() {
		allowOrigins = ""
	}
	if allowOrigins != "" {
		app.Use(cors.New(cors.Config{
			AllowOrigins:  allowOrigins,
			AllowMethods:  "GET,POST,OPTIONS",
			AllowHeaders:  "Origin,Content-Type,Accept,Authorization,X-Request-ID",
			ExposeHeaders: "X-Request-ID,X-RateLimit-Limit,X-RateLimit-Remaining,X-RateLimit-Reset",
			MaxAge:        86400,
		}))
	}

	// Health and metrics (no auth required)
	http.NewHealthHandler(healthChecks(deps)).Register(app)

	api := app.Group("/api/v1")
	api.Use(middleware.JWTAuth(cfg.JWTSecret))

	limiter := middleware.NewRateLimiter(120, time.Minute)
	api.Use(limiter.Handler())

	handlerDeps := http.SponsorHandlerDeps{
		Store:  deps.Store,
		Runner: deps.Pipeline,
	}
	if deps.Cache != nil {
		handlerDeps.Cache = deps.Cache
	}
	if deps.Archive != nil {
		handlerDeps.Bodies = deps.Archive
	}
	if deps.Reports != nil {
		handlerDeps.Runs = deps.Reports
	}
	http.NewSponsorHandler(handlerDeps).Register(api)

	server := &Server{App: app, limiter: limiter}
	if cfg.ScheduleInterval > 0 {
		server.Scheduler = worker.NewRunScheduler(deps.Pipeline, worker.SchedulerConfig{
			Interval: cfg.ScheduleInterval,
		}, logger.Default().Zerolog())
	}

	logger.Info("API server initialized")
	return server
}

// healthChecks lists every backend; unconfigured ones stay nil.
func healthChecks(deps *Dependencies) map[string]http.HealthChecker {
	checks := map[string]http.HealthChecker{
		"postgres": nil,
		"redis":    nil,
		"mongodb":  nil,
	}
	if deps.SQLDB != nil {
		checks["postgres"] = http.PingFunc(deps.SQLDB.PingContext)
	}
	if deps.Redis != nil {
		rdb := deps.Redis
		checks["redis"] = http.PingFunc(func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		})
	}
	if deps.MongoDB != nil {
		client := deps.MongoDB
		checks["mongodb"] = http.PingFunc(func(ctx context.Context) error {
			return client.Ping(ctx, nil)
		})
	}
	return checks
}
