package http

import (
	"context"
	"errors"
	"time"

	"sponsor_worker/adapter/out/mongodb"
	"sponsor_worker/core/domain"
	"sponsor_worker/core/port/out"
	"sponsor_worker/core/service/pipeline"
	"sponsor_worker/infra/middleware"
	"sponsor_worker/pkg/apperr"
	"sponsor_worker/pkg/logger"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

const (
	statsCacheKey = "stats:threads"
	statsCacheTTL = time.Minute
	runTimeout    = 15 * time.Minute
)

// JSONCache is the cache surface the handler needs.
type JSONCache interface {
	GetJSON(ctx context.Context, key string, dest interface{}) (bool, error)
	SetJSON(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
}

// RunHistory lists recorded pipeline runs.
type RunHistory interface {
	RecentRuns(ctx context.Context, limit int) ([]*domain.RunReport, error)
}

// BodyReader reads archived message bodies.
type BodyReader interface {
	GetBody(ctx context.Context, gmailMessageID string) (*mongodb.ArchivedBody, error)
}

// PipelineRunner starts pipeline stages.
type PipelineRunner interface {
	Run(ctx context.Context, opts pipeline.Options) (*domain.ProcessingResult, error)
	Collect(ctx context.Context, opts pipeline.Options) (*domain.ProcessingResult, error)
	Process(ctx context.Context, opts pipeline.Options) (*domain.ProcessingResult, error)
}

// SponsorHandlerDeps holds the handler's collaborators. Cache, Bodies, Runs
// and Runner are optional; their routes answer 503 when unset.
type SponsorHandlerDeps struct {
	Store  out.ThreadStore
	Cache  JSONCache
	Bodies BodyReader
	Runs   RunHistory
	Runner PipelineRunner
}

// SponsorHandler serves the read side of the CRM plus task entry and
// manual run triggers.
type SponsorHandler struct {
	deps SponsorHandlerDeps
}

func NewSponsorHandler(deps SponsorHandlerDeps) *SponsorHandler {
	return &SponsorHandler{deps: deps}
}

func (h *SponsorHandler) Register(router fiber.Router) {
	router.Get("/threads",
		middleware.ValidateEnum("status", []string{
			string(domain.ThreadStatusNew), string(domain.ThreadStatusInProgress),
			string(domain.ThreadStatusResponded), string(domain.ThreadStatusClosed),
		}),
		middleware.ValidateEnum("priority", []string{
			string(domain.PriorityReadNow), string(domain.PriorityReplyNow),
			string(domain.PriorityNormal), string(domain.PriorityLow),
		}),
		middleware.ValidateIntRange("limit", 1, 100),
		h.ListThreads,
	)
	router.Get("/threads/:id", middleware.ValidateUUID("id"), h.GetThread)
	router.Get("/threads/:id/tasks", middleware.ValidateUUID("id"), h.ListThreadTasks)
	router.Post("/threads/:id/tasks", middleware.ValidateUUID("id"), h.CreateTask)
	router.Get("/messages/:message_id/body", h.GetMessageBody)
	router.Get("/tasks", h.ListTasks)
	router.Get("/stats", h.Stats)
	router.Get("/runs", middleware.ValidateIntRange("limit", 1, 100), h.ListRuns)
	router.Post("/runs",
		middleware.ValidateEnum("mode", []string{
			string(domain.RunModeFull), string(domain.RunModeCollect), string(domain.RunModeProcess),
		}),
		h.TriggerRun,
	)
}

// ListThreads handles GET /threads
func (h *SponsorHandler) ListThreads(c *fiber.Ctx) error {
	page := GetPaginationParams(c, 20)
	q := &out.ThreadListQuery{
		Status:        domain.ThreadStatus(c.Query("status")),
		PriorityLevel: domain.PriorityLevel(c.Query("priority")),
		Processed:     QueryBool(c, "processed"),
		Limit:         page.Limit,
		Offset:        page.Offset,
	}

	threads, total, err := h.deps.Store.ListThreads(c.Context(), q)
	if err != nil {
		return storeError(err, "threads")
	}

	items := make([]ThreadResponse, 0, len(threads))
	for _, t := range threads {
		items = append(items, toThreadResponse(t))
	}
	return SuccessResponse(c, NewListResponse(items, total, page.Offset, page.Limit))
}

// GetThread handles GET /threads/:id, including the thread's messages.
func (h *SponsorHandler) GetThread(c *fiber.Ctx) error {
	id, _ := uuid.Parse(c.Params("id"))

	thread, err := h.deps.Store.GetThread(c.Context(), id)
	if err != nil {
		return storeError(err, "thread")
	}
	messages, err := h.deps.Store.MessagesForThread(c.Context(), id)
	if err != nil {
		return storeError(err, "messages")
	}

	resp := toThreadResponse(thread)
	resp.Messages = make([]MessageResponse, 0, len(messages))
	for _, m := range messages {
		resp.Messages = append(resp.Messages, toMessageResponse(m))
	}
	return SuccessResponse(c, resp)
}

// GetMessageBody handles GET /messages/:message_id/body. The id is the
// Gmail message id.
func (h *SponsorHandler) GetMessageBody(c *fiber.Ctx) error {
	if h.deps.Bodies == nil {
		return apperr.ServiceUnavailable("message archive")
	}
	body, err := h.deps.Bodies.GetBody(c.Context(), c.Params("message_id"))
	if err != nil {
		return apperr.DatabaseError("message archive", err)
	}
	if body == nil {
		return apperr.NotFound("message body")
	}
	return SuccessResponse(c, fiber.Map{
		"gmail_message_id": body.GmailMessageID,
		"thread_id":        body.ThreadID,
		"text":             body.Text,
		"received_at":      body.ReceivedAt,
		"archived_at":      body.ArchivedAt,
	})
}

// ListThreadTasks handles GET /threads/:id/tasks
func (h *SponsorHandler) ListThreadTasks(c *fiber.Ctx) error {
	id, _ := uuid.Parse(c.Params("id"))
	return h.listTasks(c, &id)
}

// ListTasks handles GET /tasks with an optional thread_id filter.
func (h *SponsorHandler) ListTasks(c *fiber.Ctx) error {
	raw := c.Query("thread_id")
	if raw == "" {
		return h.listTasks(c, nil)
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return apperr.InvalidInput("thread_id", "invalid UUID format")
	}
	return h.listTasks(c, &id)
}

func (h *SponsorHandler) listTasks(c *fiber.Ctx, threadID *uuid.UUID) error {
	tasks, err := h.deps.Store.ListFulfillmentTasks(c.Context(), threadID)
	if err != nil {
		return storeError(err, "fulfillment tasks")
	}
	items := make([]TaskResponse, 0, len(tasks))
	for _, t := range tasks {
		items = append(items, toTaskResponse(t))
	}
	return SuccessResponse(c, items)
}

// CreateTask handles POST /threads/:id/tasks
func (h *SponsorHandler) CreateTask(c *fiber.Ctx) error {
	threadID, _ := uuid.Parse(c.Params("id"))

	var req CreateTaskRequest
	if err := c.BodyParser(&req); err != nil {
		return apperr.BadRequest("invalid request body")
	}
	dueDate, err := ParseDueDate(req.DueDate)
	if err != nil {
		return apperr.InvalidInput("due_date", "use RFC 3339 or YYYY-MM-DD")
	}

	task := &domain.FulfillmentTask{
		ThreadID:    threadID,
		Title:       req.Title,
		Description: req.Description,
		TaskType:    domain.TaskType(req.TaskType),
		Priority:    domain.TaskPriority(req.Priority),
		DueDate:     dueDate,
		AssignedTo:  req.AssignedTo,
		Notes:       req.Notes,
	}
	id, err := h.deps.Store.SaveFulfillmentTask(c.Context(), task)
	if err != nil {
		return storeError(err, "thread")
	}
	task.ID = id
	task.CreatedAt = time.Now().UTC()

	return c.Status(fiber.StatusCreated).JSON(APIResponse{
		Success:   true,
		Data:      toTaskResponse(task),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// Stats handles GET /stats. Results are cached for a minute when a cache
// is configured.
func (h *SponsorHandler) Stats(c *fiber.Ctx) error {
	ctx := c.Context()

	if h.deps.Cache != nil {
		var cached domain.ThreadStatistics
		if ok, err := h.deps.Cache.GetJSON(ctx, statsCacheKey, &cached); err == nil && ok {
			c.Set("X-Cache", "HIT")
			return SuccessResponse(c, cached)
		}
	}

	stats, err := h.deps.Store.ThreadStatistics(ctx)
	if err != nil {
		return storeError(err, "statistics")
	}

	if h.deps.Cache != nil {
		if err := h.deps.Cache.SetJSON(ctx, statsCacheKey, stats, statsCacheTTL); err != nil {
			logger.WithError(err).Warn("failed to cache statistics")
		}
		c.Set("X-Cache", "MISS")
	}
	return SuccessResponse(c, stats)
}

// ListRuns handles GET /runs
func (h *SponsorHandler) ListRuns(c *fiber.Ctx) error {
	if h.deps.Runs == nil {
		return apperr.ServiceUnavailable("run history")
	}
	runs, err := h.deps.Runs.RecentRuns(c.Context(), c.QueryInt("limit", 20))
	if err != nil {
		return apperr.DatabaseError("run history", err)
	}
	if runs == nil {
		runs = []*domain.RunReport{}
	}
	return SuccessResponse(c, runs)
}

// TriggerRun handles POST /runs. The run continues in the background and
// the response only acknowledges it.
func (h *SponsorHandler) TriggerRun(c *fiber.Ctx) error {
	if h.deps.Runner == nil {
		return apperr.ServiceUnavailable("pipeline")
	}

	mode := domain.RunMode(c.Query("mode", string(domain.RunModeFull)))
	opts := pipeline.Options{Limit: c.QueryInt("limit", 0)}

	go h.run(mode, opts)

	return c.Status(fiber.StatusAccepted).JSON(APIResponse{
		Success:   true,
		Data:      fiber.Map{"mode": mode, "status": "started"},
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

func (h *SponsorHandler) run(mode domain.RunMode, opts pipeline.Options) {
	ctx, cancel := context.WithTimeout(context.Background(), runTimeout)
	defer cancel()

	var err error
	switch mode {
	case domain.RunModeCollect:
		_, err = h.deps.Runner.Collect(ctx, opts)
	case domain.RunModeProcess:
		_, err = h.deps.Runner.Process(ctx, opts)
	default:
		_, err = h.deps.Runner.Run(ctx, opts)
	}

	switch {
	case errors.Is(err, pipeline.ErrRunInProgress):
		logger.Info("manual %s run skipped, another run is in progress", mode)
	case err != nil:
		logger.WithError(err).Error("manual %s run failed", mode)
	}

	if h.deps.Cache != nil {
		if err := h.deps.Cache.Delete(ctx, statsCacheKey); err != nil {
			logger.WithError(err).Warn("failed to invalidate statistics cache")
		}
	}
}
