package http

import (
	"errors"
	"time"

	"sponsor_worker/adapter/out/persistence"
	"sponsor_worker/pkg/apperr"

	"github.com/gofiber/fiber/v2"
)

// =============================================================================
// Standardized Response Helpers
// =============================================================================

// APIResponse represents a standard API response
type APIResponse struct {
	Success   bool        `json:"success"`
	Data      interface{} `json:"data,omitempty"`
	RequestID string      `json:"request_id,omitempty"`
	Timestamp string      `json:"timestamp"`
}

// SuccessResponse sends a standardized JSON success response
func SuccessResponse(c *fiber.Ctx, data any) error {
	requestID, _ := c.Locals("request_id").(string)
	return c.JSON(APIResponse{
		Success:   true,
		Data:      data,
		RequestID: requestID,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// storeError maps store errors onto API errors. Errors that are already
// AppErrors pass through.
func storeError(err error, resource string) error {
	switch {
	case apperr.IsAppError(err):
		return err
	case errors.Is(err, persistence.ErrNotFound):
		return apperr.NotFound(resource)
	case errors.Is(err, persistence.ErrInvalidInput):
		return apperr.ValidationFailed(err.Error())
	default:
		return apperr.DatabaseError(resource, err)
	}
}

// =============================================================================
// Pagination Helpers
// =============================================================================

// PaginationParams holds common pagination parameters
type PaginationParams struct {
	Limit  int
	Offset int
}

// GetPaginationParams extracts pagination params from query
func GetPaginationParams(c *fiber.Ctx, defaultLimit int) PaginationParams {
	limit := c.QueryInt("limit", defaultLimit)
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > 100 {
		limit = 100
	}

	offset := c.QueryInt("offset", 0)
	if offset < 0 {
		offset = 0
	}

	return PaginationParams{Limit: limit, Offset: offset}
}

// ListResponse represents a paginated list response
type ListResponse struct {
	Items    interface{} `json:"items"`
	Total    int         `json:"total"`
	HasMore  bool        `json:"has_more"`
	PageSize int         `json:"page_size"`
}

// NewListResponse creates a list response with has_more calculation
func NewListResponse(items interface{}, total, offset, limit int) ListResponse {
	return ListResponse{
		Items:    items,
		Total:    total,
		HasMore:  offset+limit < total,
		PageSize: limit,
	}
}

// =============================================================================
// Query Parameter Helpers
// =============================================================================

// QueryBool parses a boolean query parameter (returns nil if not present)
func QueryBool(c *fiber.Ctx, key string) *bool {
	val := c.Query(key)
	if val == "" {
		return nil
	}
	b := val == "true" || val == "1"
	return &b
}
