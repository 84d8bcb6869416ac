package middleware

import (
	"fmt"
	"strconv"
	"strings"

	"sponsor_worker/pkg/apperr"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

// ValidateUUID validates that a route parameter is a valid UUID
func ValidateUUID(paramName string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		value := c.Params(paramName)
		if value == "" {
			return apperr.InvalidInput(paramName, "missing required parameter")
		}
		if _, err := uuid.Parse(value); err != nil {
			return apperr.InvalidInput(paramName, "invalid UUID format")
		}
		return c.Next()
	}
}

// ValidateEnum validates that an optional query value is one of allowed.
// Matching is exact, enum values are case sensitive in storage.
func ValidateEnum(fieldName string, allowedValues []string) fiber.Handler {
	allowed := make(map[string]bool, len(allowedValues))
	for _, v := range allowedValues {
		allowed[v] = true
	}

	return func(c *fiber.Ctx) error {
		value := c.Query(fieldName)
		if value != "" && !allowed[value] {
			return apperr.InvalidInput(fieldName, "must be one of "+strings.Join(allowedValues, ", ")).
				WithDetail("value", value).
				WithDetail("allowed", allowedValues)
		}
		return c.Next()
	}
}

// ValidateIntRange validates an optional integer query parameter
func ValidateIntRange(paramName string, min, max int) fiber.Handler {
	return func(c *fiber.Ctx) error {
		raw := c.Query(paramName)
		if raw == "" {
			return c.Next()
		}

		value, err := strconv.Atoi(raw)
		if err != nil {
			return apperr.InvalidInput(paramName, "must be an integer")
		}
		if value < min || value > max {
			return apperr.InvalidInput(paramName, fmt.Sprintf("must be between %d and %d", min, max)).
				WithDetail("value", value)
		}
		return c.Next()
	}
}
