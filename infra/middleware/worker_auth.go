package middleware

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"sponsor_worker/pkg/apperr"
	"sponsor_worker/pkg/logger"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
)

// JWTAuth validates HS256 bearer tokens signed with secret. The token's
// subject is stored in c.Locals("subject").
func JWTAuth(secret string) fiber.Handler {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuedAt(),
		jwt.WithLeeway(time.Minute),
	)

	return func(c *fiber.Ctx) error {
		// Skip auth for CORS preflight requests
		if c.Method() == fiber.MethodOptions {
			return c.Next()
		}

		tokenString := bearerToken(c.Get(fiber.HeaderAuthorization))
		if tokenString == "" {
			return apperr.Unauthorized("missing authorization")
		}

		claims := jwt.MapClaims{}
		token, err := parser.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
			if secret == "" {
				return nil, fmt.Errorf("JWT secret not configured")
			}
			return []byte(secret), nil
		})
		if err != nil || !token.Valid {
			logger.WithError(err).Warn("JWT validation failed")
			if errors.Is(err, jwt.ErrTokenExpired) {
				return apperr.InvalidToken("token expired")
			}
			return apperr.InvalidToken("invalid token")
		}

		subject, err := claims.GetSubject()
		if err != nil || subject == "" {
			return apperr.InvalidToken("missing subject in token")
		}

		c.Locals("subject", subject)
		c.Locals("claims", claims)
		return c.Next()
	}
}

func bearerToken(header string) string {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
