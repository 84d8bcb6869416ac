package middleware

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
)

const testSecret = "test-secret"

func newTestApp(handlers ...fiber.Handler) *fiber.App {
	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler()})
	app.Use(RequestID())
	for _, h := range handlers {
		app.Use(h)
	}
	app.Get("/threads/:id", func(c *fiber.Ctx) error {
		subject, _ := c.Locals("subject").(string)
		return c.JSON(fiber.Map{"subject": subject})
	})
	return app
}

func signToken(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return s
}

func decodeError(t *testing.T, resp *http.Response) ErrorResponse {
	t.Helper()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	var er ErrorResponse
	if err := json.Unmarshal(body, &er); err != nil {
		t.Fatalf("decode error response %q: %v", body, err)
	}
	return er
}

func TestJWTAuth(t *testing.T) {
	now := time.Now()
	valid := signToken(t, testSecret, jwt.MapClaims{"sub": "ops", "exp": now.Add(time.Hour).Unix(), "iat": now.Unix()})

	tests := []struct {
		name   string
		header string
		status int
		code   string
	}{
		{"valid", "Bearer " + valid, http.StatusOK, ""},
		{"missing", "", http.StatusUnauthorized, "UNAUTHORIZED"},
		{"not bearer", "Basic abc", http.StatusUnauthorized, "UNAUTHORIZED"},
		{"wrong secret", "Bearer " + signToken(t, "other", jwt.MapClaims{"sub": "ops"}), http.StatusUnauthorized, "INVALID_TOKEN"},
		{"expired", "Bearer " + signToken(t, testSecret, jwt.MapClaims{"sub": "ops", "exp": now.Add(-time.Hour).Unix()}), http.StatusUnauthorized, "INVALID_TOKEN"},
		{"no subject", "Bearer " + signToken(t, testSecret, jwt.MapClaims{"exp": now.Add(time.Hour).Unix()}), http.StatusUnauthorized, "INVALID_TOKEN"},
	}

	app := newTestApp(JWTAuth(testSecret))
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/threads/x", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			resp, err := app.Test(req)
			if err != nil {
				t.Fatalf("request: %v", err)
			}
			if resp.StatusCode != tt.status {
				t.Fatalf("status = %d, want %d", resp.StatusCode, tt.status)
			}
			if tt.code != "" {
				if got := decodeError(t, resp).Error.Code; got != tt.code {
					t.Errorf("code = %q, want %q", got, tt.code)
				}
			}
		})
	}
}

func TestValidateUUID(t *testing.T) {
	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler()})
	app.Get("/threads/:id", ValidateUUID("id"), func(c *fiber.Ctx) error {
		return c.SendStatus(http.StatusNoContent)
	})

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/threads/not-a-uuid", nil))
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
	if got := decodeError(t, resp).Error.Code; got != "INVALID_INPUT" {
		t.Errorf("code = %q", got)
	}

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/threads/3f1c2a56-7d7b-4a8e-9d0a-2f3b4c5d6e7f", nil))
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", resp.StatusCode)
	}
}

func TestValidateQuery(t *testing.T) {
	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler()})
	app.Get("/threads",
		ValidateEnum("status", []string{"new", "closed"}),
		ValidateIntRange("limit", 1, 100),
		func(c *fiber.Ctx) error { return c.SendStatus(http.StatusNoContent) },
	)

	tests := []struct {
		query  string
		status int
	}{
		{"", http.StatusNoContent},
		{"?status=new&limit=10", http.StatusNoContent},
		{"?status=NEW", http.StatusBadRequest},
		{"?limit=0", http.StatusBadRequest},
		{"?limit=abc", http.StatusBadRequest},
		{"?limit=101", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/threads"+tt.query, nil))
			if err != nil {
				t.Fatal(err)
			}
			if resp.StatusCode != tt.status {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.status)
			}
		})
	}
}

func TestRateLimiter(t *testing.T) {
	rl := NewRateLimiter(2, time.Minute)
	defer rl.Close()
	app := newTestApp(rl.Handler())

	for i, want := range []int{200, 200, 429} {
		resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/threads/x", nil))
		if err != nil {
			t.Fatal(err)
		}
		if resp.StatusCode != want {
			t.Fatalf("request %d: status = %d, want %d", i, resp.StatusCode, want)
		}
		if want == 429 && resp.Header.Get("Retry-After") == "" {
			t.Error("missing Retry-After header")
		}
	}
}

func TestRateLimiterWindowReset(t *testing.T) {
	rl := NewRateLimiter(1, time.Minute)
	defer rl.Close()
	now := time.Date(2025, 8, 1, 12, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }

	if ok, _, _ := rl.allow("k"); !ok {
		t.Fatal("first request should pass")
	}
	if ok, _, _ := rl.allow("k"); ok {
		t.Fatal("second request should be limited")
	}
	now = now.Add(2 * time.Minute)
	if ok, _, _ := rl.allow("k"); !ok {
		t.Fatal("request after window should pass")
	}
}

func TestRecoverAndRequestID(t *testing.T) {
	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler()})
	app.Use(Recover(), RequestID())
	app.Get("/panic", func(c *fiber.Ctx) error { panic("boom") })

	req := httptest.NewRequest(http.MethodGet, "/panic", nil)
	req.Header.Set("X-Request-ID", "req-1")
	resp, err := app.Test(req)
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", resp.StatusCode)
	}
	er := decodeError(t, resp)
	if er.RequestID != "req-1" {
		t.Errorf("request_id = %q", er.RequestID)
	}
	if er.Error.Code != "INTERNAL_ERROR" {
		t.Errorf("code = %q", er.Error.Code)
	}
}
