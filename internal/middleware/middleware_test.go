package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/learnhub/learnhub-wallet/internal/auth"
)

var testSecret = []byte("test-secret")

func bearer(t *testing.T, userID, role string) string {
	t.Helper()
	token, err := auth.SignHS256(auth.NewClaims(userID, role, time.Minute), testSecret)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return "Bearer " + token
}

func TestJWTAuthAndRequireRole(t *testing.T) {
	app := fiber.New()
	app.Use(JWTAuth(testSecret))
	app.Get("/me", func(c *fiber.Ctx) error {
		return c.SendString(c.Locals("user_id").(string))
	})
	app.Post("/admin", RequireRole(auth.RoleAdmin), func(c *fiber.Ctx) error {
		return c.SendStatus(http.StatusNoContent)
	})

	tests := []struct {
		name   string
		method string
		path   string
		authz  string
		want   int
	}{
		{"missing token", http.MethodGet, "/me", "", http.StatusUnauthorized},
		{"garbage token", http.MethodGet, "/me", "Bearer nope", http.StatusUnauthorized},
		{"valid token", http.MethodGet, "/me", bearer(t, "u1", ""), http.StatusOK},
		{"user on admin route", http.MethodPost, "/admin", bearer(t, "u1", ""), http.StatusForbidden},
		{"admin on admin route", http.MethodPost, "/admin", bearer(t, "ops", auth.RoleAdmin), http.StatusNoContent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, nil)
			if tt.authz != "" {
				req.Header.Set(fiber.HeaderAuthorization, tt.authz)
			}
			resp, err := app.Test(req)
			if err != nil {
				t.Fatalf("app.Test: %v", err)
			}
			if resp.StatusCode != tt.want {
				t.Fatalf("expected %d got %d", tt.want, resp.StatusCode)
			}
		})
	}
}

func TestRateLimitPerUser(t *testing.T) {
	cache, mr := setupCache(t)

	app := fiber.New()
	app.Use(func(c *fiber.Ctx) error {
		c.Locals("user_id", c.Get("X-User"))
		return c.Next()
	})
	app.Post("/deposit", RateLimit(cache, "deposit", 2), func(c *fiber.Ctx) error {
		return c.SendStatus(http.StatusCreated)
	})

	send := func(user string) int {
		req := httptest.NewRequest(http.MethodPost, "/deposit", nil)
		req.Header.Set("X-User", user)
		resp, err := app.Test(req)
		if err != nil {
			t.Fatalf("app.Test: %v", err)
		}
		return resp.StatusCode
	}

	for i := 0; i < 2; i++ {
		if got := send("u1"); got != http.StatusCreated {
			t.Fatalf("request %d: expected 201 got %d", i, got)
		}
	}
	if got := send("u1"); got != http.StatusTooManyRequests {
		t.Fatalf("expected 429 got %d", got)
	}
	if got := send("u2"); got != http.StatusCreated {
		t.Fatalf("other users keep their own budget, got %d", got)
	}

	mr.FastForward(time.Minute)
	if got := send("u1"); got != http.StatusCreated {
		t.Fatalf("window should reset, got %d", got)
	}
}

func TestRequestIDEchoesHeader(t *testing.T) {
	app := fiber.New()
	app.Use(RequestID())
	app.Get("/", func(c *fiber.Ctx) error { return c.SendStatus(http.StatusOK) })

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(requestIDHeader, "req-1")
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	if got := resp.Header.Get(requestIDHeader); got != "req-1" {
		t.Fatalf("expected req-1 got %q", got)
	}

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/", nil))
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	if resp.Header.Get(requestIDHeader) == "" {
		t.Fatal("expected a generated request id")
	}
}
