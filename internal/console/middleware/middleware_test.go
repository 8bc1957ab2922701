package middleware

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tair/product-console/internal/console/session"
)

func newSessionApp() *fiber.App {
	app := fiber.New()
	app.Use(SessionMiddleware(time.Hour))
	app.Get("/", func(c *fiber.Ctx) error {
		return c.SendString(SessionID(c))
	})
	return app
}

func body(t *testing.T, resp *http.Response) string {
	t.Helper()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(raw)
}

func TestSessionMiddleware_IssuesCookieOnce(t *testing.T) {
	app := newSessionApp()

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/", nil), -1)
	require.NoError(t, err)
	cookies := resp.Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, session.CookieName, cookies[0].Name)
	assert.True(t, cookies[0].HttpOnly)
	id := body(t, resp)
	assert.Equal(t, cookies[0].Value, id)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: session.CookieName, Value: id})
	resp, err = app.Test(req, -1)
	require.NoError(t, err)
	assert.Empty(t, resp.Cookies())
	assert.Equal(t, id, body(t, resp))
}

func TestSessionMiddleware_ReplacesForgedCookie(t *testing.T) {
	app := newSessionApp()

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: session.CookieName, Value: "not-a-session"})
	resp, err := app.Test(req, -1)
	require.NoError(t, err)

	id := body(t, resp)
	assert.NotEqual(t, "not-a-session", id)
	assert.True(t, session.ValidID(id))
}

func TestRedisMiddleware_PassThroughWithoutRedis(t *testing.T) {
	app := fiber.New()
	app.Use(NewRateLimiter(nil, 1, time.Minute).Middleware())
	app.Use(CacheMiddleware(nil, time.Minute))
	app.Get("/", func(c *fiber.Ctx) error {
		return c.SendString("ok")
	})

	for i := 0; i < 3; i++ {
		resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/", nil), -1)
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Empty(t, resp.Header.Get("X-Cache"))
		assert.Empty(t, resp.Header.Get("X-RateLimit-Limit"))
	}
}

func TestObservabilityMiddleware_KeepsHandlerErrors(t *testing.T) {
	app := fiber.New()
	app.Use(TracingMiddleware("console-test"))
	app.Use(StructuredLoggingMiddleware())
	app.Get("/teapot", func(c *fiber.Ctx) error {
		return fiber.ErrTeapot
	})
	app.Get("/ok", func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusNoContent)
	})

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/teapot", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusTeapot, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/ok", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusNoContent, resp.StatusCode)
}
