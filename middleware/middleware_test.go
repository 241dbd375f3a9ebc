package middleware

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"runwayiq/session"
	"runwayiq/testutil"
	"runwayiq/utils"
)

const secret = "test-secret-that-is-long-enough-123"

func protectedApp(t *testing.T) (*fiber.App, *session.Manager, string, *session.Session) {
	t.Helper()
	db := testutil.NewDB(t)
	logger, _ := test.NewNullLogger()
	manager := session.NewManager(db, session.NewMemoryStore(), logrus.NewEntry(logger))
	user := testutil.CreateUser(t, db, "Sam Park", "sam@example.com")

	token, claims, err := utils.GenerateJWTToken(user, secret, time.Hour)
	require.NoError(t, err)

	app := fiber.New()
	app.Get("/me", Protected(secret, manager), func(c *fiber.Ctx) error {
		s, err := session.FromCtx(c)
		if err != nil {
			return err
		}
		return c.SendString(s.Name)
	})
	return app, manager, token, session.FromClaims(claims)
}

func TestProtected(t *testing.T) {
	app, manager, token, s := protectedApp(t)

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, "Sam Park", string(body))

	req = httptest.NewRequest(http.MethodGet, "/me", nil)
	req.AddCookie(&http.Cookie{Name: "access_token", Value: token})
	resp, err = app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	for _, header := range []string{"", "Token " + token, "Bearer not-a-jwt"} {
		req = httptest.NewRequest(http.MethodGet, "/me", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		resp, err = app.Test(req)
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode, header)
	}

	require.NoError(t, manager.SignOut(context.Background(), s))
	req = httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err = app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
}

func TestCORS(t *testing.T) {
	app := fiber.New()
	app.Use(CORS(CORSConfig{
		AllowedOrigins:   ParseOrigins(" https://app.example.com/ ,https://admin.example.com"),
		AllowCredentials: true,
		AllowedMethods:   []string{"GET", "POST"},
		MaxAge:           600,
	}))
	app.Get("/", func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusOK) })

	req := httptest.NewRequest(http.MethodOptions, "/", nil)
	req.Header.Set("Origin", "https://app.example.com")
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "https://app.example.com", resp.Header.Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "600", resp.Header.Get("Access-Control-Max-Age"))
	assert.Equal(t, "true", resp.Header.Get("Access-Control-Allow-Credentials"))

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	resp, err = app.Test(req)
	require.NoError(t, err)
	assert.Empty(t, resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestRateLimiter(t *testing.T) {
	app := fiber.New()
	app.Use(RateLimiter(2, nil))
	app.Get("/", func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusOK) })

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/", nil))
		require.NoError(t, err)
		codes = append(codes, resp.StatusCode)
	}
	assert.Equal(t, []int{200, 200, 429}, codes)
}

type stubValidator struct{ want string }

func (s stubValidator) ValidSignature(url string, params map[string]string, sig string) bool {
	return sig == s.want && url == "https://runway.example.com/twilio/status" && params["CallSid"] == "CA1"
}

func TestTwilioSignature(t *testing.T) {
	app := fiber.New()
	app.Post("/twilio/status", TwilioSignature(stubValidator{want: "good"}, "https://runway.example.com"),
		func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusOK) })

	form := url.Values{"CallSid": {"CA1"}}.Encode()
	for sig, want := range map[string]int{"good": 200, "bad": 403} {
		req := httptest.NewRequest(http.MethodPost, "/twilio/status", strings.NewReader(form))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		req.Header.Set("X-Twilio-Signature", sig)
		resp, err := app.Test(req)
		require.NoError(t, err)
		assert.Equal(t, want, resp.StatusCode, sig)
	}

	open := fiber.New()
	open.Post("/twilio/status", TwilioSignature(nil, ""), func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusOK) })
	resp, err := open.Test(httptest.NewRequest(http.MethodPost, "/twilio/status", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}

func TestMetricsEndpoint(t *testing.T) {
	app := fiber.New()
	app.Use(Metrics())
	app.Get("/ping", func(c *fiber.Ctx) error { return c.SendString("pong") })
	app.Get("/metrics", MetricsHandler())

	_, err := app.Test(httptest.NewRequest(http.MethodGet, "/ping", nil))
	require.NoError(t, err)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	assert.Contains(t, string(body), `http_requests_total{method="GET",path="/ping",status="200"}`)
}
