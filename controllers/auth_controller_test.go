package controller

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"runwayiq/middleware"
	"runwayiq/models"
	"runwayiq/session"
	"runwayiq/testutil"
)

const testSecret = "test-secret"

func authApp(t *testing.T) (*fiber.App, *gorm.DB) {
	t.Helper()
	db := testutil.NewDB(t)
	sessions := session.NewManager(db, session.NewMemoryStore(), quietLogger())
	ac := NewAuthController(db, sessions, testSecret, time.Hour, quietLogger())

	app := fiber.New()
	app.Post("/auth/register", ac.Register)
	app.Post("/auth/login", ac.Login)
	protected := app.Group("/auth", middleware.Protected(testSecret, sessions))
	protected.Post("/logout", ac.Logout)
	protected.Get("/me", ac.Me)
	return app, db
}

func withToken(t *testing.T, app *fiber.App, method, path, token string) (int, map[string]interface{}) {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	req.Header.Set("Authorization", "Bearer "+token)
	return decode(t, app, req)
}

func TestRegisterAndSession(t *testing.T) {
	app, _ := authApp(t)

	req := httptest.NewRequest("POST", "/auth/register",
		strings.NewReader(`{"email":" Sam@Example.com ","password":"password123","name":"Sam Seller"}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)

	var cookie string
	for _, c := range resp.Cookies() {
		if c.Name == "access_token" {
			cookie = c.Value
		}
	}
	require.NotEmpty(t, cookie)

	status, body := doJSON(t, app, "POST", "/auth/login", fiber.Map{"email": "  SAM@example.com", "password": "password123"})
	require.Equal(t, fiber.StatusOK, status, body)
	auth := data(t, body)
	token := auth["access_token"].(string)
	assert.Equal(t, "sam@example.com", auth["user"].(map[string]interface{})["email"])
	assert.NotContains(t, auth["user"], "password_hash")

	status, body = withToken(t, app, "GET", "/auth/me", token)
	require.Equal(t, fiber.StatusOK, status, body)
	assert.Equal(t, auth["session_id"], data(t, body)["session_id"])

	status, _ = withToken(t, app, "POST", "/auth/logout", token)
	require.Equal(t, fiber.StatusOK, status)

	status, body = withToken(t, app, "GET", "/auth/me", token)
	assert.Equal(t, fiber.StatusUnauthorized, status)
	assert.Equal(t, "Session has been signed out", body["error"])

	status, _ = withToken(t, app, "GET", "/auth/me", cookie)
	assert.Equal(t, fiber.StatusOK, status)
}

func TestRegisterRejectsDuplicatesAndBadInput(t *testing.T) {
	app, db := authApp(t)
	testutil.CreateUser(t, db, "Sam Seller", "sam@example.com")

	status, body := doJSON(t, app, "POST", "/auth/register", fiber.Map{"email": "SAM@example.com", "password": "password123"})
	assert.Equal(t, fiber.StatusConflict, status)
	assert.Equal(t, "Email already registered", body["error"])

	status, body = doJSON(t, app, "POST", "/auth/register", fiber.Map{"email": "new@example.com", "password": "short"})
	assert.Equal(t, fiber.StatusBadRequest, status)
	assert.Equal(t, "Validation failed", body["error"])

	status, _ = doJSON(t, app, "POST", "/auth/register", fiber.Map{"email": "nope", "password": "password123"})
	assert.Equal(t, fiber.StatusBadRequest, status)
}

func TestLoginFailures(t *testing.T) {
	app, db := authApp(t)
	user := testutil.CreateUser(t, db, "Sam Seller", "sam@example.com")

	status, body := doJSON(t, app, "POST", "/auth/login", fiber.Map{"email": "sam@example.com", "password": "wrong-password"})
	assert.Equal(t, fiber.StatusUnauthorized, status)
	assert.Equal(t, "Invalid email or password", body["error"])

	status, body = doJSON(t, app, "POST", "/auth/login", fiber.Map{"email": "ghost@example.com", "password": "password123"})
	assert.Equal(t, fiber.StatusUnauthorized, status)
	assert.Equal(t, "Invalid email or password", body["error"])

	require.NoError(t, db.Model(&models.User{}).Where("id = ?", user.ID).Update("is_active", false).Error)
	status, body = doJSON(t, app, "POST", "/auth/login", fiber.Map{"email": "sam@example.com", "password": "password123"})
	assert.Equal(t, fiber.StatusForbidden, status)
	assert.Equal(t, "Account is not active", body["error"])
}

func TestProtectedRejectsBadTokens(t *testing.T) {
	app, _ := authApp(t)

	status, body := doJSON(t, app, "GET", "/auth/me", nil)
	assert.Equal(t, fiber.StatusUnauthorized, status)
	assert.Equal(t, "Authorization required", body["error"])

	status, body = withToken(t, app, "GET", "/auth/me", "not-a-jwt")
	assert.Equal(t, fiber.StatusUnauthorized, status)
	assert.Equal(t, "Invalid or expired token", body["error"])
}
