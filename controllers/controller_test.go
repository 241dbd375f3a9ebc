package controller

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"runwayiq/campaign"
	"runwayiq/models"
	"runwayiq/session"
	"runwayiq/testutil"
)

var fixedNow = time.Date(2026, 3, 2, 10, 30, 0, 0, time.UTC)

func quietLogger() *logrus.Entry {
	logger, _ := test.NewNullLogger()
	return logrus.NewEntry(logger)
}

type testEnv struct {
	DB     *gorm.DB
	Engine *campaign.Engine
	User   *models.User
	App    *fiber.App
}

// newTestEnv returns an app whose requests all carry a session for a fresh user
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db := testutil.NewDB(t)
	user := testutil.CreateUser(t, db, "Sam Seller", "sam@example.com")
	engine := campaign.NewEngine(db, campaign.DefaultTemplate(), quietLogger(),
		campaign.WithClock(func() time.Time { return fixedNow }))

	app := fiber.New()
	app.Use(func(c *fiber.Ctx) error {
		session.Set(c, &session.Session{
			ID:        "test-session",
			UserID:    user.ID,
			Email:     user.Email,
			Name:      user.Name,
			ExpiresAt: fixedNow.Add(time.Hour),
		})
		return c.Next()
	})
	return &testEnv{DB: db, Engine: engine, User: user, App: app}
}

func (e *testEnv) createLead(t *testing.T, name, email string) *models.Lead {
	t.Helper()
	lead := &models.Lead{
		UserID:   e.User.ID,
		FullName: name,
		Email:    email,
		Status:   models.LeadStatusNew,
		Priority: models.PriorityMedium,
		Owner:    "Sam Seller",
	}
	require.NoError(t, e.DB.Create(lead).Error)
	return lead
}

func (e *testEnv) call(t *testing.T, method, path string, body interface{}) (int, map[string]interface{}) {
	t.Helper()
	return doJSON(t, e.App, method, path, body)
}

func doJSON(t *testing.T, app *fiber.App, method, path string, body interface{}) (int, map[string]interface{}) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return decode(t, app, req)
}

func decode(t *testing.T, app *fiber.App, req *http.Request) (int, map[string]interface{}) {
	t.Helper()
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	out := map[string]interface{}{}
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &out), string(raw))
	}
	return resp.StatusCode, out
}

func data(t *testing.T, body map[string]interface{}) map[string]interface{} {
	t.Helper()
	d, ok := body["data"].(map[string]interface{})
	require.True(t, ok, "response has no data object: %v", body)
	return d
}

func items(t *testing.T, body map[string]interface{}) []interface{} {
	t.Helper()
	d, ok := body["data"].([]interface{})
	require.True(t, ok, "response has no data list: %v", body)
	return d
}
