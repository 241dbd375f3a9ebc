package session

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"runwayiq/models"
	"runwayiq/testutil"
	"runwayiq/utils"
)

func newManager(t *testing.T) (*Manager, *MemoryStore) {
	t.Helper()
	db := testutil.NewDB(t)
	logger, _ := test.NewNullLogger()
	store := NewMemoryStore()
	return NewManager(db, store, logrus.NewEntry(logger)), store
}

func TestFromClaims(t *testing.T) {
	issued := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	s := FromClaims(&utils.Claims{
		UserID:    7,
		Email:     "sam@example.com",
		SessionID: "abc",
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(issued),
			ExpiresAt: jwt.NewNumericDate(issued.Add(time.Hour)),
		},
	})

	assert.Equal(t, "abc", s.ID)
	assert.Equal(t, uint(7), s.UserID)
	assert.Equal(t, "sam@example.com", s.Owner())
	assert.Equal(t, 30*time.Minute, s.TTL(issued.Add(30*time.Minute)))
	assert.Zero(t, s.TTL(issued.Add(2*time.Hour)))
}

func TestFromCtx(t *testing.T) {
	app := fiber.New()
	app.Get("/", func(c *fiber.Ctx) error {
		if _, err := FromCtx(c); err != ErrNoSession {
			return fiber.ErrTeapot
		}
		Set(c, &Session{ID: "s1", UserID: 3, Name: "Sam"})
		s, err := FromCtx(c)
		if err != nil {
			return err
		}
		return c.SendString(s.Owner())
	})

	resp, err := app.Test(httptestRequest())
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}

func TestProfileLoadsFromDatabaseOnMiss(t *testing.T) {
	m, store := newManager(t)
	user := testutil.CreateUser(t, m.DB, "Sam Park", "sam@example.com")
	ctx := context.Background()

	_, err := store.GetProfile(ctx, user.ID)
	assert.ErrorIs(t, err, ErrCacheMiss)

	p, err := m.Profile(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, "Sam Park", p.Name)

	cached, err := store.GetProfile(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, "sam@example.com", cached.Email)

	// the cache answers even after the row changes
	require.NoError(t, m.DB.Model(&models.User{}).Where("id = ?", user.ID).Update("name", "Samantha").Error)
	p, err = m.Profile(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, "Sam Park", p.Name)
}

func TestProfileErrors(t *testing.T) {
	m, _ := newManager(t)
	_, err := m.Profile(context.Background(), 999)
	assert.ErrorIs(t, err, ErrUserNotFound)

	user := testutil.CreateUser(t, m.DB, "Ina", "ina@example.com")
	require.NoError(t, m.DB.Model(user).Update("is_active", false).Error)
	_, err = m.Profile(context.Background(), user.ID)
	assert.ErrorIs(t, err, ErrUserInactive)
}

func TestSignOutRevokesSession(t *testing.T) {
	m, store := newManager(t)
	user := testutil.CreateUser(t, m.DB, "Sam Park", "sam@example.com")
	ctx := context.Background()

	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return now }
	store.now = func() time.Time { return now }

	s := &Session{ID: "sess-1", UserID: user.ID, ExpiresAt: now.Add(time.Hour)}
	_, err := m.Profile(ctx, user.ID)
	require.NoError(t, err)
	require.NoError(t, m.Check(ctx, s))

	require.NoError(t, m.SignOut(ctx, s))
	assert.ErrorIs(t, m.Check(ctx, s), ErrRevoked)

	_, err = store.GetProfile(ctx, user.ID)
	assert.ErrorIs(t, err, ErrCacheMiss)

	// revocation lapses together with the token
	now = now.Add(61 * time.Minute)
	assert.NoError(t, m.Check(ctx, s))
}

func TestSignOutOfExpiredSessionIsNoop(t *testing.T) {
	m, store := newManager(t)
	s := &Session{ID: "old", UserID: 1, ExpiresAt: time.Now().Add(-time.Minute)}
	require.NoError(t, m.SignOut(context.Background(), s))
	revoked, err := store.IsRevoked(context.Background(), "old")
	require.NoError(t, err)
	assert.False(t, revoked)
}

func httptestRequest() *http.Request {
	return httptest.NewRequest(http.MethodGet, "/", nil)
}
