// Package session carries the authenticated user through a request
// explicitly instead of through process-wide state.
package session

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"

	"runwayiq/utils"
)

// LocalsKey is where the auth middleware stores the session
const LocalsKey = "session"

var ErrNoSession = errors.New("no session in request context")

// Session is the per-request identity built from a verified access token
type Session struct {
	ID        string    `json:"id"`
	UserID    uint      `json:"user_id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// FromClaims converts verified token claims into a session
func FromClaims(claims *utils.Claims) *Session {
	s := &Session{
		ID:     claims.SessionID,
		UserID: claims.UserID,
		Email:  claims.Email,
		Name:   claims.Name,
	}
	if claims.IssuedAt != nil {
		s.IssuedAt = claims.IssuedAt.Time
	}
	if claims.ExpiresAt != nil {
		s.ExpiresAt = claims.ExpiresAt.Time
	}
	return s
}

// TTL is how long the session has left; never negative
func (s *Session) TTL(now time.Time) time.Duration {
	if s.ExpiresAt.IsZero() || !s.ExpiresAt.After(now) {
		return 0
	}
	return s.ExpiresAt.Sub(now)
}

// Owner is the label stamped on leads and campaigns created in this session
func (s *Session) Owner() string {
	if s.Name != "" {
		return s.Name
	}
	return s.Email
}

func Set(c *fiber.Ctx, s *Session) {
	c.Locals(LocalsKey, s)
}

// FromCtx returns the session placed on the request by the auth middleware
func FromCtx(c *fiber.Ctx) (*Session, error) {
	return FromValue(c.Locals(LocalsKey))
}

// FromValue unwraps a session read from locals, as on an upgraded websocket
func FromValue(v interface{}) (*Session, error) {
	s, ok := v.(*Session)
	if !ok || s == nil {
		return nil, ErrNoSession
	}
	return s, nil
}
