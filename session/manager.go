package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"runwayiq/models"
)

const defaultProfileTTL = 15 * time.Minute

var (
	ErrRevoked      = errors.New("session has been revoked")
	ErrUserInactive = errors.New("account is not active")
	ErrUserNotFound = errors.New("user not found")
)

// Manager resolves profiles through the cache and handles sign-out
type Manager struct {
	DB         *gorm.DB
	Store      Store
	Logger     *logrus.Entry
	ProfileTTL time.Duration
	now        func() time.Time
}

func NewManager(db *gorm.DB, store Store, logger *logrus.Entry) *Manager {
	if store == nil {
		store = NewMemoryStore()
	}
	if logger == nil {
		logger = logrus.WithField("component", "session")
	}
	return &Manager{DB: db, Store: store, Logger: logger, ProfileTTL: defaultProfileTTL, now: time.Now}
}

// Check rejects sessions that were signed out before they expired
func (m *Manager) Check(ctx context.Context, s *Session) error {
	revoked, err := m.Store.IsRevoked(ctx, s.ID)
	if err != nil {
		// a cache outage must not lock everybody out
		m.Logger.WithError(err).Warn("Failed to check session revocation")
		return nil
	}
	if revoked {
		return ErrRevoked
	}
	return nil
}

// Profile returns the cached profile, loading it from the database on a miss
func (m *Manager) Profile(ctx context.Context, userID uint) (*models.Profile, error) {
	p, err := m.Store.GetProfile(ctx, userID)
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, ErrCacheMiss) {
		m.Logger.WithError(err).WithField("user_id", userID).Warn("Profile cache read failed")
	}

	var user models.User
	if err := m.DB.WithContext(ctx).First(&user, userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to load user: %w", err)
	}
	if !user.IsActive {
		return nil, ErrUserInactive
	}

	profile := user.Profile()
	if err := m.Store.SetProfile(ctx, profile, m.ProfileTTL); err != nil {
		m.Logger.WithError(err).WithField("user_id", userID).Warn("Profile cache write failed")
	}
	return &profile, nil
}

// SignOut revokes the session for the rest of its lifetime and drops the cached profile
func (m *Manager) SignOut(ctx context.Context, s *Session) error {
	if err := m.Store.Revoke(ctx, s.ID, s.TTL(m.now())); err != nil {
		return fmt.Errorf("failed to revoke session: %w", err)
	}
	if err := m.Store.InvalidateProfile(ctx, s.UserID); err != nil {
		m.Logger.WithError(err).WithField("user_id", s.UserID).Warn("Failed to invalidate cached profile")
	}
	return nil
}
