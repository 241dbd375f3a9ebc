package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"

	"runwayiq/config"
	"runwayiq/models"
)

// ErrCacheMiss is returned by Store.GetProfile when nothing is cached
var ErrCacheMiss = errors.New("profile not cached")

// Store is the side cache for user profiles and revoked session ids
type Store interface {
	GetProfile(ctx context.Context, userID uint) (*models.Profile, error)
	SetProfile(ctx context.Context, p models.Profile, ttl time.Duration) error
	InvalidateProfile(ctx context.Context, userID uint) error
	Revoke(ctx context.Context, sessionID string, ttl time.Duration) error
	IsRevoked(ctx context.Context, sessionID string) (bool, error)
}

func profileKey(userID uint) string { return fmt.Sprintf("profile:%d", userID) }

func revokedKey(sessionID string) string { return "revoked:" + sessionID }

// RedisStore keeps profiles and revocations in Redis so every instance sees them
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(cfg config.RedisConfig) *RedisStore {
	return &RedisStore{
		client: redis.NewClient(&redis.Options{
			Addr:     cfg.Address,
			Password: cfg.Password,
			DB:       cfg.DB,
		}),
	}
}

func (r *RedisStore) GetProfile(ctx context.Context, userID uint) (*models.Profile, error) {
	raw, err := r.client.Get(ctx, profileKey(userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, err
	}
	var p models.Profile
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("decode cached profile: %w", err)
	}
	return &p, nil
}

func (r *RedisStore) SetProfile(ctx context.Context, p models.Profile, ttl time.Duration) error {
	raw, err := json.Marshal(p)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, profileKey(p.UserID), raw, ttl).Err()
}

func (r *RedisStore) InvalidateProfile(ctx context.Context, userID uint) error {
	return r.client.Del(ctx, profileKey(userID)).Err()
}

func (r *RedisStore) Revoke(ctx context.Context, sessionID string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	return r.client.Set(ctx, revokedKey(sessionID), "1", ttl).Err()
}

func (r *RedisStore) IsRevoked(ctx context.Context, sessionID string) (bool, error) {
	n, err := r.client.Exists(ctx, revokedKey(sessionID)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *RedisStore) Close() error {
	return r.client.Close()
}

type memoryEntry struct {
	value   []byte
	expires time.Time
}

// MemoryStore is the single-instance Store used when Redis is disabled
type MemoryStore struct {
	mu    sync.Mutex
	items map[string]memoryEntry
	now   func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{items: make(map[string]memoryEntry), now: time.Now}
}

func (m *MemoryStore) get(key string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.items[key]
	if !ok {
		return nil, false
	}
	if !e.expires.IsZero() && !m.now().Before(e.expires) {
		delete(m.items, key)
		return nil, false
	}
	return e.value, true
}

func (m *MemoryStore) set(key string, value []byte, ttl time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := memoryEntry{value: value}
	if ttl > 0 {
		e.expires = m.now().Add(ttl)
	}
	m.items[key] = e
}

func (m *MemoryStore) GetProfile(_ context.Context, userID uint) (*models.Profile, error) {
	raw, ok := m.get(profileKey(userID))
	if !ok {
		return nil, ErrCacheMiss
	}
	var p models.Profile
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (m *MemoryStore) SetProfile(_ context.Context, p models.Profile, ttl time.Duration) error {
	raw, err := json.Marshal(p)
	if err != nil {
		return err
	}
	m.set(profileKey(p.UserID), raw, ttl)
	return nil
}

func (m *MemoryStore) InvalidateProfile(_ context.Context, userID uint) error {
	m.mu.Lock()
	delete(m.items, profileKey(userID))
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) Revoke(_ context.Context, sessionID string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	m.set(revokedKey(sessionID), []byte("1"), ttl)
	return nil
}

func (m *MemoryStore) IsRevoked(_ context.Context, sessionID string) (bool, error) {
	_, ok := m.get(revokedKey(sessionID))
	return ok, nil
}
