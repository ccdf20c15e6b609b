// Package redis provides a Redis session store. Each thread is one JSON value.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/gragraf/pkg/persistence"
	redis "github.com/redis/go-redis/v9"
)

const keyPrefix = "gragraf:session:"

// SessionStore implements persistence.SessionStore on Redis.
type SessionStore struct {
	client redis.UniversalClient
	logger *slog.Logger
	ttl    time.Duration
}

// Option configures a SessionStore.
type Option func(*SessionStore)

// WithTTL expires snapshots ttl after their last save. Zero keeps them forever.
func WithTTL(ttl time.Duration) Option {
	return func(s *SessionStore) {
		s.ttl = ttl
	}
}

// NewSessionStore connects to the redis:// URL and verifies the connection.
func NewSessionStore(ctx context.Context, logger *slog.Logger, redisURL string, opts ...Option) (*SessionStore, error) {
	options, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}

	client := redis.NewClient(options)

	err = client.Ping(ctx).Err()
	if err != nil {
		_ = client.Close()

		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	return NewSessionStoreWithClient(client, logger, opts...), nil
}

// NewSessionStoreWithClient wraps an existing client.
func NewSessionStoreWithClient(client redis.UniversalClient, logger *slog.Logger, opts ...Option) *SessionStore {
	s := &SessionStore{
		client: client,
		logger: logger.With("module", "redis_session_store"),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Close closes the client.
func (s *SessionStore) Close(_ context.Context) error {
	return s.client.Close()
}

// HealthCheck pings the server.
func (s *SessionStore) HealthCheck(ctx context.Context) error {
	err := s.client.Ping(ctx).Err()
	if err != nil {
		return fmt.Errorf("failed to ping redis: %w", err)
	}

	return nil
}

// SaveSession replaces the snapshot of the record's thread.
func (s *SessionStore) SaveSession(ctx context.Context, record *persistence.SessionRecord) error {
	threadID := record.ThreadID()

	err := persistence.ValidateThreadID(threadID)
	if err != nil {
		return persistence.NewSessionError("Save", threadID, err)
	}

	if record.UpdatedAt.IsZero() {
		record.UpdatedAt = time.Now().UTC()
	}

	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal session %s: %w", threadID, err)
	}

	err = s.client.Set(ctx, keyPrefix+threadID, data, s.ttl).Err()
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to save session", "thread_id", threadID, "error", err)

		return persistence.NewSessionError("Save", threadID, err)
	}

	return nil
}

// SessionByThreadID loads the snapshot of threadID.
func (s *SessionStore) SessionByThreadID(ctx context.Context, threadID string) (*persistence.SessionRecord, error) {
	data, err := s.client.Get(ctx, keyPrefix+threadID).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, persistence.NewSessionError("Get", threadID, persistence.ErrSessionNotFound)
		}

		return nil, persistence.NewSessionError("Get", threadID, err)
	}

	var record persistence.SessionRecord

	err = json.Unmarshal(data, &record)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal session %s: %w", threadID, err)
	}

	return &record, nil
}

// DeleteSession removes the snapshot of threadID.
func (s *SessionStore) DeleteSession(ctx context.Context, threadID string) error {
	err := s.client.Del(ctx, keyPrefix+threadID).Err()
	if err != nil {
		return persistence.NewSessionError("Delete", threadID, err)
	}

	return nil
}
