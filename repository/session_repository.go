package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"jansunwai/models"
)

// SessionRepository stores conversation sessions in Redis, partitioned by
// channel+address. Session expiry rides the key TTL; a vanished key is a
// fresh conversation. The same connection backs the per-address intake rate
// limiter.
type SessionRepository struct {
	client *redis.Client
}

// NewSessionRepository creates a new session repository
func NewSessionRepository(client *redis.Client) *SessionRepository {
	return &SessionRepository{client: client}
}

func sessionKey(channel, address string) string {
	return fmt.Sprintf("intake:session:%s:%s", channel, address)
}

func rateKey(channel, address string) string {
	return fmt.Sprintf("intake:rate:%s:%s", channel, address)
}

// Get loads the session for a channel address, or nil when none exists.
func (r *SessionRepository) Get(ctx context.Context, channel, address string) (*models.ConversationSession, error) {
	data, err := r.client.Get(ctx, sessionKey(channel, address)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, models.Wrap(models.KindDependencyUnavailable, "session store read failed", err)
	}
	var s models.ConversationSession
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to decode session: %w", err)
	}
	return &s, nil
}

// Save writes the session with its TTL.
func (r *SessionRepository) Save(ctx context.Context, s *models.ConversationSession, ttl time.Duration) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}
	if err := r.client.Set(ctx, sessionKey(s.Channel, s.Address), data, ttl).Err(); err != nil {
		return models.Wrap(models.KindDependencyUnavailable, "session store write failed", err)
	}
	return nil
}

// Delete destroys a session (commit, cancel, or reset).
func (r *SessionRepository) Delete(ctx context.Context, channel, address string) error {
	if err := r.client.Del(ctx, sessionKey(channel, address)).Err(); err != nil {
		return models.Wrap(models.KindDependencyUnavailable, "session store delete failed", err)
	}
	return nil
}

// AllowMessage counts one inbound message against the per-address window and
// reports whether it is within limit. The counter key expires with the window.
func (r *SessionRepository) AllowMessage(ctx context.Context, channel, address string, limit int, window time.Duration) (bool, error) {
	key := rateKey(channel, address)
	count, err := r.client.Incr(ctx, key).Result()
	if err != nil {
		return false, models.Wrap(models.KindDependencyUnavailable, "rate limiter unavailable", err)
	}
	if count == 1 {
		// First hit opens the window.
		if err := r.client.Expire(ctx, key, window).Err(); err != nil {
			return false, models.Wrap(models.KindDependencyUnavailable, "rate limiter unavailable", err)
		}
	}
	return count <= int64(limit), nil
}
