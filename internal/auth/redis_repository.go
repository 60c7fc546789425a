package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RedisRepository stores sessions as JSON values whose TTL matches the
// session max age, so expired sessions vanish without a sweep.
type RedisRepository struct {
	client redis.Cmdable
	prefix string
	now    func() time.Time
}

// NewRedisRepository creates a repository using keys under prefix.
func NewRedisRepository(client redis.Cmdable, prefix string) *RedisRepository {
	if prefix == "" {
		prefix = "nowplaying"
	}
	return &RedisRepository{client: client, prefix: prefix, now: time.Now}
}

func (r *RedisRepository) userKey(spotifyID string) string {
	return fmt.Sprintf("%s:user:%s", r.prefix, spotifyID)
}

func (r *RedisRepository) sessionKey(id uuid.UUID) string {
	return fmt.Sprintf("%s:session:%s", r.prefix, id)
}

func (r *RedisRepository) UpsertUser(ctx context.Context, user User) (User, error) {
	key := r.userKey(user.SpotifyID)

	data, err := r.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var existing User
		if err := json.Unmarshal(data, &existing); err != nil {
			return User{}, fmt.Errorf("unmarshal user: %w", err)
		}
		user.ID = existing.ID
		user.CreatedAt = existing.CreatedAt
	case !errors.Is(err, redis.Nil):
		return User{}, fmt.Errorf("get user: %w", err)
	}

	encoded, err := json.Marshal(user)
	if err != nil {
		return User{}, fmt.Errorf("marshal user: %w", err)
	}
	if err := r.client.Set(ctx, key, encoded, 0).Err(); err != nil {
		return User{}, fmt.Errorf("store user: %w", err)
	}
	return user, nil
}

func (r *RedisRepository) SaveSession(ctx context.Context, record SessionRecord) error {
	ttl := record.ExpiresAt.Sub(r.now())
	if ttl <= 0 {
		return r.DeleteSession(ctx, record.ID)
	}

	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	if err := r.client.Set(ctx, r.sessionKey(record.ID), data, ttl).Err(); err != nil {
		return fmt.Errorf("store session: %w", err)
	}
	return nil
}

func (r *RedisRepository) FindSession(ctx context.Context, id uuid.UUID) (*SessionRecord, error) {
	data, err := r.client.Get(ctx, r.sessionKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("get session: %w", err)
	}

	var record SessionRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("unmarshal session: %w", err)
	}
	return &record, nil
}

func (r *RedisRepository) DeleteSession(ctx context.Context, id uuid.UUID) error {
	return r.client.Del(ctx, r.sessionKey(id)).Err()
}

// DeleteExpiredSessions is a no-op: Redis expires session keys itself.
func (r *RedisRepository) DeleteExpiredSessions(context.Context, time.Time) (int64, error) {
	return 0, nil
}
