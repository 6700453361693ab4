package data

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/univora/sharebox-backend/internal/retrieval/biz"
)

const (
	pendingKeyPrefix  = "pw_pending:"
	verifiedKeyPrefix = "pw_verified:"

	// pendingTTL bounds how long a password challenge stays answerable.
	pendingTTL = 10 * time.Minute
	// verifiedTTL is the lifetime of one proven session per link.
	verifiedTTL = time.Hour
)

// RedisSessionRepo keeps password-challenge state in Redis so it expires
// on its own and survives process restarts.
type RedisSessionRepo struct {
	client *redis.Client
}

func NewRedisSessionRepo(client *redis.Client) biz.SessionRepo {
	return &RedisSessionRepo{client: client}
}

func pendingKey(requesterID int64) string {
	return fmt.Sprintf("%s%d", pendingKeyPrefix, requesterID)
}

func verifiedKey(requesterID int64, linkID string) string {
	return fmt.Sprintf("%s%d:%s", verifiedKeyPrefix, requesterID, linkID)
}

func (r *RedisSessionRepo) SetPending(ctx context.Context, requesterID int64, linkID string) error {
	return r.client.Set(ctx, pendingKey(requesterID), linkID, pendingTTL).Err()
}

func (r *RedisSessionRepo) GetPending(ctx context.Context, requesterID int64) (string, error) {
	linkID, err := r.client.Get(ctx, pendingKey(requesterID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	return linkID, err
}

func (r *RedisSessionRepo) ClearPending(ctx context.Context, requesterID int64) error {
	return r.client.Del(ctx, pendingKey(requesterID)).Err()
}

func (r *RedisSessionRepo) MarkVerified(ctx context.Context, requesterID int64, linkID string) error {
	return r.client.Set(ctx, verifiedKey(requesterID, linkID), "1", verifiedTTL).Err()
}

func (r *RedisSessionRepo) IsVerified(ctx context.Context, requesterID int64, linkID string) (bool, error) {
	n, err := r.client.Exists(ctx, verifiedKey(requesterID, linkID)).Result()
	return n > 0, err
}
