package data

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/univora/sharebox-backend/internal/storage/biz"
)

const draftKeyPrefix = "upload_draft:"

// RedisDraftStore keeps in-progress upload sessions in Redis with a TTL so
// abandoned drafts vanish on their own.
type RedisDraftStore struct {
	client *redis.Client
}

func NewRedisDraftStore(client *redis.Client) biz.DraftStore {
	return &RedisDraftStore{client: client}
}

func draftKey(ownerID int64) string {
	return fmt.Sprintf("%s%d", draftKeyPrefix, ownerID)
}

func (s *RedisDraftStore) Get(ctx context.Context, ownerID int64) (*biz.Draft, error) {
	data, err := s.client.Get(ctx, draftKey(ownerID)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get upload draft: %w", err)
	}

	var d biz.Draft
	if err := json.Unmarshal([]byte(data), &d); err != nil {
		return nil, fmt.Errorf("decode upload draft: %w", err)
	}
	return &d, nil
}

func (s *RedisDraftStore) Save(ctx context.Context, d *biz.Draft, ttl time.Duration) error {
	data, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("encode upload draft: %w", err)
	}
	return s.client.Set(ctx, draftKey(d.OwnerID), data, ttl).Err()
}

func (s *RedisDraftStore) Delete(ctx context.Context, ownerID int64) error {
	return s.client.Del(ctx, draftKey(ownerID)).Err()
}
