package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultUnlockTTL = 12 * time.Hour

// RedisStore keeps unlocks in Redis with a TTL so they survive restarts
// and are shared between API instances.
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisStore connects to redisURL and checks the connection.
func NewRedisStore(redisURL string, ttl time.Duration) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return NewRedisStoreWithClient(client, ttl), nil
}

func NewRedisStoreWithClient(client *redis.Client, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = defaultUnlockTTL
	}
	return &RedisStore{
		client: client,
		prefix: "unlock:",
		ttl:    ttl,
	}
}

func (s *RedisStore) key(viewer, scriptID string) string {
	return s.prefix + unlockKey(viewer, scriptID)
}

func (s *RedisStore) Unlock(ctx context.Context, viewer string, unlock Unlock) error {
	if unlock.UnlockedAt.IsZero() {
		unlock.UnlockedAt = time.Now().UTC()
	}
	data, err := json.Marshal(unlock)
	if err != nil {
		return fmt.Errorf("marshal unlock: %w", err)
	}
	if err := s.client.Set(ctx, s.key(viewer, unlock.ScriptID), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("save unlock: %w", err)
	}
	return nil
}

func (s *RedisStore) IsUnlocked(ctx context.Context, viewer, scriptID string) (bool, error) {
	raw, err := s.client.Get(ctx, s.key(viewer, scriptID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("lookup unlock: %w", err)
	}
	var unlock Unlock
	if err := json.Unmarshal(raw, &unlock); err != nil {
		return false, fmt.Errorf("unmarshal unlock: %w", err)
	}
	return unlock.ScriptID == scriptID, nil
}

func (s *RedisStore) Revoke(ctx context.Context, viewer, scriptID string) error {
	if err := s.client.Del(ctx, s.key(viewer, scriptID)).Err(); err != nil {
		return fmt.Errorf("revoke unlock: %w", err)
	}
	return nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
