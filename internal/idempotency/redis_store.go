package idempotency

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"product-import-service/internal/models"
)

const defaultKeyPrefix = "product-import:idempotency:"

// releaseScript deletes a reservation only while it still holds the caller's token
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisStore shares results between service instances. Expiry is delegated
// to the Redis key TTL.
type RedisStore struct {
	client    *redis.Client
	keyPrefix string
}

// NewRedisStore connects to the Redis server at redisURL
func NewRedisStore(redisURL string) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return NewRedisStoreWithClient(client, ""), nil
}

// NewRedisStoreWithClient creates a store on an existing client
func NewRedisStoreWithClient(client *redis.Client, keyPrefix string) *RedisStore {
	if keyPrefix == "" {
		keyPrefix = defaultKeyPrefix
	}
	return &RedisStore{client: client, keyPrefix: keyPrefix}
}

func (s *RedisStore) Get(ctx context.Context, key string) (*models.ImportResult, bool, error) {
	data, err := s.client.Get(ctx, s.keyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read idempotency entry: %w", err)
	}

	var result models.ImportResult
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, false, fmt.Errorf("failed to decode idempotency entry: %w", err)
	}
	result.Metadata.Duration = time.Duration(result.Metadata.DurationMs) * time.Millisecond
	return &result, true, nil
}

func (s *RedisStore) Set(ctx context.Context, key string, result *models.ImportResult, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to encode idempotency entry: %w", err)
	}
	if err := s.client.Set(ctx, s.keyPrefix+key, data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to write idempotency entry: %w", err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, key string) error {
	return s.client.Del(ctx, s.keyPrefix+key).Err()
}

// Reserve uses SET NX so only one instance computes a key at a time
func (s *RedisStore) Reserve(ctx context.Context, key, token string, lease time.Duration) (bool, error) {
	if lease <= 0 {
		lease = DefaultLease
	}
	ok, err := s.client.SetNX(ctx, s.lockKey(key), token, lease).Result()
	if err != nil {
		return false, fmt.Errorf("failed to reserve idempotency key: %w", err)
	}
	return ok, nil
}

func (s *RedisStore) Release(ctx context.Context, key, token string) error {
	if err := releaseScript.Run(ctx, s.client, []string{s.lockKey(key)}, token).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("failed to release idempotency key: %w", err)
	}
	return nil
}

func (s *RedisStore) lockKey(key string) string {
	return s.keyPrefix + "lock:" + key
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

var _ Store = (*RedisStore)(nil)
