package idempotency

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// KeyPrefix namespaces idempotency keys in Redis.
const KeyPrefix = "ledger:idempotency:"

const (
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
)

// Record is one stored outcome.
type Record struct {
	Status   string `json:"status"`
	Response []byte `json:"response,omitempty"`
}

// Store persists records and per-key locks.
type Store interface {
	Lock(ctx context.Context, key string, lockTTL time.Duration) (bool, error)
	Get(ctx context.Context, key string) (*Record, error)
	Set(ctx context.Context, key string, record *Record, ttl time.Duration) error
	ReleaseLock(ctx context.Context, key string) error
}

// releaseOwned deletes the lock only while it still carries our token, so a lock that
// expired and was taken by another replica is left alone.
var releaseOwned = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
	return redis.call('DEL', KEYS[1])
end
return 0
`)

// RedisStore keeps JSON records under KeyPrefix and token-owned locks next to them.
type RedisStore struct {
	client *redis.Client
	log    *slog.Logger

	mu     sync.Mutex
	tokens map[string]string
}

var _ Store = (*RedisStore)(nil)

// NewRedisStore creates a Redis-backed Store.
func NewRedisStore(client *redis.Client, log *slog.Logger) *RedisStore {
	if log == nil {
		log = slog.Default()
	}

	return &RedisStore{
		client: client,
		log:    log,
		tokens: make(map[string]string),
	}
}

func (s *RedisStore) Lock(ctx context.Context, key string, lockTTL time.Duration) (bool, error) {
	token := uuid.NewString()
	acquired, err := s.client.SetNX(ctx, lockKey(key), token, lockTTL).Result()
	if err != nil {
		s.log.Error("failed to acquire idempotency lock", slog.String("key", key), slog.Any("error", err))
		return false, err
	}
	if acquired {
		s.mu.Lock()
		s.tokens[key] = token
		s.mu.Unlock()
	}

	return acquired, nil
}

func (s *RedisStore) Get(ctx context.Context, key string) (*Record, error) {
	raw, err := s.client.Get(ctx, recordKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		s.log.Error("failed to fetch idempotency record", slog.String("key", key), slog.Any("error", err))
		return nil, err
	}

	var record Record
	if err := json.Unmarshal(raw, &record); err != nil {
		return nil, fmt.Errorf("decode idempotency record %s: %w", key, err)
	}
	return &record, nil
}

func (s *RedisStore) Set(ctx context.Context, key string, record *Record, ttl time.Duration) error {
	if record == nil {
		return nil
	}

	raw, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("encode idempotency record %s: %w", key, err)
	}

	if err := s.client.Set(ctx, recordKey(key), raw, ttl).Err(); err != nil {
		s.log.Error("failed to store idempotency record", slog.String("key", key), slog.Any("error", err))
		return err
	}
	return nil
}

func (s *RedisStore) ReleaseLock(ctx context.Context, key string) error {
	s.mu.Lock()
	token, ok := s.tokens[key]
	delete(s.tokens, key)
	s.mu.Unlock()
	if !ok {
		return nil
	}

	if err := releaseOwned.Run(ctx, s.client, []string{lockKey(key)}, token).Err(); err != nil {
		s.log.Error("failed to release idempotency lock", slog.String("key", key), slog.Any("error", err))
		return err
	}
	return nil
}

func recordKey(key string) string {
	return KeyPrefix + key
}

func lockKey(key string) string {
	return KeyPrefix + key + ":lock"
}
