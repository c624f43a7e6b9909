package idempotency

import (
	"context"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// maxRecordTTL is the longest TTL a healthy record can carry.
const maxRecordTTL = 25 * time.Hour

// Cleaner removes records that lost their TTL and purges the in-memory store.
type Cleaner struct {
	client   *redis.Client
	memory   *MemoryStore
	log      *slog.Logger
	interval time.Duration
}

// NewCleaner constructs a Cleaner. Either store may be nil.
func NewCleaner(client *redis.Client, memory *MemoryStore, log *slog.Logger, interval time.Duration) *Cleaner {
	if log == nil {
		log = slog.Default()
	}

	return &Cleaner{
		client:   client,
		memory:   memory,
		log:      log,
		interval: interval,
	}
}

// Run sweeps on every tick until ctx is done.
func (c *Cleaner) Run(ctx context.Context) {
	if c == nil || c.interval <= 0 {
		return
	}

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.Sweep(ctx)
		}
	}
}

// Sweep runs one pass and returns how many entries were removed.
func (c *Cleaner) Sweep(ctx context.Context) int {
	removed := 0
	if c.memory != nil {
		removed += c.memory.Purge()
	}
	if c.client == nil {
		return removed
	}

	var (
		cursor uint64
		err    error
	)

	for {
		var keys []string
		keys, cursor, err = c.client.Scan(ctx, cursor, KeyPrefix+"*", 100).Result()
		if err != nil {
			c.log.Error("idempotency cleaner scan failed", slog.Any("error", err))
			return removed
		}

		for _, key := range keys {
			ttl, err := c.client.TTL(ctx, key).Result()
			if err != nil {
				c.log.Warn("failed to get key ttl", slog.String("key", key), slog.Any("error", err))
				continue
			}

			if ttl < 0 || ttl > maxRecordTTL {
				if err := c.client.Del(ctx, key).Err(); err != nil {
					c.log.Warn("failed to delete stale idempotency key", slog.String("key", key), slog.Any("error", err))
					continue
				}
				removed++
			}
		}

		if cursor == 0 {
			break
		}
	}

	return removed
}
