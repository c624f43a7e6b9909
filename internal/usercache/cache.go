// Package usercache caches user profiles in Redis.
package usercache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Proton-105/workout-ledger/internal/domain"
	"github.com/Proton-105/workout-ledger/pkg/redis"
)

// DefaultTTL applies when no TTL is configured.
const DefaultTTL = 10 * time.Minute

// Cache provides Redis-backed caching for user profiles. A nil Cache is a valid no-op.
type Cache struct {
	client redis.KV
	ttl    time.Duration
}

// NewCache constructs a profile cache backed by the provided Redis client.
func NewCache(client redis.KV, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{client: client, ttl: ttl}
}

// Get fetches a cached profile if it exists.
func (c *Cache) Get(ctx context.Context, userID string) (*domain.Profile, error) {
	if c == nil || c.client == nil {
		return nil, nil
	}

	data, err := c.client.Get(ctx, cacheKey(userID))
	if err != nil {
		if redis.IsNil(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get cached profile: %w", err)
	}

	var profile domain.Profile
	if err := json.Unmarshal([]byte(data), &profile); err != nil {
		return nil, fmt.Errorf("decode cached profile: %w", err)
	}

	return &profile, nil
}

// Set stores the profile for the configured TTL.
func (c *Cache) Set(ctx context.Context, profile *domain.Profile) error {
	if c == nil || c.client == nil || profile == nil {
		return nil
	}

	payload, err := json.Marshal(profile)
	if err != nil {
		return fmt.Errorf("encode profile for cache: %w", err)
	}

	if err := c.client.Set(ctx, cacheKey(profile.User.ID), payload, c.ttl); err != nil {
		return fmt.Errorf("set cached profile: %w", err)
	}

	return nil
}

// Invalidate removes the cached profile entry if it exists.
func (c *Cache) Invalidate(ctx context.Context, userID string) error {
	if c == nil || c.client == nil {
		return nil
	}

	if err := c.client.Delete(ctx, cacheKey(userID)); err != nil {
		return fmt.Errorf("delete cached profile: %w", err)
	}

	return nil
}

func cacheKey(userID string) string {
	return "ledger:profile:" + userID
}
