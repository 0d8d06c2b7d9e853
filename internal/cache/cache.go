package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/go-redis/redis/v8"
)

// Key prefix for cached API responses.
const responsePrefix = "response:"

// Read-path TTLs for the referral endpoints.
const (
	ReferralCodeByEmailTTL = 10 * time.Second
	ReferredUsersTTL       = 60 * time.Second
)

// invalidateTimeout bounds how long a mutation waits on cache eviction.
// Invalidation is best-effort; a slow or unreachable Redis must not block
// the response.
const invalidateTimeout = 250 * time.Millisecond

// ReferralCodeByEmailKey is the cache key for the code-by-email lookup.
// The read handler and the mutation-triggered invalidation both derive
// keys from here so the two cannot drift apart.
func ReferralCodeByEmailKey(email string) string {
	return fmt.Sprintf("%sreferrals:email:%s:code", responsePrefix, email)
}

// ReferredUsersKey is the cache key for the referred-users listing.
func ReferredUsersKey(refererID uint) string {
	return fmt.Sprintf("%sreferrals:referer:%d", responsePrefix, refererID)
}

// ResponseCache is a Redis-backed TTL cache for read-heavy API responses.
type ResponseCache struct {
	client *redis.Client
}

// NewResponseCache creates a response cache on the given Redis client.
func NewResponseCache(client *redis.Client) *ResponseCache {
	return &ResponseCache{client: client}
}

// GetJSON loads the cached value for key into dest. The second return is
// false on a miss. Backend errors are treated as misses so a degraded
// Redis only costs latency, never availability.
func (c *ResponseCache) GetJSON(ctx context.Context, key string, dest interface{}) (bool, error) {
	data, err := c.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		log.Printf("cache: get %s: %v", key, err)
		return false, nil
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return false, fmt.Errorf("failed to unmarshal cached value for %s: %w", key, err)
	}
	return true, nil
}

// SetJSON stores value under key with the given TTL.
func (c *ResponseCache) SetJSON(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal value for %s: %w", key, err)
	}
	if err := c.client.Set(ctx, key, data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to cache %s: %w", key, err)
	}
	return nil
}

// Invalidate evicts the given keys. It is issued synchronously so new
// readers after the mutation see fresh data, but it is bounded by a short
// timeout and never fails the caller.
func (c *ResponseCache) Invalidate(ctx context.Context, keys ...string) {
	if len(keys) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, invalidateTimeout)
	defer cancel()

	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		log.Printf("cache: invalidate %v: %v", keys, err)
	}
}
