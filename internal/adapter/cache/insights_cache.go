package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	domain "user-records-service/internal/domain/user"
)

// InsightsCache stores analysis results keyed by the analyzed text.
type InsightsCache interface {
	// Get returns nil, nil on a miss.
	Get(ctx context.Context, text string) (*domain.Insights, error)
	Set(ctx context.Context, text string, in *domain.Insights) error
	Delete(ctx context.Context, text string) error
}

// RedisInsightsCache implements InsightsCache using Redis as the backing store.
type RedisInsightsCache struct {
	client redis.UniversalClient
	ttl    time.Duration
	log    *zap.Logger
}

// NewRedisInsightsCache creates a new Redis-backed insights cache.
func NewRedisInsightsCache(client redis.UniversalClient, ttl time.Duration, log *zap.Logger) *RedisInsightsCache {
	return &RedisInsightsCache{
		client: client,
		ttl:    ttl,
		log:    log,
	}
}

// TextKey returns the hex SHA-256 of text. It identifies a text without
// storing it.
func TextKey(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

func (c *RedisInsightsCache) cacheKey(text string) string {
	return "insights:" + TextKey(text)
}

// Get retrieves insights from Redis.
func (c *RedisInsightsCache) Get(ctx context.Context, text string) (*domain.Insights, error) {
	key := c.cacheKey(text)

	data, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		c.log.Debug("insights cache miss", zap.String("key", key))
		return nil, nil
	}
	if err != nil {
		c.log.Error("failed to get insights from cache", zap.String("key", key), zap.Error(err))
		return nil, err
	}

	var in domain.Insights
	if err := json.Unmarshal(data, &in); err != nil {
		c.log.Warn("dropping undecodable cache entry", zap.String("key", key), zap.Error(err))
		_ = c.client.Del(ctx, key).Err()
		return nil, nil
	}

	c.log.Debug("insights cache hit", zap.String("key", key))
	return &in, nil
}

// Set stores insights with the configured TTL.
func (c *RedisInsightsCache) Set(ctx context.Context, text string, in *domain.Insights) error {
	if in == nil {
		return fmt.Errorf("cannot cache nil insights")
	}
	key := c.cacheKey(text)

	data, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("marshal insights: %w", err)
	}

	if err := c.client.Set(ctx, key, data, c.ttl).Err(); err != nil {
		c.log.Error("failed to set insights cache", zap.String("key", key), zap.Error(err))
		return err
	}

	c.log.Debug("cached insights", zap.String("key", key), zap.Duration("ttl", c.ttl))
	return nil
}

// Delete removes the entry for text.
func (c *RedisInsightsCache) Delete(ctx context.Context, text string) error {
	return c.client.Del(ctx, c.cacheKey(text)).Err()
}
