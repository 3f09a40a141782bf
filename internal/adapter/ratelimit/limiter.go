package ratelimit

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Config holds configuration for the rate limiter.
type Config struct {
	RequestsPerSecond float64
	Burst             int
	Enabled           bool
}

// tokenBucket refills at ARGV[1] tokens/s up to ARGV[2] and takes ARGV[4]
// tokens at time ARGV[3]. State is {last_refill, tokens}.
var tokenBucket = redis.NewScript(`
local key = KEYS[1]
local rate = tonumber(ARGV[1])
local capacity = tonumber(ARGV[2])
local now = tonumber(ARGV[3])
local requested = tonumber(ARGV[4])
local ttl = tonumber(ARGV[5])

local bucket = redis.call('HMGET', key, 'last_refill', 'tokens')
local last_refill = tonumber(bucket[1]) or now
local tokens = tonumber(bucket[2]) or capacity

local elapsed = math.max(0, now - last_refill)
tokens = math.min(capacity, tokens + elapsed * rate)

local allowed = 0
if tokens >= requested then
	tokens = tokens - requested
	allowed = 1
end

redis.call('HMSET', key, 'last_refill', tostring(now), 'tokens', tostring(tokens))
redis.call('EXPIRE', key, ttl)
return allowed
`)

// Limiter is a Redis-backed token bucket shared by every process using the
// same Redis.
type Limiter struct {
	client redis.Scripter
	config Config
	now    func() time.Time
	log    *zap.Logger
}

// New creates a token bucket limiter.
func New(client redis.Scripter, config Config, log *zap.Logger) *Limiter {
	return &Limiter{
		client: client,
		config: config,
		now:    time.Now,
		log:    log,
	}
}

// WithClock replaces the time source.
func (l *Limiter) WithClock(now func() time.Time) *Limiter {
	l.now = now
	return l
}

// Enabled reports whether requests are limited at all.
func (l *Limiter) Enabled() bool {
	return l != nil && l.config.Enabled && l.config.RequestsPerSecond > 0
}

// Config returns the limiter settings.
func (l *Limiter) Config() Config {
	return l.config
}

// Allow takes one token from the bucket named key.
func (l *Limiter) Allow(ctx context.Context, key string) (bool, error) {
	if !l.Enabled() {
		return true, nil
	}

	burst := l.config.Burst
	if burst <= 0 {
		burst = int(math.Ceil(l.config.RequestsPerSecond))
	}
	// Keep idle buckets until they would be full again.
	ttl := int(math.Ceil(float64(burst)/l.config.RequestsPerSecond)) + 1

	now := float64(l.now().UnixNano()) / float64(time.Second)

	allowed, err := tokenBucket.Run(ctx, l.client, []string{"ratelimit:tb:" + key},
		l.config.RequestsPerSecond,
		burst,
		now,
		1,
		ttl,
	).Int64()
	if err != nil {
		return false, fmt.Errorf("rate limit script: %w", err)
	}

	if allowed == 0 {
		l.log.Debug("rate limit exceeded", zap.String("key", key))
	}
	return allowed == 1, nil
}
