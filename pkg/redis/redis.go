package redis

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	defaultDialTimeout = 5 * time.Second
	defaultIOTimeout   = 3 * time.Second
)

// Config holds Redis connection settings. Zero timeouts use the defaults.
type Config struct {
	Host        string
	Port        string
	Password    string
	DB          int
	MaxRetries  int
	PoolSize    int
	MinIdleConn int
	DialTimeout time.Duration
	IOTimeout   time.Duration
}

// Addr returns host:port.
func (c Config) Addr() string {
	return net.JoinHostPort(c.Host, c.Port)
}

func (c Config) options() *redis.Options {
	dial := c.DialTimeout
	if dial <= 0 {
		dial = defaultDialTimeout
	}
	ioTimeout := c.IOTimeout
	if ioTimeout <= 0 {
		ioTimeout = defaultIOTimeout
	}
	return &redis.Options{
		Addr:         c.Addr(),
		Password:     c.Password,
		DB:           c.DB,
		MaxRetries:   c.MaxRetries,
		PoolSize:     c.PoolSize,
		MinIdleConns: c.MinIdleConn,
		DialTimeout:  dial,
		ReadTimeout:  ioTimeout,
		WriteTimeout: ioTimeout,
		PoolTimeout:  ioTimeout + time.Second,
	}
}

// Client is the shared connection used by the insights cache and the rate
// limiter.
type Client struct {
	*redis.Client
	log *zap.Logger
}

// NewClient opens a pool and pings it once. The ping is bounded by ctx and
// the dial timeout; on failure the pool is closed.
func NewClient(ctx context.Context, cfg Config, log *zap.Logger) (*Client, error) {
	opts := cfg.options()
	rdb := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(ctx, opts.DialTimeout)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis at %s unreachable: %w", opts.Addr, err)
	}

	log = log.With(zap.String("redis_addr", opts.Addr), zap.Int("redis_db", cfg.DB))
	log.Info("redis ready", zap.Int("pool_size", cfg.PoolSize))

	return &Client{Client: rdb, log: log}, nil
}

// Ping checks if the Redis connection is alive.
func (c *Client) Ping(ctx context.Context) error {
	return c.Client.Ping(ctx).Err()
}

// Close releases the pool and logs its lifetime counters.
func (c *Client) Close() error {
	s := c.PoolStats()
	c.log.Info("closing redis pool",
		zap.Uint32("hits", s.Hits),
		zap.Uint32("misses", s.Misses),
		zap.Uint32("timeouts", s.Timeouts),
		zap.Uint32("total_conns", s.TotalConns),
	)
	return c.Client.Close()
}
