package di

import (
	"context"
	"errors"
	"fmt"

	"user-records-service/cmd/api/infrastructure"
	"user-records-service/internal/adapter/cache"
	"user-records-service/internal/adapter/db/jsonfile"
	"user-records-service/internal/adapter/enrichment"
	ginhandler "user-records-service/internal/adapter/gin/handler"
	"user-records-service/internal/adapter/ratelimit"
	"user-records-service/internal/config"
	"user-records-service/internal/jobs"
	"user-records-service/internal/usecase/user"
	redisclient "user-records-service/pkg/redis"

	"go.uber.org/zap"
)

// Container holds all application dependencies
type Container struct {
	Config      *config.Config
	Logger      *zap.Logger
	Store       *jsonfile.UserRepoJSON
	RedisClient *redisclient.Client
	UserUC      *user.Usecase
	Queue       *jobs.EnrichmentQueue
	Backfill    *jobs.BackfillJob
	RateLimiter *ratelimit.Limiter
	GinHandler  *ginhandler.UserHandler
}

// NewContainer creates and initializes all application dependencies.
// Optional parts (Redis, enrichment, queue, backfill) stay nil when disabled.
func NewContainer(ctx context.Context, cfg *config.Config, l *zap.Logger) (*Container, error) {
	// Validate configuration before initializing any dependencies
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	c := &Container{Config: cfg, Logger: l}

	store, err := infrastructure.NewStore(ctx, cfg, l)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize store: %w", err)
	}
	c.Store = store

	rdb, err := infrastructure.NewRedisClient(ctx, cfg, l)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Redis: %w", err)
	}
	c.RedisClient = rdb

	opts := []user.Option{
		user.WithOptions(user.Options{
			EnrichmentTimeout: cfg.Enrichment.Timeout(),
			ReanalyzeOnUpdate: cfg.Enrichment.ReanalyzeOnUpdate,
		}),
	}

	if cfg.Enrichment.Enabled {
		opts = append(opts, user.WithAnalyzer(c.newAnalyzer()))

		c.Queue = jobs.NewEnrichmentQueue(jobs.QueueConfig{
			Size:    cfg.Enrichment.QueueSize,
			Workers: cfg.Enrichment.Workers,
		}, l)
		opts = append(opts, user.WithReanalysisQueue(c.Queue))
	}

	c.UserUC = user.New(store, l, opts...)

	if c.Queue != nil && cfg.Enrichment.BackfillInterval() > 0 {
		c.Backfill, err = jobs.NewBackfillJob(store, c.Queue, cfg.Enrichment.BackfillInterval(), l)
		if err != nil {
			_ = c.Close()
			return nil, fmt.Errorf("failed to initialize backfill: %w", err)
		}
	}

	if rdb != nil {
		c.RateLimiter = ratelimit.New(rdb.Client, ratelimit.Config{
			RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
			Burst:             cfg.RateLimit.BurstCapacity,
			Enabled:           cfg.RateLimit.Enabled,
		}, l)
	}

	c.GinHandler = ginhandler.NewUserHandler(c.UserUC, l)

	return c, nil
}

func (c *Container) newAnalyzer() *enrichment.CachedAnalyzer {
	client := enrichment.NewClient(enrichment.Config{
		BaseURL:     c.Config.Enrichment.BaseURL,
		AnalyzePath: c.Config.Enrichment.AnalyzePath,
		Timeout:     c.Config.Enrichment.Timeout(),
	}, c.Logger)

	var insights cache.InsightsCache
	if c.RedisClient != nil {
		insights = cache.NewRedisInsightsCache(c.RedisClient.Client, c.Config.Redis.CacheTTL(), c.Logger)
	}

	c.Logger.Info("enrichment enabled",
		zap.String("base_url", c.Config.Enrichment.BaseURL),
		zap.Bool("cache", insights != nil),
	)
	return enrichment.NewCachedAnalyzer(client, insights, c.Logger)
}

// StartWorkers starts the background enrichment workers and the backfill
// schedule. Workers stop when ctx is canceled or on Close.
func (c *Container) StartWorkers(ctx context.Context) error {
	if c.Queue == nil {
		return nil
	}
	if err := c.Queue.Start(ctx, c.UserUC.ReanalyzeUser); err != nil {
		return fmt.Errorf("failed to start enrichment queue: %w", err)
	}
	if c.Backfill != nil {
		c.Backfill.Start()
	}
	return nil
}

// Close stops background work and closes all resources held by the container
func (c *Container) Close() error {
	var errs []error

	if c.Backfill != nil {
		if err := c.Backfill.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("failed to stop backfill: %w", err))
		}
	}

	if c.Queue != nil {
		c.Queue.Stop()
	}

	// Close Redis connection
	if c.RedisClient != nil {
		if err := c.RedisClient.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close Redis: %w", err))
		}
	}

	return errors.Join(errs...)
}
