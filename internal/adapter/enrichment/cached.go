package enrichment

import (
	"context"
	"slices"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"user-records-service/internal/adapter/cache"
	domain "user-records-service/internal/domain/user"
	"user-records-service/pkg/logger"
)

// Analyzer produces insights from free text.
type Analyzer interface {
	Analyze(ctx context.Context, text string) (*domain.Insights, error)
}

// CachedAnalyzer deduplicates concurrent calls for the same text and, when a
// cache is set, remembers successful results.
type CachedAnalyzer struct {
	next  Analyzer
	cache cache.InsightsCache
	group singleflight.Group
	log   *zap.Logger
}

// NewCachedAnalyzer wraps next. c may be nil.
func NewCachedAnalyzer(next Analyzer, c cache.InsightsCache, log *zap.Logger) *CachedAnalyzer {
	return &CachedAnalyzer{next: next, cache: c, log: log}
}

// Analyze returns cached insights for text or calls the wrapped Analyzer.
// Cache errors are logged and otherwise ignored.
func (a *CachedAnalyzer) Analyze(ctx context.Context, text string) (*domain.Insights, error) {
	log := logger.WithContext(ctx, a.log)

	if a.cache != nil {
		cached, err := a.cache.Get(ctx, text)
		if err != nil {
			log.Warn("insights cache read failed", zap.Error(err))
		} else if cached != nil {
			return cached, nil
		}
	}

	ch := a.group.DoChan(cache.TextKey(text), func() (any, error) {
		// Ignores the first caller's cancellation but keeps its deadline.
		callCtx := context.WithoutCancel(ctx)
		if deadline, ok := ctx.Deadline(); ok {
			var cancel context.CancelFunc
			callCtx, cancel = context.WithDeadline(callCtx, deadline)
			defer cancel()
		}

		in, err := a.next.Analyze(callCtx, text)
		if err != nil {
			return nil, err
		}
		if a.cache != nil {
			if err := a.cache.Set(callCtx, text, in); err != nil {
				log.Warn("insights cache write failed", zap.Error(err))
			}
		}
		return in, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return cloneInsights(res.Val.(*domain.Insights)), nil
	}
}

func cloneInsights(in *domain.Insights) *domain.Insights {
	out := *in
	out.Tags = slices.Clone(in.Tags)
	if in.EngagementLevel != nil {
		out.EngagementLevel = in.EngagementLevel.Ptr()
	}
	return &out
}
