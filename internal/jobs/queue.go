// Package jobs runs background enrichment work outside the request path.
package jobs

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Handler processes one queued user id.
type Handler func(ctx context.Context, id uuid.UUID) error

// QueueConfig sizes the queue.
type QueueConfig struct {
	Size    int
	Workers int
}

// EnrichmentQueue is a bounded, non-blocking work queue of user ids served by
// a fixed pool of workers. An id already waiting in the queue is not queued
// twice.
type EnrichmentQueue struct {
	ch      chan uuid.UUID
	workers int
	pending sync.Map // uuid.UUID -> struct{}
	log     *zap.Logger

	started atomic.Bool
	closed  atomic.Bool
	done    chan struct{}
	wg      sync.WaitGroup
}

// NewEnrichmentQueue creates a queue. Zero values default to 256 slots and 2
// workers.
func NewEnrichmentQueue(cfg QueueConfig, log *zap.Logger) *EnrichmentQueue {
	if cfg.Size <= 0 {
		cfg.Size = 256
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 2
	}
	return &EnrichmentQueue{
		ch:      make(chan uuid.UUID, cfg.Size),
		workers: cfg.Workers,
		log:     log,
		done:    make(chan struct{}),
	}
}

// Enqueue adds id without blocking. It returns false when the queue is full or
// stopped.
func (q *EnrichmentQueue) Enqueue(id uuid.UUID) bool {
	if q.closed.Load() {
		return false
	}
	if _, loaded := q.pending.LoadOrStore(id, struct{}{}); loaded {
		return true
	}

	select {
	case q.ch <- id:
		return true
	default:
		q.pending.Delete(id)
		q.log.Warn("enrichment queue full", zap.String("user_id", id.String()), zap.Int("capacity", cap(q.ch)))
		return false
	}
}

// Len returns the number of waiting ids.
func (q *EnrichmentQueue) Len() int {
	return len(q.ch)
}

// Start launches the workers. Calling it twice is an error.
func (q *EnrichmentQueue) Start(ctx context.Context, h Handler) error {
	if !q.started.CompareAndSwap(false, true) {
		return fmt.Errorf("enrichment queue already started")
	}

	q.log.Info("starting enrichment queue", zap.Int("workers", q.workers), zap.Int("capacity", cap(q.ch)))
	for i := range q.workers {
		q.wg.Add(1)
		go q.run(ctx, i, h)
	}
	return nil
}

// Stop rejects new work and waits for running tasks. Ids still waiting are
// dropped. It is idempotent.
func (q *EnrichmentQueue) Stop() {
	if !q.closed.CompareAndSwap(false, true) {
		return
	}
	close(q.done)
	q.wg.Wait()
	q.log.Info("enrichment queue stopped", zap.Int("dropped", len(q.ch)))
}

func (q *EnrichmentQueue) run(ctx context.Context, worker int, h Handler) {
	defer q.wg.Done()

	for {
		select {
		case <-q.done:
			return
		case <-ctx.Done():
			return
		case id := <-q.ch:
			q.pending.Delete(id)
			q.handle(ctx, worker, id, h)
		}
	}
}

func (q *EnrichmentQueue) handle(ctx context.Context, worker int, id uuid.UUID, h Handler) {
	defer func() {
		if r := recover(); r != nil {
			q.log.Error("enrichment task panicked",
				zap.Int("worker", worker),
				zap.String("user_id", id.String()),
				zap.Any("panic", r),
			)
		}
	}()

	if err := h(ctx, id); err != nil {
		q.log.Warn("enrichment task failed",
			zap.Int("worker", worker),
			zap.String("user_id", id.String()),
			zap.Error(err),
		)
	}
}
