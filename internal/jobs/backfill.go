package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	domain "user-records-service/internal/domain/user"
)

// UserLister lists every stored user.
type UserLister interface {
	List(ctx context.Context) ([]domain.User, error)
}

// Enqueuer accepts ids for enrichment without blocking.
type Enqueuer interface {
	Enqueue(id uuid.UUID) bool
}

// BackfillJob periodically queues users whose notes were never analyzed.
type BackfillJob struct {
	scheduler gocron.Scheduler
	users     UserLister
	queue     Enqueuer
	interval  time.Duration
	log       *zap.Logger
}

// NewBackfillJob registers the job on its own scheduler. Nothing runs until
// Start.
func NewBackfillJob(users UserLister, queue Enqueuer, interval time.Duration, log *zap.Logger) (*BackfillJob, error) {
	if interval <= 0 {
		return nil, fmt.Errorf("backfill interval must be positive, got %s", interval)
	}

	scheduler, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("create scheduler: %w", err)
	}

	b := &BackfillJob{
		scheduler: scheduler,
		users:     users,
		queue:     queue,
		interval:  interval,
		log:       log,
	}

	_, err = scheduler.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(b.run),
		gocron.WithName("enrichment-backfill"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		_ = scheduler.Shutdown()
		return nil, fmt.Errorf("register backfill job: %w", err)
	}

	return b, nil
}

// Start begins running the job every interval.
func (b *BackfillJob) Start() {
	b.log.Info("starting enrichment backfill", zap.Duration("interval", b.interval))
	b.scheduler.Start()
}

// Stop waits for a running pass and stops the scheduler.
func (b *BackfillJob) Stop() error {
	b.log.Info("stopping enrichment backfill")
	return b.scheduler.Shutdown()
}

// RunOnce queues every user that has notes but no analysis and returns how
// many were accepted.
func (b *BackfillJob) RunOnce(ctx context.Context) (int, error) {
	users, err := b.users.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("list users: %w", err)
	}

	queued, skipped := 0, 0
	for _, u := range users {
		if !u.HasNotes() || u.IsAnalyzed() {
			continue
		}
		if b.queue.Enqueue(u.ID) {
			queued++
		} else {
			skipped++
		}
	}

	if queued > 0 || skipped > 0 {
		b.log.Info("backfill pass finished", zap.Int("queued", queued), zap.Int("skipped", skipped))
	}
	return queued, nil
}

func (b *BackfillJob) run() {
	ctx, cancel := context.WithTimeout(context.Background(), b.interval)
	defer cancel()

	if _, err := b.RunOnce(ctx); err != nil {
		b.log.Error("backfill pass failed", zap.Error(err))
	}
}
