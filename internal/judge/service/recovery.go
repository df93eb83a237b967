package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"contestjudge/internal/judge/model"
	submitmodel "contestjudge/internal/submit/model"
	"contestjudge/pkg/utils/logger"
)

const (
	defaultSweepInterval   = 30 * time.Second
	defaultStaleAfter      = 2 * time.Minute
	defaultSweepBatch      = 100
	defaultRequeueCooldown = 10 * time.Minute
	requeueMarkPrefix      = "judge:requeue:"
)

// StaleLister finds non-terminal submissions not touched since before.
type StaleLister interface {
	ListStale(ctx context.Context, before time.Time, limit int) ([]submitmodel.Submission, error)
}

// TaskEnqueuer publishes judge tasks.
type TaskEnqueuer interface {
	Publish(ctx context.Context, task model.JudgeTask) error
}

// RequeueMarker records that a submission was re-enqueued. SetNX reports
// false while an earlier mark is still alive.
type RequeueMarker interface {
	SetNX(ctx context.Context, key string, value interface{}, ttl time.Duration) (bool, error)
}

// Recovery re-enqueues submissions stuck in PENDING or RUNNING, e.g. after a
// lost publish or a crashed worker. Duplicates are absorbed by the judge lock
// and the conditional status updates.
type Recovery struct {
	store      StaleLister
	tasks      TaskEnqueuer
	marks      RequeueMarker
	interval   time.Duration
	staleAfter time.Duration
	cooldown   time.Duration
	batch      int
	now        func() time.Time
}

// RecoveryConfig configures the sweeper.
//
// StaleAfter should exceed the time a task normally waits in the queue;
// Cooldown bounds how often one submission is re-enqueued while it is still
// waiting behind a backlog. Without Marks every sweep re-enqueues.
type RecoveryConfig struct {
	Store      StaleLister
	Tasks      TaskEnqueuer
	Marks      RequeueMarker
	Interval   time.Duration
	StaleAfter time.Duration
	Cooldown   time.Duration
	Batch      int
	Now        func() time.Time
}

// NewRecovery creates a sweeper.
func NewRecovery(cfg RecoveryConfig) (*Recovery, error) {
	if cfg.Store == nil || cfg.Tasks == nil {
		return nil, fmt.Errorf("recovery store and task publisher are required")
	}
	if cfg.Interval <= 0 {
		cfg.Interval = defaultSweepInterval
	}
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = defaultStaleAfter
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = defaultRequeueCooldown
	}
	if cfg.Batch <= 0 {
		cfg.Batch = defaultSweepBatch
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Recovery{
		store:      cfg.Store,
		tasks:      cfg.Tasks,
		marks:      cfg.Marks,
		interval:   cfg.Interval,
		staleAfter: cfg.StaleAfter,
		cooldown:   cfg.Cooldown,
		batch:      cfg.Batch,
		now:        cfg.Now,
	}, nil
}

// Sweep re-enqueues one batch of stale submissions and returns how many
// tasks were published.
func (r *Recovery) Sweep(ctx context.Context) (int, error) {
	stale, err := r.store.ListStale(ctx, r.now().Add(-r.staleAfter), r.batch)
	if err != nil {
		return 0, err
	}
	published := 0
	for _, sub := range stale {
		if !r.claim(ctx, sub.ID) {
			continue
		}
		task := model.JudgeTask{SubmissionID: sub.ID, Source: model.TaskSourceRecovery}
		if err := r.tasks.Publish(ctx, task); err != nil {
			logger.Warn(ctx, "re-enqueue stale submission failed", zap.String("submission_id", sub.ID), zap.Error(err))
			continue
		}
		published++
	}
	if published > 0 {
		logger.Info(ctx, "re-enqueued stale submissions", zap.Int("count", published))
	}
	return published, nil
}

// claim reports whether sub may be re-enqueued now. A failing marker store
// never blocks recovery.
func (r *Recovery) claim(ctx context.Context, submissionID string) bool {
	if r.marks == nil {
		return true
	}
	ok, err := r.marks.SetNX(ctx, requeueMarkPrefix+submissionID, r.now().Unix(), r.cooldown)
	if err != nil {
		logger.Warn(ctx, "requeue mark failed", zap.String("submission_id", submissionID), zap.Error(err))
		return true
	}
	return ok
}

// Run sweeps once immediately and then on every interval until ctx is done.
func (r *Recovery) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		if _, err := r.Sweep(ctx); err != nil && ctx.Err() == nil {
			logger.Warn(ctx, "recovery sweep failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
