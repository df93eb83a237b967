package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"contestjudge/internal/common/cache"
	"contestjudge/internal/judge/model"
	appErr "contestjudge/pkg/errors"
)

const (
	statusKeyPrefix  = "judge:status:"
	defaultStatusTTL = 24 * time.Hour
)

// StatusRepository stores submission status snapshots in the cache.
type StatusRepository struct {
	cache cache.Cache
	TTL   time.Duration
}

// NewStatusRepository creates a new repository.
func NewStatusRepository(cacheClient cache.Cache, ttl time.Duration) *StatusRepository {
	if ttl <= 0 {
		ttl = defaultStatusTTL
	}
	return &StatusRepository{cache: cacheClient, TTL: ttl}
}

// Get returns the snapshot of a submission. A missing snapshot is NotFound.
func (r *StatusRepository) Get(ctx context.Context, submissionID string) (model.StatusSnapshot, error) {
	if submissionID == "" {
		return model.StatusSnapshot{}, appErr.ValidationError("submission_id", "required")
	}
	if r.cache == nil {
		return model.StatusSnapshot{}, appErr.New(appErr.CacheError).WithMessage("cache client is not initialized")
	}
	val, _, err := r.cache.GetVersioned(ctx, statusKeyPrefix+submissionID)
	if err != nil {
		return model.StatusSnapshot{}, appErr.Wrapf(err, appErr.CacheError, "read status failed")
	}
	if val == "" {
		return model.StatusSnapshot{}, appErr.New(appErr.NotFound).WithMessage("submission status not found")
	}
	var snap model.StatusSnapshot
	if err := json.Unmarshal([]byte(val), &snap); err != nil {
		return model.StatusSnapshot{}, appErr.Wrapf(err, appErr.CacheError, "decode status failed")
	}
	return snap, nil
}

// Save writes a snapshot unless the stored one is further along the
// lifecycle. The check and the write are a single cache operation, so a late
// RUNNING backfill cannot overwrite a terminal snapshot.
func (r *StatusRepository) Save(ctx context.Context, snap model.StatusSnapshot) error {
	if snap.SubmissionID == "" {
		return appErr.ValidationError("submission_id", "required")
	}
	rank := snap.Status.Rank()
	if rank < 0 {
		return appErr.ValidationError("status", "unknown")
	}
	if r.cache == nil {
		return appErr.New(appErr.CacheError).WithMessage("cache client is not initialized")
	}
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal status failed: %w", err)
	}
	if _, err := r.cache.SetIfNewer(ctx, statusKeyPrefix+snap.SubmissionID, string(data), int64(rank), r.TTL); err != nil {
		return appErr.Wrapf(err, appErr.CacheError, "store status failed")
	}
	return nil
}
