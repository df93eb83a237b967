package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"contestjudge/internal/common/cache"
	contestmodel "contestjudge/internal/contest/model"
	judgemodel "contestjudge/internal/judge/model"
	submitmodel "contestjudge/internal/submit/model"
	appErr "contestjudge/pkg/errors"
	"contestjudge/pkg/utils/logger"
)

const (
	leaderboardKeyPrefix    = "leaderboard:"
	leaderboardGenKeyPrefix = "leaderboard:gen:"
	defaultCacheTTL         = 30 * time.Second
)

// ContestSource resolves a contest with its problems.
type ContestSource interface {
	GetContest(ctx context.Context, contestID string) (contestmodel.Contest, error)
}

// TerminalLister lists the terminal submissions of a contest.
type TerminalLister interface {
	ListTerminalByContest(ctx context.Context, contestID string) ([]submitmodel.Submission, error)
}

// Config holds leaderboard dependencies.
type Config struct {
	Contests    ContestSource
	Submissions TerminalLister
	Cache       cache.Cache
	CacheTTL    time.Duration
}

// Service serves cached leaderboard snapshots.
type Service struct {
	contests    ContestSource
	submissions TerminalLister
	cache       cache.Cache
	ttl         time.Duration
	sf          singleflight.Group
}

// NewService creates a leaderboard service.
func NewService(cfg Config) (*Service, error) {
	if cfg.Contests == nil {
		return nil, fmt.Errorf("contest source is required")
	}
	if cfg.Submissions == nil {
		return nil, fmt.Errorf("submission lister is required")
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = defaultCacheTTL
	}
	return &Service{
		contests:    cfg.Contests,
		submissions: cfg.Submissions,
		cache:       cfg.Cache,
		ttl:         cfg.CacheTTL,
	}, nil
}

// Snapshot returns the ranked leaderboard of a contest. Only committed
// terminal rows are read, so it never waits on judging.
func (s *Service) Snapshot(ctx context.Context, contestID string) ([]Entry, error) {
	if contestID == "" {
		return nil, appErr.ValidationError("contestId", "required")
	}
	contest, err := s.contests.GetContest(ctx, contestID)
	if err != nil {
		return nil, err
	}

	// the generation is read before the recompute, so a snapshot computed
	// before an Invalidate lands under a key nobody reads any more
	gen, err := s.generation(ctx, contestID)
	if err != nil {
		return nil, err
	}
	key := leaderboardKeyPrefix + contestID + ":" + gen
	result, err, _ := s.sf.Do(key, func() (interface{}, error) {
		return cache.GetWithCached(
			ctx,
			s.cache,
			key,
			cache.JitterTTL(s.ttl),
			0,
			func([]Entry) bool { return false },
			cache.JSONMarshal[[]Entry],
			cache.JSONUnmarshal[[]Entry],
			func(ctx context.Context) ([]Entry, error) {
				return s.recompute(ctx, contest)
			},
		)
	})
	if err != nil {
		return nil, err
	}
	entries := result.([]Entry)
	if entries == nil {
		entries = []Entry{}
	}
	return entries, nil
}

// Invalidate moves the contest to a new cache generation. Snapshots of older
// generations are never served again and expire on their TTL.
func (s *Service) Invalidate(ctx context.Context, contestID string) error {
	if s.cache == nil || contestID == "" {
		return nil
	}
	if _, err := s.cache.Incr(ctx, leaderboardGenKeyPrefix+contestID); err != nil {
		return appErr.Wrapf(err, appErr.CacheError, "invalidate leaderboard failed")
	}
	return nil
}

func (s *Service) generation(ctx context.Context, contestID string) (string, error) {
	if s.cache == nil {
		return "0", nil
	}
	gen, err := s.cache.Get(ctx, leaderboardGenKeyPrefix+contestID)
	if err != nil {
		return "", appErr.Wrapf(err, appErr.CacheError, "read leaderboard generation failed")
	}
	if gen == "" {
		return "0", nil
	}
	return gen, nil
}

// HandleFinalStatus invalidates the snapshot when a submission is accepted.
// Other verdicts cannot change any score.
func (s *Service) HandleFinalStatus(ctx context.Context, event judgemodel.StatusEvent) error {
	if event.Status != judgemodel.StatusAccepted {
		return nil
	}
	if err := s.Invalidate(ctx, event.ContestID); err != nil {
		// the TTL bounds staleness
		logger.Warn(ctx, "leaderboard invalidate failed",
			zap.String("contest_id", event.ContestID), zap.Error(err))
	}
	return nil
}

func (s *Service) recompute(ctx context.Context, contest contestmodel.Contest) ([]Entry, error) {
	subs, err := s.submissions.ListTerminalByContest(ctx, contest.ID)
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.LeaderboardUnavailable, "load contest submissions failed")
	}
	entries := Compute(contest.Problems, subs)
	logger.Debug(ctx, "leaderboard recomputed",
		zap.String("contest_id", contest.ID), zap.Int("entries", len(entries)))
	return entries, nil
}
