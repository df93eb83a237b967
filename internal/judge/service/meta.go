package service

import (
	"context"
	"time"

	contestmodel "contestjudge/internal/contest/model"
)

const defaultMetaTTL = 5 * time.Minute

type metaEntry struct {
	problem   contestmodel.Problem
	expiresAt time.Time
}

// getProblem serves problems with test cases from an in-process cache.
// Problems are immutable once a contest is seeded.
func (s *Service) getProblem(ctx context.Context, problemID string) (contestmodel.Problem, error) {
	now := s.now()
	s.metaMu.Lock()
	entry, ok := s.metaCache[problemID]
	s.metaMu.Unlock()
	if ok && now.Before(entry.expiresAt) {
		return entry.problem, nil
	}

	problem, err := s.problems.GetProblem(ctx, problemID)
	if err != nil {
		return contestmodel.Problem{}, err
	}
	ttl := s.metaTTL
	if ttl <= 0 {
		ttl = defaultMetaTTL
	}
	s.metaMu.Lock()
	s.metaCache[problemID] = metaEntry{problem: problem, expiresAt: now.Add(ttl)}
	s.metaMu.Unlock()
	return problem, nil
}
