// Package service serves the contest catalog to the HTTP layer, intake and
// the judge.
package service

import (
	"context"
	"fmt"
	"time"

	"contestjudge/internal/contest/model"
	"contestjudge/internal/contest/repository"
	appErr "contestjudge/pkg/errors"
)

// ContestService reads contests and problems.
type ContestService struct {
	repo    repository.ContestRepository
	timeout time.Duration
}

// NewContestService creates a contest service. timeout bounds each
// repository call; zero disables it.
func NewContestService(repo repository.ContestRepository, timeout time.Duration) (*ContestService, error) {
	if repo == nil {
		return nil, fmt.Errorf("contest repository is required")
	}
	return &ContestService{repo: repo, timeout: timeout}, nil
}

// GetContest returns the full contest including hidden test cases.
func (s *ContestService) GetContest(ctx context.Context, contestID string) (model.Contest, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	return s.repo.GetContest(ctx, contestID)
}

// GetPublicContest returns the contest as shown to contestants.
func (s *ContestService) GetPublicContest(ctx context.Context, contestID string) (model.ContestView, error) {
	contest, err := s.GetContest(ctx, contestID)
	if err != nil {
		return model.ContestView{}, err
	}
	return contest.PublicView(), nil
}

// GetProblemForContest resolves a problem and checks that it belongs to the
// contest.
func (s *ContestService) GetProblemForContest(ctx context.Context, contestID, problemID string) (model.Contest, model.Problem, error) {
	contest, err := s.GetContest(ctx, contestID)
	if err != nil {
		return model.Contest{}, model.Problem{}, err
	}
	problem, ok := contest.Problem(problemID)
	if !ok {
		return model.Contest{}, model.Problem{}, appErr.New(appErr.ProblemNotInContest).
			WithDetail("contestId", contestID).
			WithDetail("problemId", problemID)
	}
	return contest, problem, nil
}

// GetProblem returns a problem with every test case in judging order.
func (s *ContestService) GetProblem(ctx context.Context, problemID string) (model.Problem, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	return s.repo.GetProblem(ctx, problemID)
}

func (s *ContestService) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.timeout)
}
