package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	contestmodel "contestjudge/internal/contest/model"
	"contestjudge/internal/judge/sandbox"
	"contestjudge/internal/judge/verdict"
	submitmodel "contestjudge/internal/submit/model"
	"contestjudge/pkg/utils/logger"
)

func systemError(totalTests int) verdict.Decision {
	return verdict.SystemError(totalTests)
}

// decide never fails: faults and panics become the generic system error.
func (s *Service) decide(ctx context.Context, sub submitmodel.Submission) (d verdict.Decision) {
	total := 0
	defer func() {
		if r := recover(); r != nil {
			logger.Error(ctx, "judge panic recovered", zap.String("panic", fmt.Sprint(r)), zap.Stack("stack"))
			d = systemError(total)
		}
	}()

	problem, err := s.getProblem(ctx, sub.ProblemID)
	if err != nil {
		logger.Error(ctx, "load problem failed", zap.String("problem_id", sub.ProblemID), zap.Error(err))
		return systemError(0)
	}
	total = len(problem.TestCases)

	outcome, err := s.executeWithRetry(ctx, buildRequest(sub, problem))
	if err != nil {
		logger.Error(ctx, "sandbox failed after retries", zap.Int("retries", s.sandboxRetries), zap.Error(err))
		return systemError(total)
	}
	return verdict.Evaluate(outcome, problem.Points)
}

func buildRequest(sub submitmodel.Submission, problem contestmodel.Problem) sandbox.Request {
	tests := make([]sandbox.TestCase, 0, len(problem.TestCases))
	for _, tc := range problem.TestCases {
		tests = append(tests, sandbox.TestCase{ID: tc.ID, Input: tc.Input, ExpectedOutput: tc.ExpectedOutput})
	}
	timeLimit := problem.TimeLimitMs
	if timeLimit <= 0 {
		timeLimit = contestmodel.DefaultTimeLimitMs
	}
	memoryLimit := problem.MemoryMB
	if memoryLimit <= 0 {
		memoryLimit = contestmodel.DefaultMemoryLimitMB
	}
	return sandbox.Request{
		SubmissionID:  sub.ID,
		Language:      sub.Language,
		Source:        sub.Code,
		Tests:         tests,
		TimeLimitMs:   int64(timeLimit),
		MemoryLimitMB: int64(memoryLimit),
	}
}
