package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"contestjudge/internal/judge/sandbox"
	"contestjudge/pkg/utils/logger"
)

const (
	defaultRetryBackoff    = 200 * time.Millisecond
	defaultRetryBackoffMax = 2 * time.Second
)

// ComputeBackoff returns the delay before retry number attempt (zero based),
// doubling from base and capped at maxDelay.
func ComputeBackoff(attempt int, base, maxDelay time.Duration) time.Duration {
	if base <= 0 {
		base = defaultRetryBackoff
	}
	if maxDelay <= 0 {
		maxDelay = defaultRetryBackoffMax
	}
	if attempt < 0 {
		attempt = 0
	}
	delay := base
	for i := 0; i < attempt; i++ {
		delay *= 2
		if delay >= maxDelay {
			return maxDelay
		}
	}
	if delay > maxDelay {
		return maxDelay
	}
	return delay
}

// executeWithRetry runs the sandbox and retries sandbox faults up to
// sandboxRetries times. A verdict is never retried.
func (s *Service) executeWithRetry(ctx context.Context, req sandbox.Request) (sandbox.Outcome, error) {
	for attempt := 0; ; attempt++ {
		outcome, err := s.executeOnce(ctx, req)
		if err == nil {
			return outcome, nil
		}
		if attempt >= s.sandboxRetries || ctx.Err() != nil {
			return sandbox.Outcome{}, err
		}
		delay := ComputeBackoff(attempt, s.retryBackoff, s.retryBackoffMax)
		logger.Warn(ctx, "sandbox fault, retrying",
			zap.Int("attempt", attempt+1),
			zap.Duration("backoff", delay),
			zap.Error(err),
		)
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return sandbox.Outcome{}, err
		case <-timer.C:
		}
	}
}

func (s *Service) executeOnce(ctx context.Context, req sandbox.Request) (sandbox.Outcome, error) {
	if s.workerTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.workerTimeout)
		defer cancel()
	}
	return s.executor.Execute(ctx, req)
}
