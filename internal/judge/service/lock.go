package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"contestjudge/pkg/utils/logger"
)

// keepLock extends the judge lock every third of its TTL until the returned
// stop function is called.
func (s *Service) keepLock(ctx context.Context, submissionID, token string) func() {
	interval := s.lock.TTL() / 3
	if interval <= 0 {
		return func() {}
	}
	done := make(chan struct{})
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				ok, err := s.lock.Extend(ctx, submissionID, token)
				if err != nil {
					logger.Warn(ctx, "extend judge lock failed", zap.Error(err))
					continue
				}
				if !ok {
					logger.Warn(ctx, "judge lock lost while judging")
					return
				}
			}
		}
	}()
	return func() {
		close(done)
		<-stopped
	}
}
