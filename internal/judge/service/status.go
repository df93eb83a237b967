package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"contestjudge/internal/judge/model"
	submitmodel "contestjudge/internal/submit/model"
	"contestjudge/pkg/utils/logger"
)

const defaultStatusTimeout = 3 * time.Second

// commit persists the terminal result exactly once, then refreshes the
// snapshot and publishes the final status event.
func (s *Service) commit(ctx context.Context, sub submitmodel.Submission, terminal model.Terminal) error {
	committed, err := s.submissions.CommitTerminal(ctx, sub.ID, terminal.Result, terminal.FinishedAt)
	if err != nil {
		logger.Error(ctx, "commit terminal status failed", zap.Error(err))
		return err
	}
	if !committed {
		logger.Warn(ctx, "submission already terminal, result discarded", zap.String("status", string(terminal.Status())))
		return nil
	}
	logger.Info(ctx, "submission judged",
		zap.String("status", string(terminal.Status())),
		zap.Int("score", terminal.Result.Score),
	)

	s.saveStatus(ctx, model.TerminalSnapshot(sub.ID, sub.SubmittedAt, terminal.Result))
	if s.events == nil {
		return nil
	}
	event := model.StatusEvent{
		SubmissionID: sub.ID,
		ContestID:    sub.ContestID,
		ProblemID:    sub.ProblemID,
		Username:     sub.Username,
		Status:       terminal.Status(),
		Score:        terminal.Result.Score,
		CreatedAt:    terminal.FinishedAt,
	}
	pubCtx, cancel := s.statusContext(ctx)
	defer cancel()
	if err := s.events.PublishFinalStatus(pubCtx, event); err != nil {
		logger.Warn(ctx, "publish final status event failed", zap.Error(err))
	}
	return nil
}

// saveStatus writes a snapshot. Failures only delay what clients see; the
// database row stays authoritative.
func (s *Service) saveStatus(ctx context.Context, snap model.StatusSnapshot) {
	saveCtx, cancel := s.statusContext(ctx)
	defer cancel()
	if err := s.status.Save(saveCtx, snap); err != nil {
		logger.Warn(ctx, "save status snapshot failed", zap.String("status", string(snap.Status)), zap.Error(err))
	}
}

func (s *Service) statusContext(ctx context.Context) (context.Context, context.CancelFunc) {
	timeout := s.statusTimeout
	if timeout <= 0 {
		timeout = defaultStatusTimeout
	}
	return context.WithTimeout(context.WithoutCancel(ctx), timeout)
}
