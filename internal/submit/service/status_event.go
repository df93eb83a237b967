package service

import (
	"context"
	"fmt"

	"contestjudge/internal/common/mq"
	judgemodel "contestjudge/internal/judge/model"
	judgerepo "contestjudge/internal/judge/repository"
	appErr "contestjudge/pkg/errors"
	"contestjudge/pkg/utils/logger"

	"go.uber.org/zap"
)

// FinalStatusHandler handles final status events for post-processing.
type FinalStatusHandler interface {
	HandleFinalStatus(ctx context.Context, event judgemodel.StatusEvent) error
}

// HandleFinalStatusMessage processes final status messages from MQ. The
// terminal row is already committed by the judge; handlers only react to it.
func (s *SubmitService) HandleFinalStatusMessage(ctx context.Context, msg *mq.Message) error {
	event, err := judgerepo.DecodeStatusEvent(msg)
	if err != nil {
		return err
	}
	if event.Type != judgemodel.StatusEventFinal {
		return appErr.New(appErr.InvalidParams).WithMessage("status event type is invalid")
	}
	if event.SubmissionID == "" {
		return appErr.ValidationError("submissionId", "required")
	}
	logger.Debug(ctx, "final status received",
		zap.String("submission_id", event.SubmissionID),
		zap.String("status", string(event.Status)),
	)
	for _, handler := range s.finalStatusHandlers {
		if handler == nil {
			continue
		}
		if err := handler.HandleFinalStatus(ctx, event); err != nil {
			return fmt.Errorf("handle final status failed: %w", err)
		}
	}
	return nil
}
