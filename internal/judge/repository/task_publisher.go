package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"contestjudge/internal/common/mq"
	"contestjudge/internal/judge/model"
	appErr "contestjudge/pkg/errors"
)

const taskSourceHeader = "x-task-source"

// TaskPublisher enqueues judge tasks.
type TaskPublisher struct {
	queue      mq.MessageQueue
	topic      string
	maxRetries int
}

// NewTaskPublisher creates a publisher for the judge topic.
func NewTaskPublisher(queue mq.MessageQueue, topic string, maxRetries int) *TaskPublisher {
	return &TaskPublisher{queue: queue, topic: topic, maxRetries: maxRetries}
}

// Publish enqueues task. The message id is the submission id.
func (p *TaskPublisher) Publish(ctx context.Context, task model.JudgeTask) error {
	if p == nil || p.queue == nil {
		return appErr.New(appErr.ServiceUnavailable).WithMessage("judge queue is not configured")
	}
	if task.SubmissionID == "" {
		return appErr.ValidationError("submission_id", "required")
	}
	if task.EnqueuedAt.IsZero() {
		task.EnqueuedAt = time.Now()
	}
	payload, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("marshal judge task failed: %w", err)
	}
	message := mq.NewMessage(payload)
	message.ID = task.SubmissionID
	message.MaxRetries = p.maxRetries
	if task.Source != "" {
		message.SetHeader(taskSourceHeader, task.Source)
	}
	if err := p.queue.Publish(ctx, p.topic, message); err != nil {
		return appErr.Wrapf(err, appErr.QueuePublishFail, "publish judge task failed")
	}
	return nil
}

// DecodeTask parses a judge task message.
func DecodeTask(msg *mq.Message) (model.JudgeTask, error) {
	var task model.JudgeTask
	if msg == nil {
		return task, appErr.New(appErr.InvalidParams).WithMessage("message is nil")
	}
	if err := json.Unmarshal(msg.Body, &task); err != nil {
		return task, appErr.Wrapf(err, appErr.InvalidFormat, "decode judge task failed")
	}
	if task.SubmissionID == "" {
		return task, appErr.ValidationError("submission_id", "required")
	}
	return task, nil
}
