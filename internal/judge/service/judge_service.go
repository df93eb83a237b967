// Package service consumes judge tasks and drives each submission from
// PENDING to exactly one terminal status.
package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"contestjudge/internal/common/mq"
	contestmodel "contestjudge/internal/contest/model"
	"contestjudge/internal/judge/model"
	"contestjudge/internal/judge/repository"
	"contestjudge/internal/judge/sandbox"
	submitmodel "contestjudge/internal/submit/model"
	appErr "contestjudge/pkg/errors"
	"contestjudge/pkg/utils/contextkey"
	"contestjudge/pkg/utils/logger"
)

// SubmissionStore is the persisted submission state used by the judge.
// The transition methods are conditional and report whether a row changed.
type SubmissionStore interface {
	Get(ctx context.Context, submissionID string) (submitmodel.Submission, error)
	MarkRunning(ctx context.Context, submissionID string, at time.Time) (bool, error)
	ResumeRunning(ctx context.Context, submissionID string, at time.Time) (bool, error)
	CommitTerminal(ctx context.Context, submissionID string, result model.Result, at time.Time) (bool, error)
}

// ProblemSource loads a problem with every test case in judging order.
type ProblemSource interface {
	GetProblem(ctx context.Context, problemID string) (contestmodel.Problem, error)
}

// Executor runs a submission in the sandbox.
type Executor interface {
	Execute(ctx context.Context, req sandbox.Request) (sandbox.Outcome, error)
}

// StatusWriter stores client-facing status snapshots.
type StatusWriter interface {
	Save(ctx context.Context, snap model.StatusSnapshot) error
}

// Locker is the per-submission judging lock.
type Locker interface {
	Acquire(ctx context.Context, submissionID string) (string, bool, error)
	Extend(ctx context.Context, submissionID, token string) (bool, error)
	Release(ctx context.Context, submissionID, token string) error
	TTL() time.Duration
}

// Service handles judge tasks.
type Service struct {
	submissions     SubmissionStore
	problems        ProblemSource
	executor        Executor
	status          StatusWriter
	events          repository.StatusEventPublisher
	lock            Locker
	workerTimeout   time.Duration
	statusTimeout   time.Duration
	sandboxRetries  int
	retryBackoff    time.Duration
	retryBackoffMax time.Duration
	metaTTL         time.Duration
	now             func() time.Time

	metaMu    sync.Mutex
	metaCache map[string]metaEntry
}

// Config holds service dependencies and settings.
type Config struct {
	Submissions     SubmissionStore
	Problems        ProblemSource
	Executor        Executor
	Status          StatusWriter
	Events          repository.StatusEventPublisher
	Lock            Locker
	WorkerTimeout   time.Duration
	StatusTimeout   time.Duration
	SandboxRetries  int
	RetryBackoff    time.Duration
	RetryBackoffMax time.Duration
	MetaTTL         time.Duration
	Now             func() time.Time
}

// NewService creates a new judge service.
func NewService(cfg Config) (*Service, error) {
	if cfg.Submissions == nil {
		return nil, fmt.Errorf("submission store is required")
	}
	if cfg.Problems == nil {
		return nil, fmt.Errorf("problem source is required")
	}
	if cfg.Executor == nil {
		return nil, fmt.Errorf("executor is required")
	}
	if cfg.Status == nil {
		return nil, fmt.Errorf("status writer is required")
	}
	if cfg.Lock == nil {
		return nil, fmt.Errorf("judge lock is required")
	}
	if cfg.SandboxRetries < 0 {
		cfg.SandboxRetries = 0
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Service{
		submissions:     cfg.Submissions,
		problems:        cfg.Problems,
		executor:        cfg.Executor,
		status:          cfg.Status,
		events:          cfg.Events,
		lock:            cfg.Lock,
		workerTimeout:   cfg.WorkerTimeout,
		statusTimeout:   cfg.StatusTimeout,
		sandboxRetries:  cfg.SandboxRetries,
		retryBackoff:    cfg.RetryBackoff,
		retryBackoffMax: cfg.RetryBackoffMax,
		metaTTL:         cfg.MetaTTL,
		now:             cfg.Now,
		metaCache:       make(map[string]metaEntry),
	}, nil
}

// HandleMessage processes one judge task. Returning an error asks the queue
// to redeliver; every other outcome acks the message.
func (s *Service) HandleMessage(ctx context.Context, msg *mq.Message) error {
	task, err := repository.DecodeTask(msg)
	if err != nil {
		logger.Warn(ctx, "drop malformed judge task", zap.Error(err))
		return nil
	}
	ctx = context.WithValue(ctx, contextkey.SubmissionID, task.SubmissionID)

	token, ok, err := s.lock.Acquire(ctx, task.SubmissionID)
	if err != nil {
		return err
	}
	if !ok {
		logger.Info(ctx, "judge lock held by another worker, dropping task", zap.String("source", task.Source))
		return nil
	}
	stopKeepAlive := s.keepLock(ctx, task.SubmissionID, token)
	defer func() {
		stopKeepAlive()
		if err := s.lock.Release(context.WithoutCancel(ctx), task.SubmissionID, token); err != nil {
			logger.Warn(ctx, "release judge lock failed", zap.Error(err))
		}
	}()

	return s.judge(ctx, task)
}

func (s *Service) judge(ctx context.Context, task model.JudgeTask) error {
	sub, err := s.submissions.Get(ctx, task.SubmissionID)
	if err != nil {
		if appErr.GetCode(err) == appErr.SubmissionNotFound {
			logger.Warn(ctx, "judge task for unknown submission")
			return nil
		}
		return err
	}
	state, err := sub.State()
	if err != nil {
		logger.Error(ctx, "submission has unknown status", zap.String("status", string(sub.Status)))
		return nil
	}

	now := s.now()
	var running model.Running
	switch st := state.(type) {
	case model.Terminal:
		logger.Info(ctx, "submission already judged", zap.String("status", string(st.Status())))
		return nil
	case model.Pending:
		moved, err := s.submissions.MarkRunning(ctx, sub.ID, now)
		if err != nil {
			return err
		}
		if !moved {
			logger.Info(ctx, "submission left PENDING concurrently, skipping")
			return nil
		}
		running = st.Start(now)
	case model.Running:
		resumed, err := s.submissions.ResumeRunning(ctx, sub.ID, now)
		if err != nil {
			return err
		}
		if !resumed {
			return nil
		}
		logger.Warn(ctx, "re-judging submission abandoned in RUNNING", zap.Time("previous_update", st.StartedAt))
		running = st.Resume(now)
	}
	s.saveStatus(ctx, model.StatusSnapshot{SubmissionID: sub.ID, Status: model.StatusRunning, SubmittedAt: sub.SubmittedAt})

	decision := s.decide(ctx, sub)
	terminal, err := running.Finish(decision, s.now())
	if err != nil {
		logger.Error(ctx, "decision is not terminal", zap.Error(err))
		terminal, _ = running.Finish(systemError(0), s.now())
	}
	return s.commit(ctx, sub, terminal)
}
