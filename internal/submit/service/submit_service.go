package service

import (
	"context"
	"fmt"
	"path"
	"strings"
	"time"
	"unicode/utf8"

	"contestjudge/internal/common/cache"
	contestmodel "contestjudge/internal/contest/model"
	judgemodel "contestjudge/internal/judge/model"
	"contestjudge/internal/submit/model"
	"contestjudge/internal/submit/repository"
	appErr "contestjudge/pkg/errors"
	"contestjudge/pkg/utils/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	idempotencyKeyPrefix  = "submit:idempotency:"
	rateUserKeyPrefix     = "submit:rate:user:"
	defaultSourcePrefix   = "submissions"
	defaultMaxCodeBytes   = 64 * 1024
	defaultIdempotencyTTL = 10 * time.Minute
	maxUsernameLength     = 64
	processingMarker      = "processing"

	// QueuedMessage is returned with every accepted submission.
	QueuedMessage = "Submission queued for processing"
)

// ContestLookup resolves the contest and problem of a submission.
type ContestLookup interface {
	GetProblemForContest(ctx context.Context, contestID, problemID string) (contestmodel.Contest, contestmodel.Problem, error)
}

// StatusStore reads and writes cached status snapshots.
type StatusStore interface {
	Get(ctx context.Context, submissionID string) (judgemodel.StatusSnapshot, error)
	Save(ctx context.Context, snap judgemodel.StatusSnapshot) error
}

// TaskPublisher enqueues judge tasks.
type TaskPublisher interface {
	Publish(ctx context.Context, task judgemodel.JudgeTask) error
}

// SourceArchive stores submission sources outside the database.
type SourceArchive interface {
	Put(ctx context.Context, key string, data []byte) error
}

// RateLimitConfig holds per-username throttling.
type RateLimitConfig struct {
	Max    int
	Window time.Duration
}

// TimeoutConfig holds timeout settings for external calls.
type TimeoutConfig struct {
	DB      time.Duration
	Cache   time.Duration
	MQ      time.Duration
	Storage time.Duration
	Status  time.Duration
}

// Config holds submit service dependencies and settings.
type Config struct {
	Contests       ContestLookup
	SubmissionRepo repository.SubmissionRepository
	StatusRepo     StatusStore
	Tasks          TaskPublisher
	Cache          cache.Cache
	// Archive is optional; sources are always kept in the database
	Archive SourceArchive

	FinalStatusHandlers  []FinalStatusHandler
	SourceKeyPrefix      string
	MaxCodeBytes         int
	IdempotencyTTL       time.Duration
	EnforceContestWindow bool
	RateLimit            RateLimitConfig
	Timeouts             TimeoutConfig
	Now                  func() time.Time
}

// SubmitService handles submission intake and status reads.
type SubmitService struct {
	contests       ContestLookup
	submissionRepo repository.SubmissionRepository
	statusRepo     StatusStore
	tasks          TaskPublisher
	cache          cache.Cache
	archive        SourceArchive

	finalStatusHandlers  []FinalStatusHandler
	sourceKeyPrefix      string
	maxCodeBytes         int
	idempotencyTTL       time.Duration
	enforceContestWindow bool
	rateLimit            RateLimitConfig
	timeouts             TimeoutConfig
	now                  func() time.Time
}

// SubmitInput describes a submission request.
type SubmitInput struct {
	Code           string
	Language       string
	Username       string
	ProblemID      string
	ContestID      string
	IdempotencyKey string
}

// NewSubmitService creates a new submit service.
func NewSubmitService(cfg Config) (*SubmitService, error) {
	if cfg.Contests == nil {
		return nil, fmt.Errorf("contest lookup is required")
	}
	if cfg.SubmissionRepo == nil {
		return nil, fmt.Errorf("submission repository is required")
	}
	if cfg.StatusRepo == nil {
		return nil, fmt.Errorf("status repository is required")
	}
	if cfg.Tasks == nil {
		return nil, fmt.Errorf("task publisher is required")
	}
	if cfg.SourceKeyPrefix == "" {
		cfg.SourceKeyPrefix = defaultSourcePrefix
	}
	if cfg.MaxCodeBytes <= 0 {
		cfg.MaxCodeBytes = defaultMaxCodeBytes
	}
	if cfg.IdempotencyTTL <= 0 {
		cfg.IdempotencyTTL = defaultIdempotencyTTL
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &SubmitService{
		contests:             cfg.Contests,
		submissionRepo:       cfg.SubmissionRepo,
		statusRepo:           cfg.StatusRepo,
		tasks:                cfg.Tasks,
		cache:                cfg.Cache,
		archive:              cfg.Archive,
		finalStatusHandlers:  cfg.FinalStatusHandlers,
		sourceKeyPrefix:      cfg.SourceKeyPrefix,
		maxCodeBytes:         cfg.MaxCodeBytes,
		idempotencyTTL:       cfg.IdempotencyTTL,
		enforceContestWindow: cfg.EnforceContestWindow,
		rateLimit:            cfg.RateLimit,
		timeouts:             cfg.Timeouts,
		now:                  cfg.Now,
	}, nil
}

// Submit validates a submission, persists it as PENDING and enqueues exactly
// one judge task. Judging happens asynchronously.
func (s *SubmitService) Submit(ctx context.Context, input SubmitInput) (string, error) {
	lang, err := s.validateInput(input)
	if err != nil {
		return "", err
	}
	username := strings.TrimSpace(input.Username)

	ctxDB := withTimeout(ctx, s.timeouts.DB)
	contest, _, err := s.contests.GetProblemForContest(ctxDB.ctx, input.ContestID, input.ProblemID)
	ctxDB.cancel()
	if err != nil {
		return "", err
	}
	if s.enforceContestWindow {
		now := s.now()
		if now.Before(contest.StartTime) {
			return "", appErr.New(appErr.ContestNotStarted)
		}
		if !now.Before(contest.EndTime) {
			return "", appErr.New(appErr.ContestEnded)
		}
	}

	if err := s.checkRateLimit(ctx, username); err != nil {
		return "", err
	}
	acquired, existingID, err := s.acquireIdempotency(ctx, input.IdempotencyKey)
	if err != nil {
		return "", err
	}
	if !acquired && existingID != "" {
		return existingID, nil
	}

	submission := &model.Submission{
		ID:          uuid.NewString(),
		Username:    username,
		ContestID:   input.ContestID,
		ProblemID:   input.ProblemID,
		Language:    lang,
		Code:        input.Code,
		Status:      judgemodel.StatusPending,
		SubmittedAt: s.now(),
	}
	submission.SourceKey = s.archiveSource(ctx, submission)

	if err := s.createSubmission(ctx, submission); err != nil {
		s.releaseIdempotency(ctx, input.IdempotencyKey, acquired)
		return "", err
	}
	s.saveStatus(ctx, judgemodel.PendingSnapshot(submission.ID, submission.SubmittedAt))

	if err := s.publishTask(ctx, submission.ID); err != nil {
		// The row is PENDING; the recovery sweep enqueues it later.
		logger.Error(ctx, "enqueue judge task failed, left for recovery",
			zap.String("submission_id", submission.ID), zap.Error(err))
	}

	s.finalizeIdempotency(ctx, input.IdempotencyKey, submission.ID, acquired)
	logger.Info(ctx, "submission accepted",
		zap.String("submission_id", submission.ID),
		zap.String("username", submission.Username),
		zap.String("problem_id", submission.ProblemID),
		zap.String("language", string(submission.Language)),
	)
	return submission.ID, nil
}

// GetSubmission returns the client view of a submission, served from the
// status cache and backfilled from the database on a miss.
func (s *SubmitService) GetSubmission(ctx context.Context, submissionID string) (judgemodel.StatusSnapshot, error) {
	submissionID = strings.TrimSpace(submissionID)
	if submissionID == "" {
		return judgemodel.StatusSnapshot{}, appErr.ValidationError("submissionId", "required")
	}

	ctxStatus := withTimeout(ctx, s.timeouts.Status)
	snap, err := s.statusRepo.Get(ctxStatus.ctx, submissionID)
	ctxStatus.cancel()
	if err == nil {
		return snap, nil
	}
	if !appErr.Is(err, appErr.NotFound) {
		logger.Warn(ctx, "read status snapshot failed, falling back to database", zap.Error(err))
	}

	ctxDB := withTimeout(ctx, s.timeouts.DB)
	defer ctxDB.cancel()
	sub, err := s.submissionRepo.Get(ctxDB.ctx, submissionID)
	if err != nil {
		return judgemodel.StatusSnapshot{}, err
	}
	snap = sub.Snapshot()
	s.saveStatus(ctx, snap)
	return snap, nil
}

func (s *SubmitService) validateInput(input SubmitInput) (judgemodel.Language, error) {
	if strings.TrimSpace(input.Code) == "" {
		return "", appErr.ValidationError("code", "must not be empty")
	}
	if len(input.Code) > s.maxCodeBytes {
		return "", appErr.Newf(appErr.CodeTooLarge, "code exceeds %d bytes", s.maxCodeBytes)
	}
	lang, err := judgemodel.ParseLanguage(input.Language)
	if err != nil {
		return "", appErr.Wrapf(err, appErr.LanguageNotSupported, "language must be one of JAVA, PYTHON, CPP").
			WithDetail("field", "language")
	}
	username := strings.TrimSpace(input.Username)
	if username == "" {
		return "", appErr.ValidationError("username", "must not be empty")
	}
	if utf8.RuneCountInString(username) > maxUsernameLength {
		return "", appErr.New(appErr.ValueTooLong).
			WithMessagef("username must be at most %d characters", maxUsernameLength).
			WithDetail("field", "username")
	}
	if strings.TrimSpace(input.ContestID) == "" {
		return "", appErr.ValidationError("contestId", "must not be empty")
	}
	if strings.TrimSpace(input.ProblemID) == "" {
		return "", appErr.ValidationError("problemId", "must not be empty")
	}
	return lang, nil
}

func (s *SubmitService) checkRateLimit(ctx context.Context, username string) error {
	if s.cache == nil || s.rateLimit.Window <= 0 || s.rateLimit.Max <= 0 {
		return nil
	}
	ctxCache := withTimeout(ctx, s.timeouts.Cache)
	defer ctxCache.cancel()

	key := rateUserKeyPrefix + username
	count, err := s.cache.Incr(ctxCache.ctx, key)
	if err != nil {
		// throttling is best effort
		logger.Warn(ctx, "rate limit check failed", zap.Error(err))
		return nil
	}
	if count == 1 {
		_ = s.cache.Expire(ctxCache.ctx, key, s.rateLimit.Window)
	}
	if int(count) > s.rateLimit.Max {
		return appErr.New(appErr.SubmitTooFrequently)
	}
	return nil
}

func (s *SubmitService) acquireIdempotency(ctx context.Context, key string) (bool, string, error) {
	key = strings.TrimSpace(key)
	if key == "" || s.cache == nil {
		return true, "", nil
	}
	cacheKey := idempotencyKeyPrefix + key
	ctxCache := withTimeout(ctx, s.timeouts.Cache)
	defer ctxCache.cancel()

	ok, err := s.cache.SetNX(ctxCache.ctx, cacheKey, processingMarker, s.idempotencyTTL)
	if err != nil {
		return false, "", appErr.Wrapf(err, appErr.CacheError, "reserve idempotency key failed")
	}
	if ok {
		return true, "", nil
	}
	existing, err := s.cache.Get(ctxCache.ctx, cacheKey)
	if err != nil {
		return false, "", appErr.Wrapf(err, appErr.CacheError, "read idempotency key failed")
	}
	if existing != "" && existing != processingMarker {
		return false, existing, nil
	}
	return false, "", appErr.New(appErr.TooManyRequests).WithMessage("request is processing")
}

func (s *SubmitService) finalizeIdempotency(ctx context.Context, key, submissionID string, acquired bool) {
	key = strings.TrimSpace(key)
	if !acquired || key == "" || s.cache == nil {
		return
	}
	ctxCache := withTimeout(ctx, s.timeouts.Cache)
	defer ctxCache.cancel()
	if err := s.cache.Set(ctxCache.ctx, idempotencyKeyPrefix+key, submissionID, s.idempotencyTTL); err != nil {
		logger.Warn(ctx, "update idempotency key failed", zap.Error(err))
	}
}

func (s *SubmitService) releaseIdempotency(ctx context.Context, key string, acquired bool) {
	key = strings.TrimSpace(key)
	if !acquired || key == "" || s.cache == nil {
		return
	}
	ctxCache := withTimeout(ctx, s.timeouts.Cache)
	defer ctxCache.cancel()
	if err := s.cache.Del(ctxCache.ctx, idempotencyKeyPrefix+key); err != nil {
		logger.Warn(ctx, "release idempotency key failed", zap.Error(err))
	}
}

// archiveSource uploads the source and returns its key, or "" when archiving
// is off or fails.
func (s *SubmitService) archiveSource(ctx context.Context, sub *model.Submission) string {
	if s.archive == nil {
		return ""
	}
	key := s.buildSourceKey(sub)
	ctxStorage := withTimeout(ctx, s.timeouts.Storage)
	defer ctxStorage.cancel()
	if err := s.archive.Put(ctxStorage.ctx, key, []byte(sub.Code)); err != nil {
		logger.Warn(ctx, "archive submission source failed", zap.String("submission_id", sub.ID), zap.Error(err))
		return ""
	}
	return key
}

func (s *SubmitService) createSubmission(ctx context.Context, submission *model.Submission) error {
	ctxDB := withTimeout(ctx, s.timeouts.DB)
	defer ctxDB.cancel()
	if err := s.submissionRepo.Create(ctxDB.ctx, submission); err != nil {
		return appErr.Wrapf(err, appErr.SubmissionCreateFailed, "create submission failed")
	}
	return nil
}

func (s *SubmitService) saveStatus(ctx context.Context, snap judgemodel.StatusSnapshot) {
	ctxStatus := withTimeout(ctx, s.timeouts.Status)
	defer ctxStatus.cancel()
	if err := s.statusRepo.Save(ctxStatus.ctx, snap); err != nil {
		logger.Warn(ctx, "save status snapshot failed", zap.String("submission_id", snap.SubmissionID), zap.Error(err))
	}
}

func (s *SubmitService) publishTask(ctx context.Context, submissionID string) error {
	ctxMQ := withTimeout(ctx, s.timeouts.MQ)
	defer ctxMQ.cancel()
	return s.tasks.Publish(ctxMQ.ctx, judgemodel.JudgeTask{
		SubmissionID: submissionID,
		EnqueuedAt:   s.now(),
		Source:       judgemodel.TaskSourceIntake,
	})
}

func (s *SubmitService) buildSourceKey(sub *model.Submission) string {
	return path.Join(s.sourceKeyPrefix, sub.ContestID, sub.ID+sourceExtension(sub.Language)+".zst")
}

func sourceExtension(lang judgemodel.Language) string {
	switch lang {
	case judgemodel.LanguageJava:
		return ".java"
	case judgemodel.LanguagePython:
		return ".py"
	case judgemodel.LanguageCPP:
		return ".cpp"
	}
	return ".txt"
}

type timeoutCtx struct {
	ctx    context.Context
	cancel context.CancelFunc
}

func withTimeout(ctx context.Context, timeout time.Duration) timeoutCtx {
	if timeout <= 0 {
		return timeoutCtx{ctx: ctx, cancel: func() {}}
	}
	ctxTimeout, cancel := context.WithTimeout(ctx, timeout)
	return timeoutCtx{ctx: ctxTimeout, cancel: cancel}
}
