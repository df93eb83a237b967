// Package repository persists submissions in MySQL. The row is the
// authoritative record; status transitions are conditional updates so a
// terminal row is never rewritten.
package repository

import (
	"context"
	"time"

	"contestjudge/internal/common/db"
	judgemodel "contestjudge/internal/judge/model"
	"contestjudge/internal/submit/model"
	appErr "contestjudge/pkg/errors"
)

// SubmissionRepository defines submission persistence.
type SubmissionRepository interface {
	Create(ctx context.Context, sub *model.Submission) error
	Get(ctx context.Context, submissionID string) (model.Submission, error)
	MarkRunning(ctx context.Context, submissionID string, at time.Time) (bool, error)
	ResumeRunning(ctx context.Context, submissionID string, at time.Time) (bool, error)
	CommitTerminal(ctx context.Context, submissionID string, result judgemodel.Result, at time.Time) (bool, error)
	ListStale(ctx context.Context, before time.Time, limit int) ([]model.Submission, error)
	ListTerminalByContest(ctx context.Context, contestID string) ([]model.Submission, error)
}

// MySQLSubmissionRepository implements SubmissionRepository with MySQL.
type MySQLSubmissionRepository struct {
	db db.Database
}

// NewSubmissionRepository creates a submission repository.
func NewSubmissionRepository(database db.Database) *MySQLSubmissionRepository {
	return &MySQLSubmissionRepository{db: database}
}

const (
	summaryColumns = "id, username, contest_id, problem_id, language, source_key, status, execution_time_ms, memory_used_kb, test_cases_passed, test_cases_total, verdict, score, submitted_at, updated_at, judged_at"
	fullColumns    = summaryColumns + ", code"
)

// Create inserts a PENDING submission.
func (r *MySQLSubmissionRepository) Create(ctx context.Context, sub *model.Submission) error {
	if sub == nil {
		return appErr.New(appErr.InvalidParams).WithMessage("submission is nil")
	}
	if sub.ID == "" {
		return appErr.ValidationError("id", "required")
	}
	if sub.Status == "" {
		sub.Status = judgemodel.StatusPending
	}
	if sub.SubmittedAt.IsZero() {
		sub.SubmittedAt = time.Now()
	}
	sub.SubmittedAt = sub.SubmittedAt.UTC()
	sub.UpdatedAt = sub.SubmittedAt

	query := `
		INSERT INTO submissions
		(id, username, contest_id, problem_id, language, code, source_key, status, score, submitted_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, 0, ?, ?)
	`
	_, err := r.db.Exec(ctx, query,
		sub.ID,
		sub.Username,
		sub.ContestID,
		sub.ProblemID,
		string(sub.Language),
		sub.Code,
		sub.SourceKey,
		string(sub.Status),
		sub.SubmittedAt,
		sub.UpdatedAt,
	)
	if err != nil {
		if _, dup := db.UniqueViolation(err); dup {
			return appErr.Wrapf(err, appErr.RecordAlreadyExists, "submission %s already exists", sub.ID)
		}
		return appErr.Wrapf(err, appErr.DatabaseError, "insert submission failed")
	}
	return nil
}

// Get loads a submission including its source.
func (r *MySQLSubmissionRepository) Get(ctx context.Context, submissionID string) (model.Submission, error) {
	if submissionID == "" {
		return model.Submission{}, appErr.ValidationError("submissionId", "required")
	}
	query := "SELECT " + fullColumns + " FROM submissions WHERE id = ? LIMIT 1"
	row := r.db.QueryRow(ctx, query, submissionID)
	sub, err := scanSubmission(row, true)
	if err != nil {
		if db.IsNoRows(err) {
			return model.Submission{}, appErr.New(appErr.SubmissionNotFound)
		}
		return model.Submission{}, appErr.Wrapf(err, appErr.DatabaseError, "get submission failed")
	}
	return sub, nil
}

// MarkRunning moves a PENDING submission to RUNNING.
func (r *MySQLSubmissionRepository) MarkRunning(ctx context.Context, submissionID string, at time.Time) (bool, error) {
	query := "UPDATE submissions SET status = ?, updated_at = ? WHERE id = ? AND status = ?"
	return r.execAffected(ctx, query, string(judgemodel.StatusRunning), at.UTC(), submissionID, string(judgemodel.StatusPending))
}

// ResumeRunning refreshes a RUNNING submission taken over by a new owner.
func (r *MySQLSubmissionRepository) ResumeRunning(ctx context.Context, submissionID string, at time.Time) (bool, error) {
	query := "UPDATE submissions SET updated_at = ? WHERE id = ? AND status = ?"
	return r.execAffected(ctx, query, at.UTC(), submissionID, string(judgemodel.StatusRunning))
}

// CommitTerminal writes the terminal result once. It reports false when the
// submission was already terminal.
func (r *MySQLSubmissionRepository) CommitTerminal(ctx context.Context, submissionID string, result judgemodel.Result, at time.Time) (bool, error) {
	if !result.Status.IsTerminal() {
		return false, appErr.Newf(appErr.InvalidParams, "status %s is not terminal", result.Status)
	}
	query := `
		UPDATE submissions
		SET status = ?, verdict = ?, score = ?, test_cases_passed = ?, test_cases_total = ?,
			execution_time_ms = ?, memory_used_kb = ?, judged_at = ?, updated_at = ?
		WHERE id = ? AND status IN (?, ?)
	`
	at = at.UTC()
	return r.execAffected(ctx, query,
		string(result.Status),
		result.Verdict,
		result.Score,
		result.Passed,
		result.Total,
		result.TimeMs,
		result.MemoryKB,
		at,
		at,
		submissionID,
		string(judgemodel.StatusPending),
		string(judgemodel.StatusRunning),
	)
}

// ListStale returns non-terminal submissions last updated before the cutoff,
// oldest first.
func (r *MySQLSubmissionRepository) ListStale(ctx context.Context, before time.Time, limit int) ([]model.Submission, error) {
	if limit <= 0 {
		limit = 100
	}
	query := "SELECT " + summaryColumns + " FROM submissions WHERE status IN (?, ?) AND updated_at < ? ORDER BY updated_at ASC LIMIT ?"
	return r.list(ctx, query,
		string(judgemodel.StatusPending),
		string(judgemodel.StatusRunning),
		before.UTC(),
		limit,
	)
}

// ListTerminalByContest returns every judged submission of a contest.
func (r *MySQLSubmissionRepository) ListTerminalByContest(ctx context.Context, contestID string) ([]model.Submission, error) {
	terminal := judgemodel.TerminalStatuses
	args := make([]interface{}, 0, len(terminal)+1)
	args = append(args, contestID)
	for _, st := range terminal {
		args = append(args, string(st))
	}
	query := "SELECT " + summaryColumns + " FROM submissions WHERE contest_id = ? AND status IN (" + db.Placeholders(len(terminal)) + ") ORDER BY judged_at ASC"
	return r.list(ctx, query, args...)
}

func (r *MySQLSubmissionRepository) list(ctx context.Context, query string, args ...interface{}) ([]model.Submission, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.DatabaseError, "query submissions failed")
	}
	defer rows.Close()

	var out []model.Submission
	for rows.Next() {
		sub, err := scanSubmission(rows, false)
		if err != nil {
			return nil, appErr.Wrapf(err, appErr.DatabaseError, "scan submission failed")
		}
		out = append(out, sub)
	}
	if err := rows.Err(); err != nil {
		return nil, appErr.Wrapf(err, appErr.DatabaseError, "iterate submissions failed")
	}
	return out, nil
}

func (r *MySQLSubmissionRepository) execAffected(ctx context.Context, query string, args ...interface{}) (bool, error) {
	res, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		return false, appErr.Wrapf(err, appErr.DatabaseError, "update submission failed")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, appErr.Wrapf(err, appErr.DatabaseError, "read affected rows failed")
	}
	return n > 0, nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanSubmission(row scanner, withCode bool) (model.Submission, error) {
	var (
		sub                model.Submission
		language, status   string
		sourceKey, verdict *string
	)
	dest := []interface{}{
		&sub.ID,
		&sub.Username,
		&sub.ContestID,
		&sub.ProblemID,
		&language,
		&sourceKey,
		&status,
		&sub.ExecutionTimeMs,
		&sub.MemoryUsedKB,
		&sub.TestCasesPassed,
		&sub.TestCasesTotal,
		&verdict,
		&sub.Score,
		&sub.SubmittedAt,
		&sub.UpdatedAt,
		&sub.JudgedAt,
	}
	if withCode {
		dest = append(dest, &sub.Code)
	}
	if err := row.Scan(dest...); err != nil {
		return model.Submission{}, err
	}
	sub.Language = judgemodel.Language(language)
	sub.Status = judgemodel.Status(status)
	sub.Verdict = verdict
	if sourceKey != nil {
		sub.SourceKey = *sourceKey
	}
	return sub, nil
}
