// Package model defines the persisted submission record.
package model

import (
	"time"

	judgemodel "contestjudge/internal/judge/model"
)

// Submission is one attempt at a problem. Result fields stay nil until the
// submission is terminal.
type Submission struct {
	ID              string
	Username        string
	ContestID       string
	ProblemID       string
	Language        judgemodel.Language
	Code            string
	// SourceKey is the archived object key, empty when archiving is off
	SourceKey       string
	Status          judgemodel.Status
	ExecutionTimeMs *int64
	MemoryUsedKB    *int64
	TestCasesPassed *int
	TestCasesTotal  *int
	Verdict         *string
	Score           int
	SubmittedAt     time.Time
	UpdatedAt       time.Time
	JudgedAt        *time.Time
}

// State rebuilds the lifecycle variant of the record.
func (s Submission) State() (judgemodel.State, error) {
	return judgemodel.Restore(s.Status, s.Result(), s.UpdatedAt)
}

// Result returns the persisted result fields.
func (s Submission) Result() judgemodel.Result {
	r := judgemodel.Result{
		Status:   s.Status,
		Score:    s.Score,
		Passed:   s.TestCasesPassed,
		Total:    s.TestCasesTotal,
		TimeMs:   s.ExecutionTimeMs,
		MemoryKB: s.MemoryUsedKB,
	}
	if s.Verdict != nil {
		r.Verdict = *s.Verdict
	}
	return r
}

// Snapshot returns the client view of the record.
func (s Submission) Snapshot() judgemodel.StatusSnapshot {
	if !s.Status.IsTerminal() {
		return judgemodel.StatusSnapshot{SubmissionID: s.ID, Status: s.Status, SubmittedAt: s.SubmittedAt}
	}
	return judgemodel.TerminalSnapshot(s.ID, s.SubmittedAt, s.Result())
}

// CreateRequest is the body of POST /api/submissions.
type CreateRequest struct {
	Username  string `json:"username"`
	ContestID string `json:"contestId"`
	ProblemID string `json:"problemId"`
	Language  string `json:"language"`
	Code      string `json:"code"`
}

// CreateResponse acknowledges a queued submission.
type CreateResponse struct {
	SubmissionID string `json:"submissionId"`
	Message      string `json:"message"`
}
