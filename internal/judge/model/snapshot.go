package model

import "time"

// StatusSnapshot is the cached client view of a submission. Its JSON form is
// the GET /api/submissions/:id response body.
type StatusSnapshot struct {
	SubmissionID    string    `json:"id"`
	Status          Status    `json:"status"`
	ExecutionTime   *int64    `json:"executionTime,omitempty"`
	MemoryUsed      *int64    `json:"memoryUsed,omitempty"`
	TestCasesPassed *int      `json:"testCasesPassed,omitempty"`
	TestCasesTotal  *int      `json:"testCasesTotal,omitempty"`
	Verdict         string    `json:"verdict,omitempty"`
	SubmittedAt     time.Time `json:"submittedAt"`
}

// PendingSnapshot is the view written at intake.
func PendingSnapshot(submissionID string, submittedAt time.Time) StatusSnapshot {
	return StatusSnapshot{SubmissionID: submissionID, Status: StatusPending, SubmittedAt: submittedAt}
}

// TerminalSnapshot is the view written after a terminal commit.
func TerminalSnapshot(submissionID string, submittedAt time.Time, r Result) StatusSnapshot {
	return StatusSnapshot{
		SubmissionID:    submissionID,
		Status:          r.Status,
		ExecutionTime:   r.TimeMs,
		MemoryUsed:      r.MemoryKB,
		TestCasesPassed: r.Passed,
		TestCasesTotal:  r.Total,
		Verdict:         r.Verdict,
		SubmittedAt:     submittedAt,
	}
}
