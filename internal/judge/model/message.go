package model

import "time"

// JudgeTask is the judge queue payload. The submission record carries everything else.
type JudgeTask struct {
	SubmissionID string    `json:"submissionId"`
	EnqueuedAt   time.Time `json:"enqueuedAt"`
	// Source is "intake" or "recovery"
	Source string `json:"source,omitempty"`
}

const (
	TaskSourceIntake   = "intake"
	TaskSourceRecovery = "recovery"
)

// StatusEventType identifies status event kinds.
type StatusEventType string

const (
	StatusEventFinal StatusEventType = "final"
)

// StatusEvent is published after a terminal status is committed.
type StatusEvent struct {
	Type         StatusEventType `json:"type"`
	SubmissionID string          `json:"submissionId"`
	ContestID    string          `json:"contestId"`
	ProblemID    string          `json:"problemId"`
	Username     string          `json:"username"`
	Status       Status          `json:"status"`
	Score        int             `json:"score"`
	CreatedAt    time.Time       `json:"createdAt"`
}
