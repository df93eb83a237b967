package model

// Status is the lifecycle status of a submission as persisted and returned to clients.
type Status string

const (
	StatusPending          Status = "PENDING"
	StatusRunning          Status = "RUNNING"
	StatusAccepted         Status = "ACCEPTED"
	StatusWrongAnswer      Status = "WRONG_ANSWER"
	StatusTLE              Status = "TLE"
	StatusMLE              Status = "MLE"
	StatusRuntimeError     Status = "RUNTIME_ERROR"
	StatusCompilationError Status = "COMPILATION_ERROR"
)

// TerminalStatuses lists every status a submission can end in.
var TerminalStatuses = []Status{
	StatusAccepted,
	StatusWrongAnswer,
	StatusTLE,
	StatusMLE,
	StatusRuntimeError,
	StatusCompilationError,
}

// IsTerminal reports whether s is a final status.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusAccepted, StatusWrongAnswer, StatusTLE, StatusMLE, StatusRuntimeError, StatusCompilationError:
		return true
	}
	return false
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	return s == StatusPending || s == StatusRunning || s.IsTerminal()
}

// Rank orders statuses along the lifecycle; terminal statuses share the top
// rank and unknown statuses are -1.
func (s Status) Rank() int {
	switch s {
	case StatusPending:
		return 0
	case StatusRunning:
		return 1
	}
	if s.IsTerminal() {
		return 2
	}
	return -1
}

// Precedes reports whether moving from s to next goes forward along the lifecycle.
func (s Status) Precedes(next Status) bool {
	return s.Rank() >= 0 && next.Rank() > s.Rank()
}
