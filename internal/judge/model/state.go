package model

import (
	"fmt"
	"time"
)

// Result holds the fields attached to a submission when it becomes terminal.
// Pointer fields are absent when not applicable, e.g. Passed for compile errors.
type Result struct {
	Status   Status
	Verdict  string
	Score    int
	Passed   *int
	Total    *int
	TimeMs   *int64
	MemoryKB *int64
}

// State is the submission lifecycle as a closed set of variants:
// Pending, Running and Terminal. Transitions exist only as methods on the
// variant they leave, so Terminal cannot move anywhere.
type State interface {
	Status() Status
	isState()
}

// Pending is a queued submission.
type Pending struct{}

// Running is a submission owned by a judging task.
type Running struct {
	StartedAt time.Time
}

// Terminal is a judged submission. It is immutable.
type Terminal struct {
	Result     Result
	FinishedAt time.Time
}

func (Pending) Status() Status { return StatusPending }
func (Running) Status() Status { return StatusRunning }
func (t Terminal) Status() Status { return t.Result.Status }

func (Pending) isState() {}
func (Running) isState() {}
func (Terminal) isState() {}

// Start moves a pending submission to running.
func (Pending) Start(at time.Time) Running {
	return Running{StartedAt: at}
}

// Resume takes over a running submission whose previous owner is gone.
func (r Running) Resume(at time.Time) Running {
	return Running{StartedAt: at}
}

// Finish moves a running submission to its terminal state.
func (Running) Finish(result Result, at time.Time) (Terminal, error) {
	if !result.Status.IsTerminal() {
		return Terminal{}, fmt.Errorf("status %s is not terminal", result.Status)
	}
	return Terminal{Result: result, FinishedAt: at}, nil
}

// Restore rebuilds the variant from a persisted status.
func Restore(status Status, result Result, updatedAt time.Time) (State, error) {
	switch {
	case status == StatusPending:
		return Pending{}, nil
	case status == StatusRunning:
		return Running{StartedAt: updatedAt}, nil
	case status.IsTerminal():
		result.Status = status
		return Terminal{Result: result, FinishedAt: updatedAt}, nil
	}
	return nil, fmt.Errorf("unknown status %q", status)
}
