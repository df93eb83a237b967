package model

import (
	"testing"
	"time"
)

func TestStateTransitions(t *testing.T) {
	t.Parallel()
	now := time.Now()

	running := Pending{}.Start(now)
	if running.Status() != StatusRunning {
		t.Fatalf("expected RUNNING, got %s", running.Status())
	}

	terminal, err := running.Finish(Result{Status: StatusAccepted, Score: 100}, now)
	if err != nil {
		t.Fatalf("finish: %v", err)
	}
	if terminal.Status() != StatusAccepted || terminal.Result.Score != 100 {
		t.Fatalf("unexpected terminal state: %+v", terminal)
	}

	if _, err := running.Finish(Result{Status: StatusRunning}, now); err == nil {
		t.Fatalf("expected non-terminal finish to fail")
	}
}

func TestStatusOrdering(t *testing.T) {
	t.Parallel()
	cases := []struct {
		from, to Status
		forward  bool
	}{
		{StatusPending, StatusRunning, true},
		{StatusRunning, StatusTLE, true},
		{StatusPending, StatusAccepted, true},
		{StatusRunning, StatusPending, false},
		{StatusAccepted, StatusRunning, false},
		{StatusAccepted, StatusWrongAnswer, false},
		{Status("BOGUS"), StatusRunning, false},
	}
	for _, tc := range cases {
		if got := tc.from.Precedes(tc.to); got != tc.forward {
			t.Fatalf("expected %s -> %s forward=%v, got %v", tc.from, tc.to, tc.forward, got)
		}
	}
}

func TestRestore(t *testing.T) {
	t.Parallel()
	state, err := Restore(StatusMLE, Result{Verdict: "Memory Limit Exceeded on test case 2"}, time.Now())
	if err != nil {
		t.Fatalf("restore: %v", err)
	}
	terminal, ok := state.(Terminal)
	if !ok {
		t.Fatalf("expected Terminal, got %T", state)
	}
	if terminal.Result.Status != StatusMLE {
		t.Fatalf("expected MLE, got %s", terminal.Result.Status)
	}
	if _, err := Restore(Status("X"), Result{}, time.Now()); err == nil {
		t.Fatalf("expected unknown status to fail")
	}
}

func TestParseLanguage(t *testing.T) {
	t.Parallel()
	for _, raw := range []string{"JAVA", "PYTHON", "CPP"} {
		if _, err := ParseLanguage(raw); err != nil {
			t.Fatalf("expected %s to parse, got %v", raw, err)
		}
	}
	for _, raw := range []string{"", "java", "GO", "C++"} {
		if _, err := ParseLanguage(raw); err == nil {
			t.Fatalf("expected %q to be rejected", raw)
		}
	}
}
