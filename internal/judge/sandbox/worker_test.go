package sandbox

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"

	"contestjudge/internal/judge/model"
	"contestjudge/internal/judge/sandbox/language"
	"contestjudge/internal/judge/sandbox/result"
	appErr "contestjudge/pkg/errors"
)

type fakeAdapter struct {
	compile  result.CompileResult
	compErr  error
	runs     map[string]result.ExecutionResult
	runErr   error
	executed []string
	workDirs []string
}

func (f *fakeAdapter) Language() model.Language { return model.LanguagePython }
func (f *fakeAdapter) Scaffold() string         { return "" }
func (f *fakeAdapter) SourceFile() string       { return "solution.py" }
func (f *fakeAdapter) Compiled() bool           { return false }

func (f *fakeAdapter) Compile(ctx context.Context, in language.CompileInput) (language.Artifact, result.CompileResult, error) {
	f.workDirs = append(f.workDirs, in.WorkDir)
	return language.Artifact{Dir: in.WorkDir}, f.compile, f.compErr
}

func (f *fakeAdapter) Execute(ctx context.Context, artifact language.Artifact, in language.ExecuteInput) (result.ExecutionResult, error) {
	f.executed = append(f.executed, in.TestID)
	if f.runErr != nil {
		return result.ExecutionResult{}, f.runErr
	}
	if res, ok := f.runs[in.Input]; ok {
		return res, nil
	}
	return result.ExecutionResult{Verdict: result.VerdictAC, Stdout: in.Input}, nil
}

type fakeSource struct {
	adapter language.Adapter
}

func (s fakeSource) Get(lang model.Language) (language.Adapter, bool) {
	if s.adapter == nil {
		return nil, false
	}
	return s.adapter, true
}

func exactMatch(actual, expected string) bool {
	return strings.TrimSpace(actual) == strings.TrimSpace(expected)
}

func newRequest(tests ...TestCase) Request {
	return Request{
		SubmissionID:  "sub-1",
		Language:      model.LanguagePython,
		Source:        "print(input())",
		Tests:         tests,
		TimeLimitMs:   2000,
		MemoryLimitMB: 256,
	}
}

func TestExecuteAllPass(t *testing.T) {
	adapter := &fakeAdapter{compile: result.CompileResult{OK: true}}
	root := t.TempDir()
	w := NewWorker(fakeSource{adapter: adapter}, root, exactMatch)

	out, err := w.Execute(context.Background(), newRequest(
		TestCase{ID: "a", Input: "1", ExpectedOutput: "1"},
		TestCase{ID: "b", Input: "2", ExpectedOutput: "2\n"},
	))
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if out.TotalTests != 2 || len(out.Tests) != 2 {
		t.Fatalf("expected 2 of 2 tests, got %d of %d", len(out.Tests), out.TotalTests)
	}
	for i, tc := range out.Tests {
		if tc.Status != result.VerdictAC || tc.Index != i+1 {
			t.Fatalf("unexpected test outcome: %+v", tc)
		}
	}
	entries, _ := os.ReadDir(root)
	if len(entries) != 0 {
		t.Fatalf("expected work root cleaned up, found %d entries", len(entries))
	}
	if !strings.Contains(adapter.workDirs[0], "sub-1-") {
		t.Fatalf("expected work dir named after submission, got %s", adapter.workDirs[0])
	}
}

func TestExecuteFailFastKeepsTotal(t *testing.T) {
	adapter := &fakeAdapter{compile: result.CompileResult{OK: true}}
	w := NewWorker(fakeSource{adapter: adapter}, t.TempDir(), exactMatch)

	out, err := w.Execute(context.Background(), newRequest(
		TestCase{ID: "a", Input: "1", ExpectedOutput: "1"},
		TestCase{ID: "b", Input: "2", ExpectedOutput: "3"},
		TestCase{ID: "c", Input: "4", ExpectedOutput: "4"},
	))
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if len(out.Tests) != 2 || out.TotalTests != 3 {
		t.Fatalf("expected fail-fast after 2 of 3, got %d of %d", len(out.Tests), out.TotalTests)
	}
	if out.Tests[1].Status != result.VerdictWA {
		t.Fatalf("expected WA on test 2, got %s", out.Tests[1].Status)
	}
	if len(adapter.executed) != 2 {
		t.Fatalf("expected third test skipped, executed %v", adapter.executed)
	}
}

func TestExecuteLimitVerdictSkipsComparison(t *testing.T) {
	adapter := &fakeAdapter{
		compile: result.CompileResult{OK: true},
		runs:    map[string]result.ExecutionResult{"loop": {Verdict: result.VerdictTLE, ExitCode: -1}},
	}
	w := NewWorker(fakeSource{adapter: adapter}, t.TempDir(), exactMatch)
	out, err := w.Execute(context.Background(), newRequest(TestCase{Input: "loop", ExpectedOutput: "loop"}))
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if out.Tests[0].Status != result.VerdictTLE || out.Tests[0].TestID != "1" {
		t.Fatalf("expected TLE on test 1, got %+v", out.Tests[0])
	}
}

func TestExecuteCompileError(t *testing.T) {
	adapter := &fakeAdapter{compile: result.CompileResult{OK: false, Diagnostics: "error: expected ';'"}}
	w := NewWorker(fakeSource{adapter: adapter}, t.TempDir(), exactMatch)
	out, err := w.Execute(context.Background(), newRequest(TestCase{Input: "1", ExpectedOutput: "1"}))
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if out.Compile == nil || out.Compile.OK || len(out.Tests) != 0 {
		t.Fatalf("expected compile failure without tests, got %+v", out)
	}
	if len(adapter.executed) != 0 {
		t.Fatalf("expected no test runs, got %v", adapter.executed)
	}
}

func TestExecuteFaults(t *testing.T) {
	cases := []struct {
		name    string
		source  AdapterSource
		request Request
	}{
		{"no_adapter", fakeSource{}, newRequest(TestCase{Input: "1"})},
		{"no_tests", fakeSource{adapter: &fakeAdapter{}}, newRequest()},
		{"compile_fault", fakeSource{adapter: &fakeAdapter{compErr: errors.New("disk full")}}, newRequest(TestCase{Input: "1"})},
		{"run_fault", fakeSource{adapter: &fakeAdapter{compile: result.CompileResult{OK: true}, runErr: errors.New("helper died")}}, newRequest(TestCase{Input: "1"})},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := NewWorker(tc.source, t.TempDir(), exactMatch)
			_, err := w.Execute(context.Background(), tc.request)
			if appErr.GetCode(err) != appErr.SandboxFault {
				t.Fatalf("expected SandboxFault, got %v", err)
			}
		})
	}
}

type recordingKiller struct {
	killed []string
}

func (k *recordingKiller) KillSubmission(ctx context.Context, submissionID string) error {
	k.killed = append(k.killed, submissionID)
	return nil
}

type cancellingAdapter struct {
	*fakeAdapter
	cancel context.CancelFunc
}

func (c cancellingAdapter) Execute(ctx context.Context, artifact language.Artifact, in language.ExecuteInput) (result.ExecutionResult, error) {
	c.cancel()
	return c.fakeAdapter.Execute(ctx, artifact, in)
}

func TestExecuteKillsOnCancel(t *testing.T) {
	killer := &recordingKiller{}
	adapter := &fakeAdapter{compile: result.CompileResult{OK: true}}

	w := NewWorker(fakeSource{adapter: adapter}, t.TempDir(), exactMatch).WithKiller(killer)
	if _, err := w.Execute(context.Background(), newRequest(TestCase{Input: "1", ExpectedOutput: "1"})); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if len(killer.killed) != 0 {
		t.Fatalf("completed run should not kill, got %v", killer.killed)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w = NewWorker(fakeSource{adapter: cancellingAdapter{fakeAdapter: adapter, cancel: cancel}}, t.TempDir(), exactMatch).WithKiller(killer)
	if _, err := w.Execute(ctx, newRequest(TestCase{Input: "1", ExpectedOutput: "1"})); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if len(killer.killed) != 1 || killer.killed[0] != "sub-1" {
		t.Fatalf("expected sub-1 killed once, got %v", killer.killed)
	}
}
