package verdict

import (
	"strings"
	"testing"

	"contestjudge/internal/judge/model"
	"contestjudge/internal/judge/sandbox"
	"contestjudge/internal/judge/sandbox/result"
)

func TestNormalize(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "0 1", "0 1"},
		{"trailing_newline", "0 1\n", "0 1"},
		{"crlf", "a\r\nb\r\n", "a\nb"},
		{"trailing_blank_lines", "a\n\n\n", "a"},
		{"trailing_spaces_per_line", "a  \t\nb ", "a\nb"},
		{"leading_space_kept", "  a", "  a"},
		{"inner_blank_line_kept", "a\n\nb", "a\n\nb"},
		{"empty", "", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Normalize(tc.in); got != tc.want {
				t.Fatalf("expected %q, got %q", tc.want, got)
			}
		})
	}
}

func TestOutputMatches(t *testing.T) {
	t.Parallel()
	if !OutputMatches("olleh\r\n\n", "olleh") {
		t.Fatalf("expected trailing whitespace to be ignored")
	}
	if OutputMatches("0  1", "0 1") {
		t.Fatalf("expected inner whitespace to matter")
	}
	if OutputMatches("True", "true") {
		t.Fatalf("expected case to matter")
	}
}

func passing(n int) []sandbox.TestOutcome {
	out := make([]sandbox.TestOutcome, n)
	for i := range out {
		out[i] = sandbox.TestOutcome{Index: i + 1, Status: result.VerdictAC, TimeMs: int64(10 * (i + 1)), MemoryKB: 1024}
	}
	return out
}

func TestEvaluateAccepted(t *testing.T) {
	t.Parallel()
	d := Evaluate(sandbox.Outcome{Compile: &sandbox.CompileOutcome{OK: true}, Tests: passing(2), TotalTests: 2}, 100)
	if d.Status != model.StatusAccepted || d.Score != 100 {
		t.Fatalf("expected ACCEPTED with 100 points, got %+v", d)
	}
	if d.Verdict != "Accepted! All test cases passed." {
		t.Fatalf("unexpected verdict %q", d.Verdict)
	}
	if *d.Passed != 2 || *d.Total != 2 || *d.TimeMs != 20 || *d.MemoryKB != 1024 {
		t.Fatalf("unexpected counters: passed=%d total=%d time=%d mem=%d", *d.Passed, *d.Total, *d.TimeMs, *d.MemoryKB)
	}
}

func TestEvaluateTimeLimitOnSecondTest(t *testing.T) {
	t.Parallel()
	tests := passing(1)
	tests = append(tests, sandbox.TestOutcome{Index: 2, Status: result.VerdictTLE, TimeMs: 2000})
	d := Evaluate(sandbox.Outcome{Tests: tests, TotalTests: 2}, 100)
	if d.Status != model.StatusTLE || d.Score != 0 {
		t.Fatalf("expected TLE without points, got %+v", d)
	}
	if d.Verdict != "Time Limit Exceeded on test case 2" {
		t.Fatalf("unexpected verdict %q", d.Verdict)
	}
	if *d.Passed != 1 || *d.Total != 2 {
		t.Fatalf("expected 1 of 2 passed, got %d of %d", *d.Passed, *d.Total)
	}
}

func TestEvaluateCompilationError(t *testing.T) {
	t.Parallel()
	diag := strings.Repeat("x", MaxVerdictLength+50)
	d := Evaluate(sandbox.Outcome{Compile: &sandbox.CompileOutcome{OK: false, Diagnostics: diag}, TotalTests: 3}, 100)
	if d.Status != model.StatusCompilationError {
		t.Fatalf("expected COMPILATION_ERROR, got %s", d.Status)
	}
	if d.Passed != nil {
		t.Fatalf("expected passed to be absent, got %d", *d.Passed)
	}
	if d.Total == nil || *d.Total != 3 {
		t.Fatalf("expected total 3 for display")
	}
	if len(d.Verdict) != MaxVerdictLength {
		t.Fatalf("expected verdict truncated to %d, got %d", MaxVerdictLength, len(d.Verdict))
	}
	if d.TimeMs != nil || d.MemoryKB != nil {
		t.Fatalf("expected no resource usage for compile errors")
	}
}

func TestEvaluatePrecedence(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name    string
		tests   []sandbox.TestOutcome
		status  model.Status
		verdict string
	}{
		{
			name: "tle_over_mle",
			tests: []sandbox.TestOutcome{
				{Index: 1, Status: result.VerdictMLE},
				{Index: 2, Status: result.VerdictTLE},
			},
			status:  model.StatusTLE,
			verdict: "Time Limit Exceeded on test case 2",
		},
		{
			name: "mle_over_re",
			tests: []sandbox.TestOutcome{
				{Index: 1, Status: result.VerdictRE, ExitCode: 1},
				{Index: 2, Status: result.VerdictMLE},
			},
			status:  model.StatusMLE,
			verdict: "Memory Limit Exceeded on test case 2",
		},
		{
			name: "re_with_stderr",
			tests: []sandbox.TestOutcome{
				{Index: 1, Status: result.VerdictAC},
				{Index: 2, Status: result.VerdictRE, ExitCode: 1, Stderr: "\nTraceback (most recent call last):\n  File \"solution.py\""},
			},
			status:  model.StatusRuntimeError,
			verdict: "Runtime Error on test case 2: Traceback (most recent call last):",
		},
		{
			name:    "re_exit_status",
			tests:   []sandbox.TestOutcome{{Index: 1, Status: result.VerdictRE, ExitCode: 139}},
			status:  model.StatusRuntimeError,
			verdict: "Runtime Error on test case 1: exit status 139",
		},
		{
			name:    "re_output_limit",
			tests:   []sandbox.TestOutcome{{Index: 1, Status: result.VerdictRE, ExitCode: -1, Stderr: result.OutputLimitMessage}},
			status:  model.StatusRuntimeError,
			verdict: "Runtime Error on test case 1: output limit exceeded",
		},
		{
			name: "re_over_wa",
			tests: []sandbox.TestOutcome{
				{Index: 1, Status: result.VerdictWA},
				{Index: 2, Status: result.VerdictRE, ExitCode: -1},
			},
			status:  model.StatusRuntimeError,
			verdict: "Runtime Error on test case 2: killed by signal",
		},
		{
			name:    "wa",
			tests:   []sandbox.TestOutcome{{Index: 1, Status: result.VerdictAC}, {Index: 2, Status: result.VerdictWA}},
			status:  model.StatusWrongAnswer,
			verdict: "Wrong Answer on test case 2",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			d := Evaluate(sandbox.Outcome{Tests: tc.tests, TotalTests: 3}, 200)
			if d.Status != tc.status {
				t.Fatalf("expected %s, got %s", tc.status, d.Status)
			}
			if d.Verdict != tc.verdict {
				t.Fatalf("expected verdict %q, got %q", tc.verdict, d.Verdict)
			}
			if d.Score != 0 {
				t.Fatalf("expected no partial credit, got %d", d.Score)
			}
		})
	}
}

func TestEvaluateMissingTestsIsSystemError(t *testing.T) {
	t.Parallel()
	d := Evaluate(sandbox.Outcome{Tests: passing(1), TotalTests: 3}, 100)
	if !IsSystemError(d) {
		t.Fatalf("expected system error, got %+v", d)
	}
}

func TestSystemError(t *testing.T) {
	t.Parallel()
	d := SystemError(4)
	if d.Status != model.StatusRuntimeError || d.Score != 0 || *d.Total != 4 {
		t.Fatalf("unexpected system error decision: %+v", d)
	}
	if strings.Contains(strings.ToLower(d.Verdict), "cgroup") {
		t.Fatalf("expected generic message, got %q", d.Verdict)
	}
}

func TestTruncateCountsCharacters(t *testing.T) {
	t.Parallel()
	s := strings.Repeat("é", MaxVerdictLength+1)
	got := Truncate(s)
	if n := len([]rune(got)); n != MaxVerdictLength {
		t.Fatalf("expected %d characters, got %d", MaxVerdictLength, n)
	}
}
