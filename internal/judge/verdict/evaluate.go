package verdict

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"contestjudge/internal/judge/model"
	"contestjudge/internal/judge/sandbox"
	"contestjudge/internal/judge/sandbox/result"
)

// MaxVerdictLength is the longest verdict text kept on a submission.
const MaxVerdictLength = 1000

const (
	acceptedMessage    = "Accepted! All test cases passed."
	systemErrorMessage = "System Error: the submission could not be executed, please resubmit"
)

// Decision is the terminal result of judging one submission.
type Decision = model.Result

// Evaluate applies CE > TLE > MLE > RE > WA > AC over the whole outcome.
// Scoring is all-or-nothing: only ACCEPTED earns points.
func Evaluate(outcome sandbox.Outcome, points int) Decision {
	total := outcome.TotalTests
	if outcome.Compile != nil && !outcome.Compile.OK {
		return Decision{
			Status:  model.StatusCompilationError,
			Verdict: Truncate(outcome.Compile.Diagnostics),
			Total:   &total,
		}
	}

	passed := 0
	for _, tc := range outcome.Tests {
		if !tc.Status.Passed() {
			break
		}
		passed++
	}
	d := Decision{Passed: &passed, Total: &total}
	if len(outcome.Tests) > 0 {
		var maxTime, maxMem int64
		for _, tc := range outcome.Tests {
			maxTime = max(maxTime, tc.TimeMs)
			maxMem = max(maxMem, tc.MemoryKB)
		}
		d.TimeMs = &maxTime
		d.MemoryKB = &maxMem
	}

	if tc, ok := firstWith(outcome.Tests, result.VerdictTLE); ok {
		d.Status = model.StatusTLE
		d.Verdict = fmt.Sprintf("Time Limit Exceeded on test case %d", tc.Index)
		return d
	}
	if tc, ok := firstWith(outcome.Tests, result.VerdictMLE); ok {
		d.Status = model.StatusMLE
		d.Verdict = fmt.Sprintf("Memory Limit Exceeded on test case %d", tc.Index)
		return d
	}
	if tc, ok := firstWith(outcome.Tests, result.VerdictRE); ok {
		d.Status = model.StatusRuntimeError
		d.Verdict = Truncate(fmt.Sprintf("Runtime Error on test case %d: %s", tc.Index, runtimeDetail(tc)))
		return d
	}
	if tc, ok := firstWith(outcome.Tests, result.VerdictWA); ok {
		d.Status = model.StatusWrongAnswer
		d.Verdict = fmt.Sprintf("Wrong Answer on test case %d", tc.Index)
		return d
	}
	if total == 0 || passed < total {
		// tests went missing without a failing one
		return SystemError(total)
	}
	d.Status = model.StatusAccepted
	d.Verdict = acceptedMessage
	d.Score = points
	return d
}

// SystemError is the decision recorded when the sandbox keeps failing. The
// raw cause is never exposed.
func SystemError(totalTests int) Decision {
	total := totalTests
	return Decision{
		Status:  model.StatusRuntimeError,
		Verdict: systemErrorMessage,
		Total:   &total,
	}
}

// IsSystemError reports whether d carries the generic system error verdict.
func IsSystemError(d Decision) bool {
	return d.Status == model.StatusRuntimeError && d.Verdict == systemErrorMessage
}

// Truncate cuts s to MaxVerdictLength characters.
func Truncate(s string) string {
	if utf8.RuneCountInString(s) <= MaxVerdictLength {
		return s
	}
	runes := []rune(s)
	return string(runes[:MaxVerdictLength])
}

func firstWith(tests []sandbox.TestOutcome, v result.Verdict) (sandbox.TestOutcome, bool) {
	for _, tc := range tests {
		if tc.Status == v {
			return tc, true
		}
	}
	return sandbox.TestOutcome{}, false
}

func runtimeDetail(tc sandbox.TestOutcome) string {
	for _, line := range strings.Split(tc.Stderr, "\n") {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			return trimmed
		}
	}
	if tc.ExitCode < 0 {
		return "killed by signal"
	}
	return fmt.Sprintf("exit status %d", tc.ExitCode)
}
