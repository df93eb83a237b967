// Package result defines raw sandbox results and per-run classification.
package result

// Verdict is the classification of one sandboxed program run.
type Verdict string

const (
	VerdictAC  Verdict = "AC"
	VerdictWA  Verdict = "WA"
	VerdictTLE Verdict = "TLE"
	VerdictMLE Verdict = "MLE"
	VerdictRE  Verdict = "RE"
)

// Passed reports whether the run counts as a passing test.
func (v Verdict) Passed() bool {
	return v == VerdictAC
}

// OutputLimitMessage is the stderr used when a run exceeds its output ceiling.
const OutputLimitMessage = "output limit exceeded"

// RunResult captures raw sandbox execution data.
type RunResult struct {
	ExitCode   int
	Signaled   bool
	TimedOut   bool
	TimeMs     int64
	WallTimeMs int64
	MemoryKB   int64
	OutputKB   int64
	Stdout     string
	Stderr     string
	OomKilled  bool
}

// CompileResult contains compilation outcomes.
type CompileResult struct {
	OK          bool
	ExitCode    int
	TimeMs      int64
	MemoryKB    int64
	Diagnostics string
}

// ExecutionResult is one classified run of the user program. Verdict is
// AC when the program finished within every limit; output comparison is
// left to the caller.
type ExecutionResult struct {
	Verdict  Verdict
	ExitCode int
	TimeMs   int64
	MemoryKB int64
	Stdout   string
	Stderr   string
}
