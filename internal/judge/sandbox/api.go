// Package sandbox compiles a submission once and runs it against every test
// case of a problem in private work directories.
package sandbox

import (
	"contestjudge/internal/judge/model"
	"contestjudge/internal/judge/sandbox/result"
)

// TestCase is one input with its expected output.
type TestCase struct {
	ID             string
	Input          string
	ExpectedOutput string
}

// Request contains everything needed to judge one submission.
type Request struct {
	SubmissionID  string
	Language      model.Language
	Source        string
	Tests         []TestCase
	TimeLimitMs   int64
	MemoryLimitMB int64
}

// CompileOutcome is the result of the compile step.
type CompileOutcome = result.CompileResult

// TestOutcome is the classified run of one test. Index is 1-based in
// problem order.
type TestOutcome struct {
	TestID   string
	Index    int
	Status   result.Verdict
	Stdout   string
	Stderr   string
	ExitCode int
	TimeMs   int64
	MemoryKB int64
}

// Outcome holds the compile result and the tests that ran. Tests stops at
// the first non-passing test; TotalTests counts every test of the problem.
type Outcome struct {
	Compile    *CompileOutcome
	Tests      []TestOutcome
	TotalTests int
}

// Checker reports whether actual program output matches expected output.
type Checker func(actual, expected string) bool
