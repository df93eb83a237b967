// Package runner prepares work directories and runs compile and test tasks
// through the sandbox engine.
package runner

import (
	"context"

	"contestjudge/internal/judge/sandbox/profile"
	"contestjudge/internal/judge/sandbox/result"
	"contestjudge/internal/judge/sandbox/spec"
)

// CompileRequest describes one compile task. WorkDir is a host path.
type CompileRequest struct {
	SubmissionID string
	Language     profile.LanguageSpec
	Profile      profile.TaskProfile
	WorkDir      string
	Source       []byte
	Limits       spec.ResourceLimit
}

// RunRequest describes one test run. WorkDir must already hold the artifact.
// Limits carries the problem limits before language multipliers.
type RunRequest struct {
	SubmissionID string
	TestID       string
	Language     profile.LanguageSpec
	Profile      profile.TaskProfile
	WorkDir      string
	Input        string
	Limits       spec.ResourceLimit
}

// Runner executes compile and run tasks. Errors are sandbox faults only.
type Runner interface {
	Compile(ctx context.Context, req CompileRequest) (result.CompileResult, error)
	Run(ctx context.Context, req RunRequest) (result.ExecutionResult, error)
}
