// Package engine runs one process per RunSpec inside an isolated sandbox.
package engine

import (
	"context"

	"contestjudge/internal/judge/sandbox/result"
	"contestjudge/internal/judge/sandbox/spec"
)

// Engine executes a RunSpec inside an isolated sandbox. An error means the
// sandbox itself failed; limits hit by the program are reported in the result.
type Engine interface {
	Run(ctx context.Context, runSpec spec.RunSpec) (result.RunResult, error)
	KillSubmission(ctx context.Context, submissionID string) error
}
