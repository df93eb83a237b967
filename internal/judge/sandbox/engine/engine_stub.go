//go:build !linux

package engine

import (
	"context"
	"fmt"

	"contestjudge/internal/judge/sandbox/result"
	"contestjudge/internal/judge/sandbox/spec"
	appErr "contestjudge/pkg/errors"
)

type stubEngine struct{}

// NewEngine returns an engine that refuses every run on this platform.
func NewEngine(cfg Config, resolver ProfileResolver) (Engine, error) {
	return &stubEngine{}, nil
}

func (s *stubEngine) Run(ctx context.Context, runSpec spec.RunSpec) (result.RunResult, error) {
	return result.RunResult{}, appErr.SandboxFaultError(fmt.Errorf("unsupported platform"), "sandbox engine is only supported on linux")
}

func (s *stubEngine) KillSubmission(ctx context.Context, submissionID string) error {
	return nil
}
