package sandbox

import (
	"context"
	"os"
	"path/filepath"
	"strconv"

	"go.uber.org/zap"

	"contestjudge/internal/judge/model"
	"contestjudge/internal/judge/sandbox/language"
	"contestjudge/internal/judge/sandbox/result"
	appErr "contestjudge/pkg/errors"
	"contestjudge/pkg/utils/logger"
)

// AdapterSource looks up the adapter of a language.
type AdapterSource interface {
	Get(lang model.Language) (language.Adapter, bool)
}

// Killer terminates every sandboxed process of a submission.
type Killer interface {
	KillSubmission(ctx context.Context, submissionID string) error
}

// Worker is the sandbox scheduling unit for one submission at a time.
// It is safe for concurrent use; each Execute owns its own work root.
type Worker struct {
	adapters AdapterSource
	workRoot string
	check    Checker
	killer   Killer
}

// NewWorker creates a worker that places submissions under workRoot.
func NewWorker(adapters AdapterSource, workRoot string, check Checker) *Worker {
	return &Worker{adapters: adapters, workRoot: workRoot, check: check}
}

// WithKiller makes Execute reap the submission's processes when its context
// is cancelled mid-run.
func (w *Worker) WithKiller(killer Killer) *Worker {
	w.killer = killer
	return w
}

// Execute compiles the source and runs the tests in order, stopping at the
// first test that does not pass. The error is always a sandbox fault.
func (w *Worker) Execute(ctx context.Context, req Request) (Outcome, error) {
	if err := validateRequest(req); err != nil {
		return Outcome{}, err
	}
	if w.adapters == nil || w.check == nil {
		return Outcome{}, appErr.SandboxFaultError(errNotInitialized, "worker dependencies are not initialized")
	}
	adapter, ok := w.adapters.Get(req.Language)
	if !ok {
		return Outcome{}, appErr.SandboxFaultError(errNoAdapter, "no adapter for language %s", req.Language)
	}

	if err := os.MkdirAll(w.workRoot, 0755); err != nil {
		return Outcome{}, appErr.SandboxFaultError(err, "create work root failed")
	}
	submissionRoot, err := os.MkdirTemp(w.workRoot, req.SubmissionID+"-")
	if err != nil {
		return Outcome{}, appErr.SandboxFaultError(err, "create submission work root failed")
	}
	defer func() {
		if ctx.Err() != nil && w.killer != nil {
			if err := w.killer.KillSubmission(context.WithoutCancel(ctx), req.SubmissionID); err != nil {
				logger.Warn(ctx, "kill submission processes failed", zap.String("submission_id", req.SubmissionID), zap.Error(err))
			}
		}
		if err := os.RemoveAll(submissionRoot); err != nil {
			logger.Warn(ctx, "remove submission work root failed", zap.String("path", submissionRoot), zap.Error(err))
		}
	}()

	outcome := Outcome{TotalTests: len(req.Tests)}
	artifact, compileRes, err := adapter.Compile(ctx, language.CompileInput{
		SubmissionID: req.SubmissionID,
		WorkDir:      filepath.Join(submissionRoot, "compile"),
		Source:       req.Source,
	})
	if err != nil {
		return Outcome{}, asSandboxFault(err, "compile submission %s failed", req.SubmissionID)
	}
	outcome.Compile = &compileRes
	if !compileRes.OK {
		return outcome, nil
	}

	outcome.Tests = make([]TestOutcome, 0, len(req.Tests))
	for i, tc := range req.Tests {
		testID := tc.ID
		if testID == "" {
			testID = strconv.Itoa(i + 1)
		}
		execRes, err := adapter.Execute(ctx, artifact, language.ExecuteInput{
			SubmissionID:  req.SubmissionID,
			TestID:        testID,
			WorkDir:       filepath.Join(submissionRoot, "test-"+strconv.Itoa(i+1)),
			Input:         tc.Input,
			TimeLimitMs:   req.TimeLimitMs,
			MemoryLimitMB: req.MemoryLimitMB,
		})
		if err != nil {
			return Outcome{}, asSandboxFault(err, "run test %d of %s failed", i+1, req.SubmissionID)
		}

		status := execRes.Verdict
		if status == result.VerdictAC && !w.check(execRes.Stdout, tc.ExpectedOutput) {
			status = result.VerdictWA
		}
		outcome.Tests = append(outcome.Tests, TestOutcome{
			TestID:   testID,
			Index:    i + 1,
			Status:   status,
			Stdout:   execRes.Stdout,
			Stderr:   execRes.Stderr,
			ExitCode: execRes.ExitCode,
			TimeMs:   execRes.TimeMs,
			MemoryKB: execRes.MemoryKB,
		})
		if !status.Passed() {
			break
		}
	}
	return outcome, nil
}

func validateRequest(req Request) error {
	if req.SubmissionID == "" {
		return appErr.SandboxFaultError(appErr.ValidationError("submission_id", "required"), "invalid judge request")
	}
	if len(req.Tests) == 0 {
		return appErr.SandboxFaultError(appErr.ValidationError("tests", "required"), "problem has no test cases")
	}
	return nil
}

func asSandboxFault(err error, format string, args ...interface{}) error {
	if appErr.GetCode(err) == appErr.SandboxFault {
		return err
	}
	return appErr.SandboxFaultError(err, format, args...)
}
