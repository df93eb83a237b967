package runner

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/shlex"

	"contestjudge/internal/judge/sandbox/engine"
	"contestjudge/internal/judge/sandbox/profile"
	"contestjudge/internal/judge/sandbox/result"
	"contestjudge/internal/judge/sandbox/spec"
	appErr "contestjudge/pkg/errors"
)

const (
	containerWorkDir  = "/work"
	defaultInputName  = "input.txt"
	defaultOutputName = "output.txt"
	compileLogName    = "compile.log"
	compileOutName    = "compile.out"
	runtimeLogName    = "runtime.log"

	// MaxDiagnosticsBytes caps compiler output kept on a submission.
	MaxDiagnosticsBytes = 64 * 1024
	wallSlackMs         = 1000
)

// DefaultRunner implements compile and run workflows on top of the engine.
type DefaultRunner struct {
	eng engine.Engine
}

// NewRunner creates a new runner backed by the sandbox engine.
func NewRunner(eng engine.Engine) *DefaultRunner {
	return &DefaultRunner{eng: eng}
}

func (r *DefaultRunner) Compile(ctx context.Context, req CompileRequest) (result.CompileResult, error) {
	if err := validateCompileRequest(req); err != nil {
		return result.CompileResult{}, err
	}
	if err := prepareWorkDir(req.WorkDir); err != nil {
		return result.CompileResult{}, err
	}
	if err := writeFile(req.WorkDir, req.Language.SourceFile, req.Source); err != nil {
		return result.CompileResult{}, err
	}
	if !req.Language.CompileEnabled {
		return result.CompileResult{OK: true}, nil
	}

	cmd, err := buildCommand(req.Language.CompileCmdTpl, req.Language)
	if err != nil {
		return result.CompileResult{}, err
	}
	runSpec := spec.RunSpec{
		SubmissionID: req.SubmissionID,
		TestID:       "compile",
		WorkDir:      containerWorkDir,
		Cmd:          cmd,
		Env:          req.Language.Env,
		StdoutPath:   filepath.Join(containerWorkDir, compileOutName),
		StderrPath:   filepath.Join(containerWorkDir, compileLogName),
		Profile:      profile.Name(req.Language.ID, profile.TaskTypeCompile),
		Limits:       req.Profile.DefaultLimits.Merge(req.Limits),
		BindMounts:   buildBindMounts(req.WorkDir),
	}

	runRes, err := r.eng.Run(ctx, runSpec)
	if err != nil {
		return result.CompileResult{}, asSandboxFault(err, "compile %s failed", req.SubmissionID)
	}
	compileRes := result.CompileResult{
		OK:       runRes.ExitCode == 0 && !runRes.TimedOut && !runRes.Signaled,
		ExitCode: runRes.ExitCode,
		TimeMs:   runRes.TimeMs,
		MemoryKB: runRes.MemoryKB,
	}
	if !compileRes.OK {
		compileRes.Diagnostics = compileDiagnostics(runRes)
	}
	return compileRes, nil
}

func (r *DefaultRunner) Run(ctx context.Context, req RunRequest) (result.ExecutionResult, error) {
	if err := validateRunRequest(req); err != nil {
		return result.ExecutionResult{}, err
	}
	if err := writeFile(req.WorkDir, defaultInputName, []byte(req.Input)); err != nil {
		return result.ExecutionResult{}, err
	}
	cmd, err := buildCommand(req.Language.RunCmdTpl, req.Language)
	if err != nil {
		return result.ExecutionResult{}, err
	}

	limits := runLimits(req.Profile.DefaultLimits, req.Limits, req.Language)
	runSpec := spec.RunSpec{
		SubmissionID: req.SubmissionID,
		TestID:       req.TestID,
		WorkDir:      containerWorkDir,
		Cmd:          cmd,
		Env:          req.Language.Env,
		StdinPath:    filepath.Join(containerWorkDir, defaultInputName),
		StdoutPath:   filepath.Join(containerWorkDir, defaultOutputName),
		StderrPath:   filepath.Join(containerWorkDir, runtimeLogName),
		Profile:      profile.Name(req.Language.ID, profile.TaskTypeRun),
		Limits:       limits,
		BindMounts:   buildBindMounts(req.WorkDir),
	}

	runRes, err := r.eng.Run(ctx, runSpec)
	if err != nil {
		return result.ExecutionResult{}, asSandboxFault(err, "run %s/%s failed", req.SubmissionID, req.TestID)
	}

	verdict := mapRunVerdict(runRes, limits)
	res := result.ExecutionResult{
		Verdict:  verdict,
		ExitCode: runRes.ExitCode,
		TimeMs:   runRes.TimeMs,
		MemoryKB: runRes.MemoryKB,
		Stdout:   runRes.Stdout,
		Stderr:   runRes.Stderr,
	}
	if verdict == result.VerdictRE && outputExceeded(runRes, limits) {
		res.Stderr = result.OutputLimitMessage
	}
	return res, nil
}

func validateCompileRequest(req CompileRequest) error {
	if req.SubmissionID == "" {
		return appErr.ValidationError("submission_id", "required")
	}
	if req.WorkDir == "" {
		return appErr.ValidationError("work_dir", "required")
	}
	if req.Language.ID == "" {
		return appErr.ValidationError("language_id", "required")
	}
	if req.Language.SourceFile == "" {
		return appErr.ValidationError("source_file", "required")
	}
	return nil
}

func validateRunRequest(req RunRequest) error {
	if req.SubmissionID == "" {
		return appErr.ValidationError("submission_id", "required")
	}
	if req.TestID == "" {
		return appErr.ValidationError("test_id", "required")
	}
	if req.WorkDir == "" {
		return appErr.ValidationError("work_dir", "required")
	}
	if req.Language.ID == "" {
		return appErr.ValidationError("language_id", "required")
	}
	return nil
}

func buildBindMounts(workDir string) []spec.MountSpec {
	return []spec.MountSpec{{
		Source:   workDir,
		Target:   containerWorkDir,
		ReadOnly: false,
	}}
}

func buildCommand(tpl string, lang profile.LanguageSpec) ([]string, error) {
	if strings.TrimSpace(tpl) == "" {
		return nil, appErr.New(appErr.InvalidParams).WithMessage("command template is required")
	}
	expanded := strings.ReplaceAll(tpl, "{src}", lang.SourceFile)
	expanded = strings.ReplaceAll(expanded, "{bin}", lang.BinaryFile)
	fields, err := shlex.Split(expanded)
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.InvalidParams, "parse command template failed")
	}
	if len(fields) == 0 {
		return nil, appErr.New(appErr.InvalidParams).WithMessage("command is empty after expansion")
	}
	return fields, nil
}

// runLimits merges problem limits over the profile defaults, scales them by
// the language multipliers and derives the wall ceiling from the CPU ceiling.
func runLimits(defaults, problem spec.ResourceLimit, lang profile.LanguageSpec) spec.ResourceLimit {
	limits := defaults.Merge(problem)
	limits.CPUTimeMs = scaleLimit(limits.CPUTimeMs, lang.TimeMultiplier)
	limits.MemoryMB = scaleLimit(limits.MemoryMB, lang.MemoryMultiplier)
	if problem.WallTimeMs <= 0 && limits.CPUTimeMs > 0 {
		limits.WallTimeMs = limits.CPUTimeMs + wallSlackMs
	}
	return limits
}

func scaleLimit(value int64, multiplier float64) int64 {
	if value <= 0 {
		return 0
	}
	if multiplier <= 0 {
		return value
	}
	return int64(math.Ceil(float64(value) * multiplier))
}

// mapRunVerdict checks the time ceiling before the memory ceiling.
func mapRunVerdict(res result.RunResult, limits spec.ResourceLimit) result.Verdict {
	if res.TimedOut || (limits.CPUTimeMs > 0 && res.TimeMs > limits.CPUTimeMs) {
		return result.VerdictTLE
	}
	if res.OomKilled {
		return result.VerdictMLE
	}
	if limits.MemoryMB > 0 && res.MemoryKB > limits.MemoryMB*1024 {
		return result.VerdictMLE
	}
	if outputExceeded(res, limits) {
		return result.VerdictRE
	}
	if res.ExitCode != 0 || res.Signaled {
		return result.VerdictRE
	}
	return result.VerdictAC
}

// outputExceeded treats output that reached the FSIZE ceiling as over it.
func outputExceeded(res result.RunResult, limits spec.ResourceLimit) bool {
	return limits.OutputMB > 0 && res.OutputKB >= limits.OutputMB*1024
}

func compileDiagnostics(res result.RunResult) string {
	diag := res.Stderr
	if strings.TrimSpace(diag) == "" {
		diag = res.Stdout
	}
	if strings.TrimSpace(diag) == "" && res.TimedOut {
		diag = "compilation timed out"
	}
	if len(diag) > MaxDiagnosticsBytes {
		diag = diag[:MaxDiagnosticsBytes]
	}
	return diag
}

func asSandboxFault(err error, format string, args ...interface{}) error {
	if appErr.GetCode(err) == appErr.SandboxFault {
		return err
	}
	return appErr.SandboxFaultError(err, format, args...)
}

func prepareWorkDir(workDir string) error {
	if err := os.MkdirAll(workDir, 0755); err != nil {
		return appErr.SandboxFaultError(err, "create work dir failed")
	}
	return nil
}

func writeFile(workDir, name string, content []byte) error {
	if err := os.WriteFile(filepath.Join(workDir, name), content, 0644); err != nil {
		return appErr.SandboxFaultError(err, "write %s failed", name)
	}
	return nil
}
