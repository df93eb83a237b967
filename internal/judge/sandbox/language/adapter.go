// Package language binds each supported language to a compile and run adapter.
package language

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"sort"

	"contestjudge/internal/judge/model"
	"contestjudge/internal/judge/sandbox/profile"
	"contestjudge/internal/judge/sandbox/result"
	"contestjudge/internal/judge/sandbox/runner"
	"contestjudge/internal/judge/sandbox/spec"
	appErr "contestjudge/pkg/errors"
)

// CompileInput is the staged source for one submission.
type CompileInput struct {
	SubmissionID string
	WorkDir      string
	Source       string
}

// Artifact is what a compile step leaves behind for test runs.
type Artifact struct {
	Dir   string
	Files []string
}

// ExecuteInput is one test run. Limits are the problem limits.
type ExecuteInput struct {
	SubmissionID  string
	TestID        string
	WorkDir       string
	Input         string
	TimeLimitMs   int64
	MemoryLimitMB int64
}

// Adapter compiles and runs programs of one language.
type Adapter interface {
	Language() model.Language
	Scaffold() string
	SourceFile() string
	Compiled() bool
	Compile(ctx context.Context, in CompileInput) (Artifact, result.CompileResult, error)
	Execute(ctx context.Context, artifact Artifact, in ExecuteInput) (result.ExecutionResult, error)
}

// Override adjusts a built-in language definition from configuration.
type Override struct {
	CompileCmd       string             `yaml:"compileCmd"`
	RunCmd           string             `yaml:"runCmd"`
	TimeMultiplier   float64            `yaml:"timeMultiplier"`
	MemoryMultiplier float64            `yaml:"memoryMultiplier"`
	Env              []string           `yaml:"env"`
	CompileLimits    spec.ResourceLimit `yaml:"compileLimits"`
}

func (o Override) apply(lang profile.LanguageSpec) profile.LanguageSpec {
	if o.CompileCmd != "" {
		lang.CompileCmdTpl = o.CompileCmd
	}
	if o.RunCmd != "" {
		lang.RunCmdTpl = o.RunCmd
	}
	if o.TimeMultiplier > 0 {
		lang.TimeMultiplier = o.TimeMultiplier
	}
	if o.MemoryMultiplier > 0 {
		lang.MemoryMultiplier = o.MemoryMultiplier
	}
	if len(o.Env) > 0 {
		lang.Env = o.Env
	}
	return lang
}

// Profiles are the task profiles shared by every language.
type Profiles struct {
	Compile profile.TaskProfile
	Run     profile.TaskProfile
}

var defaultEnv = []string{"PATH=/usr/local/sbin:/usr/local/bin:/usr/sbin:/usr/bin:/sbin:/bin", "LANG=C.UTF-8"}

type adapter struct {
	lang     model.Language
	spec     profile.LanguageSpec
	scaffold string
	runner   runner.Runner
	profiles Profiles
	limits   spec.ResourceLimit
}

func (a *adapter) Language() model.Language { return a.lang }
func (a *adapter) Scaffold() string         { return a.scaffold }
func (a *adapter) SourceFile() string       { return a.spec.SourceFile }
func (a *adapter) Compiled() bool           { return a.spec.CompileEnabled }

func (a *adapter) Compile(ctx context.Context, in CompileInput) (Artifact, result.CompileResult, error) {
	res, err := a.runner.Compile(ctx, runner.CompileRequest{
		SubmissionID: in.SubmissionID,
		Language:     a.spec,
		Profile:      a.profiles.Compile,
		WorkDir:      in.WorkDir,
		Source:       []byte(in.Source),
		Limits:       a.limits,
	})
	if err != nil || !res.OK {
		return Artifact{}, res, err
	}
	files, err := collectArtifact(in.WorkDir, a.spec.ArtifactGlobs)
	if err != nil {
		return Artifact{}, res, err
	}
	return Artifact{Dir: in.WorkDir, Files: files}, res, nil
}

func (a *adapter) Execute(ctx context.Context, artifact Artifact, in ExecuteInput) (result.ExecutionResult, error) {
	if err := copyArtifact(artifact, in.WorkDir); err != nil {
		return result.ExecutionResult{}, err
	}
	return a.runner.Run(ctx, runner.RunRequest{
		SubmissionID: in.SubmissionID,
		TestID:       in.TestID,
		Language:     a.spec,
		Profile:      a.profiles.Run,
		WorkDir:      in.WorkDir,
		Input:        in.Input,
		Limits:       spec.ResourceLimit{CPUTimeMs: in.TimeLimitMs, MemoryMB: in.MemoryLimitMB},
	})
}

func collectArtifact(dir string, globs []string) ([]string, error) {
	seen := make(map[string]struct{})
	for _, pattern := range globs {
		matches, err := filepath.Glob(filepath.Join(dir, pattern))
		if err != nil {
			return nil, appErr.SandboxFaultError(err, "bad artifact pattern %s", pattern)
		}
		for _, m := range matches {
			seen[filepath.Base(m)] = struct{}{}
		}
	}
	if len(seen) == 0 {
		return nil, appErr.SandboxFaultError(os.ErrNotExist, "compile produced no artifact in %s", dir)
	}
	files := make([]string, 0, len(seen))
	for name := range seen {
		files = append(files, name)
	}
	sort.Strings(files)
	return files, nil
}

func copyArtifact(artifact Artifact, dstDir string) error {
	if err := os.MkdirAll(dstDir, 0755); err != nil {
		return appErr.SandboxFaultError(err, "create test workdir failed")
	}
	for _, name := range artifact.Files {
		if err := copyFile(filepath.Join(artifact.Dir, name), filepath.Join(dstDir, name)); err != nil {
			return err
		}
	}
	return nil
}

func copyFile(src, dst string) error {
	srcFile, err := os.Open(src)
	if err != nil {
		return appErr.SandboxFaultError(err, "open artifact failed")
	}
	defer srcFile.Close()

	info, err := srcFile.Stat()
	if err != nil {
		return appErr.SandboxFaultError(err, "stat artifact failed")
	}
	dstFile, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return appErr.SandboxFaultError(err, "create test artifact failed")
	}
	defer dstFile.Close()

	if _, err := io.Copy(dstFile, srcFile); err != nil {
		return appErr.SandboxFaultError(err, "copy artifact failed")
	}
	return nil
}
