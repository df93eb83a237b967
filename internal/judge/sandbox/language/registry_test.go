package language

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"contestjudge/internal/judge/model"
	"contestjudge/internal/judge/sandbox/profile"
	"contestjudge/internal/judge/sandbox/result"
	"contestjudge/internal/judge/sandbox/runner"
	appErr "contestjudge/pkg/errors"
)

// recordingRunner stages files the way a real compiler would.
type recordingRunner struct {
	compiles []runner.CompileRequest
	runs     []runner.RunRequest
	produce  []string
}

func (r *recordingRunner) Compile(ctx context.Context, req runner.CompileRequest) (result.CompileResult, error) {
	r.compiles = append(r.compiles, req)
	if err := os.MkdirAll(req.WorkDir, 0755); err != nil {
		return result.CompileResult{}, err
	}
	_ = os.WriteFile(filepath.Join(req.WorkDir, req.Language.SourceFile), req.Source, 0644)
	for _, name := range r.produce {
		_ = os.WriteFile(filepath.Join(req.WorkDir, name), []byte("bin"), 0755)
	}
	return result.CompileResult{OK: true}, nil
}

func (r *recordingRunner) Run(ctx context.Context, req runner.RunRequest) (result.ExecutionResult, error) {
	r.runs = append(r.runs, req)
	return result.ExecutionResult{Verdict: result.VerdictAC}, nil
}

func TestRegistryHasAllLanguages(t *testing.T) {
	t.Parallel()
	reg := NewRegistry(&recordingRunner{}, Profiles{}, nil)
	cases := []struct {
		lang       model.Language
		sourceFile string
		compiled   bool
		scaffold   string
	}{
		{model.LanguageJava, "Solution.java", true, "public class Solution"},
		{model.LanguagePython, "solution.py", false, "# Write your code here"},
		{model.LanguageCPP, "solution.cpp", true, "int main()"},
	}
	for _, tc := range cases {
		a, ok := reg.Get(tc.lang)
		if !ok {
			t.Fatalf("expected adapter for %s", tc.lang)
		}
		if a.SourceFile() != tc.sourceFile || a.Compiled() != tc.compiled {
			t.Fatalf("unexpected adapter for %s: source=%s compiled=%v", tc.lang, a.SourceFile(), a.Compiled())
		}
		if !strings.Contains(a.Scaffold(), tc.scaffold) {
			t.Fatalf("expected %s scaffold to contain %q", tc.lang, tc.scaffold)
		}
	}
	all := reg.All()
	if len(all) != 3 || all[0].Language() != model.LanguageJava || all[2].Language() != model.LanguageCPP {
		t.Fatalf("unexpected display order: %v", all)
	}
}

func TestOverrideReplacesCommands(t *testing.T) {
	t.Parallel()
	rr := &recordingRunner{produce: []string{"solution"}}
	reg := NewRegistry(rr, Profiles{}, map[string]Override{
		"CPP": {CompileCmd: "clang++ -O2 -o {bin} {src}", TimeMultiplier: 1.5},
	})
	a, _ := reg.Get(model.LanguageCPP)
	if _, _, err := a.Compile(context.Background(), CompileInput{SubmissionID: "s1", WorkDir: t.TempDir(), Source: "int main(){}"}); err != nil {
		t.Fatalf("compile: %v", err)
	}
	got := rr.compiles[0].Language
	if got.CompileCmdTpl != "clang++ -O2 -o {bin} {src}" || got.TimeMultiplier != 1.5 {
		t.Fatalf("expected override applied, got %+v", got)
	}
	if got.RunCmdTpl != "./{bin}" {
		t.Fatalf("expected run command kept, got %s", got.RunCmdTpl)
	}
}

func TestCompileAndExecuteCopiesArtifact(t *testing.T) {
	rr := &recordingRunner{produce: []string{"Solution.class", "Solution$Pair.class"}}
	reg := NewRegistry(rr, Profiles{Run: profile.TaskProfile{TaskType: profile.TaskTypeRun}}, nil)
	a, _ := reg.Get(model.LanguageJava)

	root := t.TempDir()
	artifact, res, err := a.Compile(context.Background(), CompileInput{
		SubmissionID: "s1", WorkDir: filepath.Join(root, "compile"), Source: "class Solution {}",
	})
	if err != nil || !res.OK {
		t.Fatalf("compile: res=%+v err=%v", res, err)
	}
	if len(artifact.Files) != 2 {
		t.Fatalf("expected two class files, got %v", artifact.Files)
	}

	runDir := filepath.Join(root, "t1")
	if _, err := a.Execute(context.Background(), artifact, ExecuteInput{
		SubmissionID: "s1", TestID: "t1", WorkDir: runDir, Input: "1", TimeLimitMs: 2000, MemoryLimitMB: 256,
	}); err != nil {
		t.Fatalf("execute: %v", err)
	}
	for _, name := range artifact.Files {
		if _, err := os.Stat(filepath.Join(runDir, name)); err != nil {
			t.Fatalf("expected %s copied into run dir: %v", name, err)
		}
	}
	run := rr.runs[0]
	if run.Limits.CPUTimeMs != 2000 || run.Limits.MemoryMB != 256 {
		t.Fatalf("expected problem limits passed through, got %+v", run.Limits)
	}
}

func TestCompileWithoutArtifactIsSandboxFault(t *testing.T) {
	reg := NewRegistry(&recordingRunner{}, Profiles{}, nil)
	a, _ := reg.Get(model.LanguageCPP)
	_, _, err := a.Compile(context.Background(), CompileInput{SubmissionID: "s1", WorkDir: t.TempDir(), Source: "x"})
	if appErr.GetCode(err) != appErr.SandboxFault {
		t.Fatalf("expected SandboxFault, got %v", err)
	}
}

func TestRegisterProfiles(t *testing.T) {
	t.Parallel()
	profiles := Profiles{
		Compile: profile.TaskProfile{TaskType: profile.TaskTypeCompile},
		Run:     profile.TaskProfile{TaskType: profile.TaskTypeRun, SeccompProfile: "run.json"},
	}
	reg := NewRegistry(&recordingRunner{}, profiles, nil)
	resolver := profile.NewStaticResolver(profile.TaskProfile{}.Isolation())
	reg.RegisterProfiles(resolver)
	iso, err := resolver.Resolve("PYTHON-run")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if iso.SeccompProfile != "run.json" {
		t.Fatalf("expected run isolation, got %+v", iso)
	}
}
