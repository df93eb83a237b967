//go:build linux

package engine

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"contestjudge/internal/judge/sandbox/security"
	"contestjudge/internal/judge/sandbox/spec"
	appErr "contestjudge/pkg/errors"
)

type staticResolver struct {
	profile security.IsolationProfile
}

func (r staticResolver) Resolve(profile string) (security.IsolationProfile, error) {
	return r.profile, nil
}

func TestHostPath(t *testing.T) {
	t.Parallel()
	runSpec := spec.RunSpec{BindMounts: []spec.MountSpec{
		{Source: "/var/judge/s1/t1", Target: "/work"},
		{Source: "/var/judge/s1/in.txt", Target: "/work/input.txt", ReadOnly: true},
	}}
	cases := []struct {
		path string
		want string
	}{
		{"/work/output.txt", "/var/judge/s1/t1/output.txt"},
		{"/work/input.txt", "/var/judge/s1/in.txt"},
		{"/workspace/x", "/workspace/x"},
		{"/work", "/var/judge/s1/t1"},
		{"", ""},
	}
	for _, tc := range cases {
		if got := HostPath(tc.path, runSpec.BindMounts); got != tc.want {
			t.Fatalf("expected %q for %q, got %q", tc.want, tc.path, got)
		}
	}
}

func TestStdoutReadLimit(t *testing.T) {
	t.Parallel()
	if got := stdoutReadLimit(64*1024, spec.ResourceLimit{OutputMB: 16}); got != 16*1024*1024+1 {
		t.Fatalf("expected output ceiling plus one byte, got %d", got)
	}
	if got := stdoutReadLimit(64*1024, spec.ResourceLimit{}); got != 64*1024 {
		t.Fatalf("expected configured limit, got %d", got)
	}
}

func TestReadLimitedFile(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "out.txt")
	if err := os.WriteFile(path, []byte("abcdef"), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if got := readLimitedFile(path, 3); got != "abc" {
		t.Fatalf("expected abc, got %q", got)
	}
	if got := readLimitedFile(filepath.Join(t.TempDir(), "missing"), 3); got != "" {
		t.Fatalf("expected empty string for missing file, got %q", got)
	}
}

func TestRunRejectsInvalidSpecAsSandboxFault(t *testing.T) {
	t.Parallel()
	eng, err := NewEngine(Config{HelperPath: "/nonexistent/sandbox-init"}, staticResolver{})
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	_, err = eng.Run(context.Background(), spec.RunSpec{SubmissionID: "s1"})
	if appErr.GetCode(err) != appErr.SandboxFault {
		t.Fatalf("expected SandboxFault, got %v", err)
	}
}

func TestRunMissingHelperIsSandboxFault(t *testing.T) {
	t.Parallel()
	eng, err := NewEngine(Config{HelperPath: "/nonexistent/sandbox-init"}, staticResolver{})
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	_, err = eng.Run(context.Background(), spec.RunSpec{
		SubmissionID: "s1",
		TestID:       "t1",
		WorkDir:      "/work",
		Cmd:          []string{"true"},
		Profile:      "PYTHON-run",
	})
	if appErr.GetCode(err) != appErr.SandboxFault {
		t.Fatalf("expected SandboxFault, got %v", err)
	}
}

func TestNewEngineRequiresCgroupRoot(t *testing.T) {
	t.Parallel()
	if _, err := NewEngine(Config{EnableCgroup: true}, staticResolver{}); err == nil {
		t.Fatalf("expected error without cgroup root")
	}
}

func TestRunCgroupLimitsAndAccounting(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	cg, err := newRunCgroup(root, "s1", "t1")
	if err != nil {
		t.Fatalf("new cgroup: %v", err)
	}
	if filepath.Dir(cg.dir) != filepath.Join(root, "s1") {
		t.Fatalf("expected run dir under submission, got %s", cg.dir)
	}
	if err := cg.limit(spec.ResourceLimit{MemoryMB: 256, PIDs: 16}); err != nil {
		t.Fatalf("limit: %v", err)
	}
	for name, want := range map[string]string{"memory.max": "268435456", "pids.max": "16", "memory.swap.max": "0"} {
		got, err := os.ReadFile(filepath.Join(cg.dir, name))
		if err != nil || string(got) != want {
			t.Fatalf("expected %s=%s, got %q err=%v", name, want, got, err)
		}
	}

	if cg.oomKilled() || cg.peakKB() != 0 {
		t.Fatalf("expected no accounting before files exist")
	}
	_ = os.WriteFile(filepath.Join(cg.dir, "memory.events"), []byte("low 0\nhigh 0\nmax 4\noom 1\noom_kill 1\n"), 0o644)
	_ = os.WriteFile(filepath.Join(cg.dir, "memory.peak"), []byte("2097152\n"), 0o644)
	if !cg.oomKilled() {
		t.Fatalf("expected oom kill to be detected")
	}
	if got := cg.peakKB(); got != 2048 {
		t.Fatalf("expected 2048 KiB peak, got %d", got)
	}

	cg.remove()
	if _, err := os.Stat(cg.dir); !os.IsNotExist(err) {
		t.Fatalf("expected cgroup dir removed, got %v", err)
	}
}

func TestRunCgroupUnboundedPids(t *testing.T) {
	t.Parallel()
	cg, err := newRunCgroup(t.TempDir(), "s1", "t1")
	if err != nil {
		t.Fatalf("new cgroup: %v", err)
	}
	if err := cg.limit(spec.ResourceLimit{}); err != nil {
		t.Fatalf("limit: %v", err)
	}
	if got, _ := os.ReadFile(filepath.Join(cg.dir, "pids.max")); string(got) != "max" {
		t.Fatalf("expected pids.max=max, got %q", got)
	}
	if _, err := os.Stat(filepath.Join(cg.dir, "memory.max")); !os.IsNotExist(err) {
		t.Fatalf("expected memory.max untouched without a memory limit")
	}
}
