//go:build linux

package main

import (
	"strings"
	"testing"

	"contestjudge/internal/judge/sandbox/spec"

	"golang.org/x/sys/unix"
)

func TestOnHost(t *testing.T) {
	t.Parallel()
	rs := onHost(spec.RunSpec{
		WorkDir:    "/work",
		StdinPath:  "/work/input.txt",
		StdoutPath: "/work/output.txt",
		StderrPath: "/tmp/err.log",
		BindMounts: []spec.MountSpec{{Source: "/var/judge/s1-abc/test-1", Target: "/work"}},
	})
	if rs.WorkDir != "/var/judge/s1-abc/test-1" {
		t.Fatalf("expected host work dir, got %s", rs.WorkDir)
	}
	if rs.StdinPath != "/var/judge/s1-abc/test-1/input.txt" {
		t.Fatalf("expected host stdin path, got %s", rs.StdinPath)
	}
	if rs.StderrPath != "/tmp/err.log" {
		t.Fatalf("expected unmapped path kept, got %s", rs.StderrPath)
	}
}

func TestRlimitsFor(t *testing.T) {
	t.Parallel()
	got := rlimitsFor(spec.ResourceLimit{CPUTimeMs: 1500, OutputMB: 16, StackMB: 64, MemoryMB: 256})
	want := map[int]uint64{
		unix.RLIMIT_CPU:   2,
		unix.RLIMIT_FSIZE: 16 << 20,
		unix.RLIMIT_STACK: 64 << 20,
	}
	if len(got) != len(want) {
		t.Fatalf("expected %d rlimits, got %+v", len(want), got)
	}
	for _, l := range got {
		if want[l.resource] != l.value {
			t.Fatalf("unexpected %s limit %d", l.name, l.value)
		}
	}
	if len(rlimitsFor(spec.ResourceLimit{})) != 0 {
		t.Fatalf("expected no rlimits for an empty limit set")
	}
}

func TestSeccompAction(t *testing.T) {
	t.Parallel()
	for _, name := range []string{"SCMP_ACT_ALLOW", "scmp_act_kill_process", "SCMP_ACT_ERRNO"} {
		if _, err := seccompAction(name); err != nil {
			t.Fatalf("expected %s to parse, got %v", name, err)
		}
	}
	if _, err := seccompAction("SCMP_ACT_TRACE"); err == nil || !strings.Contains(err.Error(), "unsupported") {
		t.Fatalf("expected unsupported action error, got %v", err)
	}
}
