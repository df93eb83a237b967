//go:build linux

package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"contestjudge/internal/judge/sandbox/result"
	"contestjudge/internal/judge/sandbox/security"
	"contestjudge/internal/judge/sandbox/spec"
	appErr "contestjudge/pkg/errors"
	"contestjudge/pkg/utils/logger"

	mapset "github.com/deckarep/golang-set/v2"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"
)

const defaultStdoutStderrMaxBytes int64 = 64 * 1024

type linuxEngine struct {
	cfg      Config
	resolver ProfileResolver

	mu   sync.Mutex
	live map[string]mapset.Set[string] // submission id -> cgroup dirs of running tests
}

// NewEngine creates a Linux sandbox engine that execs cfg.HelperPath once
// per run.
func NewEngine(cfg Config, resolver ProfileResolver) (Engine, error) {
	if resolver == nil {
		return nil, fmt.Errorf("profile resolver is required")
	}
	if cfg.EnableCgroup && cfg.CgroupRoot == "" {
		return nil, fmt.Errorf("cgroup root is required when cgroups are enabled")
	}
	if cfg.StdoutStderrMaxBytes <= 0 {
		cfg.StdoutStderrMaxBytes = defaultStdoutStderrMaxBytes
	}
	if cfg.HelperPath == "" {
		cfg.HelperPath = "sandbox-init"
	}
	return &linuxEngine{cfg: cfg, resolver: resolver, live: make(map[string]mapset.Set[string])}, nil
}

func (e *linuxEngine) Run(ctx context.Context, rs spec.RunSpec) (result.RunResult, error) {
	if err := validateRunSpec(rs); err != nil {
		return result.RunResult{}, appErr.SandboxFaultError(err, "invalid run spec")
	}
	iso, err := e.isolation(rs.Profile)
	if err != nil {
		return result.RunResult{}, appErr.SandboxFaultError(err, "resolve profile %s failed", rs.Profile)
	}

	var cg *runCgroup
	if e.cfg.EnableCgroup {
		if cg, err = e.enterCgroup(rs); err != nil {
			return result.RunResult{}, appErr.SandboxFaultError(err, "prepare cgroup failed")
		}
		defer e.leaveCgroup(rs.SubmissionID, cg)
	}

	payload, err := json.Marshal(InitRequest{
		RunSpec:    rs,
		Isolation:  iso,
		Seccomp:    e.cfg.EnableSeccomp,
		Namespaces: e.cfg.EnableNamespaces,
	})
	if err != nil {
		return result.RunResult{}, appErr.SandboxFaultError(err, "encode init request failed")
	}
	var helperErr bytes.Buffer
	cmd := exec.Command(e.cfg.HelperPath)
	cmd.SysProcAttr = sysProcAttr(e.cfg.EnableNamespaces)
	cmd.Stdin = bytes.NewReader(payload)
	cmd.Stderr = &helperErr

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return result.RunResult{}, appErr.SandboxFaultError(err, "start sandbox helper failed")
	}
	if cg != nil {
		if err := cg.attach(cmd.Process.Pid); err != nil {
			logger.Warn(ctx, "attach helper to cgroup failed", zap.String("cgroup", cg.dir), zap.Error(err))
		}
	}
	timedOut, waitErr := waitHelper(ctx, cmd, rs.Limits.WallTimeMs)
	wall := time.Since(start)

	if ctx.Err() != nil && !timedOut {
		return result.RunResult{}, appErr.SandboxFaultError(ctx.Err(), "run %s/%s cancelled", rs.SubmissionID, rs.TestID)
	}
	state := cmd.ProcessState
	exit := exitCode(waitErr, state)
	if exit == HelperFailureExitCode && helperErr.Len() > 0 {
		msg := bytes.TrimSpace(helperErr.Bytes())
		logger.Warn(ctx, "sandbox helper failed", zap.String("test_id", rs.TestID), zap.ByteString("stderr", msg))
		return result.RunResult{}, appErr.SandboxFaultError(errors.New(string(msg)), "sandbox helper failed")
	}

	stdoutPath := HostPath(rs.StdoutPath, rs.BindMounts)
	res := result.RunResult{
		ExitCode:   exit,
		Signaled:   wasSignaled(state),
		TimedOut:   timedOut,
		TimeMs:     cpuTimeMs(state),
		WallTimeMs: wall.Milliseconds(),
		MemoryKB:   maxRSSKB(state),
		OutputKB:   stdoutSizeKB(stdoutPath),
		Stdout:     readLimitedFile(stdoutPath, stdoutReadLimit(e.cfg.StdoutStderrMaxBytes, rs.Limits)),
		Stderr:     readLimitedFile(HostPath(rs.StderrPath, rs.BindMounts), e.cfg.StdoutStderrMaxBytes),
	}
	if cg != nil {
		if peak := cg.peakKB(); peak > 0 {
			res.MemoryKB = peak
		}
		res.OomKilled = cg.oomKilled()
	}
	if res.TimedOut && res.ExitCode == 0 {
		res.ExitCode = -1
	}
	return res, nil
}

// KillSubmission kills every running test of submissionID through its cgroup.
func (e *linuxEngine) KillSubmission(ctx context.Context, submissionID string) error {
	if submissionID == "" {
		return fmt.Errorf("submission id is required")
	}
	e.mu.Lock()
	var dirs []string
	if set, ok := e.live[submissionID]; ok {
		dirs = set.ToSlice()
	}
	e.mu.Unlock()
	for _, dir := range dirs {
		if err := killCgroupDir(dir); err != nil {
			logger.Warn(ctx, "kill cgroup failed", zap.String("cgroup", dir), zap.Error(err))
		}
	}
	return nil
}

func (e *linuxEngine) isolation(name string) (security.IsolationProfile, error) {
	iso, err := e.resolver.Resolve(name)
	if err != nil {
		return iso, err
	}
	if e.cfg.SeccompDir != "" && iso.SeccompProfile != "" && !filepath.IsAbs(iso.SeccompProfile) {
		iso.SeccompProfile = filepath.Join(e.cfg.SeccompDir, iso.SeccompProfile)
	}
	return iso, nil
}

func (e *linuxEngine) enterCgroup(rs spec.RunSpec) (*runCgroup, error) {
	cg, err := newRunCgroup(e.cfg.CgroupRoot, rs.SubmissionID, rs.TestID)
	if err != nil {
		return nil, err
	}
	if err := cg.limit(rs.Limits); err != nil {
		cg.remove()
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	set, ok := e.live[rs.SubmissionID]
	if !ok {
		set = mapset.NewThreadUnsafeSet[string]()
		e.live[rs.SubmissionID] = set
	}
	set.Add(cg.dir)
	return cg, nil
}

func (e *linuxEngine) leaveCgroup(submissionID string, cg *runCgroup) {
	e.mu.Lock()
	if set, ok := e.live[submissionID]; ok {
		set.Remove(cg.dir)
		if set.Cardinality() == 0 {
			delete(e.live, submissionID)
		}
	}
	e.mu.Unlock()
	cg.remove()
}

// waitHelper waits for the helper, killing its process group when ctx ends
// or the wall clock limit passes. timedOut is set only for the wall limit.
func waitHelper(ctx context.Context, cmd *exec.Cmd, wallMs int64) (timedOut bool, err error) {
	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	var wall <-chan time.Time
	if wallMs > 0 {
		timer := time.NewTimer(time.Duration(wallMs) * time.Millisecond)
		defer timer.Stop()
		wall = timer.C
	}
	select {
	case err = <-done:
		return false, err
	case <-ctx.Done():
	case <-wall:
		timedOut = true
	}
	_ = unix.Kill(-cmd.Process.Pid, unix.SIGKILL)
	return timedOut, <-done
}

func exitCode(err error, state *os.ProcessState) int {
	if state != nil {
		return state.ExitCode()
	}
	var exitErr *exec.ExitError
	switch {
	case err == nil:
		return 0
	case errors.As(err, &exitErr):
		return exitErr.ExitCode()
	default:
		return -1
	}
}

func wasSignaled(state *os.ProcessState) bool {
	if state == nil {
		return false
	}
	ws, ok := state.Sys().(syscall.WaitStatus)
	return ok && ws.Signaled()
}

func maxRSSKB(state *os.ProcessState) int64 {
	if state == nil {
		return 0
	}
	if usage, ok := state.SysUsage().(*syscall.Rusage); ok {
		return usage.Maxrss
	}
	return 0
}

func validateRunSpec(rs spec.RunSpec) error {
	switch {
	case rs.SubmissionID == "":
		return fmt.Errorf("submission id is required")
	case rs.TestID == "":
		return fmt.Errorf("test id is required")
	case rs.WorkDir == "":
		return fmt.Errorf("work dir is required")
	case len(rs.Cmd) == 0:
		return fmt.Errorf("command is required")
	case rs.Profile == "":
		return fmt.Errorf("profile is required")
	}
	return nil
}

// sysProcAttr puts the helper in its own process group. With namespaces on
// it also gets fresh mount, pid, uts, ipc, net and user namespaces, mapping
// the judge user to root inside.
func sysProcAttr(namespaces bool) *syscall.SysProcAttr {
	attr := &syscall.SysProcAttr{Setpgid: true, Pdeathsig: syscall.SIGKILL}
	if !namespaces {
		return attr
	}
	attr.Cloneflags = unix.CLONE_NEWNS | unix.CLONE_NEWPID | unix.CLONE_NEWUTS |
		unix.CLONE_NEWIPC | unix.CLONE_NEWNET | unix.CLONE_NEWUSER
	attr.UidMappings = []syscall.SysProcIDMap{{ContainerID: 0, HostID: os.Getuid(), Size: 1}}
	attr.GidMappings = []syscall.SysProcIDMap{{ContainerID: 0, HostID: os.Getgid(), Size: 1}}
	attr.GidMappingsEnableSetgroups = false
	return attr
}
