//go:build linux

// sandbox-init is exec'd by the judge engine once per test run. It reads an
// engine.InitRequest on stdin, confines itself and execs the user program.
// Any failure before exec exits with engine.HelperFailureExitCode.
package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"contestjudge/internal/judge/sandbox/engine"
	"contestjudge/internal/judge/sandbox/spec"

	seccomp "github.com/seccomp/libseccomp-golang"
	"golang.org/x/sys/unix"
)

const fallbackPath = "PATH=/usr/local/sbin:/usr/local/bin:/usr/sbin:/usr/bin:/sbin:/bin"

func main() {
	if err := run(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, "sandbox-init: "+err.Error())
		os.Exit(engine.HelperFailureExitCode)
	}
}

func run() error {
	var req engine.InitRequest
	if err := json.NewDecoder(os.Stdin).Decode(&req); err != nil {
		return fmt.Errorf("decode request: %w", err)
	}
	rs := req.RunSpec
	if len(rs.Cmd) == 0 || rs.WorkDir == "" {
		return errors.New("command and work dir are required")
	}

	if req.Namespaces {
		if err := enterRoot(req.Isolation.RootFS, rs.BindMounts); err != nil {
			return err
		}
	} else {
		if req.Isolation.RootFS != "" {
			return errors.New("rootfs requires namespaces")
		}
		rs = onHost(rs)
	}
	if err := os.Chdir(rs.WorkDir); err != nil {
		return fmt.Errorf("chdir workdir: %w", err)
	}
	if err := setRlimits(rs.Limits); err != nil {
		return err
	}
	if err := redirectStdio(rs.StdinPath, rs.StdoutPath, rs.StderrPath); err != nil {
		return err
	}
	if req.Seccomp && req.Isolation.SeccompProfile != "" {
		if err := loadSeccomp(req.Isolation.SeccompProfile); err != nil {
			return err
		}
	}

	env := rs.Env
	if len(env) == 0 {
		env = []string{fallbackPath}
	}
	// LookPath consults PATH, so the program's environment must be live first.
	os.Clearenv()
	for _, kv := range env {
		if k, v, ok := strings.Cut(kv, "="); ok {
			_ = os.Setenv(k, v)
		}
	}
	bin, err := exec.LookPath(rs.Cmd[0])
	if err != nil {
		return fmt.Errorf("resolve command: %w", err)
	}
	return unix.Exec(bin, rs.Cmd, env)
}

// enterRoot applies the bind mounts under rootfs, mounts /proc and chroots.
// With an empty rootfs the mounts land on the host tree of the private
// mount namespace.
func enterRoot(rootfs string, mounts []spec.MountSpec) error {
	if err := unix.Mount("", "/", "", unix.MS_REC|unix.MS_PRIVATE, ""); err != nil {
		return fmt.Errorf("make mount private: %w", err)
	}
	for _, m := range mounts {
		if m.Source == "" || m.Target == "" {
			return fmt.Errorf("invalid mount %+v", m)
		}
		target := filepath.Join(rootfs, m.Target)
		if err := mountPoint(m.Source, target); err != nil {
			return err
		}
		if err := unix.Mount(m.Source, target, "", unix.MS_BIND|unix.MS_REC, ""); err != nil {
			return fmt.Errorf("bind %s: %w", m.Target, err)
		}
		if m.ReadOnly {
			if err := unix.Mount("", target, "", unix.MS_BIND|unix.MS_REMOUNT|unix.MS_RDONLY, ""); err != nil {
				return fmt.Errorf("remount %s readonly: %w", m.Target, err)
			}
		}
	}
	if rootfs == "" {
		return nil
	}
	proc := filepath.Join(rootfs, "proc")
	if err := os.MkdirAll(proc, 0o755); err != nil {
		return fmt.Errorf("mkdir proc: %w", err)
	}
	if err := unix.Mount("proc", proc, "proc", 0, ""); err != nil && !errors.Is(err, unix.EBUSY) {
		return fmt.Errorf("mount proc: %w", err)
	}
	if err := unix.Chroot(rootfs); err != nil {
		return fmt.Errorf("chroot: %w", err)
	}
	return os.Chdir("/")
}

// mountPoint creates target as a directory or empty file matching source.
func mountPoint(source, target string) error {
	info, err := os.Stat(source)
	if err != nil {
		return fmt.Errorf("stat mount source: %w", err)
	}
	if info.IsDir() {
		return os.MkdirAll(target, 0o755)
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(target, os.O_CREATE, 0o644)
	if err != nil {
		return fmt.Errorf("create mount target: %w", err)
	}
	return f.Close()
}

// onHost rewrites container paths through the bind mounts for runs without
// a mount namespace.
func onHost(rs spec.RunSpec) spec.RunSpec {
	rs.WorkDir = engine.HostPath(rs.WorkDir, rs.BindMounts)
	rs.StdinPath = engine.HostPath(rs.StdinPath, rs.BindMounts)
	rs.StdoutPath = engine.HostPath(rs.StdoutPath, rs.BindMounts)
	rs.StderrPath = engine.HostPath(rs.StderrPath, rs.BindMounts)
	return rs
}

type rlimit struct {
	name     string
	resource int
	value    uint64
}

// rlimitsFor converts limits to setrlimit values. CPU time rounds up to whole
// seconds; the cgroup covers memory.
func rlimitsFor(limits spec.ResourceLimit) []rlimit {
	var out []rlimit
	if limits.CPUTimeMs > 0 {
		out = append(out, rlimit{"cpu", unix.RLIMIT_CPU, uint64((limits.CPUTimeMs + 999) / 1000)})
	}
	if limits.OutputMB > 0 {
		out = append(out, rlimit{"fsize", unix.RLIMIT_FSIZE, uint64(limits.OutputMB) << 20})
	}
	if limits.StackMB > 0 {
		out = append(out, rlimit{"stack", unix.RLIMIT_STACK, uint64(limits.StackMB) << 20})
	}
	if limits.PIDs > 0 {
		out = append(out, rlimit{"nproc", unix.RLIMIT_NPROC, uint64(limits.PIDs)})
	}
	return out
}

func setRlimits(limits spec.ResourceLimit) error {
	for _, l := range rlimitsFor(limits) {
		if err := unix.Setrlimit(l.resource, &unix.Rlimit{Cur: l.value, Max: l.value}); err != nil {
			return fmt.Errorf("set rlimit %s: %w", l.name, err)
		}
	}
	return nil
}

// redirectStdio points fds 0-2 at the given files; empty paths mean /dev/null.
func redirectStdio(stdin, stdout, stderr string) error {
	streams := []struct {
		path string
		flag int
		fd   int
	}{
		{stdin, os.O_RDONLY, 0},
		{stdout, os.O_CREATE | os.O_WRONLY | os.O_TRUNC, 1},
		{stderr, os.O_CREATE | os.O_WRONLY | os.O_TRUNC, 2},
	}
	for _, s := range streams {
		path := s.path
		if path == "" {
			path = os.DevNull
		}
		f, err := os.OpenFile(path, s.flag, 0o644)
		if err != nil {
			return fmt.Errorf("open fd %d: %w", s.fd, err)
		}
		err = unix.Dup2(int(f.Fd()), s.fd)
		_ = f.Close()
		if err != nil {
			return fmt.Errorf("dup fd %d: %w", s.fd, err)
		}
	}
	return nil
}

// seccompProfile is the subset of the docker seccomp format the judge ships.
type seccompProfile struct {
	DefaultAction string `json:"defaultAction"`
	Syscalls      []struct {
		Names  []string `json:"names"`
		Action string   `json:"action"`
	} `json:"syscalls"`
}

func loadSeccomp(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read seccomp profile: %w", err)
	}
	var p seccompProfile
	if err := json.Unmarshal(data, &p); err != nil {
		return fmt.Errorf("parse seccomp profile: %w", err)
	}
	def, err := seccompAction(p.DefaultAction)
	if err != nil {
		return err
	}
	filter, err := seccomp.NewFilter(def)
	if err != nil {
		return fmt.Errorf("create seccomp filter: %w", err)
	}
	defer filter.Release()
	for _, rule := range p.Syscalls {
		act, err := seccompAction(rule.Action)
		if err != nil {
			return err
		}
		for _, name := range rule.Names {
			call, err := seccomp.GetSyscallFromName(name)
			if err != nil {
				return fmt.Errorf("unknown syscall %s: %w", name, err)
			}
			if err := filter.AddRule(call, act); err != nil {
				return fmt.Errorf("add seccomp rule %s: %w", name, err)
			}
		}
	}
	if err := unix.Prctl(unix.PR_SET_NO_NEW_PRIVS, 1, 0, 0, 0); err != nil {
		return fmt.Errorf("set no new privs: %w", err)
	}
	if err := filter.Load(); err != nil {
		return fmt.Errorf("load seccomp filter: %w", err)
	}
	return nil
}

// seccompAction supports the three actions the shipped profiles use.
// Denied network calls fail with EPERM so runtimes can report them.
func seccompAction(name string) (seccomp.ScmpAction, error) {
	switch strings.ToUpper(name) {
	case "SCMP_ACT_ALLOW":
		return seccomp.ActAllow, nil
	case "SCMP_ACT_ERRNO":
		return seccomp.ActErrno.SetReturnCode(int16(unix.EPERM)), nil
	case "SCMP_ACT_KILL_PROCESS":
		return seccomp.ActKillProcess, nil
	default:
		return seccomp.ActInvalid, fmt.Errorf("unsupported seccomp action %q", name)
	}
}
