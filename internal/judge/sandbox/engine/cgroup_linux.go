//go:build linux

package engine

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"contestjudge/internal/judge/sandbox/spec"
)

// runCgroup is the cgroup v2 leaf for one test run, laid out as
// <root>/<submission>/<test>-<nanos> so KillSubmission can find every run of
// a submission.
type runCgroup struct {
	dir string
}

func newRunCgroup(root, submissionID, testID string) (*runCgroup, error) {
	dir := filepath.Join(root, submissionID, fmt.Sprintf("%s-%d", testID, time.Now().UnixNano()))
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create cgroup %s: %w", dir, err)
	}
	return &runCgroup{dir: dir}, nil
}

// limit writes the memory and pids ceilings. Swap is disabled whenever memory
// is bounded so MLE is not hidden behind swapping.
func (c *runCgroup) limit(limits spec.ResourceLimit) error {
	pids := "max"
	if limits.PIDs > 0 {
		pids = strconv.FormatInt(limits.PIDs, 10)
	}
	if err := c.write("pids.max", pids); err != nil {
		return err
	}
	if limits.MemoryMB <= 0 {
		return nil
	}
	if err := c.write("memory.max", strconv.FormatInt(limits.MemoryMB<<20, 10)); err != nil {
		return err
	}
	_ = c.write("memory.swap.max", "0")
	return nil
}

func (c *runCgroup) attach(pid int) error {
	if pid <= 0 {
		return fmt.Errorf("invalid pid %d", pid)
	}
	return c.write("cgroup.procs", strconv.Itoa(pid))
}

func (c *runCgroup) remove() {
	_ = os.RemoveAll(c.dir)
}

// oomKilled reports a non-zero oom_kill counter in memory.events.
func (c *runCgroup) oomKilled() bool {
	data, err := os.ReadFile(filepath.Join(c.dir, "memory.events"))
	if err != nil {
		return false
	}
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		var key string
		var n int64
		if _, err := fmt.Sscan(sc.Text(), &key, &n); err == nil && key == "oom_kill" {
			return n > 0
		}
	}
	return false
}

// peakKB is memory.peak in KiB, or 0 when the kernel does not expose it.
func (c *runCgroup) peakKB() int64 {
	data, err := os.ReadFile(filepath.Join(c.dir, "memory.peak"))
	if err != nil {
		return 0
	}
	v, err := strconv.ParseInt(string(bytes.TrimSpace(data)), 10, 64)
	if err != nil || v <= 0 {
		return 0
	}
	return v >> 10
}

func (c *runCgroup) write(name, value string) error {
	if err := os.WriteFile(filepath.Join(c.dir, name), []byte(value), 0o640); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	return nil
}

// killCgroupDir kills every process in dir via cgroup.kill.
func killCgroupDir(dir string) error {
	return os.WriteFile(filepath.Join(dir, "cgroup.kill"), []byte("1"), 0o600)
}
