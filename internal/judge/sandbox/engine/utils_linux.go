//go:build linux

package engine

import (
	"io"
	"os"
	"syscall"
	"time"

	"contestjudge/internal/judge/sandbox/spec"
)

func cpuTimeMs(state *os.ProcessState) int64 {
	if state == nil {
		return 0
	}
	usage, ok := state.SysUsage().(*syscall.Rusage)
	if !ok {
		return 0
	}
	utime := time.Duration(usage.Utime.Sec)*time.Second + time.Duration(usage.Utime.Usec)*time.Microsecond
	stime := time.Duration(usage.Stime.Sec)*time.Second + time.Duration(usage.Stime.Usec)*time.Microsecond
	return (utime + stime).Milliseconds()
}

func stdoutSizeKB(path string) int64 {
	if path == "" {
		return 0
	}
	info, err := os.Stat(path)
	if err != nil {
		return 0
	}
	return info.Size() / 1024
}

// stdoutReadLimit is one byte past the output ceiling so an overflow stays visible.
func stdoutReadLimit(configured int64, limits spec.ResourceLimit) int64 {
	if limits.OutputMB > 0 {
		ceiling := limits.OutputMB*1024*1024 + 1
		if ceiling > configured {
			return ceiling
		}
	}
	return configured
}

func readLimitedFile(path string, maxBytes int64) string {
	if path == "" || maxBytes <= 0 {
		return ""
	}
	file, err := os.Open(path)
	if err != nil {
		return ""
	}
	defer file.Close()
	data, err := io.ReadAll(io.LimitReader(file, maxBytes))
	if err != nil {
		return ""
	}
	return string(data)
}
