package engine

import (
	"os"
	"path/filepath"
	"strings"

	"contestjudge/internal/judge/sandbox/security"
	"contestjudge/internal/judge/sandbox/spec"
)

// InitRequest is the JSON document sandbox-init reads from stdin.
type InitRequest struct {
	RunSpec    spec.RunSpec
	Isolation  security.IsolationProfile
	Seccomp    bool
	Namespaces bool
}

// HostPath maps a container path back through the longest matching bind
// mount. Paths outside every mount are returned unchanged.
func HostPath(path string, mounts []spec.MountSpec) string {
	if path == "" {
		return ""
	}
	clean := filepath.Clean(path)
	var best *spec.MountSpec
	for i := range mounts {
		m := &mounts[i]
		if m.Target == "" || m.Source == "" {
			continue
		}
		target := filepath.Clean(m.Target)
		if clean != target && !strings.HasPrefix(clean, target+string(os.PathSeparator)) {
			continue
		}
		if best == nil || len(target) > len(filepath.Clean(best.Target)) {
			best = m
		}
	}
	if best == nil {
		return path
	}
	return filepath.Join(best.Source, strings.TrimPrefix(clean, filepath.Clean(best.Target)))
}
