// Package profile holds language and task profiles for sandbox runs.
package profile

import (
	"fmt"

	"contestjudge/internal/judge/sandbox/security"
	"contestjudge/internal/judge/sandbox/spec"
)

// TaskType identifies the sandbox task category.
type TaskType string

const (
	TaskTypeCompile TaskType = "compile"
	TaskTypeRun     TaskType = "run"
)

// TaskProfile defines sandbox resources and security settings for a task type.
type TaskProfile struct {
	TaskType       TaskType
	RootFS         string
	SeccompProfile string
	DefaultLimits  spec.ResourceLimit
}

// Isolation returns the engine-facing part of the profile.
func (p TaskProfile) Isolation() security.IsolationProfile {
	return security.IsolationProfile{
		RootFS:         p.RootFS,
		SeccompProfile: p.SeccompProfile,
	}
}

// Name is the profile key passed to the engine.
func Name(languageID string, taskType TaskType) string {
	if languageID == "" {
		return string(taskType)
	}
	return fmt.Sprintf("%s-%s", languageID, taskType)
}

// LanguageSpec describes how one language is compiled and run.
// Command templates accept {src} and {bin} placeholders.
type LanguageSpec struct {
	ID               string
	SourceFile       string
	BinaryFile       string
	ArtifactGlobs    []string
	CompileEnabled   bool
	CompileCmdTpl    string
	RunCmdTpl        string
	Env              []string
	TimeMultiplier   float64
	MemoryMultiplier float64
}

// StaticResolver maps profile names to isolation settings.
type StaticResolver struct {
	profiles map[string]security.IsolationProfile
	fallback security.IsolationProfile
}

// NewStaticResolver returns a resolver that answers fallback for unknown names.
func NewStaticResolver(fallback security.IsolationProfile) *StaticResolver {
	return &StaticResolver{profiles: make(map[string]security.IsolationProfile), fallback: fallback}
}

// Register binds a task profile for a language.
func (r *StaticResolver) Register(languageID string, p TaskProfile) {
	r.profiles[Name(languageID, p.TaskType)] = p.Isolation()
}

// Resolve implements engine.ProfileResolver.
func (r *StaticResolver) Resolve(name string) (security.IsolationProfile, error) {
	if name == "" {
		return security.IsolationProfile{}, fmt.Errorf("profile name is required")
	}
	if p, ok := r.profiles[name]; ok {
		return p, nil
	}
	return r.fallback, nil
}
