package language

import (
	"contestjudge/internal/judge/model"
	"contestjudge/internal/judge/sandbox/profile"
)

const pythonScaffold = "# Read input\n# Write your code here\n# Print output\n"

// Python has no compile step; Compile only stages solution.py.
func pythonSpec() profile.LanguageSpec {
	return profile.LanguageSpec{
		ID:               string(model.LanguagePython),
		SourceFile:       "solution.py",
		BinaryFile:       "solution.py",
		ArtifactGlobs:    []string{"solution.py"},
		CompileEnabled:   false,
		RunCmdTpl:        "python3 {src}",
		Env:              append([]string{"PYTHONDONTWRITEBYTECODE=1", "PYTHONIOENCODING=utf-8"}, defaultEnv...),
		TimeMultiplier:   1,
		MemoryMultiplier: 1,
	}
}
