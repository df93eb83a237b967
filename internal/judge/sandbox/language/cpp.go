package language

import (
	"contestjudge/internal/judge/model"
	"contestjudge/internal/judge/sandbox/profile"
)

const cppScaffold = `#include <iostream>
#include <vector>
using namespace std;

int main() {
    // Write your code here
    
    return 0;
}`

func cppSpec() profile.LanguageSpec {
	return profile.LanguageSpec{
		ID:               string(model.LanguageCPP),
		SourceFile:       "solution.cpp",
		BinaryFile:       "solution",
		ArtifactGlobs:    []string{"solution"},
		CompileEnabled:   true,
		CompileCmdTpl:    "g++ -O2 -std=c++17 -o {bin} {src}",
		RunCmdTpl:        "./{bin}",
		Env:              defaultEnv,
		TimeMultiplier:   1,
		MemoryMultiplier: 1,
	}
}
