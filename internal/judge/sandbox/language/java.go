package language

import (
	"contestjudge/internal/judge/model"
	"contestjudge/internal/judge/sandbox/profile"
)

const javaScaffold = `import java.util.*;

public class Solution {
    public static void main(String[] args) {
        Scanner sc = new Scanner(System.in);
        
        // Write your code here
        
        sc.close();
    }
}`

func javaSpec() profile.LanguageSpec {
	return profile.LanguageSpec{
		ID:               string(model.LanguageJava),
		SourceFile:       "Solution.java",
		BinaryFile:       "Solution.class",
		ArtifactGlobs:    []string{"*.class"},
		CompileEnabled:   true,
		CompileCmdTpl:    "javac -encoding UTF-8 {src}",
		RunCmdTpl:        "java -Xss64m -XX:+UseSerialGC -cp /work Solution",
		Env:              defaultEnv,
		TimeMultiplier:   1,
		MemoryMultiplier: 1,
	}
}
