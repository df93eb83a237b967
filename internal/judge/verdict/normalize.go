// Package verdict turns a sandbox outcome into the terminal result of a
// submission.
package verdict

import "strings"

// Normalize strips trailing spaces, tabs, CR and LF from every line and
// drops trailing empty lines. Nothing else is changed.
func Normalize(output string) string {
	lines := strings.Split(output, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t\r\n")
	}
	end := len(lines)
	for end > 0 && lines[end-1] == "" {
		end--
	}
	return strings.Join(lines[:end], "\n")
}

// OutputMatches compares program output with the expected answer after
// normalization.
func OutputMatches(actual, expected string) bool {
	return Normalize(actual) == Normalize(expected)
}
