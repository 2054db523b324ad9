package diff

import "strings"

// SplitLines splits content on '\n', discarding a final empty tail so
// a trailing newline in the source text doesn't produce a phantom
// empty line at the end of the sequence.
func SplitLines(content string) []string {
	if content == "" {
		return nil
	}
	lines := strings.Split(content, "\n")
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}
