// Package chunker splits page text into line-aligned chunks for the model,
// preferring to cut right before a line that opens a new market question.
package chunker

import "strings"

// boundaryTokens mark a line that likely starts a market question.
var boundaryTokens = []string{"will ", "what ", "when ", "who ", "how "}

// IsBoundary reports whether line looks like the start of a market question.
func IsBoundary(line string) bool {
	lower := strings.ToLower(line)
	for _, tok := range boundaryTokens {
		if strings.Contains(lower, tok) {
			return true
		}
	}
	return false
}

// Boundaries returns the indices of boundary lines, ascending.
func Boundaries(lines []string) []int {
	var idx []int
	for i, line := range lines {
		if IsBoundary(line) {
			idx = append(idx, i)
		}
	}
	return idx
}

// Split cuts content into n chunks. Joining the result with "\n" always
// reproduces content exactly.
//
// With fewer boundary lines than n the split falls back to equal line
// counts, which may cut a market in half. A chunk always holds at least one
// line, so content with fewer than n lines yields one chunk per line.
func Split(content string, n int) []string {
	if n <= 1 {
		return []string{content}
	}

	lines := strings.Split(content, "\n")
	if n > len(lines) {
		n = len(lines)
	}
	if n == 1 {
		return []string{content}
	}

	boundaries := Boundaries(lines)

	starts := make([]int, n)
	if len(boundaries) < n {
		size := len(lines) / n
		for i := range starts {
			starts[i] = i * size
		}
	} else {
		group := len(boundaries) / n
		for i := 1; i < n; i++ {
			starts[i] = boundaries[i*group]
		}
	}

	chunks := make([]string, n)
	for i := range starts {
		end := len(lines)
		if i+1 < n {
			end = starts[i+1]
		}
		chunks[i] = strings.Join(lines[starts[i]:end], "\n")
	}
	return chunks
}

// AutoCount returns how many chunks keep each chunk near maxChars
// characters. It never returns less than 1.
func AutoCount(content string, maxChars int) int {
	if maxChars <= 0 || len(content) <= maxChars {
		return 1
	}
	return (len(content) + maxChars - 1) / maxChars
}
