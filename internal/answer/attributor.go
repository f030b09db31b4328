package answer

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	sourcesLine   = regexp.MustCompile(`(?mi)^\s*SOURCES:\s*(.*)\s*$`)
	inlineMarker  = regexp.MustCompile(`\[(\d{1,3})\]`)
	sourceNumbers = regexp.MustCompile(`\d{1,3}`)
)

// Attribute extracts the cited source numbers from generated text and
// strips the SOURCES trailer from it.
//
// The trailer is authoritative when present and parseable. Otherwise
// the inline [n] markers are collected as a fallback. Numbers outside
// 1..chunkCount are discarded; the result is deduplicated and keeps
// first-citation order.
func Attribute(text string, chunkCount int) (string, []int) {
	cleaned := text
	var numbers []int

	if match := sourcesLine.FindStringSubmatch(text); match != nil {
		cleaned = strings.TrimSpace(sourcesLine.ReplaceAllString(text, ""))
		trailer := strings.TrimSpace(match[1])
		if !strings.EqualFold(trailer, "none") {
			for _, raw := range sourceNumbers.FindAllString(trailer, -1) {
				if n, err := strconv.Atoi(raw); err == nil {
					numbers = append(numbers, n)
				}
			}
		}
		if len(numbers) > 0 || strings.EqualFold(trailer, "none") {
			return cleaned, validCitations(numbers, chunkCount)
		}
	}

	// No usable trailer; fall back to inline markers.
	for _, match := range inlineMarker.FindAllStringSubmatch(cleaned, -1) {
		if n, err := strconv.Atoi(match[1]); err == nil {
			numbers = append(numbers, n)
		}
	}
	return cleaned, validCitations(numbers, chunkCount)
}

// validCitations filters to the valid range and deduplicates while
// keeping first-citation order.
func validCitations(numbers []int, chunkCount int) []int {
	seen := make(map[int]bool, len(numbers))
	out := make([]int, 0, len(numbers))
	for _, n := range numbers {
		if n < 1 || n > chunkCount || seen[n] {
			continue
		}
		seen[n] = true
		out = append(out, n)
	}
	return out
}
