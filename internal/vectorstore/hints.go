package vectorstore

import (
	"regexp"
	"sort"
)

// QueryHints are structured references extracted from query text.
// Hint extraction expects numerals already normalized to ASCII digits
// (the rewriter runs before retrieval).
type QueryHints struct {
	// Articles are referenced article numbers ("ماده 10" -> "10").
	Articles []string
	// Notes are referenced note numbers ("تبصره 2" -> "2").
	Notes []string
}

// Empty reports whether no hints were found.
func (h QueryHints) Empty() bool {
	return len(h.Articles) == 0 && len(h.Notes) == 0
}

var (
	articlePattern = regexp.MustCompile(`(?:ماده|اصل|article)\s*(\d+)`)
	notePattern    = regexp.MustCompile(`(?:تبصره|بند|note)\s*(\d+)`)
)

// ExtractHints pulls article and note references out of query text.
func ExtractHints(query string) QueryHints {
	var hints QueryHints
	for _, m := range articlePattern.FindAllStringSubmatch(query, -1) {
		hints.Articles = appendUnique(hints.Articles, m[1])
	}
	for _, m := range notePattern.FindAllStringSubmatch(query, -1) {
		hints.Notes = appendUnique(hints.Notes, m[1])
	}
	return hints
}

func appendUnique(list []string, v string) []string {
	for _, existing := range list {
		if existing == v {
			return list
		}
	}
	return append(list, v)
}

// applyMetadataBoost adds boost to the score of every chunk whose metadata
// matches a query hint, then re-sorts by score. Sorting is stable so that
// equal scores keep their similarity ordering (the tie-break).
func applyMetadataBoost(chunks []Chunk, hints QueryHints, boost float32) []Chunk {
	if hints.Empty() || boost == 0 {
		return chunks
	}

	boosted := make([]Chunk, len(chunks))
	copy(boosted, chunks)

	for i := range boosted {
		if matchesHint(hints.Articles, boosted[i].Metadata.Article) {
			boosted[i].Score += boost
		}
		if matchesHint(hints.Notes, boosted[i].Metadata.Note) {
			boosted[i].Score += boost
		}
	}

	sort.SliceStable(boosted, func(i, j int) bool {
		return boosted[i].Score > boosted[j].Score
	})
	return boosted
}

func matchesHint(hints []string, value string) bool {
	if value == "" {
		return false
	}
	for _, h := range hints {
		if h == value {
			return true
		}
	}
	return false
}
