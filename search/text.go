package search

import "strings"

// Stop words to filter out when deriving keywords from a query
var stopWords = map[string]bool{
	"the": true, "a": true, "an": true, "be": true, "is": true, "are": true,
	"was": true, "to": true, "of": true, "and": true, "in": true, "that": true,
	"have": true, "it": true, "for": true, "not": true, "on": true, "with": true,
	"as": true, "you": true, "do": true, "at": true, "this": true, "but": true,
	"by": true, "from": true,
}

// tokenizeAndFilter splits text into words, lowercases, trims punctuation, and removes stop words
func tokenizeAndFilter(text string) []string {
	words := strings.Fields(text)
	filtered := make([]string, 0, len(words))

	for _, word := range words {
		cleaned := strings.ToLower(strings.Trim(word, ".,!?;:'\"-()[]{}"))
		if cleaned != "" && !stopWords[cleaned] {
			filtered = append(filtered, cleaned)
		}
	}

	return filtered
}

// Keywords returns the distinct non-stop-word terms of query.
func Keywords(query string) []string {
	words := tokenizeAndFilter(query)
	seen := make(map[string]bool, len(words))
	out := words[:0]
	for _, w := range words {
		if !seen[w] {
			seen[w] = true
			out = append(out, w)
		}
	}
	return out
}

// KeywordScore scores text against a query and keyword list: 0.5 when the
// whole query appears, plus 0.3 per keyword found, capped at 1.
// Matching is case-insensitive substring containment.
func KeywordScore(text, query string, keywords []string) float32 {
	lower := strings.ToLower(text)
	var score float32
	if q := strings.ToLower(query); q != "" && strings.Contains(lower, q) {
		score += 0.5
	}
	for _, kw := range keywords {
		kw = strings.ToLower(kw)
		if kw != "" && strings.Contains(lower, kw) {
			score += 0.3
		}
	}
	return min(score, 1)
}
