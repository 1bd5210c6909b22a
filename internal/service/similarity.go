// internal/service/similarity.go
package service

import "strings"

// Near-duplicate detection: two messages sharing at least 70% of their
// significant tokens by Jaccard measure are considered the same message.
const SimilarityThreshold = 0.7

// tokenize lowercases, splits on whitespace, and keeps tokens longer than
// two characters.
func tokenize(s string) map[string]struct{} {
	tokens := map[string]struct{}{}
	for _, tok := range strings.Fields(strings.ToLower(s)) {
		if len(tok) > 2 {
			tokens[tok] = struct{}{}
		}
	}
	return tokens
}

// JaccardSimilarity is |intersection| / |union| of the significant token
// sets of a and b, 0 if either set is empty. This is a heuristic drift
// check, not a correctness guarantee.
func JaccardSimilarity(a, b string) float64 {
	ta := tokenize(a)
	tb := tokenize(b)
	if len(ta) == 0 || len(tb) == 0 {
		return 0
	}

	intersection := 0
	for tok := range ta {
		if _, ok := tb[tok]; ok {
			intersection++
		}
	}
	union := len(ta) + len(tb) - intersection
	return float64(intersection) / float64(union)
}

// TooSimilar reports whether candidate is a near-duplicate of any
// previously sent message.
func TooSimilar(candidate string, sent []string) bool {
	for _, prev := range sent {
		if JaccardSimilarity(candidate, prev) >= SimilarityThreshold {
			return true
		}
	}
	return false
}
