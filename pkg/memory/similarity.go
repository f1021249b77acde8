package memory

import "strings"

// stopWords are excluded from similarity token sets.
var stopWords = map[string]struct{}{
	"the": {}, "and": {}, "for": {}, "are": {}, "was": {}, "were": {},
	"that": {}, "this": {}, "with": {}, "from": {}, "has": {}, "have": {},
	"had": {}, "not": {}, "but": {}, "its": {}, "his": {}, "her": {},
	"they": {}, "them": {}, "you": {}, "your": {}, "all": {}, "can": {},
	"will": {}, "would": {}, "there": {}, "their": {}, "what": {},
	"when": {}, "which": {}, "who": {}, "how": {}, "out": {}, "into": {},
}

// similarityTokens lowercases content and returns its set of non-stop-word
// tokens of length three or more.
func similarityTokens(content string) map[string]struct{} {
	fields := strings.FieldsFunc(strings.ToLower(content), func(r rune) bool {
		return !('a' <= r && r <= 'z') && !('0' <= r && r <= '9')
	})
	tokens := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		if len(f) < 3 {
			continue
		}
		if _, stop := stopWords[f]; stop {
			continue
		}
		tokens[f] = struct{}{}
	}
	return tokens
}

// ContentSimilarity measures lexical overlap between two content strings as
// the Jaccard index of their token sets. It is symmetric, returns 1 for
// identical strings and 0 for disjoint ones, and grows with shared tokens.
func ContentSimilarity(a, b string) float64 {
	if a == b {
		if a == "" {
			return 0.0
		}
		return 1.0
	}
	return tokenSimilarity(similarityTokens(a), similarityTokens(b))
}

// tokenSimilarity is the Jaccard index over two pre-tokenized sets.
func tokenSimilarity(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0.0
	}
	intersection := 0
	for tok := range a {
		if _, ok := b[tok]; ok {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	if union == 0 {
		return 0.0
	}
	return float64(intersection) / float64(union)
}
