package usecases

import (
	"strings"
	"unicode"
)

// DefaultMinKeywordLength is the shortest token ExtractKeywords keeps.
const DefaultMinKeywordLength = 3

var keywordStopwords = wordSet(
	"a", "an", "the", "is", "was", "are", "were", "be", "been",
	"do", "does", "did", "has", "have", "had", "it", "its",
	"of", "for", "in", "on", "to", "at", "by", "my", "me",
	"what", "when", "where", "how", "who", "which", "any",
	"and", "or", "not", "no", "but", "if", "so", "can",
	"all", "each", "every", "this", "that", "there", "here",
	"from", "with", "about", "into", "over", "after", "before",
	"show", "find", "get", "tell", "give", "list",
)

// Words too generic to be worth a followup retrieval.
var followupStopwords = wordSet(
	"many", "much", "some", "any", "all", "most", "few", "more", "less",
	"have", "has", "had", "get", "got", "find", "show", "list", "give",
	"what", "which", "where", "when", "how", "why", "who",
	"there", "here", "this", "that", "these", "those",
	"file", "files", "folder", "folders", "directory", "directories", "structure",
	"count", "number", "total", "size",
	"can", "could", "would", "should", "will", "might",
	"about", "just", "only", "also", "even", "still",
	"aren't", "isn't", "don't", "doesn't", "didn't", "won't",
	"final", "question", "answer", "help", "please", "thanks",
	"test", "magic", "stuff", "thing", "things",
	"top", "biggest", "largest", "smallest", "heaviest", "least", "fewest",
	"image", "images", "picture", "pictures", "photo", "photos", "drawing", "drawings",
	"according", "you", "your", "mine",
)

// ExtractKeywords returns the searchable words of query in order: lower-cased,
// punctuation stripped, stopwords and short tokens dropped.
func ExtractKeywords(query string) []string {
	return extractKeywords(query, DefaultMinKeywordLength)
}

func extractKeywords(query string, minLen int) []string {
	var out []string
	for _, w := range words(query) {
		if len([]rune(w)) < minLen || keywordStopwords[w] {
			continue
		}
		out = append(out, w)
	}
	return out
}

// words splits s into lower-cased tokens. Apostrophes and hyphens inside a
// word are kept.
func words(s string) []string {
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '\'' && r != '-' && r != '_'
	})
	out := fields[:0]
	for _, f := range fields {
		if f = strings.Trim(f, "'-_"); f != "" {
			out = append(out, f)
		}
	}
	return out
}

// tokenSet splits s on non-alphanumerics into a lower-cased set.
func tokenSet(s string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, t := range strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}) {
		set[t] = struct{}{}
	}
	return set
}

func wordSet(ws ...string) map[string]bool {
	m := make(map[string]bool, len(ws))
	for _, w := range ws {
		m[w] = true
	}
	return m
}
