package sqlite

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// ftsMatchQuery turns free-form query text into a safe FTS5 MATCH
// expression. Text is NFKC-normalized and lowercased, split on anything
// that is not a letter or digit, and each token is double-quoted so FTS5
// operators and punctuation in the raw query cannot change the query
// semantics. Tokens are OR-ed: BM25 ranking rewards chunks matching more
// of them without requiring all.
func ftsMatchQuery(query string) string {
	normalized := strings.ToLower(norm.NFKC.String(query))
	tokens := strings.FieldsFunc(normalized, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	if len(tokens) == 0 {
		return ""
	}
	quoted := make([]string, len(tokens))
	for i, tok := range tokens {
		quoted[i] = `"` + tok + `"`
	}
	return strings.Join(quoted, " OR ")
}
