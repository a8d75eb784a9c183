package query

import (
	"errors"
	"strings"
)

// ErrEmptyQuery is returned when the query is blank after trimming.
var ErrEmptyQuery = errors.New("no query entered")

// defaultSuffixes are tried in order; the first match is stripped and no
// further suffix is considered.
var defaultSuffixes = []string{"ing", "ous", "s"}

// Expander turns one search phrase into the ordered set of variants that
// are sent to every supplier.
type Expander struct {
	suffixes []string
}

// NewExpander creates an Expander using the default suffix rules.
func NewExpander() *Expander {
	suffixes := make([]string, len(defaultSuffixes))
	copy(suffixes, defaultSuffixes)
	return &Expander{suffixes: suffixes}
}

// Stem lower-cases token and strips at most one suffix from it.
func (e *Expander) Stem(token string) string {
	token = strings.ToLower(token)
	for _, suffix := range e.suffixes {
		if strings.HasSuffix(token, suffix) {
			return strings.TrimSuffix(token, suffix)
		}
	}
	return token
}

// Expand returns the trimmed phrase followed by the stem of each of its
// whitespace-separated tokens, in the original word order. Variants are
// never merged, so a phrase of k tokens always yields k+1 variants.
func (e *Expander) Expand(q string) ([]string, error) {
	q = strings.TrimSpace(q)
	if q == "" {
		return nil, ErrEmptyQuery
	}

	tokens := strings.Fields(q)
	variants := make([]string, 0, len(tokens)+1)
	variants = append(variants, q)
	for _, tok := range tokens {
		variants = append(variants, e.Stem(tok))
	}
	return variants, nil
}
