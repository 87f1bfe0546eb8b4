// Package analysis holds the dictionary-driven classifiers of the
// enrichment chain: tickers and category, sentiment, and market impact.
// All matching is diacritic-insensitive and case-insensitive.
package analysis

import (
	"sync"

	"github.com/cloudflare/ahocorasick"

	"FinNewsScanner/internal/textnorm"
)

// KeywordSet matches many folded terms in one pass over the text.
type KeywordSet struct {
	terms   []string
	matcher *ahocorasick.Matcher
	// Matcher.Match keeps per-call state on the automaton.
	mu sync.Mutex
}

// NewKeywordSet folds and de-duplicates terms.
func NewKeywordSet(terms []string) *KeywordSet {
	seen := make(map[string]struct{}, len(terms))
	folded := make([]string, 0, len(terms))
	for _, term := range terms {
		f := foldText(term)
		if f == "" {
			continue
		}
		if _, ok := seen[f]; ok {
			continue
		}
		seen[f] = struct{}{}
		folded = append(folded, f)
	}

	set := &KeywordSet{terms: folded}
	if len(folded) > 0 {
		set.matcher = ahocorasick.NewStringMatcher(folded)
	}
	return set
}

// Len reports the number of distinct terms.
func (k *KeywordSet) Len() int {
	return len(k.terms)
}

// Hits returns the distinct terms present in already folded text.
func (k *KeywordSet) Hits(folded string) []string {
	if k == nil || k.matcher == nil || folded == "" {
		return nil
	}

	k.mu.Lock()
	indexes := k.matcher.Match([]byte(folded))
	k.mu.Unlock()

	seen := make(map[int]struct{}, len(indexes))
	hits := make([]string, 0, len(indexes))
	for _, idx := range indexes {
		if idx < 0 || idx >= len(k.terms) {
			continue
		}
		if _, ok := seen[idx]; ok {
			continue
		}
		seen[idx] = struct{}{}
		hits = append(hits, k.terms[idx])
	}
	return hits
}

// Count returns how many distinct terms occur in folded text.
func (k *KeywordSet) Count(folded string) int {
	return len(k.Hits(folded))
}

// Any reports whether at least one term occurs in folded text.
func (k *KeywordSet) Any(folded string) bool {
	return k.Count(folded) > 0
}

// foldText is the normalization applied to terms and haystacks alike.
func foldText(s string) string {
	return textnorm.CollapseWhitespace(textnorm.Fold(s))
}
