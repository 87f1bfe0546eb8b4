package analysis

import (
	"regexp"
	"sort"

	"FinNewsScanner/internal/domain"
	"FinNewsScanner/internal/ports"
)

var symbolExpr = regexp.MustCompile(`\b([A-Z]{3})\b`)

// EntityClassifier recognizes tickers and assigns a topic category.
type EntityClassifier struct {
	symbols  map[string]struct{}
	aliases  *KeywordSet
	owners   map[string][]string
	macro    *KeywordSet
	industry *KeywordSet
}

var _ ports.EntityAnalyzer = (*EntityClassifier)(nil)

// NewEntityClassifier compiles the dictionary into matchers.
func NewEntityClassifier(dict *Dictionary) *EntityClassifier {
	c := &EntityClassifier{
		symbols: make(map[string]struct{}, len(dict.Tickers)),
		owners:  make(map[string][]string),
	}

	var aliases []string
	for _, symbol := range dict.Symbols() {
		c.symbols[symbol] = struct{}{}
		for _, alias := range dict.Tickers[symbol] {
			folded := foldText(alias)
			if folded == "" {
				continue
			}
			c.owners[folded] = append(c.owners[folded], symbol)
			aliases = append(aliases, alias)
		}
	}

	c.aliases = NewKeywordSet(aliases)
	c.macro = NewKeywordSet(dict.MacroKeywords)
	c.industry = NewKeywordSet(dict.industryTerms())
	return c
}

// Analyze returns the sorted tickers and the category of text.
func (c *EntityClassifier) Analyze(text string) domain.EntityResult {
	tickers := c.Tickers(text)
	return domain.EntityResult{
		Tickers:  tickers,
		Category: c.category(text, tickers),
	}
}

// Tickers matches aliases on folded text and bare upper-case symbols on
// the raw text.
func (c *EntityClassifier) Tickers(text string) []string {
	if text == "" {
		return []string{}
	}

	found := map[string]struct{}{}
	for _, alias := range c.aliases.Hits(foldText(text)) {
		for _, symbol := range c.owners[alias] {
			found[symbol] = struct{}{}
		}
	}
	for _, m := range symbolExpr.FindAllStringSubmatch(text, -1) {
		if _, ok := c.symbols[m[1]]; ok {
			found[m[1]] = struct{}{}
		}
	}

	out := make([]string, 0, len(found))
	for symbol := range found {
		out = append(out, symbol)
	}
	sort.Strings(out)
	return out
}

func (c *EntityClassifier) category(text string, tickers []string) domain.Category {
	if len(tickers) > 0 {
		return domain.CategoryMicro
	}

	folded := foldText(text)
	macro := c.macro.Count(folded)
	industry := c.industry.Count(folded)

	switch {
	case macro > industry && macro > 0:
		return domain.CategoryMacro
	case industry > 0:
		return domain.CategoryIndustry
	default:
		return domain.CategoryMacro
	}
}
