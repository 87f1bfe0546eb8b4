package analysis

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed dictionary.yaml
var defaultDictionary []byte

// Dictionary is the read-only lookup data of the entity classifier.
type Dictionary struct {
	Tickers          map[string][]string `yaml:"tickers"`
	MacroKeywords    []string            `yaml:"macroKeywords"`
	IndustryKeywords map[string][]string `yaml:"industryKeywords"`
}

// DefaultDictionary returns the built-in dictionary.
func DefaultDictionary() (*Dictionary, error) {
	return ParseDictionary(defaultDictionary)
}

// LoadDictionary reads an override file, or the built-in dictionary when
// path is empty. A missing or empty file is an error.
func LoadDictionary(path string) (*Dictionary, error) {
	if path == "" {
		return DefaultDictionary()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read dictionary: %w", err)
	}
	dict, err := ParseDictionary(data)
	if err != nil {
		return nil, fmt.Errorf("dictionary %s: %w", path, err)
	}
	return dict, nil
}

// ParseDictionary decodes YAML and normalizes ticker symbols to upper case.
func ParseDictionary(data []byte) (*Dictionary, error) {
	var raw Dictionary
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse dictionary: %w", err)
	}
	if len(raw.Tickers) == 0 {
		return nil, errors.New("dictionary has no tickers")
	}

	dict := &Dictionary{
		Tickers:          make(map[string][]string, len(raw.Tickers)),
		MacroKeywords:    raw.MacroKeywords,
		IndustryKeywords: raw.IndustryKeywords,
	}
	for symbol, aliases := range raw.Tickers {
		symbol = strings.ToUpper(strings.TrimSpace(symbol))
		if symbol == "" {
			continue
		}
		dict.Tickers[symbol] = append(dict.Tickers[symbol], aliases...)
	}
	return dict, nil
}

// Symbols returns the known ticker symbols in sorted order.
func (d *Dictionary) Symbols() []string {
	out := make([]string, 0, len(d.Tickers))
	for symbol := range d.Tickers {
		out = append(out, symbol)
	}
	sort.Strings(out)
	return out
}

func (d *Dictionary) industryTerms() []string {
	var terms []string
	for _, industry := range sortedKeys(d.IndustryKeywords) {
		terms = append(terms, d.IndustryKeywords[industry]...)
	}
	return terms
}

func sortedKeys(m map[string][]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
