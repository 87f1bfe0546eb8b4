// Package textnorm holds the pure text helpers shared by crawlers,
// classifiers and the enrichment pipeline: markup stripping, boilerplate
// removal, diacritic folding, sentence-boundary summaries and dedup keys.
package textnorm

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// DefaultSummaryLength is the rune budget for persisted summaries.
const DefaultSummaryLength = 500

var (
	tagExpr           = regexp.MustCompile(`<[^>]+>`)
	namedEntityExpr   = regexp.MustCompile(`&[a-zA-Z]+;`)
	numericEntityExpr = regexp.MustCompile(`&#\d+;`)
	titlePrefixExpr   = regexp.MustCompile(`^(CafeF|VnExpress|VietStock|Thanh Niên)\s*[-–|:]\s*`)

	adExprs = []*regexp.Regexp{
		regexp.MustCompile(`(?i)xem thêm:?\s*http\S+`),
		regexp.MustCompile(`(?i)nguồn:?\s*http\S+`),
		regexp.MustCompile(`(?i)theo\s+dõi\s+.*(twitter|facebook|youtube)`),
		regexp.MustCompile(`(?i)đăng\s+ký\s+.*nhận\s+tin`),
		regexp.MustCompile(`(?i)bạn\s+đọc\s+gửi\s+bài`),
		regexp.MustCompile(`(?i)quảng\s+cáo`),
		regexp.MustCompile(`(?i)banner\s+\d+x\d+`),
		regexp.MustCompile(`(?i)click\s+(here|vào\s+đây)`),
		regexp.MustCompile(`(?i)tải\s+app\s+.*xuống`),
		regexp.MustCompile(`\[.*?\]\s*$`),
	}

	badChars = strings.NewReplacer(
		"\u00a0", " ",
		"\u200b", "",
		"\u200c", "",
		"\u200d", "",
		"\ufeff", "",
		"\r\n", "\n",
		"\r", "\n",
	)

	// đ has no canonical decomposition, so NFD alone keeps it.
	dStroke = runes.Map(func(r rune) rune {
		switch r {
		case 'đ':
			return 'd'
		case 'Đ':
			return 'D'
		}
		return r
	})
)

// CollapseWhitespace folds runs of whitespace into single spaces and trims.
func CollapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// StripHTML replaces tags and entities with spaces.
func StripHTML(s string) string {
	s = tagExpr.ReplaceAllString(s, " ")
	s = namedEntityExpr.ReplaceAllString(s, " ")
	s = numericEntityExpr.ReplaceAllString(s, " ")
	return CollapseWhitespace(s)
}

// FixEncoding replaces non-breaking spaces, zero-width characters, BOMs and
// carriage returns with their plain equivalents.
func FixEncoding(s string) string {
	return badChars.Replace(s)
}

// RemoveBoilerplate drops advertising and "see more" patterns.
func RemoveBoilerplate(s string) string {
	for _, expr := range adExprs {
		s = expr.ReplaceAllString(s, "")
	}
	return s
}

// Clean runs the full normalisation chain used for article bodies.
func Clean(s string) string {
	if s == "" {
		return ""
	}
	s = StripHTML(s)
	s = FixEncoding(s)
	s = RemoveBoilerplate(s)
	return CollapseWhitespace(s)
}

// CleanTitle normalises a headline and removes a leading source name.
func CleanTitle(s string) string {
	if s == "" {
		return ""
	}
	s = FixEncoding(StripHTML(s))
	s = titlePrefixExpr.ReplaceAllString(s, "")
	return CollapseWhitespace(s)
}

// Summarize returns text unchanged when it fits in limit runes. Otherwise it
// cuts at the last sentence terminator before the limit when that lies past
// the halfway mark, and hard-truncates with "..." when it does not.
func Summarize(text string, limit int) string {
	if limit <= 0 {
		limit = DefaultSummaryLength
	}
	rs := []rune(text)
	if len(rs) <= limit {
		return text
	}

	cut := rs[:limit]
	for i := len(cut) - 1; i > limit/2; i-- {
		switch cut[i] {
		case '.', '!', '?':
			return string(cut[:i+1])
		}
	}
	return strings.TrimRightFunc(string(cut), unicode.IsSpace) + "..."
}

// StripDiacritics removes combining marks and maps đ to d.
func StripDiacritics(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), dStroke, norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

// Fold lower-cases and strips diacritics, giving the form used for all
// keyword matching.
func Fold(s string) string {
	return StripDiacritics(strings.ToLower(s))
}
