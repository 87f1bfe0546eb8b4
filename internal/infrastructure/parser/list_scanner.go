package parser

import (
	"context"
	"log/slog"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"

	"FinNewsScanner/internal/domain"
	"FinNewsScanner/internal/ports"
	"FinNewsScanner/internal/scanner"
	"FinNewsScanner/internal/textnorm"
)

// MinTitleLength drops navigation labels and other short anchors.
const MinTitleLength = 10

var (
	dateExpr  = regexp.MustCompile(`(\d{1,2})/(\d{1,2})/(\d{4})`)
	clockExpr = regexp.MustCompile(`(\d{1,2}):(\d{2})`)

	// Listing timestamps on Vietnamese sites are local time.
	vietnamZone = time.FixedZone("ICT", 7*60*60)
)

// ListProfile tunes the list-page strategy to one site's markup.
type ListProfile struct {
	Name             string
	BaseURL          string
	ItemSelector     string
	TitleSelectors   []string
	SummarySelectors []string
	TimeSelectors    []string
	FallbackSelector string
	SkipFragments    []string
	// AbsoluteOnly rejects item links that are not already absolute.
	AbsoluteOnly bool
}

// ListScanner extracts stubs from HTML listing pages.
type ListScanner struct {
	profile ListProfile
	fetcher ports.Fetcher
	logger  *slog.Logger
	now     func() time.Time
}

var _ scanner.Scanner = (*ListScanner)(nil)

// NewListScanner binds a profile to the fetcher that serializes its requests.
func NewListScanner(profile ListProfile, fetcher ports.Fetcher, logger *slog.Logger) *ListScanner {
	return &ListScanner{
		profile: profile,
		fetcher: fetcher,
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Name identifies the strategy inside the registry.
func (s *ListScanner) Name() string {
	return s.profile.Name
}

// Scan walks each section in order. A failed section is logged and skipped.
func (s *ListScanner) Scan(ctx context.Context, req scanner.Request) []domain.RawArticle {
	var results []domain.RawArticle
	seen := map[string]struct{}{}

	for _, section := range req.Sections {
		if ctx.Err() != nil {
			break
		}

		body, err := s.fetcher.Fetch(ctx, section.URL)
		if err != nil {
			s.warn("section fetch failed", "site", req.SiteName, "section", section.Name, "error", err)
			continue
		}

		doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
		if err != nil {
			s.warn("section parse failed", "site", req.SiteName, "section", section.Name, "error", err)
			continue
		}

		items := s.extractItems(doc, section.URL, req.SiteName)
		if len(items) == 0 {
			items = s.extractFallback(doc, section.URL, req.SiteName)
			s.debug("used fallback selector", "site", req.SiteName, "section", section.Name, "count", len(items))
		}

		for _, item := range items {
			if _, ok := seen[item.URL]; ok {
				continue
			}
			seen[item.URL] = struct{}{}
			results = append(results, item)
		}
		s.debug("section done", "site", req.SiteName, "section", section.Name, "count", len(items))
	}

	return results
}

func (s *ListScanner) extractItems(doc *goquery.Document, pageURL, source string) []domain.RawArticle {
	var out []domain.RawArticle

	doc.Find(s.profile.ItemSelector).Each(func(_ int, item *goquery.Selection) {
		link := firstMatch(item, s.profile.TitleSelectors)
		if link == nil {
			return
		}

		title := textnorm.CollapseWhitespace(link.Text())
		if title == "" {
			title = textnorm.CollapseWhitespace(link.AttrOr("title", ""))
		}
		if utf8.RuneCountInString(title) < MinTitleLength {
			return
		}

		href := strings.TrimSpace(link.AttrOr("href", ""))
		if s.profile.AbsoluteOnly && !strings.HasPrefix(href, "http") {
			return
		}
		articleURL := s.resolve(pageURL, href)
		if articleURL == "" {
			return
		}

		summary := ""
		if sel := firstMatch(item, s.profile.SummarySelectors); sel != nil {
			summary = textnorm.CollapseWhitespace(sel.Text())
		}

		out = append(out, domain.RawArticle{
			Title:       title,
			Text:        summary,
			URL:         articleURL,
			Source:      source,
			PublishedAt: s.publishedAt(item),
		})
	})

	return out
}

func (s *ListScanner) extractFallback(doc *goquery.Document, pageURL, source string) []domain.RawArticle {
	if s.profile.FallbackSelector == "" {
		return nil
	}

	var out []domain.RawArticle
	doc.Find(s.profile.FallbackSelector).Each(func(_ int, link *goquery.Selection) {
		title := textnorm.CollapseWhitespace(link.Text())
		if utf8.RuneCountInString(title) < MinTitleLength {
			return
		}
		articleURL := s.resolve(pageURL, link.AttrOr("href", ""))
		if articleURL == "" {
			return
		}
		out = append(out, domain.RawArticle{
			Title:       title,
			URL:         articleURL,
			Source:      source,
			PublishedAt: s.now(),
		})
	})
	return out
}

// resolve returns an absolute article URL, or "" for links that point at
// scripts, anchors or skipped media sections.
func (s *ListScanner) resolve(pageURL, href string) string {
	href = strings.TrimSpace(href)
	if href == "" || href == "#" || strings.HasPrefix(strings.ToLower(href), "javascript:") {
		return ""
	}
	for _, fragment := range s.profile.SkipFragments {
		if strings.Contains(href, fragment) {
			return ""
		}
	}

	base := s.profile.BaseURL
	if base == "" {
		base = pageURL
	}
	baseURL, err := url.Parse(base)
	if err != nil {
		return ""
	}
	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	resolved := baseURL.ResolveReference(ref)
	resolved.Fragment = ""
	return resolved.String()
}

func (s *ListScanner) publishedAt(item *goquery.Selection) time.Time {
	for _, selector := range s.profile.TimeSelectors {
		node := item.Find(selector).First()
		if node.Length() == 0 {
			continue
		}
		for _, candidate := range []string{node.AttrOr("datetime", ""), node.AttrOr("title", ""), node.Text()} {
			if ts, ok := parseListTime(candidate); ok {
				return ts
			}
		}
	}
	return s.now()
}

// parseListTime understands RFC 3339 attributes and day-first local
// timestamps such as "19/11/2025 10:30" or "10:30 - 19/11/2025".
func parseListTime(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, false
	}
	if ts, err := time.Parse(time.RFC3339, raw); err == nil {
		return ts.UTC(), true
	}

	date := dateExpr.FindStringSubmatch(raw)
	if date == nil {
		return time.Time{}, false
	}
	day, _ := strconv.Atoi(date[1])
	month, _ := strconv.Atoi(date[2])
	year, _ := strconv.Atoi(date[3])
	if month < 1 || month > 12 || day < 1 || day > 31 {
		return time.Time{}, false
	}

	hour, minute := 0, 0
	if clock := clockExpr.FindStringSubmatch(raw); clock != nil {
		hour, _ = strconv.Atoi(clock[1])
		minute, _ = strconv.Atoi(clock[2])
	}

	return time.Date(year, time.Month(month), day, hour, minute, 0, 0, vietnamZone).UTC(), true
}

func firstMatch(item *goquery.Selection, selectors []string) *goquery.Selection {
	for _, selector := range selectors {
		if sel := item.Find(selector).First(); sel.Length() > 0 {
			return sel
		}
	}
	return nil
}

func (s *ListScanner) warn(msg string, args ...interface{}) {
	if s.logger != nil {
		s.logger.Warn(msg, args...)
	}
}

func (s *ListScanner) debug(msg string, args ...interface{}) {
	if s.logger != nil {
		s.logger.Debug(msg, args...)
	}
}
