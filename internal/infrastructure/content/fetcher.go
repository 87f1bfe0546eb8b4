// Package content extracts full article bodies using per-domain profiles
// with a generic fallback.
package content

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"

	"FinNewsScanner/internal/domain"
	"FinNewsScanner/internal/ports"
	"FinNewsScanner/internal/textnorm"
)

const (
	minParagraphLength = 10
	minBodyLength      = 50
	minArticleLength   = 100
	minMainLength      = 200
)

var (
	noiseTags = "script, style, iframe, nav, footer, header, aside, form, noscript, svg"

	noiseClasses = map[string]struct{}{
		"social-share":  {},
		"share-news":    {},
		"banner":        {},
		"advertisement": {},
		"related-news":  {},
		"box-comment":   {},
		"comment":       {},
		"tags":          {},
		"tag-list":      {},
		"breadcrumb":    {},
		"author-info":   {},
	}
	noiseClassFragments = []string{"ads-", "ad-slot", "adsbygoogle"}

	mainSelectors = []string{"main", "[role='main']", "div.content", "div.article"}

	trailingLabelExpr = regexp.MustCompile(`(?i)(xem thêm|đọc thêm|tin liên quan|bạn đọc):\s*$`)
	leadingLabelExpr  = regexp.MustCompile(`(?i)^(tin mới|tin nổi bật)\s*`)
)

// Profile holds the extraction selectors of one news domain.
type Profile struct {
	BodySelectors        []string
	ParagraphSelectors   []string
	DescriptionSelectors []string
	Remove               []string
}

// Profiles maps a host fragment to its extraction profile.
var Profiles = map[string]Profile{
	"vnexpress.net": {
		BodySelectors:        []string{"article.fck_detail", "div.fck_detail"},
		ParagraphSelectors:   []string{"p.Normal"},
		DescriptionSelectors: []string{"p.description"},
		Remove:               []string{".box-tinlienquan", ".social-share", ".box-comment"},
	},
	"cafef.vn": {
		BodySelectors:        []string{"div.detail-content", "div.contentdetail", "div#mainContent"},
		ParagraphSelectors:   []string{"p.Normal"},
		DescriptionSelectors: []string{"div.sapo", "p.sapo"},
		Remove:               []string{".box-related", ".social", ".market-overview-detail", ".box-ad", ".link-source-wrapper"},
	},
	"vietstock.vn": {
		BodySelectors:        []string{"div.article-content", "div#content-detail", "div.content-detail"},
		DescriptionSelectors: []string{"div.article-sapo", "p.sapo"},
		Remove:               []string{".box-related", ".social", ".tags"},
	},
	"thanhnien.vn": {
		BodySelectors:        []string{"div.detail__content", "div.detail-content", "article"},
		DescriptionSelectors: []string{"div.detail__summary", "p.sapo"},
		Remove:               []string{".relate-article", ".social", ".tags"},
	},
}

// Fetcher implements ports.ContentExtractor.
type Fetcher struct {
	fetcher  ports.Fetcher
	profiles map[string]Profile
	logger   *slog.Logger
}

var _ ports.ContentExtractor = (*Fetcher)(nil)

// NewFetcher builds an extractor over the built-in profiles.
func NewFetcher(fetcher ports.Fetcher, logger *slog.Logger) *Fetcher {
	return &Fetcher{fetcher: fetcher, profiles: Profiles, logger: logger}
}

// Extract downloads url and returns its body text. It never fails: errors
// are reported through ContentResult.Error with an empty FullText.
func (f *Fetcher) Extract(ctx context.Context, rawURL string) domain.ContentResult {
	if f.fetcher == nil {
		return domain.ContentResult{Error: "content fetcher is not configured"}
	}

	html, err := f.fetcher.Fetch(ctx, rawURL)
	if err != nil {
		f.warn("content fetch failed", "url", rawURL, "error", err)
		return domain.ContentResult{Error: err.Error()}
	}

	res, err := f.extractHTML(rawURL, html)
	if err != nil {
		return domain.ContentResult{Error: err.Error()}
	}
	if f.logger != nil {
		f.logger.Debug("content extracted", "url", rawURL, "chars", res.Length, "success", res.Success)
	}
	return res
}

func (f *Fetcher) extractHTML(rawURL, html string) (domain.ContentResult, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return domain.ContentResult{}, fmt.Errorf("parse document: %w", err)
	}

	host := hostOf(rawURL)
	profile := f.profileFor(host)
	stripNoise(doc, profile.Remove)

	var res domain.ContentResult
	for _, selector := range profile.DescriptionSelectors {
		if sel := doc.Find(selector).First(); sel.Length() > 0 {
			res.Description = cleanText(sel.Text())
			break
		}
	}

	body := extractBody(doc, profile)
	if utf8.RuneCountInString(body) < minBodyLength {
		body = extractFallback(doc)
	}
	if utf8.RuneCountInString(body) < minBodyLength {
		res.Error = fmt.Sprintf("no article body found (domain=%s)", host)
		return res, nil
	}

	res.FullText = body
	res.Success = true
	res.Length = utf8.RuneCountInString(body)
	return res, nil
}

func (f *Fetcher) profileFor(host string) Profile {
	for key, profile := range f.profiles {
		if strings.Contains(host, key) {
			return profile
		}
	}
	return Profile{}
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return strings.TrimPrefix(strings.ToLower(u.Host), "www.")
}

func stripNoise(doc *goquery.Document, extra []string) {
	doc.Find(noiseTags).Remove()

	var noisy []*goquery.Selection
	doc.Find("[class]").Each(func(_ int, sel *goquery.Selection) {
		classes := strings.Fields(strings.ToLower(sel.AttrOr("class", "")))
		for _, class := range classes {
			if _, ok := noiseClasses[class]; ok {
				noisy = append(noisy, sel)
				return
			}
		}
		joined := strings.Join(classes, " ")
		for _, fragment := range noiseClassFragments {
			if strings.Contains(joined, fragment) {
				noisy = append(noisy, sel)
				return
			}
		}
	})
	for _, sel := range noisy {
		sel.Remove()
	}

	for _, selector := range extra {
		doc.Find(selector).Remove()
	}
}

// extractBody tries the profile's body containers, then its paragraph
// selectors.
func extractBody(doc *goquery.Document, profile Profile) string {
	for _, selector := range profile.BodySelectors {
		container := doc.Find(selector).First()
		if container.Length() == 0 {
			continue
		}

		if texts := collectTexts(container.Find("p, h2, h3, blockquote")); len(texts) > 0 {
			return strings.Join(texts, "\n\n")
		}

		if text := cleanText(container.Text()); utf8.RuneCountInString(text) >= minBodyLength {
			return text
		}
	}

	for _, selector := range profile.ParagraphSelectors {
		if texts := collectTexts(doc.Find(selector)); len(texts) > 0 {
			return strings.Join(texts, "\n\n")
		}
	}
	return ""
}

func extractFallback(doc *goquery.Document) string {
	if article := doc.Find("article").First(); article.Length() > 0 {
		if text := cleanText(article.Text()); utf8.RuneCountInString(text) >= minArticleLength {
			return text
		}
	}

	for _, selector := range mainSelectors {
		if sel := doc.Find(selector).First(); sel.Length() > 0 {
			if text := cleanText(sel.Text()); utf8.RuneCountInString(text) >= minMainLength {
				return text
			}
		}
	}
	return ""
}

func collectTexts(nodes *goquery.Selection) []string {
	var texts []string
	nodes.Each(func(_ int, node *goquery.Selection) {
		if text := cleanText(node.Text()); utf8.RuneCountInString(text) >= minParagraphLength {
			texts = append(texts, text)
		}
	})
	return texts
}

func cleanText(s string) string {
	s = textnorm.CollapseWhitespace(s)
	s = trailingLabelExpr.ReplaceAllString(s, "")
	s = leadingLabelExpr.ReplaceAllString(s, "")
	return strings.TrimSpace(s)
}

func (f *Fetcher) warn(msg string, args ...interface{}) {
	if f.logger != nil {
		f.logger.Warn(msg, args...)
	}
}
