package parser

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	"FinNewsScanner/internal/domain"
	"FinNewsScanner/internal/ports"
	"FinNewsScanner/internal/scanner"
	"FinNewsScanner/internal/textnorm"
)

// FeedScannerName is the registry key of the syndication strategy.
const FeedScannerName = "feed"

// FeedScanner reads RSS and Atom documents, one stub per entry.
type FeedScanner struct {
	fetcher ports.Fetcher
	logger  *slog.Logger
	now     func() time.Time
}

var _ scanner.Scanner = (*FeedScanner)(nil)

// NewFeedScanner wires the fetcher used for feed documents.
func NewFeedScanner(fetcher ports.Fetcher, logger *slog.Logger) *FeedScanner {
	return &FeedScanner{
		fetcher: fetcher,
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Name identifies the strategy inside the registry.
func (f *FeedScanner) Name() string {
	return FeedScannerName
}

// Scan fetches each configured feed. Stubs carry the section name as their
// source so several feeds can share one site entry, and the section's
// category (or the site's "category" option) as their topic.
func (f *FeedScanner) Scan(ctx context.Context, req scanner.Request) []domain.RawArticle {
	var results []domain.RawArticle

	for _, section := range req.Sections {
		if ctx.Err() != nil {
			break
		}

		source := section.Name
		if source == "" {
			source = req.SiteName
		}

		body, err := f.fetcher.Fetch(ctx, section.URL)
		if err != nil {
			f.warn("feed fetch failed", "feed", source, "error", err)
			continue
		}

		items, err := f.parse(body, source, feedCategory(section, req.Options))
		if err != nil {
			f.warn("feed parse failed", "feed", source, "error", err)
			continue
		}

		if f.logger != nil {
			f.logger.Debug("feed collected", "feed", source, "count", len(items))
		}
		results = append(results, items...)
	}

	return results
}

func (f *FeedScanner) parse(body, source string, category domain.Category) ([]domain.RawArticle, error) {
	parsed, err := gofeed.NewParser().ParseString(body)
	if err != nil {
		return nil, fmt.Errorf("parse feed: %w", err)
	}

	items := make([]domain.RawArticle, 0, len(parsed.Items))
	for _, entry := range parsed.Items {
		if entry == nil {
			continue
		}

		title := textnorm.StripHTML(entry.Title)
		link := extractLink(entry)
		if title == "" || link == "" {
			continue
		}

		summary := entry.Description
		if strings.TrimSpace(summary) == "" {
			summary = entry.Content
		}

		items = append(items, domain.RawArticle{
			Title:       title,
			Text:        textnorm.StripHTML(summary),
			URL:         link,
			Source:      source,
			PublishedAt: f.publishedAt(entry),
			Category:    category,
		})
	}
	return items, nil
}

func feedCategory(section scanner.Section, options map[string]string) domain.Category {
	if c, ok := domain.ParseCategory(section.Category); ok {
		return c
	}
	c, _ := domain.ParseCategory(options["category"])
	return c
}

// extractLink prefers the explicit link, falling back to a GUID that looks
// like an HTTP URL.
func extractLink(entry *gofeed.Item) string {
	if link := strings.TrimSpace(entry.Link); link != "" {
		return link
	}
	if strings.HasPrefix(entry.GUID, "http") {
		return entry.GUID
	}
	return ""
}

func (f *FeedScanner) publishedAt(entry *gofeed.Item) time.Time {
	if entry.PublishedParsed != nil {
		return entry.PublishedParsed.UTC()
	}
	if entry.UpdatedParsed != nil {
		return entry.UpdatedParsed.UTC()
	}
	return f.now()
}

func (f *FeedScanner) warn(msg string, args ...interface{}) {
	if f.logger != nil {
		f.logger.Warn(msg, args...)
	}
}
