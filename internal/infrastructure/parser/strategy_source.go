package parser

import (
	"context"
	"fmt"
	"log/slog"

	"FinNewsScanner/internal/config"
	"FinNewsScanner/internal/domain"
	"FinNewsScanner/internal/ports"
	"FinNewsScanner/internal/scanner"
)

// StrategySource binds config-defined sites to registered scanner strategies.
type StrategySource struct {
	registry *scanner.Registry
	sites    []config.SiteConfig
	logger   *slog.Logger
}

// NewStrategySource wires scanner registry with config-defined sites.
func NewStrategySource(reg *scanner.Registry, sites []config.SiteConfig, log *slog.Logger) *StrategySource {
	return &StrategySource{
		registry: reg,
		sites:    sites,
		logger:   log,
	}
}

// Crawlers resolves one crawler per site. An unknown strategy name is a
// configuration error.
func (s *StrategySource) Crawlers() ([]ports.Crawler, error) {
	if s.registry == nil {
		return nil, fmt.Errorf("scanner registry is not configured")
	}

	crawlers := make([]ports.Crawler, 0, len(s.sites))
	for _, site := range s.sites {
		strategy, err := s.registry.Resolve(site.Scanner)
		if err != nil {
			return nil, fmt.Errorf("site %s: %w", site.Name, err)
		}

		s.debug("bind site", "site", site.Name, "scanner", site.Scanner, "sections", len(site.Sections))
		crawlers = append(crawlers, &siteCrawler{
			name:     site.Name,
			strategy: strategy,
			request: scanner.Request{
				SiteName: site.Name,
				Options:  site.Options,
				Sections: toScannerSections(site.Sections),
			},
		})
	}
	return crawlers, nil
}

type siteCrawler struct {
	name     string
	strategy scanner.Scanner
	request  scanner.Request
}

func (c *siteCrawler) Name() string {
	return c.name
}

func (c *siteCrawler) Crawl(ctx context.Context) []domain.RawArticle {
	results := c.strategy.Scan(ctx, c.request)
	for i := range results {
		if results[i].Source == "" {
			results[i].Source = c.name
		}
	}
	return results
}

func toScannerSections(cfg []config.SectionConfig) []scanner.Section {
	sections := make([]scanner.Section, 0, len(cfg))
	for _, sec := range cfg {
		sections = append(sections, scanner.Section{
			Name:     sec.Name,
			URL:      sec.URL,
			Category: sec.Category,
		})
	}
	return sections
}

func (s *StrategySource) debug(msg string, args ...interface{}) {
	if s.logger != nil {
		s.logger.Debug(msg, args...)
	}
}
