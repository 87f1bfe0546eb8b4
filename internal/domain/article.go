package domain

import (
	"strings"
	"time"
)

// RawArticle is a crawler stub before enrichment.
type RawArticle struct {
	Title       string
	Text        string
	URL         string
	Source      string
	PublishedAt time.Time
	// Category is the topic configured for the source section, if any.
	Category    Category
}

// Category groups an article by scope.
type Category string

const (
	CategoryMacro    Category = "MACRO"
	CategoryMicro    Category = "MICRO"
	CategoryIndustry Category = "INDUSTRY"
)

// ParseCategory accepts a category name in any case.
func ParseCategory(v string) (Category, bool) {
	switch c := Category(strings.ToUpper(strings.TrimSpace(v))); c {
	case CategoryMacro, CategoryMicro, CategoryIndustry:
		return c, true
	}
	return "", false
}

// ValidCategory reports whether v names a category.
func ValidCategory(v string) bool {
	_, ok := ParseCategory(v)
	return ok
}

// SentimentLabel is the polarity of an article.
type SentimentLabel string

const (
	SentimentPositive SentimentLabel = "POSITIVE"
	SentimentNegative SentimentLabel = "NEGATIVE"
	SentimentNeutral  SentimentLabel = "NEUTRAL"
)

// ImpactTier buckets the impact score.
type ImpactTier string

const (
	ImpactLow    ImpactTier = "LOW"
	ImpactMedium ImpactTier = "MEDIUM"
	ImpactHigh   ImpactTier = "HIGH"
)

// ProcessingStatus tracks the enrichment state machine of one article.
type ProcessingStatus string

const (
	StatusPending    ProcessingStatus = "PENDING"
	StatusProcessing ProcessingStatus = "PROCESSING"
	StatusCompleted  ProcessingStatus = "COMPLETED"
	StatusError      ProcessingStatus = "ERROR"
)

// EnrichedArticle is the persisted unit produced by the pipeline.
type EnrichedArticle struct {
	ID             string
	Title          string
	TitleHash      string
	Summary        string
	Body           string
	URL            string
	CanonicalURL   string
	Source         string
	PublishedAt    time.Time
	Category       Category
	Tickers        []string
	SentimentScore float64
	SentimentLabel SentimentLabel
	IsRumor        bool
	ImpactScore    int
	ImpactTier     ImpactTier
	ImpactTags     []string
	EmbeddingID    string
	Status         ProcessingStatus
	CreatedAt      time.Time
}

// IsHighImpact reports whether alerting should fire for the article.
func (a EnrichedArticle) IsHighImpact() bool {
	return a.ImpactTier == ImpactHigh
}

// ContentResult is the outcome of a full-body extraction. Failures are data:
// Success is false, Error is set and FullText is empty.
type ContentResult struct {
	FullText    string
	Description string
	Success     bool
	Error       string
	Length      int
}

// EntityResult holds recognised tickers and the derived category.
type EntityResult struct {
	Tickers  []string
	Category Category
}

// SentimentResult is always populated, even when nothing matched.
type SentimentResult struct {
	Label   SentimentLabel
	Score   float64
	IsRumor bool
}

// ImpactResult is the keyword-weighted market impact of an article.
type ImpactResult struct {
	Score        int
	Tier         ImpactTier
	Tags         []string
	IsHighImpact bool
}

// ClampScore bounds a sentiment score to [-1, 1].
func ClampScore(v float64) float64 {
	switch {
	case v > 1:
		return 1
	case v < -1:
		return -1
	default:
		return v
	}
}
