package usecase

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
	"unicode/utf8"

	"FinNewsScanner/internal/domain"
	"FinNewsScanner/internal/ports"
)

// Coverage holds the share of articles carrying each enrichment output.
type Coverage struct {
	Content   float64 `json:"has_content_ratio"`
	Summary   float64 `json:"has_summary_ratio"`
	Sentiment float64 `json:"has_sentiment_ratio"`
	Tickers   float64 `json:"has_tickers_ratio"`
	Embedding float64 `json:"has_vector_ratio"`
}

// EvaluationReport summarizes pipeline quality over stored articles.
type EvaluationReport struct {
	GeneratedAt           time.Time      `json:"generated_at"`
	WindowDays            int            `json:"window_days"`
	Total                 int            `json:"total_articles"`
	UniqueSources         int            `json:"unique_sources"`
	Coverage              Coverage       `json:"coverage"`
	SentimentDistribution map[string]int `json:"sentiment_distribution"`
	SentimentAverage      float64        `json:"sentiment_average"`
	ImpactDistribution    map[string]int `json:"impact_distribution"`
	HighImpactRatio       float64        `json:"high_impact_ratio"`
	AvgBodyLength         float64        `json:"avg_original_length"`
	AvgSummaryLength      float64        `json:"avg_summary_length"`
}

// Evaluator builds reports from the read side of the store.
type Evaluator struct {
	store ports.ArticleQuerier
	now   func() time.Time
}

func NewEvaluator(store ports.ArticleQuerier) *Evaluator {
	return &Evaluator{store: store, now: func() time.Time { return time.Now().UTC() }}
}

// Evaluate loads up to limit articles published in the last days.
func (e *Evaluator) Evaluate(ctx context.Context, days, limit int) (EvaluationReport, error) {
	if days <= 0 {
		return EvaluationReport{}, errors.New("days must be positive")
	}
	articles, err := e.store.ListSince(ctx, days, limit)
	if err != nil {
		return EvaluationReport{}, fmt.Errorf("list articles: %w", err)
	}
	return BuildReport(articles, days, e.now()), nil
}

// BuildReport is the pure part of Evaluate. Articles older than the window
// are ignored.
func BuildReport(articles []domain.EnrichedArticle, days int, now time.Time) EvaluationReport {
	report := EvaluationReport{
		GeneratedAt: now,
		WindowDays:  days,
		SentimentDistribution: map[string]int{
			string(domain.SentimentPositive): 0,
			string(domain.SentimentNegative): 0,
			string(domain.SentimentNeutral):  0,
		},
		ImpactDistribution: map[string]int{
			string(domain.ImpactLow):    0,
			string(domain.ImpactMedium): 0,
			string(domain.ImpactHigh):   0,
		},
	}

	cutoff := now.Add(-time.Duration(days) * 24 * time.Hour)
	sources := map[string]struct{}{}
	var content, summary, sentiment, tickers, vectors, high int
	var sentimentSum float64
	var bodyRunes, summaryRunes int

	for _, a := range articles {
		if a.PublishedAt.Before(cutoff) {
			continue
		}
		report.Total++
		sources[a.Source] = struct{}{}

		if strings.TrimSpace(a.Body) != "" {
			content++
		}
		if strings.TrimSpace(a.Summary) != "" {
			summary++
		}
		if a.SentimentScore != 0 {
			sentiment++
		}
		if len(a.Tickers) > 0 {
			tickers++
		}
		if a.EmbeddingID != "" {
			vectors++
		}
		if a.IsHighImpact() {
			high++
		}

		report.SentimentDistribution[string(a.SentimentLabel)]++
		report.ImpactDistribution[string(a.ImpactTier)]++
		sentimentSum += a.SentimentScore
		bodyRunes += utf8.RuneCountInString(a.Body)
		summaryRunes += utf8.RuneCountInString(a.Summary)
	}

	if report.Total == 0 {
		return report
	}

	total := float64(report.Total)
	report.UniqueSources = len(sources)
	report.Coverage = Coverage{
		Content:   round(float64(content)/total, 4),
		Summary:   round(float64(summary)/total, 4),
		Sentiment: round(float64(sentiment)/total, 4),
		Tickers:   round(float64(tickers)/total, 4),
		Embedding: round(float64(vectors)/total, 4),
	}
	report.SentimentAverage = round(sentimentSum/total, 4)
	report.HighImpactRatio = round(float64(high)/total, 4)
	report.AvgBodyLength = round(float64(bodyRunes)/total, 2)
	report.AvgSummaryLength = round(float64(summaryRunes)/total, 2)
	return report
}

func round(v float64, digits int) float64 {
	p := math.Pow(10, float64(digits))
	return math.Round(v*p) / p
}
