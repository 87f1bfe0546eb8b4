package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"

	"FinNewsScanner/internal/domain"
	"FinNewsScanner/internal/ports"
)

// ReanalyzeReport counts the outcome of a sentiment re-scoring pass.
type ReanalyzeReport struct {
	Scanned   int
	Updated   int
	Unchanged int
	Failed    int
}

// Reanalyzer re-scores stored articles, typically after the sentiment
// dictionary or model changed. Sentiment is the only field it touches.
type Reanalyzer struct {
	store     ports.ArticleQuerier
	rewriter  ports.SentimentRewriter
	sentiment ports.SentimentScorer
	logger    *slog.Logger
}

func NewReanalyzer(store ports.ArticleQuerier, rewriter ports.SentimentRewriter, sentiment ports.SentimentScorer, logger *slog.Logger) *Reanalyzer {
	return &Reanalyzer{store: store, rewriter: rewriter, sentiment: sentiment, logger: logger}
}

// Run re-scores up to limit articles published in the last days and writes
// back the ones whose sentiment changed.
func (r *Reanalyzer) Run(ctx context.Context, days, limit int) (ReanalyzeReport, error) {
	var report ReanalyzeReport
	if days <= 0 {
		return report, errors.New("days must be positive")
	}

	articles, err := r.store.ListSince(ctx, days, limit)
	if err != nil {
		return report, fmt.Errorf("list articles: %w", err)
	}

	for _, a := range articles {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		report.Scanned++

		text := strings.TrimSpace(a.Title + "\n" + a.Body)
		result := r.sentiment.Score(ctx, text)
		result.Score = domain.ClampScore(result.Score)
		if sameSentiment(a, result) {
			report.Unchanged++
			continue
		}

		if err := r.rewriter.UpdateSentiment(ctx, a.ID, result); err != nil {
			report.Failed++
			if r.logger != nil {
				r.logger.Warn("sentiment update failed", "id", a.ID, "error", err)
			}
			continue
		}
		report.Updated++
	}

	if r.logger != nil {
		r.logger.Info("reanalysis finished",
			"scanned", report.Scanned,
			"updated", report.Updated,
			"failed", report.Failed,
		)
	}
	return report, nil
}

func sameSentiment(a domain.EnrichedArticle, r domain.SentimentResult) bool {
	return a.SentimentLabel == r.Label &&
		a.IsRumor == r.IsRumor &&
		math.Abs(a.SentimentScore-r.Score) < 1e-4
}
