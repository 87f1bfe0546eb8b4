package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"FinNewsScanner/internal/domain"
	"FinNewsScanner/internal/ports"
	"FinNewsScanner/internal/textnorm"
)

// ErrStoreUnavailable is returned when every store call of a batch failed.
var ErrStoreUnavailable = errors.New("article store unavailable")

const defaultWorkers = 4

// PipelineDeps wires all driven adapters into the enrichment pipeline.
type PipelineDeps struct {
	Store     ports.ArticleStore
	Content   ports.ContentExtractor
	Entities  ports.EntityAnalyzer
	Sentiment ports.SentimentScorer
	Impact    ports.ImpactScorer
	// Embedder and Vectors are optional; both must be set to index articles.
	Embedder ports.Embedder
	Vectors  ports.VectorIndex
	Metrics  ports.Metrics
	Logger   *slog.Logger

	Workers       int
	SummaryLength int
}

// Pipeline turns raw stubs into stored EnrichedArticles.
type Pipeline struct {
	store     ports.ArticleStore
	content   ports.ContentExtractor
	entities  ports.EntityAnalyzer
	sentiment ports.SentimentScorer
	impact    ports.ImpactScorer
	embedder  ports.Embedder
	vectors   ports.VectorIndex
	metrics   ports.Metrics
	logger    *slog.Logger

	workers       int
	summaryLength int
	now           func() time.Time
	newID         func() string
}

// Result summarizes one batch.
type Result struct {
	Saved            []domain.EnrichedArticle
	Duplicates       int
	Failed           int
	RepositoryErrors int
}

// HighImpact returns the saved articles that should be alerted on.
func (r Result) HighImpact() []domain.EnrichedArticle {
	var out []domain.EnrichedArticle
	for _, a := range r.Saved {
		if a.IsHighImpact() {
			out = append(out, a)
		}
	}
	return out
}

type outcome int

const (
	outcomeSaved outcome = iota
	outcomeDuplicate
	outcomeFailed
	outcomeRepositoryError
	outcomeCancelled
)

// NewPipeline constructs the enrichment component.
func NewPipeline(deps PipelineDeps) *Pipeline {
	workers := deps.Workers
	if workers <= 0 {
		workers = defaultWorkers
	}
	summaryLength := deps.SummaryLength
	if summaryLength <= 0 {
		summaryLength = textnorm.DefaultSummaryLength
	}
	metrics := deps.Metrics
	if metrics == nil {
		metrics = nopMetrics{}
	}

	return &Pipeline{
		store:         deps.Store,
		content:       deps.Content,
		entities:      deps.Entities,
		sentiment:     deps.Sentiment,
		impact:        deps.Impact,
		embedder:      deps.Embedder,
		vectors:       deps.Vectors,
		metrics:       metrics,
		logger:        deps.Logger,
		workers:       workers,
		summaryLength: summaryLength,
		now:           func() time.Time { return time.Now().UTC() },
		newID:         uuid.NewString,
	}
}

// Process enriches stubs with a bounded worker pool. One article's failure
// never stops the batch; the returned error is reserved for cancellation
// and a store that rejected every call.
func (p *Pipeline) Process(ctx context.Context, stubs []domain.RawArticle) (Result, error) {
	var (
		mu      sync.Mutex
		res     Result
		lastErr error
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers)

	for _, stub := range stubs {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			article, out, err := p.processSafely(gctx, stub)

			mu.Lock()
			defer mu.Unlock()
			switch out {
			case outcomeSaved:
				res.Saved = append(res.Saved, article)
			case outcomeDuplicate:
				res.Duplicates++
			case outcomeRepositoryError:
				res.RepositoryErrors++
				res.Failed++
				lastErr = err
			case outcomeCancelled:
			default:
				res.Failed++
			}
			return nil
		})
	}
	_ = g.Wait()

	p.info("batch enriched",
		"stubs", len(stubs),
		"saved", len(res.Saved),
		"duplicates", res.Duplicates,
		"failed", res.Failed,
	)

	if err := ctx.Err(); err != nil {
		return res, err
	}
	if res.RepositoryErrors > 0 && len(res.Saved) == 0 && res.Duplicates == 0 {
		return res, fmt.Errorf("%w: %w", ErrStoreUnavailable, lastErr)
	}
	return res, nil
}

func (p *Pipeline) processSafely(ctx context.Context, stub domain.RawArticle) (article domain.EnrichedArticle, out outcome, err error) {
	defer func() {
		if r := recover(); r != nil {
			p.metrics.EnrichmentFailed()
			p.warn("article enrichment panicked", "url", stub.URL, "panic", r)
			article, out, err = domain.EnrichedArticle{}, outcomeFailed, fmt.Errorf("panic: %v", r)
		}
	}()
	return p.processOne(ctx, stub)
}

func (p *Pipeline) processOne(ctx context.Context, stub domain.RawArticle) (domain.EnrichedArticle, outcome, error) {
	key := keyOf(stub)
	if key.title == "" || stub.URL == "" {
		p.metrics.EnrichmentFailed()
		p.debug("stub dropped", "url", stub.URL, "reason", "missing title or url")
		return domain.EnrichedArticle{}, outcomeFailed, nil
	}

	exists, err := p.store.ExistsByCanonicalKey(ctx, key.url, key.hash)
	if err != nil {
		p.metrics.RepositoryError()
		p.warn("dedup lookup failed", "url", stub.URL, "error", err)
		return domain.EnrichedArticle{}, outcomeRepositoryError, err
	}
	if exists {
		p.metrics.DedupSkipped(dedupStageStore)
		return domain.EnrichedArticle{}, outcomeDuplicate, nil
	}

	article := domain.EnrichedArticle{
		ID:           p.newID(),
		Title:        key.title,
		TitleHash:    key.hash,
		URL:          stub.URL,
		CanonicalURL: key.url,
		Source:       stub.Source,
		PublishedAt:  stub.PublishedAt.UTC(),
		Status:       domain.StatusPending,
	}

	sourceText := p.bestText(ctx, stub)
	article.Status = domain.StatusProcessing

	article.Body = textnorm.Clean(sourceText)
	if crawlerText := textnorm.Clean(stub.Text); crawlerText != "" {
		article.Summary = textnorm.Summarize(crawlerText, p.summaryLength)
	} else {
		article.Summary = textnorm.Summarize(article.Body, p.summaryLength)
	}

	analysisText := strings.TrimSpace(article.Title + "\n" + article.Body)
	entities := p.entities.Analyze(analysisText)
	article.Tickers = entities.Tickers
	article.Category = entities.Category
	if len(article.Tickers) == 0 && stub.Category != "" {
		article.Category = stub.Category
	}

	sentiment := p.sentiment.Score(ctx, analysisText)
	article.SentimentLabel = sentiment.Label
	article.SentimentScore = domain.ClampScore(sentiment.Score)
	article.IsRumor = sentiment.IsRumor

	impact := p.impact.Score(article.Title, article.Body, article.Tickers)
	article.ImpactScore = impact.Score
	article.ImpactTier = impact.Tier
	article.ImpactTags = impact.Tags

	// Fallbacks taken after cancellation would store a degraded record.
	if err := ctx.Err(); err != nil {
		return domain.EnrichedArticle{}, outcomeCancelled, err
	}

	article.Status = domain.StatusCompleted
	article.CreatedAt = p.now()

	// An in-flight write finishes even when the batch is being cancelled.
	inserted, err := p.store.Insert(context.WithoutCancel(ctx), article)
	if err != nil {
		p.metrics.RepositoryError()
		p.warn("insert failed", "url", stub.URL, "error", err)
		return domain.EnrichedArticle{}, outcomeRepositoryError, err
	}
	if !inserted {
		p.metrics.DedupSkipped(dedupStageStore)
		return domain.EnrichedArticle{}, outcomeDuplicate, nil
	}

	article.EmbeddingID = p.index(ctx, article, analysisText)

	p.metrics.ArticleSaved(article.Source)
	p.debug("article saved",
		"id", article.ID,
		"source", article.Source,
		"category", article.Category,
		"sentiment", article.SentimentLabel,
		"impact", article.ImpactTier,
	)
	return article, outcomeSaved, nil
}

// bestText prefers the fetched full body and falls back to the crawler
// text, then the page description.
func (p *Pipeline) bestText(ctx context.Context, stub domain.RawArticle) string {
	if p.content == nil {
		return stub.Text
	}

	content := p.content.Extract(ctx, stub.URL)
	if content.Success && strings.TrimSpace(content.FullText) != "" {
		return content.FullText
	}
	if ctx.Err() != nil {
		return stub.Text
	}

	p.metrics.ContentFetchFailed()
	p.debug("full content unavailable, using crawler text", "url", stub.URL, "error", content.Error)
	if strings.TrimSpace(stub.Text) != "" {
		return stub.Text
	}
	return content.Description
}

// index embeds a stored article and links the vector to it. Failures
// leave the reference empty.
func (p *Pipeline) index(ctx context.Context, article domain.EnrichedArticle, text string) string {
	if p.embedder == nil || p.vectors == nil {
		return ""
	}

	vector, err := p.embedder.Embed(ctx, text)
	if err != nil {
		p.warn("embedding failed", "url", article.URL, "error", err)
		return ""
	}

	id, err := p.vectors.Upsert(ctx, vector, map[string]string{
		"article_id": article.ID,
		"title":      article.Title,
		"source":     article.Source,
		"category":   string(article.Category),
		"url":        article.URL,
	})
	if err != nil {
		p.warn("vector upsert failed", "url", article.URL, "error", err)
		return ""
	}

	if err := p.store.AttachEmbedding(context.WithoutCancel(ctx), article.ID, id); err != nil {
		p.metrics.RepositoryError()
		p.warn("attach embedding failed", "id", article.ID, "vector", id, "error", err)
		return ""
	}
	return id
}

func (p *Pipeline) info(msg string, args ...interface{}) {
	if p.logger != nil {
		p.logger.Info(msg, args...)
	}
}

func (p *Pipeline) warn(msg string, args ...interface{}) {
	if p.logger != nil {
		p.logger.Warn(msg, args...)
	}
}

func (p *Pipeline) debug(msg string, args ...interface{}) {
	if p.logger != nil {
		p.logger.Debug(msg, args...)
	}
}
