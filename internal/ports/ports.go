package ports

import (
	"context"
	"time"

	"FinNewsScanner/internal/domain"
)

// Fetcher downloads a page body, retrying transient failures internally.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (string, error)
}

// Crawler produces stubs from one configured source. It never fails:
// whatever could be gathered is returned.
type Crawler interface {
	Name() string
	Crawl(ctx context.Context) []domain.RawArticle
}

// ContentExtractor retrieves the full body of an article.
type ContentExtractor interface {
	Extract(ctx context.Context, url string) domain.ContentResult
}

// EntityAnalyzer recognises tickers and assigns a category.
type EntityAnalyzer interface {
	Analyze(text string) domain.EntityResult
}

// SentimentScorer labels text polarity.
type SentimentScorer interface {
	Score(ctx context.Context, text string) domain.SentimentResult
}

// ImpactScorer rates expected market significance.
type ImpactScorer interface {
	Score(title, body string, tickers []string) domain.ImpactResult
}

// ArticleStore is the dedup-aware write side used by the pipeline.
// Insert must be atomic with respect to the existence check and report
// false without error when an equivalent key is already stored.
// AttachEmbedding links a stored article to its vector.
type ArticleStore interface {
	ExistsByCanonicalKey(ctx context.Context, canonicalURL, titleHash string) (bool, error)
	Insert(ctx context.Context, article domain.EnrichedArticle) (bool, error)
	AttachEmbedding(ctx context.Context, id, embeddingID string) error
}

// ArticleQuerier is the read side consumed by the command surface.
type ArticleQuerier interface {
	QueryByTicker(ctx context.Context, ticker string, r domain.DateRange, limit int) ([]domain.EnrichedArticle, error)
	QueryByCategory(ctx context.Context, category domain.Category, window time.Duration, topic string, limit int) ([]domain.EnrichedArticle, error)
	AggregateSentiment(ctx context.Context, ticker string, days int) (domain.SentimentStats, error)
	HighImpact(ctx context.Context, days, limit int) ([]domain.EnrichedArticle, error)
	ListSince(ctx context.Context, days, limit int) ([]domain.EnrichedArticle, error)
	Count(ctx context.Context) (int, error)
}

// SentimentRewriter overwrites the sentiment fields of a stored article.
// Apart from linking an embedding, it is the only mutation allowed after
// insert.
type SentimentRewriter interface {
	UpdateSentiment(ctx context.Context, id string, result domain.SentimentResult) error
}

// CrawlLogRepository keeps the append-only crawl audit trail.
type CrawlLogRepository interface {
	StartCrawlLog(ctx context.Context, source string) (domain.CrawlLogEntry, error)
	FinishCrawlLog(ctx context.Context, entry domain.CrawlLogEntry) error
}

// Completer is a single-shot text completion model.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// Embedder turns text into a dense vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// VectorIndex stores vectors and answers similarity queries.
type VectorIndex interface {
	Upsert(ctx context.Context, vector []float32, metadata map[string]string) (string, error)
	Search(ctx context.Context, vector []float32, limit int, minScore float64) ([]domain.VectorMatch, error)
}

// Alerter pushes high-impact articles to an outbound channel.
type Alerter interface {
	Alert(ctx context.Context, article domain.EnrichedArticle) error
}

// Metrics records pipeline counters. Implementations must be safe for
// concurrent use.
type Metrics interface {
	StubsCrawled(source string, n int)
	ArticleSaved(source string)
	DedupSkipped(stage string)
	RepositoryError()
	EnrichmentFailed()
	ContentFetchFailed()
}

// Scheduler controls when crawl cycles execute.
type Scheduler interface {
	Start(ctx context.Context, job func(time.Time)) error
	Stop(ctx context.Context) error
}
