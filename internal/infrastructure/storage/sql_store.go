package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"

	"FinNewsScanner/internal/domain"
	"FinNewsScanner/internal/ports"
)

// ErrNotFound is returned by updates that matched no row.
var ErrNotFound = errors.New("not found")

const defaultLimit = 50

var articleColumns = []string{
	"id", "title", "title_hash", "summary", "body", "url", "canonical_url",
	"source", "published_at", "category", "tickers", "sentiment_score",
	"sentiment_label", "is_rumor", "impact_score", "impact_tier",
	"impact_tags", "embedding_id", "status", "created_at",
}

// SQLStore persists enriched articles and crawl logs in Postgres or SQLite.
type SQLStore struct {
	db      *sqlx.DB
	dialect dialect
	builder sq.StatementBuilderType
	now     func() time.Time
}

var (
	_ ports.ArticleStore       = (*SQLStore)(nil)
	_ ports.ArticleQuerier     = (*SQLStore)(nil)
	_ ports.SentimentRewriter  = (*SQLStore)(nil)
	_ ports.CrawlLogRepository = (*SQLStore)(nil)
)

func newSQLStore(db *sqlx.DB, d dialect) *SQLStore {
	return &SQLStore{
		db:      db,
		dialect: d,
		builder: sq.StatementBuilder.PlaceholderFormat(d.placeholder),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Stats is the store-wide breakdown shown by the stats command.
type Stats struct {
	Total       int
	BySource    map[string]int
	ByCategory  map[string]int
	BySentiment map[string]int
	ByImpact    map[string]int
}

type articleRow struct {
	ID             string    `db:"id"`
	Title          string    `db:"title"`
	TitleHash      string    `db:"title_hash"`
	Summary        string    `db:"summary"`
	Body           string    `db:"body"`
	URL            string    `db:"url"`
	CanonicalURL   string    `db:"canonical_url"`
	Source         string    `db:"source"`
	PublishedAt    time.Time `db:"published_at"`
	Category       string    `db:"category"`
	Tickers        string    `db:"tickers"`
	SentimentScore float64   `db:"sentiment_score"`
	SentimentLabel string    `db:"sentiment_label"`
	IsRumor        bool      `db:"is_rumor"`
	ImpactScore    int       `db:"impact_score"`
	ImpactTier     string    `db:"impact_tier"`
	ImpactTags     string    `db:"impact_tags"`
	EmbeddingID    string    `db:"embedding_id"`
	Status         string    `db:"status"`
	CreatedAt      time.Time `db:"created_at"`
}

func (r articleRow) toDomain() domain.EnrichedArticle {
	return domain.EnrichedArticle{
		ID:             r.ID,
		Title:          r.Title,
		TitleHash:      r.TitleHash,
		Summary:        r.Summary,
		Body:           r.Body,
		URL:            r.URL,
		CanonicalURL:   r.CanonicalURL,
		Source:         r.Source,
		PublishedAt:    r.PublishedAt.UTC(),
		Category:       domain.Category(r.Category),
		Tickers:        decodeList(r.Tickers),
		SentimentScore: r.SentimentScore,
		SentimentLabel: domain.SentimentLabel(r.SentimentLabel),
		IsRumor:        r.IsRumor,
		ImpactScore:    r.ImpactScore,
		ImpactTier:     domain.ImpactTier(r.ImpactTier),
		ImpactTags:     decodeList(r.ImpactTags),
		EmbeddingID:    r.EmbeddingID,
		Status:         domain.ProcessingStatus(r.Status),
		CreatedAt:      r.CreatedAt.UTC(),
	}
}

// Lists are stored as JSON text so both dialects share one schema.
func encodeList(values []string) string {
	if len(values) == 0 {
		return "[]"
	}
	raw, err := json.Marshal(values)
	if err != nil {
		return "[]"
	}
	return string(raw)
}

func decodeList(raw string) []string {
	out := []string{}
	if raw == "" {
		return out
	}
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return []string{}
	}
	return out
}

// ExistsByCanonicalKey reports whether an article with the same canonical
// URL or title fingerprint is stored.
func (s *SQLStore) ExistsByCanonicalKey(ctx context.Context, canonicalURL, titleHash string) (bool, error) {
	query, args, err := s.builder.
		Select("1").
		From("articles").
		Where(sq.Or{sq.Eq{"canonical_url": canonicalURL}, sq.Eq{"title_hash": titleHash}}).
		Limit(1).
		ToSql()
	if err != nil {
		return false, fmt.Errorf("build exists query: %w", err)
	}

	var one int
	if err := s.db.GetContext(ctx, &one, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("query exists: %w", err)
	}
	return true, nil
}

// Insert writes the article unless either unique key is already taken. The
// conflict check happens inside the database, so concurrent writers of the
// same story insert exactly once.
func (s *SQLStore) Insert(ctx context.Context, a domain.EnrichedArticle) (bool, error) {
	query, args, err := s.builder.
		Insert("articles").
		Columns(articleColumns...).
		Values(
			a.ID, a.Title, a.TitleHash, a.Summary, a.Body, a.URL, a.CanonicalURL,
			a.Source, a.PublishedAt.UTC(), string(a.Category), encodeList(a.Tickers), a.SentimentScore,
			string(a.SentimentLabel), a.IsRumor, a.ImpactScore, string(a.ImpactTier),
			encodeList(a.ImpactTags), a.EmbeddingID, string(a.Status), a.CreatedAt.UTC(),
		).
		Suffix("ON CONFLICT DO NOTHING").
		ToSql()
	if err != nil {
		return false, fmt.Errorf("build insert: %w", err)
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("insert article: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert article rows: %w", err)
	}
	return n > 0, nil
}

// QueryByTicker returns the newest articles mentioning ticker inside r.
func (s *SQLStore) QueryByTicker(ctx context.Context, ticker string, r domain.DateRange, limit int) ([]domain.EnrichedArticle, error) {
	ticker = strings.ToUpper(strings.TrimSpace(ticker))
	if ticker == "" {
		return nil, errors.New("ticker is required")
	}

	q := s.selectArticles().Where(tickerFilter(ticker))
	if !r.From.IsZero() {
		q = q.Where(sq.GtOrEq{"published_at": r.From.UTC()})
	}
	if !r.To.IsZero() {
		q = q.Where(sq.LtOrEq{"published_at": r.To.UTC()})
	}
	return s.list(ctx, q.OrderBy("published_at DESC").Limit(limitOf(limit)))
}

// QueryByCategory filters by category, a trailing time window and an
// optional topic substring matched against title and summary.
func (s *SQLStore) QueryByCategory(ctx context.Context, category domain.Category, window time.Duration, topic string, limit int) ([]domain.EnrichedArticle, error) {
	q := s.selectArticles().Where(sq.Eq{"category": string(category)})
	if window > 0 {
		q = q.Where(sq.GtOrEq{"published_at": s.now().Add(-window)})
	}
	if topic = strings.TrimSpace(topic); topic != "" {
		pattern := "%" + topic + "%"
		q = q.Where(sq.Or{
			s.dialect.caseInsensitiveLike("title", pattern),
			s.dialect.caseInsensitiveLike("summary", pattern),
		})
	}
	return s.list(ctx, q.OrderBy("published_at DESC").Limit(limitOf(limit)))
}

// AggregateSentiment summarizes sentiment over the last days for ticker, or
// for the whole market when ticker is empty.
func (s *SQLStore) AggregateSentiment(ctx context.Context, ticker string, days int) (domain.SentimentStats, error) {
	ticker = strings.ToUpper(strings.TrimSpace(ticker))
	stats := domain.SentimentStats{Ticker: ticker, Days: days, Trend: domain.TrendNeutral}
	if ticker == "" {
		stats.Ticker = domain.MarketTicker
	}

	q := s.builder.
		Select("sentiment_label AS label", "COUNT(*) AS n", "COALESCE(SUM(sentiment_score), 0) AS total").
		From("articles").
		Where(sq.GtOrEq{"published_at": s.cutoff(days)}).
		GroupBy("sentiment_label")
	if ticker != "" {
		q = q.Where(tickerFilter(ticker))
	}

	query, args, err := q.ToSql()
	if err != nil {
		return stats, fmt.Errorf("build sentiment query: %w", err)
	}

	var rows []struct {
		Label string  `db:"label"`
		N     int     `db:"n"`
		Total float64 `db:"total"`
	}
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return stats, fmt.Errorf("aggregate sentiment: %w", err)
	}

	var sum float64
	for _, r := range rows {
		stats.Total += r.N
		sum += r.Total
		switch domain.SentimentLabel(r.Label) {
		case domain.SentimentPositive:
			stats.Positive += r.N
		case domain.SentimentNegative:
			stats.Negative += r.N
		default:
			stats.Neutral += r.N
		}
	}
	if stats.Total > 0 {
		stats.Average = math.Round(sum/float64(stats.Total)*10000) / 10000
	}
	stats.Trend = domain.TrendFor(stats.Average)
	return stats, nil
}

// HighImpact lists HIGH tier articles from the last days, strongest first.
func (s *SQLStore) HighImpact(ctx context.Context, days, limit int) ([]domain.EnrichedArticle, error) {
	q := s.selectArticles().
		Where(sq.Eq{"impact_tier": string(domain.ImpactHigh)}).
		Where(sq.GtOrEq{"published_at": s.cutoff(days)}).
		OrderBy("impact_score DESC", "published_at DESC").
		Limit(limitOf(limit))
	return s.list(ctx, q)
}

// ListSince returns the newest articles published in the last days. A
// non-positive days lists without a time filter.
func (s *SQLStore) ListSince(ctx context.Context, days, limit int) ([]domain.EnrichedArticle, error) {
	q := s.selectArticles()
	if days > 0 {
		q = q.Where(sq.GtOrEq{"published_at": s.cutoff(days)})
	}
	return s.list(ctx, q.OrderBy("published_at DESC").Limit(limitOf(limit)))
}

// Count returns the number of stored articles.
func (s *SQLStore) Count(ctx context.Context) (int, error) {
	query, args, err := s.builder.Select("COUNT(*)").From("articles").ToSql()
	if err != nil {
		return 0, fmt.Errorf("build count: %w", err)
	}
	var n int
	if err := s.db.GetContext(ctx, &n, query, args...); err != nil {
		return 0, fmt.Errorf("count articles: %w", err)
	}
	return n, nil
}

// UpdateSentiment overwrites the sentiment fields of one article.
func (s *SQLStore) UpdateSentiment(ctx context.Context, id string, result domain.SentimentResult) error {
	query, args, err := s.builder.
		Update("articles").
		Set("sentiment_score", domain.ClampScore(result.Score)).
		Set("sentiment_label", string(result.Label)).
		Set("is_rumor", result.IsRumor).
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build sentiment update: %w", err)
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update sentiment: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update sentiment rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("article %s: %w", id, ErrNotFound)
	}
	return nil
}

// AttachEmbedding records the vector id of an article that has none yet.
func (s *SQLStore) AttachEmbedding(ctx context.Context, id, embeddingID string) error {
	query, args, err := s.builder.
		Update("articles").
		Set("embedding_id", embeddingID).
		Where(sq.Eq{"id": id, "embedding_id": ""}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build embedding update: %w", err)
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("attach embedding: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("attach embedding rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("article %s without embedding: %w", id, ErrNotFound)
	}
	return nil
}

// Stats counts articles by source, category, sentiment label and impact tier.
func (s *SQLStore) Stats(ctx context.Context) (Stats, error) {
	var (
		stats Stats
		err   error
	)
	if stats.Total, err = s.Count(ctx); err != nil {
		return stats, err
	}
	if stats.BySource, err = s.groupCount(ctx, "source"); err != nil {
		return stats, err
	}
	if stats.ByCategory, err = s.groupCount(ctx, "category"); err != nil {
		return stats, err
	}
	if stats.BySentiment, err = s.groupCount(ctx, "sentiment_label"); err != nil {
		return stats, err
	}
	if stats.ByImpact, err = s.groupCount(ctx, "impact_tier"); err != nil {
		return stats, err
	}
	return stats, nil
}

// PruneOlderThan deletes articles published more than days ago.
func (s *SQLStore) PruneOlderThan(ctx context.Context, days int) (int64, error) {
	if days <= 0 {
		return 0, errors.New("retention days must be positive")
	}

	query, args, err := s.builder.
		Delete("articles").
		Where(sq.Lt{"published_at": s.cutoff(days)}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build prune: %w", err)
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("prune articles: %w", err)
	}
	return res.RowsAffected()
}

func (s *SQLStore) groupCount(ctx context.Context, column string) (map[string]int, error) {
	query, args, err := s.builder.
		Select(column+" AS k", "COUNT(*) AS n").
		From("articles").
		GroupBy(column).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build group by %s: %w", column, err)
	}

	var rows []struct {
		K string `db:"k"`
		N int    `db:"n"`
	}
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("count by %s: %w", column, err)
	}

	out := make(map[string]int, len(rows))
	for _, r := range rows {
		out[r.K] = r.N
	}
	return out, nil
}

func (s *SQLStore) selectArticles() sq.SelectBuilder {
	return s.builder.Select(articleColumns...).From("articles")
}

func (s *SQLStore) list(ctx context.Context, q sq.SelectBuilder) ([]domain.EnrichedArticle, error) {
	query, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}

	var rows []articleRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("select articles: %w", err)
	}

	out := make([]domain.EnrichedArticle, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toDomain())
	}
	return out, nil
}

func (s *SQLStore) cutoff(days int) time.Time {
	return s.now().Add(-time.Duration(days) * 24 * time.Hour)
}

// tickerFilter matches the quoted symbol inside the JSON list so that
// "VIC" does not match "VICB".
func tickerFilter(ticker string) sq.Sqlizer {
	return sq.Like{"tickers": `%"` + ticker + `"%`}
}

func limitOf(limit int) uint64 {
	if limit <= 0 {
		return defaultLimit
	}
	return uint64(limit)
}
