package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"

	"FinNewsScanner/internal/domain"
)

// StartCrawlLog opens a RUNNING audit entry for source.
func (s *SQLStore) StartCrawlLog(ctx context.Context, source string) (domain.CrawlLogEntry, error) {
	entry := domain.CrawlLogEntry{
		ID:        uuid.NewString(),
		Source:    source,
		StartedAt: s.now(),
		Status:    domain.CrawlRunning,
	}

	query, args, err := s.builder.
		Insert("crawl_logs").
		Columns("id", "source", "started_at", "status").
		Values(entry.ID, entry.Source, entry.StartedAt, string(entry.Status)).
		ToSql()
	if err != nil {
		return domain.CrawlLogEntry{}, fmt.Errorf("build crawl log insert: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return domain.CrawlLogEntry{}, fmt.Errorf("insert crawl log: %w", err)
	}
	return entry, nil
}

// FinishCrawlLog records the final counts and status of entry.
func (s *SQLStore) FinishCrawlLog(ctx context.Context, entry domain.CrawlLogEntry) error {
	finished := entry.FinishedAt
	if finished.IsZero() {
		finished = s.now()
	}

	query, args, err := s.builder.
		Update("crawl_logs").
		Set("finished_at", finished.UTC()).
		Set("fetched", entry.Fetched).
		Set("inserted", entry.Inserted).
		Set("status", string(entry.Status)).
		Set("error", entry.Error).
		Where(sq.Eq{"id": entry.ID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build crawl log update: %w", err)
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update crawl log: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update crawl log rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("crawl log %s: %w", entry.ID, ErrNotFound)
	}
	return nil
}

// RecentCrawlLogs returns the latest entries, newest first.
func (s *SQLStore) RecentCrawlLogs(ctx context.Context, limit int) ([]domain.CrawlLogEntry, error) {
	query, args, err := s.builder.
		Select("id", "source", "started_at", "finished_at", "fetched", "inserted", "status", "error").
		From("crawl_logs").
		OrderBy("started_at DESC").
		Limit(limitOf(limit)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build crawl log select: %w", err)
	}

	var rows []struct {
		ID         string       `db:"id"`
		Source     string       `db:"source"`
		StartedAt  time.Time    `db:"started_at"`
		FinishedAt sql.NullTime `db:"finished_at"`
		Fetched    int          `db:"fetched"`
		Inserted   int          `db:"inserted"`
		Status     string       `db:"status"`
		Error      string       `db:"error"`
	}
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("select crawl logs: %w", err)
	}

	out := make([]domain.CrawlLogEntry, 0, len(rows))
	for _, r := range rows {
		entry := domain.CrawlLogEntry{
			ID:        r.ID,
			Source:    r.Source,
			StartedAt: r.StartedAt.UTC(),
			Fetched:   r.Fetched,
			Inserted:  r.Inserted,
			Status:    domain.CrawlStatus(r.Status),
			Error:     r.Error,
		}
		if r.FinishedAt.Valid {
			entry.FinishedAt = r.FinishedAt.Time.UTC()
		}
		out = append(out, entry)
	}
	return out, nil
}
