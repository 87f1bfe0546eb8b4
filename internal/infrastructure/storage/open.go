package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"           // postgres driver
	_ "github.com/mattn/go-sqlite3" // sqlite3 driver
)

const (
	defaultMaxOpenConns    = 10
	defaultMaxIdleConns    = 5
	defaultConnMaxLifetime = 5 * time.Minute
	pingTimeout            = 5 * time.Second
)

type dialect struct {
	driver      string
	placeholder sq.PlaceholderFormat
	timeType    string
	// caseInsensitiveLike builds the substring filter used for topic search.
	caseInsensitiveLike func(column, pattern string) sq.Sqlizer
}

var (
	postgresDialect = dialect{
		driver:      "postgres",
		placeholder: sq.Dollar,
		timeType:    "TIMESTAMPTZ",
		caseInsensitiveLike: func(column, pattern string) sq.Sqlizer {
			return sq.ILike{column: pattern}
		},
	}
	sqliteDialect = dialect{
		driver:      "sqlite3",
		placeholder: sq.Question,
		timeType:    "DATETIME",
		caseInsensitiveLike: func(column, pattern string) sq.Sqlizer {
			return sq.Like{column: pattern}
		},
	}
)

// parseDSN maps a database URL onto a driver. Postgres URLs are passed
// through; "sqlite:<path>" opens a file, "sqlite::memory:" an in-memory db.
func parseDSN(raw string) (dialect, string, error) {
	raw = strings.TrimSpace(raw)
	switch {
	case strings.HasPrefix(raw, "postgres://"), strings.HasPrefix(raw, "postgresql://"):
		return postgresDialect, raw, nil
	case strings.HasPrefix(raw, "sqlite:"):
		path := strings.TrimPrefix(strings.TrimPrefix(raw, "sqlite:"), "//")
		if path == "" {
			return dialect{}, "", fmt.Errorf("database url %q has no path", raw)
		}
		return sqliteDialect, path, nil
	default:
		return dialect{}, "", fmt.Errorf("unsupported database url %q (want postgres:// or sqlite:)", raw)
	}
}

// Open connects to the database named by rawURL and verifies it with a ping.
func Open(ctx context.Context, rawURL string) (*SQLStore, error) {
	d, dsn, err := parseDSN(rawURL)
	if err != nil {
		return nil, err
	}

	if d.driver == sqliteDialect.driver && !strings.HasPrefix(dsn, ":memory:") {
		if dir := filepath.Dir(dsn); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create database dir: %w", err)
			}
		}
		dsn += "?_busy_timeout=5000"
	}

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	db, err := sqlx.ConnectContext(pingCtx, d.driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", d.driver, err)
	}

	if d.driver == sqliteDialect.driver {
		// One writer at a time; also keeps a single in-memory database alive.
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(defaultMaxOpenConns)
		db.SetMaxIdleConns(defaultMaxIdleConns)
		db.SetConnMaxLifetime(defaultConnMaxLifetime)
	}

	return newSQLStore(db, d), nil
}

func schema(timeType string) []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS articles (
			id              TEXT PRIMARY KEY,
			title           TEXT NOT NULL,
			title_hash      TEXT NOT NULL UNIQUE,
			summary         TEXT NOT NULL DEFAULT '',
			body            TEXT NOT NULL DEFAULT '',
			url             TEXT NOT NULL,
			canonical_url   TEXT NOT NULL UNIQUE,
			source          TEXT NOT NULL,
			published_at    ` + timeType + ` NOT NULL,
			category        TEXT NOT NULL,
			tickers         TEXT NOT NULL DEFAULT '[]',
			sentiment_score DOUBLE PRECISION NOT NULL DEFAULT 0,
			sentiment_label TEXT NOT NULL DEFAULT 'NEUTRAL',
			is_rumor        BOOLEAN NOT NULL DEFAULT FALSE,
			impact_score    INTEGER NOT NULL DEFAULT 0,
			impact_tier     TEXT NOT NULL DEFAULT 'LOW',
			impact_tags     TEXT NOT NULL DEFAULT '[]',
			embedding_id    TEXT NOT NULL DEFAULT '',
			status          TEXT NOT NULL,
			created_at      ` + timeType + ` NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_articles_published_at ON articles (published_at)`,
		`CREATE INDEX IF NOT EXISTS idx_articles_impact ON articles (impact_tier, impact_score)`,
		`CREATE INDEX IF NOT EXISTS idx_articles_category ON articles (category)`,
		`CREATE TABLE IF NOT EXISTS crawl_logs (
			id          TEXT PRIMARY KEY,
			source      TEXT NOT NULL,
			started_at  ` + timeType + ` NOT NULL,
			finished_at ` + timeType + `,
			fetched     INTEGER NOT NULL DEFAULT 0,
			inserted    INTEGER NOT NULL DEFAULT 0,
			status      TEXT NOT NULL,
			error       TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE INDEX IF NOT EXISTS idx_crawl_logs_started_at ON crawl_logs (started_at)`,
	}
}

// Migrate creates the tables and indexes when missing.
func (s *SQLStore) Migrate(ctx context.Context) error {
	for _, stmt := range schema(s.dialect.timeType) {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

// Close releases the connection pool.
func (s *SQLStore) Close() error {
	return s.db.Close()
}
