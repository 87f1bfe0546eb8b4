package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// CrawlStatus is the lifecycle state of a crawl log entry.
type CrawlStatus string

const (
	CrawlRunning CrawlStatus = "RUNNING"
	CrawlSuccess CrawlStatus = "SUCCESS"
	CrawlFailed  CrawlStatus = "FAILED"
)

// CrawlLogEntry audits one crawler invocation.
type CrawlLogEntry struct {
	ID         string
	Source     string
	StartedAt  time.Time
	FinishedAt time.Time
	Fetched    int
	Inserted   int
	Status     CrawlStatus
	Error      string
}

// Trend labels reported by sentiment aggregation.
const (
	TrendPositive = "TÍCH CỰC"
	TrendNegative = "TIÊU CỰC"
	TrendNeutral  = "TRUNG TÍNH"

	// MarketTicker labels market-wide aggregates.
	MarketTicker = "VNINDEX"
)

// SentimentStats aggregates sentiment over a time window.
type SentimentStats struct {
	Ticker   string
	Days     int
	Total    int
	Average  float64
	Positive int
	Negative int
	Neutral  int
	Trend    string
}

// TrendFor maps an average score to a trend label using a ±0.1 band.
func TrendFor(avg float64) string {
	switch {
	case avg > 0.1:
		return TrendPositive
	case avg < -0.1:
		return TrendNegative
	default:
		return TrendNeutral
	}
}

// DateRange bounds a query; zero values are open ends.
type DateRange struct {
	From time.Time
	To   time.Time
}

// VectorMatch is a semantic search hit.
type VectorMatch struct {
	ID       string
	Score    float64
	Metadata map[string]string
}

var namedWindows = map[string]time.Duration{
	"1d": 24 * time.Hour,
	"3d": 3 * 24 * time.Hour,
	"7d": 7 * 24 * time.Hour,
	"1w": 7 * 24 * time.Hour,
	"2w": 14 * 24 * time.Hour,
	"1m": 30 * 24 * time.Hour,
	"3m": 90 * 24 * time.Hour,
	"6m": 180 * 24 * time.Hour,
	"1y": 365 * 24 * time.Hour,
}

// ParseWindow converts strings like "7d", "2w", "3m" or "1y" into a duration.
// Months count as 30 days and years as 365.
func ParseWindow(raw string) (time.Duration, error) {
	value := strings.ToLower(strings.TrimSpace(raw))
	if d, ok := namedWindows[value]; ok {
		return d, nil
	}
	if len(value) < 2 {
		return 0, fmt.Errorf("invalid time window %q", raw)
	}

	n, err := strconv.Atoi(value[:len(value)-1])
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid time window %q", raw)
	}

	day := 24 * time.Hour
	switch value[len(value)-1] {
	case 'd':
		return time.Duration(n) * day, nil
	case 'w':
		return time.Duration(n) * 7 * day, nil
	case 'm':
		return time.Duration(n) * 30 * day, nil
	case 'y':
		return time.Duration(n) * 365 * day, nil
	}
	return 0, fmt.Errorf("invalid time window %q", raw)
}
