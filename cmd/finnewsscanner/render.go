package main

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"FinNewsScanner/internal/domain"
	"FinNewsScanner/internal/infrastructure/storage"
	"FinNewsScanner/internal/usecase"
)

const (
	titleWidth = 70
	timeLayout = "2006-01-02 15:04"
)

func newTable(out io.Writer, title string) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(out)
	t.SetStyle(table.StyleLight)
	if title != "" {
		t.SetTitle(title)
	}
	return t
}

func renderCycle(out io.Writer, r usecase.CycleReport) {
	t := newTable(out, "Crawl cycle")
	t.AppendHeader(table.Row{"Fetched", "Batch dups", "Saved", "Store dups", "Failed", "High impact", "Alerted", "Duration"})
	t.AppendRow(table.Row{
		r.Fetched,
		r.BatchDuplicates,
		len(r.Result.Saved),
		r.Result.Duplicates,
		r.Result.Failed,
		len(r.Result.HighImpact()),
		r.Alerted,
		r.Duration.Round(time.Millisecond).String(),
	})
	t.Render()
}

func renderStats(out io.Writer, s storage.Stats) {
	t := newTable(out, fmt.Sprintf("Articles: %d", s.Total))
	t.AppendHeader(table.Row{"Group", "Value", "Count"})
	for _, group := range []struct {
		name   string
		counts map[string]int
	}{
		{"source", s.BySource},
		{"category", s.ByCategory},
		{"sentiment", s.BySentiment},
		{"impact", s.ByImpact},
	} {
		for _, key := range sortedKeys(group.counts) {
			t.AppendRow(table.Row{group.name, key, group.counts[key]})
		}
		t.AppendSeparator()
	}
	t.Render()
}

func renderCrawlLogs(out io.Writer, logs []domain.CrawlLogEntry) {
	t := newTable(out, "Recent crawls")
	t.AppendHeader(table.Row{"Source", "Started", "Status", "Fetched", "Inserted", "Error"})
	for _, l := range logs {
		t.AppendRow(table.Row{
			l.Source,
			l.StartedAt.Format(timeLayout),
			colorStatus(l.Status),
			l.Fetched,
			l.Inserted,
			truncate(l.Error, 40),
		})
	}
	t.Render()
}

func renderSentiment(out io.Writer, s domain.SentimentStats) {
	t := newTable(out, fmt.Sprintf("Sentiment %s, last %d days", s.Ticker, s.Days))
	t.AppendHeader(table.Row{"Total", "Average", "Positive", "Negative", "Neutral", "Trend"})
	t.AppendRow(table.Row{s.Total, fmt.Sprintf("%+.4f", s.Average), s.Positive, s.Negative, s.Neutral, s.Trend})
	t.Render()
}

func renderArticles(out io.Writer, title string, articles []domain.EnrichedArticle) {
	t := newTable(out, title)
	t.AppendHeader(table.Row{"Published", "Source", "Title", "Tickers", "Sentiment", "Impact"})
	for _, a := range articles {
		t.AppendRow(table.Row{
			a.PublishedAt.Format(timeLayout),
			a.Source,
			truncate(a.Title, titleWidth),
			joinTickers(a.Tickers),
			fmt.Sprintf("%s %+.2f", a.SentimentLabel, a.SentimentScore),
			fmt.Sprintf("%s %d", colorTier(a.ImpactTier), a.ImpactScore),
		})
	}
	t.AppendFooter(table.Row{"", "", fmt.Sprintf("%d articles", len(articles))})
	t.Render()
}

func renderMatches(out io.Writer, matches []domain.VectorMatch) {
	t := newTable(out, "Semantic matches")
	t.AppendHeader(table.Row{"Score", "Source", "Title", "URL"})
	for _, m := range matches {
		t.AppendRow(table.Row{
			fmt.Sprintf("%.3f", m.Score),
			m.Metadata["source"],
			truncate(m.Metadata["title"], titleWidth),
			m.Metadata["url"],
		})
	}
	t.Render()
}

func renderEvaluation(out io.Writer, r usecase.EvaluationReport) {
	t := newTable(out, fmt.Sprintf("Evaluation, last %d days", r.WindowDays))
	t.AppendHeader(table.Row{"Metric", "Value"})
	t.AppendRows([]table.Row{
		{"Articles", r.Total},
		{"Unique sources", r.UniqueSources},
		{"Has content", percent(r.Coverage.Content)},
		{"Has summary", percent(r.Coverage.Summary)},
		{"Has sentiment", percent(r.Coverage.Sentiment)},
		{"Has tickers", percent(r.Coverage.Tickers)},
		{"Has vector", percent(r.Coverage.Embedding)},
		{"Sentiment average", fmt.Sprintf("%+.4f", r.SentimentAverage)},
		{"High impact ratio", percent(r.HighImpactRatio)},
		{"Avg body length", r.AvgBodyLength},
		{"Avg summary length", r.AvgSummaryLength},
	})
	t.AppendSeparator()
	for _, key := range sortedKeys(r.SentimentDistribution) {
		t.AppendRow(table.Row{"Sentiment " + key, r.SentimentDistribution[key]})
	}
	for _, key := range sortedKeys(r.ImpactDistribution) {
		t.AppendRow(table.Row{"Impact " + key, r.ImpactDistribution[key]})
	}
	t.Render()
}

func colorTier(tier domain.ImpactTier) string {
	switch tier {
	case domain.ImpactHigh:
		return text.FgRed.Sprint(tier)
	case domain.ImpactMedium:
		return text.FgYellow.Sprint(tier)
	default:
		return string(tier)
	}
}

func colorStatus(status domain.CrawlStatus) string {
	if status == domain.CrawlFailed {
		return text.FgRed.Sprint(status)
	}
	return string(status)
}

func percent(v float64) string {
	return fmt.Sprintf("%.1f%%", v*100)
}

func joinTickers(tickers []string) string {
	if len(tickers) > 4 {
		return fmt.Sprintf("%s, %s, %s +%d", tickers[0], tickers[1], tickers[2], len(tickers)-3)
	}
	return strings.Join(tickers, ", ")
}

func truncate(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	return string(runes[:limit-1]) + "…"
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
