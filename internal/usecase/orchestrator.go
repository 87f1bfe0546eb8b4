package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"FinNewsScanner/internal/domain"
	"FinNewsScanner/internal/ports"
	"FinNewsScanner/internal/textnorm"
)

const (
	// MaxBackoff caps the daemon wait after consecutive failed cycles.
	MaxBackoff = 7200 * time.Second

	maxBackoffExponent = 5
	maxBackoffFactor   = 32

	dedupStageBatch = "batch"
	dedupStageStore = "store"
)

// BatchProcessor enriches and stores a deduplicated batch.
type BatchProcessor interface {
	Process(ctx context.Context, stubs []domain.RawArticle) (Result, error)
}

// OrchestratorDeps wires crawlers, the pipeline and optional side channels.
type OrchestratorDeps struct {
	Crawlers []ports.Crawler
	Pipeline BatchProcessor
	CrawlLog ports.CrawlLogRepository
	Alerter  ports.Alerter
	Metrics  ports.Metrics
	Logger   *slog.Logger
}

// Orchestrator runs crawl cycles and the daemon loop.
type Orchestrator struct {
	crawlers []ports.Crawler
	pipeline BatchProcessor
	crawlLog ports.CrawlLogRepository
	alerter  ports.Alerter
	metrics  ports.Metrics
	logger   *slog.Logger

	now  func() time.Time
	wait func(ctx context.Context, d time.Duration) error
}

// CycleReport is the outcome of one crawl cycle.
type CycleReport struct {
	Fetched         int
	BatchDuplicates int
	Result          Result
	Alerted         int
	Duration        time.Duration
}

type stubKey struct {
	url   string
	title string
	hash  string
}

// keyOf derives the canonical dedup key of a stub.
func keyOf(stub domain.RawArticle) stubKey {
	title := textnorm.CleanTitle(stub.Title)
	return stubKey{
		url:   textnorm.CanonicalURL(stub.URL),
		title: title,
		hash:  textnorm.TitleFingerprint(title),
	}
}

// NewOrchestrator builds the crawl orchestrator.
func NewOrchestrator(deps OrchestratorDeps) *Orchestrator {
	metrics := deps.Metrics
	if metrics == nil {
		metrics = nopMetrics{}
	}
	return &Orchestrator{
		crawlers: deps.Crawlers,
		pipeline: deps.Pipeline,
		crawlLog: deps.CrawlLog,
		alerter:  deps.Alerter,
		metrics:  metrics,
		logger:   deps.Logger,
		now:      func() time.Time { return time.Now().UTC() },
		wait:     sleepContext,
	}
}

// Backoff returns the daemon wait after failures consecutive failed cycles:
// base × min(2^min(failures,5), 32), capped at MaxBackoff.
func Backoff(base time.Duration, failures int) time.Duration {
	if failures < 0 {
		failures = 0
	}
	factor := 1 << min(failures, maxBackoffExponent)
	factor = min(factor, maxBackoffFactor)

	wait := base * time.Duration(factor)
	if wait > MaxBackoff || wait < 0 {
		return MaxBackoff
	}
	return wait
}

// RunOnce crawls every source concurrently, merges in registration order,
// drops duplicates and hands the batch to the pipeline.
func (o *Orchestrator) RunOnce(ctx context.Context) (CycleReport, error) {
	started := o.now()
	var report CycleReport

	batches := make([][]domain.RawArticle, len(o.crawlers))
	entries := make([]domain.CrawlLogEntry, len(o.crawlers))

	var g errgroup.Group
	for i, crawler := range o.crawlers {
		g.Go(func() error {
			entries[i] = o.startLog(ctx, crawler.Name())
			stubs, err := o.crawl(ctx, crawler)
			batches[i] = stubs
			entries[i].Fetched = len(stubs)
			if err != nil {
				entries[i].Status = domain.CrawlFailed
				entries[i].Error = err.Error()
			}
			o.metrics.StubsCrawled(crawler.Name(), len(stubs))
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		for i := range entries {
			o.finishLog(ctx, entries[i], err)
		}
		return report, err
	}

	unique, owners, duplicates := mergeBatches(batches)
	for i := 0; i < duplicates; i++ {
		o.metrics.DedupSkipped(dedupStageBatch)
	}
	for _, b := range batches {
		report.Fetched += len(b)
	}
	report.BatchDuplicates = duplicates

	res, err := o.pipeline.Process(ctx, unique)
	report.Result = res

	inserted := make([]int, len(o.crawlers))
	for _, a := range res.Saved {
		if idx, ok := owners[a.CanonicalURL]; ok {
			inserted[idx]++
		}
	}
	for i := range entries {
		entries[i].Inserted = inserted[i]
		o.finishLog(ctx, entries[i], err)
	}

	report.Alerted = o.alert(ctx, res.HighImpact())
	report.Duration = o.now().Sub(started)

	o.info("crawl cycle finished",
		"fetched", report.Fetched,
		"unique", len(unique),
		"batch_duplicates", duplicates,
		"saved", len(res.Saved),
		"store_duplicates", res.Duplicates,
		"failed", res.Failed,
		"high_impact", len(res.HighImpact()),
		"duration", report.Duration,
	)

	if err != nil {
		return report, fmt.Errorf("process batch: %w", err)
	}
	return report, nil
}

// RunDaemon repeats RunOnce until ctx is cancelled, backing off after
// failed cycles.
func (o *Orchestrator) RunDaemon(ctx context.Context, interval time.Duration) error {
	failures := 0
	for {
		_, err := o.RunOnce(ctx)
		if ctx.Err() != nil {
			return nil
		}

		next := interval
		if err != nil {
			failures++
			next = Backoff(interval, failures)
			o.warn("crawl cycle failed", "consecutive_failures", failures, "next_run_in", next, "error", err)
		} else {
			failures = 0
		}

		if err := o.wait(ctx, next); err != nil {
			return nil
		}
	}
}

// crawl isolates a crawler panic so the cycle continues.
func (o *Orchestrator) crawl(ctx context.Context, crawler ports.Crawler) (stubs []domain.RawArticle, err error) {
	defer func() {
		if r := recover(); r != nil {
			o.warn("crawler panicked", "crawler", crawler.Name(), "panic", r)
			stubs, err = nil, fmt.Errorf("crawler %s panicked: %v", crawler.Name(), r)
		}
	}()
	return crawler.Crawl(ctx), nil
}

// mergeBatches keeps the first stub per canonical URL or title fingerprint
// and remembers which crawler contributed each kept URL.
func mergeBatches(batches [][]domain.RawArticle) ([]domain.RawArticle, map[string]int, int) {
	seenURL := map[string]struct{}{}
	seenTitle := map[string]struct{}{}
	owners := map[string]int{}
	var unique []domain.RawArticle
	duplicates := 0

	for idx, batch := range batches {
		for _, stub := range batch {
			key := keyOf(stub)
			_, urlSeen := seenURL[key.url]
			_, titleSeen := seenTitle[key.hash]
			if urlSeen || titleSeen {
				duplicates++
				continue
			}
			seenURL[key.url] = struct{}{}
			seenTitle[key.hash] = struct{}{}
			owners[key.url] = idx
			unique = append(unique, stub)
		}
	}
	return unique, owners, duplicates
}

func (o *Orchestrator) startLog(ctx context.Context, source string) domain.CrawlLogEntry {
	entry := domain.CrawlLogEntry{Source: source, StartedAt: o.now(), Status: domain.CrawlRunning}
	if o.crawlLog == nil {
		return entry
	}
	stored, err := o.crawlLog.StartCrawlLog(ctx, source)
	if err != nil {
		o.warn("crawl log start failed", "source", source, "error", err)
		return entry
	}
	return stored
}

func (o *Orchestrator) finishLog(ctx context.Context, entry domain.CrawlLogEntry, cycleErr error) {
	entry.FinishedAt = o.now()
	if entry.Status != domain.CrawlFailed {
		entry.Status = domain.CrawlSuccess
		if cycleErr != nil {
			entry.Status = domain.CrawlFailed
			entry.Error = cycleErr.Error()
		}
	}
	if o.crawlLog == nil || entry.ID == "" {
		return
	}
	if err := o.crawlLog.FinishCrawlLog(context.WithoutCancel(ctx), entry); err != nil {
		o.warn("crawl log finish failed", "source", entry.Source, "error", err)
	}
}

func (o *Orchestrator) alert(ctx context.Context, articles []domain.EnrichedArticle) int {
	if o.alerter == nil {
		return 0
	}
	sent := 0
	for _, a := range articles {
		if err := o.alerter.Alert(ctx, a); err != nil {
			o.warn("alert failed", "id", a.ID, "error", err)
			continue
		}
		sent++
	}
	return sent
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (o *Orchestrator) info(msg string, args ...interface{}) {
	if o.logger != nil {
		o.logger.Info(msg, args...)
	}
}

func (o *Orchestrator) warn(msg string, args ...interface{}) {
	if o.logger != nil {
		o.logger.Warn(msg, args...)
	}
}

type nopMetrics struct{}

func (nopMetrics) StubsCrawled(string, int) {}
func (nopMetrics) ArticleSaved(string)      {}
func (nopMetrics) DedupSkipped(string)      {}
func (nopMetrics) RepositoryError()         {}
func (nopMetrics) EnrichmentFailed()        {}
func (nopMetrics) ContentFetchFailed()      {}
