package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"FinNewsScanner/internal/domain"
	"FinNewsScanner/internal/ports"
	"FinNewsScanner/internal/textnorm"
)

type crawlerStub struct {
	name  string
	stubs []domain.RawArticle
	panic bool
}

func (c crawlerStub) Name() string { return c.name }

func crawlers(stubs ...crawlerStub) []ports.Crawler {
	out := make([]ports.Crawler, 0, len(stubs))
	for _, s := range stubs {
		out = append(out, s)
	}
	return out
}

func (c crawlerStub) Crawl(context.Context) []domain.RawArticle {
	if c.panic {
		panic("selector exploded")
	}
	return c.stubs
}

// recordingPipeline saves every stub it receives, or returns scripted
// errors for the first calls.
type recordingPipeline struct {
	mu      sync.Mutex
	batches [][]domain.RawArticle
	errs    []error
	tier    domain.ImpactTier
}

func (p *recordingPipeline) Process(_ context.Context, stubs []domain.RawArticle) (Result, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	call := len(p.batches)
	p.batches = append(p.batches, stubs)
	if call < len(p.errs) && p.errs[call] != nil {
		return Result{}, p.errs[call]
	}

	var res Result
	for i, s := range stubs {
		tier := p.tier
		if tier == "" {
			tier = domain.ImpactLow
		}
		res.Saved = append(res.Saved, domain.EnrichedArticle{
			ID:           s.Source + "-" + string(rune('0'+i)),
			Title:        s.Title,
			CanonicalURL: textnorm.CanonicalURL(s.URL),
			Source:       s.Source,
			ImpactTier:   tier,
		})
	}
	return res, nil
}

type crawlLogStub struct {
	mu       sync.Mutex
	finished map[string]domain.CrawlLogEntry
}

func (c *crawlLogStub) StartCrawlLog(_ context.Context, source string) (domain.CrawlLogEntry, error) {
	return domain.CrawlLogEntry{ID: "log-" + source, Source: source, Status: domain.CrawlRunning}, nil
}

func (c *crawlLogStub) FinishCrawlLog(_ context.Context, entry domain.CrawlLogEntry) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.finished == nil {
		c.finished = map[string]domain.CrawlLogEntry{}
	}
	c.finished[entry.Source] = entry
	return nil
}

type alerterStub struct {
	mu   sync.Mutex
	sent []string
	fail string
}

func (a *alerterStub) Alert(_ context.Context, article domain.EnrichedArticle) error {
	if article.ID == a.fail {
		return errors.New("telegram 429")
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.sent = append(a.sent, article.ID)
	return nil
}

type countingMetrics struct {
	nopMetrics
	mu      sync.Mutex
	crawled map[string]int
	dedup   map[string]int
}

func (m *countingMetrics) StubsCrawled(source string, n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.crawled == nil {
		m.crawled = map[string]int{}
	}
	m.crawled[source] += n
}

func (m *countingMetrics) DedupSkipped(stage string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.dedup == nil {
		m.dedup = map[string]int{}
	}
	m.dedup[stage]++
}

func TestBackoff(t *testing.T) {
	t.Parallel()

	base := time.Minute
	tests := []struct {
		failures int
		want     time.Duration
	}{
		{-1, time.Minute},
		{0, time.Minute},
		{1, 2 * time.Minute},
		{2, 4 * time.Minute},
		{3, 8 * time.Minute},
		{4, 16 * time.Minute},
		{5, 32 * time.Minute},
		{6, 32 * time.Minute},
		{40, 32 * time.Minute},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Backoff(base, tt.failures), "failures=%d", tt.failures)
	}

	assert.Equal(t, MaxBackoff, Backoff(15*time.Minute, 5))
	assert.Equal(t, MaxBackoff, Backoff(24*time.Hour, 0))
}

func TestRunOnceMergesInRegistrationOrder(t *testing.T) {
	t.Parallel()

	pipeline := &recordingPipeline{}
	metrics := &countingMetrics{}
	o := NewOrchestrator(OrchestratorDeps{
		Crawlers: crawlers(
			crawlerStub{name: "CafeF", stubs: []domain.RawArticle{
				{Title: "Giá thép tăng phiên thứ ba", URL: "https://cafef.vn/thep.chn", Source: "CafeF"},
				{Title: "NHNN bơm tiền qua thị trường mở", URL: "https://cafef.vn/nhnn.chn?utm_source=fb", Source: "CafeF"},
			}},
			crawlerStub{name: "VnExpress", stubs: []domain.RawArticle{
				{Title: "Tiêu đề khác cho cùng bài", URL: "https://CafeF.vn/nhnn.chn", Source: "VnExpress"},
				{Title: "VnExpress - Giá thép tăng phiên thứ ba", URL: "https://vnexpress.net/thep.html", Source: "VnExpress"},
				{Title: "Xuất khẩu gạo đạt kỷ lục", URL: "https://vnexpress.net/gao.html", Source: "VnExpress"},
			}},
		),
		Pipeline: pipeline,
		Metrics:  metrics,
	})

	report, err := o.RunOnce(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 5, report.Fetched)
	assert.Equal(t, 2, report.BatchDuplicates)
	require.Len(t, pipeline.batches, 1)

	var titles []string
	for _, s := range pipeline.batches[0] {
		titles = append(titles, s.Title)
	}
	assert.Equal(t, []string{
		"Giá thép tăng phiên thứ ba",
		"NHNN bơm tiền qua thị trường mở",
		"Xuất khẩu gạo đạt kỷ lục",
	}, titles)
	assert.Equal(t, map[string]int{"CafeF": 2, "VnExpress": 3}, metrics.crawled)
	assert.Equal(t, 2, metrics.dedup[dedupStageBatch])
}

func TestRunOnceIsolatesCrawlerPanic(t *testing.T) {
	t.Parallel()

	logs := &crawlLogStub{}
	o := NewOrchestrator(OrchestratorDeps{
		Crawlers: crawlers(
			crawlerStub{name: "Broken", panic: true},
			crawlerStub{name: "RSS", stubs: []domain.RawArticle{
				{Title: "Tỷ giá trung tâm đi ngang", URL: "https://example.com/fx", Source: "RSS"},
				{Title: "Lãi suất liên ngân hàng hạ nhiệt", URL: "https://example.com/ib", Source: "RSS"},
			}},
		),
		Pipeline: &recordingPipeline{},
		CrawlLog: logs,
	})

	report, err := o.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Len(t, report.Result.Saved, 2)

	broken := logs.finished["Broken"]
	assert.Equal(t, domain.CrawlFailed, broken.Status)
	assert.Contains(t, broken.Error, "selector exploded")
	assert.Zero(t, broken.Fetched)

	rss := logs.finished["RSS"]
	assert.Equal(t, domain.CrawlSuccess, rss.Status)
	assert.Equal(t, 2, rss.Fetched)
	assert.Equal(t, 2, rss.Inserted)
	assert.False(t, rss.FinishedAt.IsZero())
}

func TestRunOnceMarksLogsFailedOnPipelineError(t *testing.T) {
	t.Parallel()

	logs := &crawlLogStub{}
	o := NewOrchestrator(OrchestratorDeps{
		Crawlers: crawlers(
			crawlerStub{name: "CafeF", stubs: []domain.RawArticle{{Title: "Một bài", URL: "https://cafef.vn/1.chn"}}},
		),
		Pipeline: &recordingPipeline{errs: []error{ErrStoreUnavailable}},
		CrawlLog: logs,
	})

	_, err := o.RunOnce(context.Background())
	require.ErrorIs(t, err, ErrStoreUnavailable)
	assert.Equal(t, domain.CrawlFailed, logs.finished["CafeF"].Status)
	assert.Equal(t, 1, logs.finished["CafeF"].Fetched)
}

func TestRunOnceAlertsHighImpact(t *testing.T) {
	t.Parallel()

	alerter := &alerterStub{fail: "CafeF-1"}
	o := NewOrchestrator(OrchestratorDeps{
		Crawlers: crawlers(
			crawlerStub{name: "CafeF", stubs: []domain.RawArticle{
				{Title: "NHNN tăng lãi suất điều hành", URL: "https://cafef.vn/a.chn", Source: "CafeF"},
				{Title: "Chính phủ nâng thuế nhập khẩu", URL: "https://cafef.vn/b.chn", Source: "CafeF"},
			}},
		),
		Pipeline: &recordingPipeline{tier: domain.ImpactHigh},
		Alerter:  alerter,
	})

	report, err := o.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Alerted)
	assert.Equal(t, []string{"CafeF-0"}, alerter.sent)
}

func TestRunOnceCancelled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	pipeline := &recordingPipeline{}
	o := NewOrchestrator(OrchestratorDeps{
		Crawlers: crawlers(crawlerStub{name: "CafeF"}),
		Pipeline: pipeline,
	})

	_, err := o.RunOnce(ctx)
	require.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, pipeline.batches)
}

func TestRunDaemonBacksOffAfterFailures(t *testing.T) {
	t.Parallel()

	boom := errors.New("db down")
	pipeline := &recordingPipeline{errs: []error{boom, boom, nil, boom}}
	o := NewOrchestrator(OrchestratorDeps{
		Crawlers: crawlers(
			crawlerStub{name: "CafeF", stubs: []domain.RawArticle{{Title: "Bài viết", URL: "https://cafef.vn/x.chn"}}},
		),
		Pipeline: pipeline,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var waits []time.Duration
	o.wait = func(ctx context.Context, d time.Duration) error {
		waits = append(waits, d)
		if len(waits) == 4 {
			cancel()
			return ctx.Err()
		}
		return nil
	}

	require.NoError(t, o.RunDaemon(ctx, 10*time.Minute))
	assert.Equal(t, []time.Duration{
		20 * time.Minute,
		40 * time.Minute,
		10 * time.Minute,
		20 * time.Minute,
	}, waits)
	assert.Len(t, pipeline.batches, 4)
}
