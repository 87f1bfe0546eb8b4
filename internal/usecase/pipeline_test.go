package usecase

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"FinNewsScanner/internal/analysis"
	"FinNewsScanner/internal/domain"
)

var fixedNow = time.Date(2025, time.November, 20, 9, 0, 0, 0, time.UTC)

type memoryStore struct {
	mu        sync.Mutex
	byURL     map[string]domain.EnrichedArticle
	byHash    map[string]struct{}
	existsErr error
	insertErr error
	attachErr error
}

func newMemoryStore() *memoryStore {
	return &memoryStore{byURL: map[string]domain.EnrichedArticle{}, byHash: map[string]struct{}{}}
}

func (m *memoryStore) ExistsByCanonicalKey(_ context.Context, canonicalURL, titleHash string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.existsErr != nil {
		return false, m.existsErr
	}
	_, byURL := m.byURL[canonicalURL]
	_, byHash := m.byHash[titleHash]
	return byURL || byHash, nil
}

func (m *memoryStore) Insert(_ context.Context, a domain.EnrichedArticle) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.insertErr != nil {
		return false, m.insertErr
	}
	_, byURL := m.byURL[a.CanonicalURL]
	_, byHash := m.byHash[a.TitleHash]
	if byURL || byHash {
		return false, nil
	}
	m.byURL[a.CanonicalURL] = a
	m.byHash[a.TitleHash] = struct{}{}
	return true, nil
}

func (m *memoryStore) AttachEmbedding(_ context.Context, id, embeddingID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.attachErr != nil {
		return m.attachErr
	}
	for key, a := range m.byURL {
		if a.ID == id {
			a.EmbeddingID = embeddingID
			m.byURL[key] = a
			return nil
		}
	}
	return errors.New("article " + id + " not found")
}

func (m *memoryStore) get(canonicalURL string) domain.EnrichedArticle {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.byURL[canonicalURL]
}

func (m *memoryStore) len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.byURL)
}

type contentStub map[string]domain.ContentResult

// cancellingContent aborts the batch while the body is being fetched.
type cancellingContent struct {
	cancel context.CancelFunc
}

func (c cancellingContent) Extract(_ context.Context, url string) domain.ContentResult {
	c.cancel()
	return domain.ContentResult{Error: "fetch " + url + ": context canceled"}
}

func (c contentStub) Extract(_ context.Context, url string) domain.ContentResult {
	if res, ok := c[url]; ok {
		return res
	}
	return domain.ContentResult{Error: "fetch " + url + " failed after 3 attempts"}
}

// existsGate makes every dedup lookup wait until all callers arrived, so
// concurrent inserts race on the store.
type existsGate struct {
	*memoryStore
	wg *sync.WaitGroup
}

func (g existsGate) ExistsByCanonicalKey(ctx context.Context, canonicalURL, titleHash string) (bool, error) {
	g.wg.Done()
	g.wg.Wait()
	return g.memoryStore.ExistsByCanonicalKey(ctx, canonicalURL, titleHash)
}

type panickyEntities struct {
	inner *analysis.EntityClassifier
}

func (p panickyEntities) Analyze(text string) domain.EntityResult {
	if strings.Contains(text, "boom") {
		panic("dictionary corrupted")
	}
	return p.inner.Analyze(text)
}

type embedderStub struct {
	err error
}

func (e embedderStub) Embed(_ context.Context, text string) ([]float32, error) {
	if e.err != nil {
		return nil, e.err
	}
	return []float32{float32(len(text)), 1}, nil
}

type vectorStub struct {
	mu       sync.Mutex
	metadata []map[string]string
}

func (v *vectorStub) Upsert(_ context.Context, _ []float32, metadata map[string]string) (string, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.metadata = append(v.metadata, metadata)
	return "vec-" + metadata["article_id"], nil
}

func (v *vectorStub) Search(context.Context, []float32, int, float64) ([]domain.VectorMatch, error) {
	return nil, nil
}

func newTestPipeline(t *testing.T, deps PipelineDeps) *Pipeline {
	t.Helper()

	dict, err := analysis.DefaultDictionary()
	require.NoError(t, err)
	if deps.Entities == nil {
		deps.Entities = analysis.NewEntityClassifier(dict)
	}
	if deps.Sentiment == nil {
		deps.Sentiment = analysis.NewSentimentClassifier(nil, 0, nil)
	}
	if deps.Impact == nil {
		deps.Impact = analysis.NewImpactClassifier(analysis.DefaultImpactWeights())
	}

	p := NewPipeline(deps)
	p.now = func() time.Time { return fixedNow }
	var mu sync.Mutex
	n := 0
	p.newID = func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return "id-" + string(rune('a'+n-1))
	}
	return p
}

func TestPipelineEnrichesArticle(t *testing.T) {
	t.Parallel()

	store := newMemoryStore()
	body := "Tập đoàn <b>Vingroup</b> công bố dự án khu đô thị mới tại Hà Nội. Quy mô đầu tư lớn nhất năm."
	p := newTestPipeline(t, PipelineDeps{
		Store:   store,
		Content: contentStub{"https://vnexpress.net/vingroup-1.html?utm_source=rss": {FullText: body, Success: true}},
	})

	res, err := p.Process(context.Background(), []domain.RawArticle{{
		Title:       "VnExpress - Vingroup ra mắt dự án mới",
		Text:        "Tóm tắt ngắn",
		URL:         "https://vnexpress.net/vingroup-1.html?utm_source=rss",
		Source:      "VnExpress",
		PublishedAt: fixedNow.Add(-time.Hour),
	}})
	require.NoError(t, err)
	require.Len(t, res.Saved, 1)

	a := res.Saved[0]
	assert.Equal(t, "id-a", a.ID)
	assert.Equal(t, "Vingroup ra mắt dự án mới", a.Title)
	assert.Equal(t, "https://vnexpress.net/vingroup-1.html", a.CanonicalURL)
	assert.Equal(t, "https://vnexpress.net/vingroup-1.html?utm_source=rss", a.URL)
	assert.Equal(t, domain.CategoryMicro, a.Category)
	assert.Contains(t, a.Tickers, "VIC")
	assert.Equal(t, "Tập đoàn Vingroup công bố dự án khu đô thị mới tại Hà Nội. Quy mô đầu tư lớn nhất năm.", a.Body)
	assert.Equal(t, "Tóm tắt ngắn", a.Summary)
	assert.Equal(t, domain.StatusCompleted, a.Status)
	assert.Equal(t, fixedNow, a.CreatedAt)
	assert.GreaterOrEqual(t, a.SentimentScore, -1.0)
	assert.LessOrEqual(t, a.SentimentScore, 1.0)
	assert.Empty(t, a.EmbeddingID)
	assert.Equal(t, 1, store.len())
}

func TestPipelineSummarySource(t *testing.T) {
	t.Parallel()

	store := newMemoryStore()
	body := "Ngân hàng Nhà nước giữ nguyên lãi suất điều hành. Thanh khoản hệ thống dồi dào."
	p := newTestPipeline(t, PipelineDeps{
		Store: store,
		Content: contentStub{
			"https://example.com/a": {FullText: body, Success: true},
			"https://example.com/b": {FullText: body, Success: true},
		},
	})

	res, err := p.Process(context.Background(), []domain.RawArticle{
		{Title: "Lãi suất điều hành giữ nguyên", Text: "<p>Tin  vắn   từ RSS</p>", URL: "https://example.com/a"},
		{Title: "Thanh khoản hệ thống dồi dào", Text: " <br> ", URL: "https://example.com/b"},
	})
	require.NoError(t, err)
	require.Len(t, res.Saved, 2)

	withText := store.get("https://example.com/a")
	assert.Equal(t, body, withText.Body)
	assert.Equal(t, "Tin vắn từ RSS", withText.Summary)

	withoutText := store.get("https://example.com/b")
	assert.Equal(t, body, withoutText.Summary)
}

func TestPipelineUsesSectionCategory(t *testing.T) {
	t.Parallel()

	store := newMemoryStore()
	p := newTestPipeline(t, PipelineDeps{Store: store})

	res, err := p.Process(context.Background(), []domain.RawArticle{
		{Title: "Giá thép xây dựng tăng tuần thứ ba", URL: "https://example.com/steel", Category: domain.CategoryIndustry},
		{Title: "Lạm phát tháng 10 ở mức thấp", URL: "https://example.com/cpi", Category: domain.CategoryIndustry},
		{Title: "Vingroup ra mắt dự án mới", URL: "https://example.com/vic", Category: domain.CategoryIndustry},
	})
	require.NoError(t, err)
	require.Len(t, res.Saved, 3)

	assert.Equal(t, domain.CategoryIndustry, store.get("https://example.com/steel").Category)
	assert.Equal(t, domain.CategoryIndustry, store.get("https://example.com/cpi").Category)
	assert.Equal(t, domain.CategoryMicro, store.get("https://example.com/vic").Category)
}

func TestPipelineCancelledFetchIsNotStored(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store := newMemoryStore()
	vectors := &vectorStub{}
	p := newTestPipeline(t, PipelineDeps{
		Store:    store,
		Content:  cancellingContent{cancel: cancel},
		Embedder: embedderStub{},
		Vectors:  vectors,
	})

	res, err := p.Process(ctx, []domain.RawArticle{
		{Title: "Cổ phiếu ngân hàng bứt phá", Text: "Tin ngắn từ RSS.", URL: "https://example.com/bank"},
	})
	require.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, res.Saved)
	assert.Zero(t, res.Failed)
	assert.Zero(t, store.len())
	assert.Empty(t, vectors.metadata)
}

func TestPipelineFallsBackToCrawlerText(t *testing.T) {
	t.Parallel()

	store := newMemoryStore()
	p := newTestPipeline(t, PipelineDeps{Store: store, Content: contentStub{}})

	res, err := p.Process(context.Background(), []domain.RawArticle{{
		Title:  "Công ty X thua lỗ nặng, nguy cơ phá sản",
		Text:   "Doanh nghiệp báo lỗ quý thứ ba liên tiếp.",
		URL:    "https://cafef.vn/cong-ty-x.chn",
		Source: "CafeF",
	}})
	require.NoError(t, err)
	require.Len(t, res.Saved, 1)

	a := res.Saved[0]
	assert.Equal(t, domain.StatusCompleted, a.Status)
	assert.Equal(t, "Doanh nghiệp báo lỗ quý thứ ba liên tiếp.", a.Body)
	assert.Equal(t, domain.SentimentNegative, a.SentimentLabel)
	assert.Less(t, a.SentimentScore, 0.0)
	assert.Zero(t, res.Failed)
}

func TestPipelineSkipsStoredDuplicates(t *testing.T) {
	t.Parallel()

	store := newMemoryStore()
	p := newTestPipeline(t, PipelineDeps{Store: store})
	stub := domain.RawArticle{Title: "Giá vàng tăng mạnh phiên sáng", URL: "https://example.com/a", Source: "x"}

	first, err := p.Process(context.Background(), []domain.RawArticle{stub})
	require.NoError(t, err)
	require.Len(t, first.Saved, 1)

	stub.URL = "https://Example.com/a/?utm_source=x"
	second, err := p.Process(context.Background(), []domain.RawArticle{stub})
	require.NoError(t, err)
	assert.Empty(t, second.Saved)
	assert.Equal(t, 1, second.Duplicates)
	assert.Equal(t, 1, store.len())
}

func TestPipelineConcurrentSameKeyInsertsOnce(t *testing.T) {
	t.Parallel()

	mem := newMemoryStore()
	var wg sync.WaitGroup
	wg.Add(2)
	p := newTestPipeline(t, PipelineDeps{Store: existsGate{memoryStore: mem, wg: &wg}, Workers: 2})

	res, err := p.Process(context.Background(), []domain.RawArticle{
		{Title: "Lãi suất huy động giảm tiếp", URL: "https://example.com/rates"},
		{Title: "Tiêu đề hoàn toàn khác biệt", URL: "https://example.com/rates/"},
	})
	require.NoError(t, err)
	assert.Len(t, res.Saved, 1)
	assert.Equal(t, 1, res.Duplicates)
	assert.Equal(t, 1, mem.len())
}

func TestPipelineIsolatesPanics(t *testing.T) {
	t.Parallel()

	dict, err := analysis.DefaultDictionary()
	require.NoError(t, err)

	store := newMemoryStore()
	p := newTestPipeline(t, PipelineDeps{
		Store:    store,
		Entities: panickyEntities{inner: analysis.NewEntityClassifier(dict)},
	})

	res, err := p.Process(context.Background(), []domain.RawArticle{
		{Title: "Bài viết gây boom lỗi", URL: "https://example.com/1"},
		{Title: "Bài viết bình thường", URL: "https://example.com/2"},
	})
	require.NoError(t, err)
	assert.Len(t, res.Saved, 1)
	assert.Equal(t, 1, res.Failed)
	assert.Equal(t, 1, store.len())
}

func TestPipelineStoreUnavailable(t *testing.T) {
	t.Parallel()

	store := newMemoryStore()
	store.existsErr = errors.New("connection refused")
	p := newTestPipeline(t, PipelineDeps{Store: store})

	res, err := p.Process(context.Background(), []domain.RawArticle{
		{Title: "Bài viết thứ nhất", URL: "https://example.com/1"},
		{Title: "Bài viết thứ hai", URL: "https://example.com/2"},
	})
	require.ErrorIs(t, err, ErrStoreUnavailable)
	assert.ErrorContains(t, err, "connection refused")
	assert.Equal(t, 2, res.Failed)
	assert.Equal(t, 2, res.RepositoryErrors)
}

func TestPipelineDropsStubWithoutTitle(t *testing.T) {
	t.Parallel()

	store := newMemoryStore()
	p := newTestPipeline(t, PipelineDeps{Store: store})

	res, err := p.Process(context.Background(), []domain.RawArticle{{Title: "  <br> ", URL: "https://example.com/1"}})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Failed)
	assert.Zero(t, store.len())
}

func TestPipelineIndexesEmbeddings(t *testing.T) {
	t.Parallel()

	store := newMemoryStore()
	vectors := &vectorStub{}
	p := newTestPipeline(t, PipelineDeps{Store: store, Embedder: embedderStub{}, Vectors: vectors})

	res, err := p.Process(context.Background(), []domain.RawArticle{
		{Title: "Vietcombank giảm lãi suất cho vay", URL: "https://example.com/vcb", Source: "CafeF"},
	})
	require.NoError(t, err)
	require.Len(t, res.Saved, 1)
	assert.Equal(t, "vec-id-a", res.Saved[0].EmbeddingID)
	assert.Equal(t, "vec-id-a", store.get("https://example.com/vcb").EmbeddingID)
	require.Len(t, vectors.metadata, 1)
	assert.Equal(t, "CafeF", vectors.metadata[0]["source"])
	assert.Equal(t, "MICRO", vectors.metadata[0]["category"])
}

func TestPipelineIndexesOnlyInsertedArticles(t *testing.T) {
	t.Parallel()

	mem := newMemoryStore()
	var wg sync.WaitGroup
	wg.Add(2)
	vectors := &vectorStub{}
	p := newTestPipeline(t, PipelineDeps{
		Store:    existsGate{memoryStore: mem, wg: &wg},
		Embedder: embedderStub{},
		Vectors:  vectors,
		Workers:  2,
	})

	res, err := p.Process(context.Background(), []domain.RawArticle{
		{Title: "Giá vàng lập đỉnh mới", URL: "https://example.com/gold"},
		{Title: "Giá vàng lập đỉnh mới", URL: "https://example.com/gold-2"},
	})
	require.NoError(t, err)
	require.Len(t, res.Saved, 1)
	assert.Equal(t, 1, res.Duplicates)
	require.Len(t, vectors.metadata, 1)
	assert.Equal(t, res.Saved[0].ID, vectors.metadata[0]["article_id"])

	failing := newMemoryStore()
	failing.insertErr = errors.New("disk full")
	unused := &vectorStub{}
	p = newTestPipeline(t, PipelineDeps{Store: failing, Embedder: embedderStub{}, Vectors: unused})

	_, err = p.Process(context.Background(), []domain.RawArticle{{Title: "Tin thị trường", URL: "https://example.com/m"}})
	require.ErrorIs(t, err, ErrStoreUnavailable)
	assert.Empty(t, unused.metadata)
}

func TestPipelineEmbeddingFailureIsSoft(t *testing.T) {
	t.Parallel()

	p := newTestPipeline(t, PipelineDeps{
		Store:    newMemoryStore(),
		Embedder: embedderStub{err: errors.New("model offline")},
		Vectors:  &vectorStub{},
	})

	res, err := p.Process(context.Background(), []domain.RawArticle{
		{Title: "Tin tức thị trường chứng khoán", URL: "https://example.com/x"},
	})
	require.NoError(t, err)
	require.Len(t, res.Saved, 1)
	assert.Empty(t, res.Saved[0].EmbeddingID)
}

func TestResultHighImpact(t *testing.T) {
	t.Parallel()

	res := Result{Saved: []domain.EnrichedArticle{
		{ID: "1", ImpactTier: domain.ImpactHigh},
		{ID: "2", ImpactTier: domain.ImpactLow},
	}}
	high := res.HighImpact()
	require.Len(t, high, 1)
	assert.Equal(t, "1", high[0].ID)
}
