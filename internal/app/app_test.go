package app

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"FinNewsScanner/internal/config"
	"FinNewsScanner/internal/domain"
	"FinNewsScanner/internal/usecase"
)

const feedTemplate = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0">
  <channel>
    <title>Kinh doanh</title>
    <item>
      <title>Ngân hàng Nhà nước giảm lãi suất điều hành</title>
      <link>%[1]s/lai-suat.html</link>
      <description>Lãi suất điều hành giảm 0,5 điểm phần trăm, hỗ trợ tăng trưởng.</description>
      <pubDate>Wed, 19 Nov 2025 08:00:00 +0700</pubDate>
    </item>
    <item>
      <title>HPG báo lãi quý III tăng mạnh</title>
      <link>%[1]s/hpg-lai.html?utm_source=rss</link>
      <description>Hòa Phát lợi nhuận tăng trưởng vượt kỳ vọng.</description>
      <pubDate>Wed, 19 Nov 2025 09:00:00 +0700</pubDate>
    </item>
  </channel>
</rss>`

const articlePage = `<html><body><article><h1>Tin</h1>
<p>Nội dung chi tiết của bài viết về thị trường chứng khoán Việt Nam, đủ dài để được xem là nội dung đầy đủ của bài báo.</p>
<p>Các chuyên gia nhận định thị trường sẽ tiếp tục tăng trưởng trong thời gian tới nhờ dòng tiền mới.</p>
</article></body></html>`

func newTestApp(t *testing.T) *Application {
	t.Helper()

	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/rss" {
			w.Header().Set("Content-Type", "application/rss+xml")
			_, _ = fmt.Fprintf(w, feedTemplate, srv.URL)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(articlePage))
	}))
	t.Cleanup(srv.Close)

	cfgPath := filepath.Join(t.TempDir(), "config.yaml")
	yaml := fmt.Sprintf(`
database:
  url: "sqlite::memory:"
fetch:
  timeoutSeconds: 5
  maxRetries: 1
  delaySeconds: 0
sites:
  - name: Feeds
    scanner: feed
    sections:
      - name: TestFeed
        url: %s/rss
`, srv.URL)
	require.NoError(t, os.WriteFile(cfgPath, []byte(yaml), 0o600))

	t.Setenv("FINNEWS_CONFIG", cfgPath)
	t.Setenv("DATABASE_URL", "")
	t.Setenv("GEMINI_API_KEY", "")
	t.Setenv("CHATGPT_API_KEY", "")
	t.Setenv("EMBEDDING_URL", "")
	t.Setenv("TELEGRAM_ALERT_ENABLED", "")
	t.Setenv("METRICS_ENABLED", "")

	cfg, err := config.Load()
	require.NoError(t, err)

	application, err := New(context.Background(), cfg, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = application.Close() })
	return application
}

func TestRunOnceCrawlsEnrichesAndDeduplicates(t *testing.T) {
	application := newTestApp(t)
	ctx := context.Background()

	report, err := application.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Fetched)
	require.Len(t, report.Result.Saved, 2)

	count, err := application.Store().Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	hpg, err := application.Store().QueryByTicker(ctx, "hpg", domain.DateRange{}, 10)
	require.NoError(t, err)
	require.Len(t, hpg, 1)
	assert.NotContains(t, hpg[0].CanonicalURL, "utm_source")

	logs, err := application.Store().RecentCrawlLogs(ctx, 5)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, "Feeds", logs[0].Source)
	assert.Equal(t, domain.CrawlSuccess, logs[0].Status)
	assert.Equal(t, 2, logs[0].Inserted)

	again, err := application.RunOnce(ctx)
	require.NoError(t, err)
	assert.Empty(t, again.Result.Saved)
	assert.Equal(t, 2, again.Result.Duplicates)
}

func TestSemanticSearchDisabledWithoutProvider(t *testing.T) {
	application := newTestApp(t)

	search, err := application.SemanticSearch(context.Background())
	require.NoError(t, err)
	_, err = search.Search(context.Background(), "lãi suất", 5)
	assert.ErrorIs(t, err, usecase.ErrSearchDisabled)
}
