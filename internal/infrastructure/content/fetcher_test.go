package content

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type pageFetcher map[string]string

func (p pageFetcher) Fetch(_ context.Context, url string) (string, error) {
	if body, ok := p[url]; ok {
		return body, nil
	}
	return "", errors.New("fetch https://example.com failed after 3 attempts: status 503")
}

const vnexpressArticle = `<html><body>
<header>Menu điều hướng rất dài không liên quan</header>
<p class="description">Tin mới Giá vàng miếng tăng thêm 1 triệu đồng.</p>
<article class="fck_detail">
  <p class="Normal">Sáng nay, giá vàng miếng SJC được điều chỉnh tăng mạnh.</p>
  <div class="social-share"><p>Chia sẻ bài viết lên mạng xã hội</p></div>
  <p class="Normal">Ngắn.</p>
  <h2>Nguyên nhân tăng giá vàng</h2>
  <div class="box-tinlienquan"><p>Tin liên quan: vàng thế giới</p></div>
  <div class="ads-inline"><p>Quảng cáo trong bài viết dài</p></div>
  <p class="Normal">Nhu cầu trú ẩn tăng khi thị trường biến động. Xem thêm:</p>
  <script>var tracking = "should never appear in body";</script>
</article>
</body></html>`

func TestExtractProfileBody(t *testing.T) {
	t.Parallel()

	f := NewFetcher(pageFetcher{"https://vnexpress.net/gia-vang-1.html": vnexpressArticle}, nil)
	res := f.Extract(context.Background(), "https://vnexpress.net/gia-vang-1.html")

	require.True(t, res.Success, res.Error)
	assert.Empty(t, res.Error)
	assert.Equal(t, "Giá vàng miếng tăng thêm 1 triệu đồng.", res.Description)

	want := strings.Join([]string{
		"Sáng nay, giá vàng miếng SJC được điều chỉnh tăng mạnh.",
		"Nguyên nhân tăng giá vàng",
		"Nhu cầu trú ẩn tăng khi thị trường biến động.",
	}, "\n\n")
	assert.Equal(t, want, res.FullText)
	assert.Equal(t, len([]rune(want)), res.Length)
	assert.NotContains(t, res.FullText, "Chia sẻ")
	assert.NotContains(t, res.FullText, "tracking")
	assert.NotContains(t, res.FullText, "Quảng cáo")
}

func TestExtractGenericFallback(t *testing.T) {
	t.Parallel()

	long := strings.Repeat("Doanh nghiệp công bố kết quả kinh doanh quý ba. ", 5)
	page := `<html><body><nav>Trang chủ</nav><article><div>` + long + `</div></article></body></html>`

	f := NewFetcher(pageFetcher{"https://www.example.com/a": page}, nil)
	res := f.Extract(context.Background(), "https://www.example.com/a")

	require.True(t, res.Success)
	assert.Equal(t, strings.TrimSpace(long), res.FullText)
}

func TestExtractMainRequiresLongerText(t *testing.T) {
	t.Parallel()

	short := strings.Repeat("Thông tin thị trường. ", 6)
	page := `<html><body><main>` + short + `</main></body></html>`

	f := NewFetcher(pageFetcher{"https://example.com/b": page}, nil)
	res := f.Extract(context.Background(), "https://example.com/b")

	assert.False(t, res.Success)
	assert.Empty(t, res.FullText)
	assert.Equal(t, "no article body found (domain=example.com)", res.Error)
}

func TestExtractFetchFailure(t *testing.T) {
	t.Parallel()

	f := NewFetcher(pageFetcher{}, nil)
	res := f.Extract(context.Background(), "https://cafef.vn/x.chn")

	assert.False(t, res.Success)
	assert.Empty(t, res.FullText)
	assert.Contains(t, res.Error, "failed after 3 attempts")
}

func TestHostOf(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "cafef.vn", hostOf("https://www.CafeF.vn/abc.chn"))
	assert.Equal(t, "", hostOf("://bad"))
}
