package telegram

import (
	"context"
	"fmt"
	"html"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"FinNewsScanner/internal/config"
	"FinNewsScanner/internal/domain"
	"FinNewsScanner/internal/ports"
)

const (
	defaultBaseURL = "https://api.telegram.org"
	maxTags        = 5
)

// Notifier pushes high-impact articles to a Telegram chat via bot API.
type Notifier struct {
	baseURL  string
	botToken string
	chatID   string
	client   *http.Client
}

var _ ports.Alerter = (*Notifier)(nil)

// NewNotifier registers bot token and chat identifier.
func NewNotifier(cfg config.TelegramConfig) *Notifier {
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = defaultBaseURL
	}
	return &Notifier{
		baseURL:  base,
		botToken: cfg.BotToken,
		chatID:   cfg.ChatID,
		client:   &http.Client{Timeout: 5 * time.Second},
	}
}

// Alert posts an HTML message describing the article.
func (n *Notifier) Alert(ctx context.Context, article domain.EnrichedArticle) error {
	if n.botToken == "" || n.chatID == "" || n.client == nil {
		return fmt.Errorf("telegram notifier misconfigured")
	}

	endpoint := fmt.Sprintf("%s/bot%s/sendMessage", n.baseURL, n.botToken)
	form := url.Values{}
	form.Set("chat_id", n.chatID)
	form.Set("text", FormatAlert(article))
	form.Set("parse_mode", "HTML")
	form.Set("disable_web_page_preview", "true")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("telegram error: %s: %s", resp.Status, strings.TrimSpace(string(detail)))
	}

	return nil
}

// FormatAlert renders the message body sent for one article.
func FormatAlert(a domain.EnrichedArticle) string {
	var b strings.Builder
	fmt.Fprintf(&b, "🚨 <b>%s IMPACT</b> (%d)\n", a.ImpactTier, a.ImpactScore)
	fmt.Fprintf(&b, "<i>%s</i>\n", html.EscapeString(a.Source))
	fmt.Fprintf(&b, "<b>%s</b>\n", html.EscapeString(a.Title))

	tags := a.ImpactTags
	if len(tags) > maxTags {
		tags = tags[:maxTags]
	}
	if len(tags) > 0 {
		fmt.Fprintf(&b, "🏷 %s\n", html.EscapeString(strings.Join(tags, ", ")))
	}
	if len(a.Tickers) > 0 {
		fmt.Fprintf(&b, "📈 %s\n", html.EscapeString(strings.Join(a.Tickers, ", ")))
	}
	fmt.Fprintf(&b, `<a href="%s">Đọc bài</a>`, html.EscapeString(a.URL))
	return b.String()
}
