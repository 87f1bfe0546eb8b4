package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"FinNewsScanner/internal/domain"
)

const (
	defaultTimezone = "Asia/Ho_Chi_Minh"
	configPathEnv   = "FINNEWS_CONFIG"

	databaseURLEnv     = "DATABASE_URL"
	geminiAPIKeyEnv    = "GEMINI_API_KEY"
	geminiModelEnv     = "GEMINI_MODEL"
	embeddingModelEnv  = "EMBEDDING_MODEL"
	embeddingURLEnv    = "EMBEDDING_URL"
	chatGPTAPIKeyEnv   = "CHATGPT_API_KEY"
	intervalEnv        = "CRAWL_INTERVAL_MINUTES"
	requestTimeoutEnv  = "REQUEST_TIMEOUT"
	maxRetriesEnv      = "MAX_RETRIES"
	userAgentEnv       = "USER_AGENT"
	logLevelEnv        = "LOG_LEVEL"
	logFormatEnv       = "LOG_FORMAT"
	metricsEnabledEnv  = "METRICS_ENABLED"
	metricsAddrEnv     = "METRICS_ADDR"
	telegramEnabledEnv = "TELEGRAM_ALERT_ENABLED"
	telegramTokenEnv   = "TELEGRAM_BOT_TOKEN"
	telegramChatIDEnv  = "TELEGRAM_CHAT_ID"
	vectorPathEnv      = "VECTOR_PATH"
	dictionaryPathEnv  = "DICTIONARY_PATH"
)

// Config holds high-level settings required across the application.
type Config struct {
	Logging       LoggingConfig      `yaml:"logging"`
	Database      DatabaseConfig     `yaml:"database"`
	Scheduler     SchedulerConfig    `yaml:"scheduler"`
	Fetch         FetchConfig        `yaml:"fetch"`
	Pipeline      PipelineConfig     `yaml:"pipeline"`
	Analysis      AnalysisConfig     `yaml:"analysis"`
	Gemini        GeminiConfig       `yaml:"gemini"`
	ChatGPT       ChatGPTConfig      `yaml:"chatgpt"`
	Embedding     EmbeddingConfig    `yaml:"embedding"`
	Notifications NotificationConfig `yaml:"notifications"`
	Metrics       MetricsConfig      `yaml:"metrics"`
	Sites         []SiteConfig       `yaml:"sites" validate:"required,min=1,dive"`
}

// LoggingConfig selects the slog level.
type LoggingConfig struct {
	Level  string `yaml:"level" validate:"omitempty,oneof=debug info warn warning error"`
	Format string `yaml:"format" validate:"omitempty,oneof=text json"`
}

// DatabaseConfig is a Postgres URL or a sqlite: DSN.
type DatabaseConfig struct {
	URL string `yaml:"url" validate:"required"`
}

// SchedulerConfig defines when crawl cycles run in daemon mode.
type SchedulerConfig struct {
	IntervalMinutes int `yaml:"intervalMinutes" validate:"gte=1,lte=1440"`
	// CronExpression replaces the interval loop when set.
	CronExpression string         `yaml:"cronExpression"`
	Timezone       string         `yaml:"timezone"`
	location       *time.Location `yaml:"-"`
}

// Interval is the base daemon sleep.
func (s SchedulerConfig) Interval() time.Duration {
	return time.Duration(s.IntervalMinutes) * time.Minute
}

// Location resolves the scheduler timezone string to a time.Location.
func (s SchedulerConfig) Location() *time.Location {
	if s.location != nil {
		return s.location
	}
	if loc, err := time.LoadLocation(s.Timezone); err == nil && s.Timezone != "" {
		return loc
	}
	return time.UTC
}

// FetchConfig tunes the shared HTTP client.
type FetchConfig struct {
	TimeoutSeconds int     `yaml:"timeoutSeconds" validate:"gte=5,lte=300"`
	// MaxRetries counts attempts per URL, the first one included.
	MaxRetries     int     `yaml:"maxRetries" validate:"gte=1,lte=10"`
	DelaySeconds   float64 `yaml:"delaySeconds" validate:"gte=0,lte=60"`
	UserAgent      string  `yaml:"userAgent"`
}

// Timeout is the per-attempt budget.
func (f FetchConfig) Timeout() time.Duration {
	return time.Duration(f.TimeoutSeconds) * time.Second
}

// Delay is the base pause between requests.
func (f FetchConfig) Delay() time.Duration {
	return time.Duration(f.DelaySeconds * float64(time.Second))
}

// PipelineConfig bounds enrichment concurrency.
type PipelineConfig struct {
	Workers       int `yaml:"workers" validate:"gte=1,lte=64"`
	SummaryLength int `yaml:"summaryLength" validate:"gte=50"`
}

// AnalysisConfig points at the classifier dictionary and impact weights.
type AnalysisConfig struct {
	DictionaryPath          string       `yaml:"dictionaryPath"`
	SentimentTimeoutSeconds int          `yaml:"sentimentTimeoutSeconds" validate:"gte=0"`
	Impact                  ImpactConfig `yaml:"impact"`
}

// ImpactConfig overrides the impact scoring constants.
type ImpactConfig struct {
	HighWeight      int `yaml:"highWeight" validate:"gte=0"`
	MediumWeight    int `yaml:"mediumWeight" validate:"gte=0"`
	TickerCap       int `yaml:"tickerCap" validate:"gte=0"`
	HighThreshold   int `yaml:"highThreshold" validate:"gtfield=MediumThreshold"`
	MediumThreshold int `yaml:"mediumThreshold" validate:"gt=0"`
}

// GeminiConfig enables model-based sentiment and embeddings.
type GeminiConfig struct {
	APIKey            string `yaml:"apiKey"`
	Model             string `yaml:"model"`
	EmbeddingModel    string `yaml:"embeddingModel"`
	RequestsPerMinute int    `yaml:"requestsPerMinute" validate:"gte=1"`
}

// ChatGPTConfig defines how to contact an OpenAI-compatible chat API.
// It is used for sentiment only when no Gemini key is configured.
type ChatGPTConfig struct {
	Endpoint string `yaml:"endpoint" validate:"omitempty,url"`
	Model    string `yaml:"model"`
	APIKey   string `yaml:"apiKey"`
}

// EmbeddingConfig turns on vector indexing. Provider is empty when disabled.
type EmbeddingConfig struct {
	Provider   string  `yaml:"provider" validate:"omitempty,oneof=gemini http"`
	URL        string  `yaml:"url" validate:"omitempty,url"`
	APIKey     string  `yaml:"apiKey"`
	VectorPath string  `yaml:"vectorPath" validate:"required_with=Provider"`
	MinScore   float64 `yaml:"minScore" validate:"gte=0,lte=1"`
}

// NotificationConfig encapsulates outbound channels.
type NotificationConfig struct {
	Telegram TelegramConfig `yaml:"telegram"`
}

// TelegramConfig wires all data required to send messages.
type TelegramConfig struct {
	Enabled  bool   `yaml:"enabled"`
	BotToken string `yaml:"botToken"`
	ChatID   string `yaml:"chatId"`
	BaseURL  string `yaml:"baseUrl" validate:"omitempty,url"`
}

// MetricsConfig exposes Prometheus counters over HTTP in daemon mode.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// SiteConfig describes a single site with its scanner strategy.
type SiteConfig struct {
	Name     string            `yaml:"name" validate:"required"`
	Scanner  string            `yaml:"scanner" validate:"required"`
	Sections []SectionConfig   `yaml:"sections" validate:"required,min=1,dive"`
	Options  map[string]string `yaml:"options"`
}

// SectionConfig is one listing page or feed of a site. Category, when set,
// is the topic assigned to ticker-less articles from this section; it
// overrides the site's "category" option.
type SectionConfig struct {
	Name     string `yaml:"name"`
	URL      string `yaml:"url" validate:"required,url"`
	Category string `yaml:"category"`
}

// Load reads YAML configuration (if present), applies environment
// overrides and validates the result.
func Load() (Config, error) {
	cfg := defaultConfig()

	if path := os.Getenv(configPathEnv); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := cfg.applyEnvOverrides(); err != nil {
		return Config{}, err
	}
	if len(cfg.Sites) == 0 {
		cfg.Sites = defaultSites()
	}
	if err := cfg.bindTimezone(); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks ranges and cross-field requirements.
func (c Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			first := verrs[0]
			return fmt.Errorf("invalid config: %s failed %q (value %v)", first.Namespace(), first.Tag(), first.Value())
		}
		return fmt.Errorf("invalid config: %w", err)
	}

	if t := c.Notifications.Telegram; t.Enabled && (t.BotToken == "" || t.ChatID == "") {
		return errors.New("invalid config: telegram alerts enabled without bot token or chat id")
	}
	if c.Metrics.Enabled && c.Metrics.Addr == "" {
		return errors.New("invalid config: metrics enabled without listen address")
	}
	if c.Embedding.Provider == "http" && c.Embedding.URL == "" {
		return errors.New("invalid config: http embedding provider needs a url")
	}
	if c.Embedding.Provider == "gemini" && c.Gemini.APIKey == "" {
		return errors.New("invalid config: gemini embedding provider needs an api key")
	}
	for _, site := range c.Sites {
		if v, ok := site.Options["category"]; ok && !domain.ValidCategory(v) {
			return fmt.Errorf("invalid config: site %s category option %q", site.Name, v)
		}
		for _, sec := range site.Sections {
			if sec.Category != "" && !domain.ValidCategory(sec.Category) {
				return fmt.Errorf("invalid config: site %s section %s category %q", site.Name, sec.URL, sec.Category)
			}
		}
	}
	return nil
}

func (c *Config) applyEnvOverrides() error {
	setString(&c.Database.URL, databaseURLEnv)
	setString(&c.Gemini.APIKey, geminiAPIKeyEnv)
	setString(&c.Gemini.Model, geminiModelEnv)
	setString(&c.Gemini.EmbeddingModel, embeddingModelEnv)
	setString(&c.ChatGPT.APIKey, chatGPTAPIKeyEnv)
	setString(&c.Fetch.UserAgent, userAgentEnv)
	setString(&c.Logging.Level, logLevelEnv)
	setString(&c.Logging.Format, logFormatEnv)
	setString(&c.Metrics.Addr, metricsAddrEnv)
	setString(&c.Notifications.Telegram.BotToken, telegramTokenEnv)
	setString(&c.Notifications.Telegram.ChatID, telegramChatIDEnv)
	setString(&c.Embedding.VectorPath, vectorPathEnv)
	setString(&c.Analysis.DictionaryPath, dictionaryPathEnv)

	if v := strings.TrimSpace(os.Getenv(embeddingURLEnv)); v != "" {
		c.Embedding.URL = v
		if c.Embedding.Provider == "" {
			c.Embedding.Provider = "http"
		}
	}
	c.Logging.Level = strings.ToLower(c.Logging.Level)
	c.Logging.Format = strings.ToLower(c.Logging.Format)

	if err := setInt(&c.Scheduler.IntervalMinutes, intervalEnv); err != nil {
		return err
	}
	if err := setInt(&c.Fetch.TimeoutSeconds, requestTimeoutEnv); err != nil {
		return err
	}
	if err := setInt(&c.Fetch.MaxRetries, maxRetriesEnv); err != nil {
		return err
	}
	if err := setBool(&c.Metrics.Enabled, metricsEnabledEnv); err != nil {
		return err
	}
	return setBool(&c.Notifications.Telegram.Enabled, telegramEnabledEnv)
}

func (c *Config) bindTimezone() error {
	tz := c.Scheduler.Timezone
	if tz == "" {
		tz = defaultTimezone
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return fmt.Errorf("scheduler timezone %q: %w", tz, err)
	}
	c.Scheduler.Timezone = tz
	c.Scheduler.location = loc
	return nil
}

func setString(dst *string, env string) {
	if v := strings.TrimSpace(os.Getenv(env)); v != "" {
		*dst = v
	}
}

func setInt(dst *int, env string) error {
	v := strings.TrimSpace(os.Getenv(env))
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("%s: %w", env, err)
	}
	*dst = n
	return nil
}

func setBool(dst *bool, env string) error {
	v := strings.TrimSpace(os.Getenv(env))
	if v == "" {
		return nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fmt.Errorf("%s: %w", env, err)
	}
	*dst = b
	return nil
}

func defaultConfig() Config {
	return Config{
		Logging:   LoggingConfig{Level: "info", Format: "text"},
		Database:  DatabaseConfig{URL: "sqlite:data/finnews.db"},
		Scheduler: SchedulerConfig{IntervalMinutes: 15, Timezone: defaultTimezone},
		Fetch:     FetchConfig{TimeoutSeconds: 30, MaxRetries: 3, DelaySeconds: 1},
		Pipeline:  PipelineConfig{Workers: 4, SummaryLength: 500},
		Analysis: AnalysisConfig{
			SentimentTimeoutSeconds: 20,
			Impact: ImpactConfig{
				HighWeight:      3,
				MediumWeight:    1,
				TickerCap:       5,
				HighThreshold:   8,
				MediumThreshold: 4,
			},
		},
		Gemini: GeminiConfig{
			Model:             "gemini-2.0-flash-lite",
			EmbeddingModel:    "text-embedding-004",
			RequestsPerMinute: 60,
		},
		ChatGPT: ChatGPTConfig{
			Endpoint: "https://api.openai.com/v1/chat/completions",
			Model:    "gpt-4o-mini",
		},
		Embedding: EmbeddingConfig{VectorPath: "data/vectors", MinScore: 0.5},
		Metrics:   MetricsConfig{Addr: ":9090"},
		Sites:     defaultSites(),
	}
}

func defaultSites() []SiteConfig {
	return []SiteConfig{
		{
			Name:    "CafeF",
			Scanner: "cafef",
			Sections: []SectionConfig{
				{Name: "chung-khoan", URL: "https://cafef.vn/thi-truong-chung-khoan.chn"},
				{Name: "vi-mo", URL: "https://cafef.vn/vi-mo-dau-tu.chn"},
				{Name: "doanh-nghiep", URL: "https://cafef.vn/doanh-nghiep.chn"},
			},
		},
		{
			Name:    "VnExpress",
			Scanner: "vnexpress",
			Sections: []SectionConfig{
				{Name: "kinh-doanh", URL: "https://vnexpress.net/kinh-doanh"},
				{Name: "chung-khoan", URL: "https://vnexpress.net/kinh-doanh/chung-khoan"},
				{Name: "bat-dong-san", URL: "https://vnexpress.net/kinh-doanh/bat-dong-san"},
			},
		},
		{
			Name:    "VietStock",
			Scanner: "vietstock",
			Sections: []SectionConfig{
				{Name: "chung-khoan", URL: "https://vietstock.vn/chung-khoan.htm"},
				{Name: "doanh-nghiep", URL: "https://vietstock.vn/doanh-nghiep.htm"},
				{Name: "tai-chinh", URL: "https://vietstock.vn/tai-chinh.htm"},
			},
		},
		{
			Name:    "RSS",
			Scanner: "feed",
			Sections: []SectionConfig{
				{Name: "VnExpress RSS", URL: "https://vnexpress.net/rss/kinh-doanh.rss"},
				{Name: "Thanh Niên RSS", URL: "https://thanhnien.vn/rss/kinh-te.rss"},
			},
		},
	}
}
