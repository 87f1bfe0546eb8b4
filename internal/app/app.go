package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"FinNewsScanner/internal/analysis"
	"FinNewsScanner/internal/config"
	"FinNewsScanner/internal/infrastructure/content"
	"FinNewsScanner/internal/infrastructure/fetch"
	"FinNewsScanner/internal/infrastructure/llm"
	"FinNewsScanner/internal/infrastructure/metrics"
	"FinNewsScanner/internal/infrastructure/ml"
	"FinNewsScanner/internal/infrastructure/parser"
	"FinNewsScanner/internal/infrastructure/scheduler"
	"FinNewsScanner/internal/infrastructure/storage"
	"FinNewsScanner/internal/infrastructure/telegram"
	"FinNewsScanner/internal/infrastructure/vector"
	"FinNewsScanner/internal/logging"
	"FinNewsScanner/internal/ports"
	"FinNewsScanner/internal/scanner"
	"FinNewsScanner/internal/usecase"
)

// Application wires configs to use cases and lifecycle orchestration.
// Model clients and the vector index are built on first use, so read-only
// commands never touch them.
type Application struct {
	cfg     config.Config
	logger  *slog.Logger
	store   *storage.SQLStore
	metrics *metrics.Collector

	modelsOnce sync.Once
	modelsErr  error
	completer  ports.Completer
	embedder   ports.Embedder

	vectorsOnce sync.Once
	vectorsErr  error
	vectors     *vector.BadgerIndex
}

// New opens the article store and migrates its schema.
func New(ctx context.Context, cfg config.Config, baseLogger *slog.Logger) (*Application, error) {
	if baseLogger == nil {
		baseLogger = logging.New(cfg.Logging)
	}

	store, err := storage.Open(ctx, cfg.Database.URL)
	if err != nil {
		return nil, err
	}
	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, err
	}

	return &Application{
		cfg:     cfg,
		logger:  baseLogger,
		store:   store,
		metrics: metrics.NewCollector(),
	}, nil
}

// Close releases the store and, when opened, the vector index.
func (a *Application) Close() error {
	var errs []error
	if a.vectors != nil {
		errs = append(errs, a.vectors.Close())
	}
	errs = append(errs, a.store.Close())
	return errors.Join(errs...)
}

// Store exposes the SQL store to the command surface.
func (a *Application) Store() *storage.SQLStore {
	return a.store
}

// Config returns the loaded configuration.
func (a *Application) Config() config.Config {
	return a.cfg
}

// RunOnce executes a single crawl cycle.
func (a *Application) RunOnce(ctx context.Context) (usecase.CycleReport, error) {
	orchestrator, err := a.Orchestrator(ctx)
	if err != nil {
		return usecase.CycleReport{}, err
	}
	return orchestrator.RunOnce(ctx)
}

// RunDaemon crawls until ctx is cancelled, on the cron expression when one
// is configured and on a fixed interval otherwise. interval overrides the
// configured one when positive.
func (a *Application) RunDaemon(ctx context.Context, interval time.Duration) error {
	orchestrator, err := a.Orchestrator(ctx)
	if err != nil {
		return err
	}
	if interval <= 0 {
		interval = a.cfg.Scheduler.Interval()
	}

	g, gctx := errgroup.WithContext(ctx)
	if a.cfg.Metrics.Enabled {
		g.Go(func() error {
			return a.metrics.Serve(gctx, a.cfg.Metrics.Addr, a.logger.With("component", "metrics"))
		})
	}

	g.Go(func() error {
		if expr := a.cfg.Scheduler.CronExpression; expr != "" {
			if err := scheduler.Validate(expr); err != nil {
				return err
			}
			a.logger.Info("daemon started", "cron", expr, "timezone", a.cfg.Scheduler.Location().String())
			driver := scheduler.NewCronScheduler(expr, a.cfg.Scheduler.Location(), true, a.logger.With("component", "cron"))
			return usecase.NewScheduler(driver, orchestrator, a.logger.With("component", "scheduler")).Run(gctx)
		}

		a.logger.Info("daemon started", "interval", interval)
		return orchestrator.RunDaemon(gctx, interval)
	})

	return g.Wait()
}

// Orchestrator builds crawlers, the enrichment pipeline and side channels.
func (a *Application) Orchestrator(ctx context.Context) (*usecase.Orchestrator, error) {
	crawlers, err := a.crawlers()
	if err != nil {
		return nil, err
	}

	completer, embedder, err := a.models(ctx)
	if err != nil {
		return nil, err
	}

	var vectors ports.VectorIndex
	if embedder != nil {
		index, err := a.vectorIndex()
		if err != nil {
			return nil, err
		}
		vectors = index
	}

	dict, err := analysis.LoadDictionary(a.cfg.Analysis.DictionaryPath)
	if err != nil {
		return nil, err
	}

	pipeline := usecase.NewPipeline(usecase.PipelineDeps{
		Store:         a.store,
		Content:       content.NewFetcher(a.fetcher("content"), a.logger.With("component", "content")),
		Entities:      analysis.NewEntityClassifier(dict),
		Sentiment:     a.sentimentScorer(completer),
		Impact:        analysis.NewImpactClassifier(a.impactWeights()),
		Embedder:      embedder,
		Vectors:       vectors,
		Metrics:       a.metrics,
		Logger:        a.logger.With("component", "pipeline"),
		Workers:       a.cfg.Pipeline.Workers,
		SummaryLength: a.cfg.Pipeline.SummaryLength,
	})

	var alerter ports.Alerter
	if a.cfg.Notifications.Telegram.Enabled {
		alerter = telegram.NewNotifier(a.cfg.Notifications.Telegram)
	}

	return usecase.NewOrchestrator(usecase.OrchestratorDeps{
		Crawlers: crawlers,
		Pipeline: pipeline,
		CrawlLog: a.store,
		Alerter:  alerter,
		Metrics:  a.metrics,
		Logger:   a.logger.With("component", "orchestrator"),
	}), nil
}

// Evaluator reports enrichment quality over stored articles.
func (a *Application) Evaluator() *usecase.Evaluator {
	return usecase.NewEvaluator(a.store)
}

// Reanalyzer re-scores stored sentiment with the current classifier.
func (a *Application) Reanalyzer(ctx context.Context) (*usecase.Reanalyzer, error) {
	completer, _, err := a.models(ctx)
	if err != nil {
		return nil, err
	}
	return usecase.NewReanalyzer(a.store, a.store, a.sentimentScorer(completer), a.logger.With("component", "reanalyze")), nil
}

// SemanticSearch queries the vector index. It fails with
// usecase.ErrSearchDisabled when no embedding provider is configured.
func (a *Application) SemanticSearch(ctx context.Context) (*usecase.SemanticSearch, error) {
	_, embedder, err := a.models(ctx)
	if err != nil {
		return nil, err
	}
	if embedder == nil {
		return usecase.NewSemanticSearch(nil, nil, 0), nil
	}
	index, err := a.vectorIndex()
	if err != nil {
		return nil, err
	}
	return usecase.NewSemanticSearch(embedder, index, a.cfg.Embedding.MinScore), nil
}

// crawlers binds every configured site to its scanner. Each list profile
// gets its own fetch client so sources keep independent request pacing.
func (a *Application) crawlers() ([]ports.Crawler, error) {
	registry := scanner.NewRegistry()
	for _, profile := range parser.ListProfiles() {
		logger := a.logger.With("component", "scanner."+profile.Name)
		registry.Register(parser.NewListScanner(profile, a.fetcher(profile.Name), logger))
	}
	registry.Register(parser.NewFeedScanner(a.fetcher(parser.FeedScannerName), a.logger.With("component", "scanner.feed")))

	source := parser.NewStrategySource(registry, a.cfg.Sites, a.logger.With("component", "source"))
	return source.Crawlers()
}

func (a *Application) fetcher(name string) *fetch.Client {
	return fetch.NewClient(fetch.Options{
		Timeout:    a.cfg.Fetch.Timeout(),
		MaxRetries: a.cfg.Fetch.MaxRetries,
		Delay:      a.cfg.Fetch.Delay(),
		UserAgent:  a.cfg.Fetch.UserAgent,
	}, a.logger.With("component", "fetch."+name))
}

// models picks the completion model (Gemini first, then ChatGPT) and the
// embedding provider. Both share one request budget.
func (a *Application) models(ctx context.Context) (ports.Completer, ports.Embedder, error) {
	a.modelsOnce.Do(func() {
		throttle := llm.NewThrottle(a.cfg.Gemini.RequestsPerMinute)

		var gemini *llm.GeminiClient
		if a.cfg.Gemini.APIKey != "" {
			client, err := llm.NewGeminiClient(ctx, a.cfg.Gemini, "")
			if err != nil {
				a.modelsErr = err
				return
			}
			gemini = client
		}

		switch {
		case gemini != nil:
			a.completer = throttle.Completer(gemini)
		case a.cfg.ChatGPT.APIKey != "":
			a.completer = throttle.Completer(llm.NewChatGPTClient(a.cfg.ChatGPT))
		}

		switch a.cfg.Embedding.Provider {
		case "gemini":
			if gemini == nil {
				a.modelsErr = fmt.Errorf("gemini embedding provider needs an api key")
				return
			}
			a.embedder = throttle.Embedder(gemini)
		case "http":
			a.embedder = ml.NewClient(a.cfg.Embedding.URL, a.cfg.Embedding.APIKey)
		}

		a.logger.Debug("model clients ready",
			"completer", a.completer != nil,
			"embedding_provider", a.cfg.Embedding.Provider,
		)
	})
	return a.completer, a.embedder, a.modelsErr
}

func (a *Application) vectorIndex() (*vector.BadgerIndex, error) {
	a.vectorsOnce.Do(func() {
		a.vectors, a.vectorsErr = vector.Open(a.cfg.Embedding.VectorPath)
	})
	return a.vectors, a.vectorsErr
}

func (a *Application) sentimentScorer(completer ports.Completer) *analysis.SentimentClassifier {
	timeout := time.Duration(a.cfg.Analysis.SentimentTimeoutSeconds) * time.Second
	return analysis.NewSentimentClassifier(completer, timeout, a.logger.With("component", "sentiment"))
}

func (a *Application) impactWeights() analysis.ImpactWeights {
	w := a.cfg.Analysis.Impact
	return analysis.ImpactWeights{
		High:            w.HighWeight,
		Medium:          w.MediumWeight,
		TickerCap:       w.TickerCap,
		HighThreshold:   w.HighThreshold,
		MediumThreshold: w.MediumThreshold,
	}
}
