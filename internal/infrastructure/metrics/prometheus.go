// Package metrics exports pipeline counters to Prometheus.
package metrics

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"FinNewsScanner/internal/ports"
)

const namespace = "finnews"

// Collector holds every counter the crawl pipeline reports.
type Collector struct {
	registry *prometheus.Registry

	stubsCrawled       *prometheus.CounterVec
	articlesSaved      *prometheus.CounterVec
	dedupSkipped       *prometheus.CounterVec
	repositoryErrors   prometheus.Counter
	enrichmentFailures prometheus.Counter
	contentFailures    prometheus.Counter
}

var _ ports.Metrics = (*Collector)(nil)

// NewCollector registers the pipeline counters, plus Go runtime and
// process collectors, on a private registry.
func NewCollector() *Collector {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Collector{
		registry: reg,
		stubsCrawled: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stubs_crawled_total",
			Help:      "Article stubs returned by crawlers.",
		}, []string{"source"}),
		articlesSaved: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "articles_saved_total",
			Help:      "Enriched articles inserted into the store.",
		}, []string{"source"}),
		dedupSkipped: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dedup_skipped_total",
			Help:      "Articles dropped as duplicates, by dedup stage.",
		}, []string{"stage"}),
		repositoryErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "repository_errors_total",
			Help:      "Store calls that failed.",
		}),
		enrichmentFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "enrichment_failures_total",
			Help:      "Articles whose enrichment failed and were skipped.",
		}),
		contentFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "content_fetch_failures_total",
			Help:      "Full-content fetches that failed; crawler text was used instead.",
		}),
	}
}

func (c *Collector) StubsCrawled(source string, n int) {
	c.stubsCrawled.WithLabelValues(source).Add(float64(n))
}

func (c *Collector) ArticleSaved(source string) {
	c.articlesSaved.WithLabelValues(source).Inc()
}

func (c *Collector) DedupSkipped(stage string) {
	c.dedupSkipped.WithLabelValues(stage).Inc()
}

func (c *Collector) RepositoryError() { c.repositoryErrors.Inc() }

func (c *Collector) EnrichmentFailed() { c.enrichmentFailures.Inc() }

func (c *Collector) ContentFetchFailed() { c.contentFailures.Inc() }

// Handler serves the registry in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is cancelled.
func (c *Collector) Serve(ctx context.Context, addr string, logger *slog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", c.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	if logger != nil {
		logger.Info("metrics endpoint listening", "addr", addr)
	}
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
