package llm

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"FinNewsScanner/internal/ports"
)

// Throttle shares one request budget between every client it wraps, so
// completions and embeddings against the same API key stay under quota.
type Throttle struct {
	limiter *rate.Limiter
}

// NewThrottle allows perMinute requests per minute with no burst.
func NewThrottle(perMinute int) *Throttle {
	if perMinute <= 0 {
		return &Throttle{limiter: rate.NewLimiter(rate.Inf, 1)}
	}
	return &Throttle{limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), 1)}
}

// Completer wraps c so each call waits for the budget.
func (t *Throttle) Completer(c ports.Completer) ports.Completer {
	return throttledCompleter{next: c, limiter: t.limiter}
}

// Embedder wraps e so each call waits for the budget.
func (t *Throttle) Embedder(e ports.Embedder) ports.Embedder {
	return throttledEmbedder{next: e, limiter: t.limiter}
}

type throttledCompleter struct {
	next    ports.Completer
	limiter *rate.Limiter
}

func (c throttledCompleter) Complete(ctx context.Context, prompt string) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("wait for rate limit: %w", err)
	}
	return c.next.Complete(ctx, prompt)
}

type throttledEmbedder struct {
	next    ports.Embedder
	limiter *rate.Limiter
}

func (e throttledEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := e.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("wait for rate limit: %w", err)
	}
	return e.next.Embed(ctx, text)
}
