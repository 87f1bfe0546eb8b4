// Package fetch provides the retrying, identity-rotating HTTP client shared
// by crawlers and the content fetcher.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"math/rand/v2"
	"net/http"
	"sync/atomic"
	"time"

	"FinNewsScanner/internal/ports"
)

const (
	// DefaultTimeout is the per-attempt request budget.
	DefaultTimeout = 30 * time.Second
	// DefaultMaxRetries is the number of attempts per URL.
	DefaultMaxRetries = 3
	// DefaultDelay is the base pause after a successful request.
	DefaultDelay = time.Second

	maxBodyBytes = 10 << 20
)

// UserAgents is the identity pool rotated on every attempt.
var UserAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:121.0) Gecko/20100101 Firefox/121.0",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Edge/120.0.0.0 Safari/537.36",
}

// Error is the terminal failure returned after all attempts are spent.
type Error struct {
	URL      string
	Attempts int
	Status   int
	Cause    error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("fetch %s failed after %d attempts: %v", e.URL, e.Attempts, e.Cause)
	}
	return fmt.Sprintf("fetch %s failed after %d attempts: status %d", e.URL, e.Attempts, e.Status)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Options configures retry and pacing behaviour.
type Options struct {
	Timeout    time.Duration
	MaxRetries int
	Delay      time.Duration
	UserAgent  string
}

// Client implements ports.Fetcher. It is safe for concurrent use; callers
// that need a serialized request stream per source give each source its own
// Client or call it from a single goroutine.
type Client struct {
	http       *http.Client
	maxRetries int
	delay      time.Duration
	agents     []string
	next       atomic.Uint32
	logger     *slog.Logger

	jitter func() float64
	sleep  func(ctx context.Context, d time.Duration) error
}

var _ ports.Fetcher = (*Client)(nil)

// NewClient builds a client; zero options fall back to package defaults.
// A configured UserAgent replaces the built-in pool.
func NewClient(opts Options, logger *slog.Logger) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = DefaultMaxRetries
	}
	if opts.Delay < 0 {
		opts.Delay = 0
	}

	agents := UserAgents
	if opts.UserAgent != "" {
		agents = []string{opts.UserAgent}
	}

	return &Client{
		http:       &http.Client{Timeout: opts.Timeout},
		maxRetries: opts.MaxRetries,
		delay:      opts.Delay,
		agents:     agents,
		logger:     logger,
		jitter:     rand.Float64,
		sleep:      sleepContext,
	}
}

// Fetch downloads url and returns the body. Every attempt gets a fresh
// timeout and a rotated User-Agent. HTTP 429 waits 2^attempt seconds plus
// jitter; every failed attempt but the last then waits attempt*2 seconds
// plus jitter. After a success the client pauses delay*[0.5,1.5).
func (c *Client) Fetch(ctx context.Context, url string) (string, error) {
	var (
		lastErr    error
		lastStatus int
	)

	for attempt := 1; attempt <= c.maxRetries; attempt++ {
		body, status, err := c.attempt(ctx, url)
		if err == nil {
			c.pause(ctx, time.Duration(float64(c.delay)*(0.5+c.jitter())))
			return body, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", &Error{URL: url, Attempts: attempt, Status: status, Cause: ctxErr}
		}
		lastErr, lastStatus = err, status

		switch {
		case status == http.StatusTooManyRequests:
			wait := seconds(math.Pow(2, float64(attempt)) + c.jitter())
			c.warn("rate limited", "url", url, "attempt", attempt, "wait", wait)
			if err := c.sleep(ctx, wait); err != nil {
				return "", &Error{URL: url, Attempts: attempt, Status: status, Cause: err}
			}
		case status != 0:
			c.warn("http error", "url", url, "attempt", attempt, "status", status)
		case isTimeout(err):
			c.warn("request timeout", "url", url, "attempt", attempt, "of", c.maxRetries)
		default:
			c.warn("request failed", "url", url, "attempt", attempt, "error", err)
		}

		if attempt < c.maxRetries {
			if err := c.sleep(ctx, seconds(float64(attempt*2)+c.jitter())); err != nil {
				return "", &Error{URL: url, Attempts: attempt, Status: status, Cause: err}
			}
		}
	}

	if c.logger != nil {
		c.logger.Error("fetch exhausted retries", "url", url, "attempts", c.maxRetries)
	}
	if lastStatus != 0 {
		lastErr = nil
	}
	return "", &Error{URL: url, Attempts: c.maxRetries, Status: lastStatus, Cause: lastErr}
}

func (c *Client) attempt(ctx context.Context, url string) (string, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", 0, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", c.agents[int(c.next.Add(1)-1)%len(c.agents)])
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "vi-VN,vi;q=0.9,en-US;q=0.8,en;q=0.7")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", 0, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusBadRequest {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return "", resp.StatusCode, fmt.Errorf("unexpected status %s", resp.Status)
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return "", 0, fmt.Errorf("read body: %w", err)
	}

	if c.logger != nil {
		c.logger.Debug("fetched", "url", url, "status", resp.StatusCode, "bytes", len(raw))
	}
	return string(raw), resp.StatusCode, nil
}

func (c *Client) pause(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	_ = c.sleep(ctx, d)
}

func (c *Client) warn(msg string, args ...interface{}) {
	if c.logger != nil {
		c.logger.Warn(msg, args...)
	}
}

func isTimeout(err error) bool {
	var t interface{ Timeout() bool }
	return errors.As(err, &t) && t.Timeout()
}

func seconds(v float64) time.Duration {
	return time.Duration(v * float64(time.Second))
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
