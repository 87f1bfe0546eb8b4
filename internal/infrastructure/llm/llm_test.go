package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"FinNewsScanner/internal/config"
)

func TestChatGPTComplete(t *testing.T) {
	t.Parallel()

	var got struct {
		Model    string `json:"model"`
		Messages []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":" NHAN: POSITIVE\nDIEM: 0.6\nTIN_DON: KHONG "}}]}`))
	}))
	defer srv.Close()

	c := NewChatGPTClient(config.ChatGPTConfig{Endpoint: srv.URL, Model: "gpt-4o-mini", APIKey: "sk-test"})
	answer, err := c.Complete(context.Background(), "Bài báo: lợi nhuận tăng")
	require.NoError(t, err)
	assert.Equal(t, "NHAN: POSITIVE\nDIEM: 0.6\nTIN_DON: KHONG", answer)

	assert.Equal(t, "gpt-4o-mini", got.Model)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, "user", got.Messages[1].Role)
	assert.Equal(t, "Bài báo: lợi nhuận tăng", got.Messages[1].Content)
}

func TestChatGPTErrors(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/empty") {
			_, _ = w.Write([]byte(`{"choices":[]}`))
			return
		}
		http.Error(w, `{"error":"quota"}`, http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := NewChatGPTClient(config.ChatGPTConfig{Endpoint: srv.URL, Model: "m", APIKey: "k"}).Complete(context.Background(), "x")
	assert.ErrorContains(t, err, "429")

	_, err = NewChatGPTClient(config.ChatGPTConfig{Endpoint: srv.URL + "/empty", Model: "m", APIKey: "k"}).Complete(context.Background(), "x")
	assert.ErrorContains(t, err, "no choices")

	_, err = NewChatGPTClient(config.ChatGPTConfig{Endpoint: srv.URL, Model: "m"}).Complete(context.Background(), "x")
	assert.ErrorContains(t, err, "misconfigured")
}

func TestGeminiCompleteAndEmbed(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if strings.Contains(r.URL.Path, "mbedContents") {
			_, _ = w.Write([]byte(`{"embeddings":[{"values":[0.25,-0.5,1]}]}`))
			return
		}
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"role":"model","parts":[{"text":"NHAN: NEGATIVE\nDIEM: -0.4\nTIN_DON: CO"}]}}]}`))
	}))
	defer srv.Close()

	g, err := NewGeminiClient(context.Background(), config.GeminiConfig{
		APIKey:         "test-key",
		Model:          "gemini-2.0-flash-lite",
		EmbeddingModel: "text-embedding-004",
	}, srv.URL)
	require.NoError(t, err)

	answer, err := g.Complete(context.Background(), "prompt")
	require.NoError(t, err)
	assert.Equal(t, "NHAN: NEGATIVE\nDIEM: -0.4\nTIN_DON: CO", answer)

	vector, err := g.Embed(context.Background(), "Vingroup ra mắt dự án mới")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.25, -0.5, 1}, vector)
}

func TestGeminiRequiresKey(t *testing.T) {
	t.Parallel()

	_, err := NewGeminiClient(context.Background(), config.GeminiConfig{}, "")
	assert.Error(t, err)
}

type countingCompleter struct{ calls atomic.Int32 }

func (c *countingCompleter) Complete(context.Context, string) (string, error) {
	c.calls.Add(1)
	return "ok", nil
}

type countingEmbedder struct{ calls atomic.Int32 }

func (e *countingEmbedder) Embed(context.Context, string) ([]float32, error) {
	e.calls.Add(1)
	return []float32{1}, nil
}

func TestThrottleSharesBudget(t *testing.T) {
	t.Parallel()

	throttle := NewThrottle(1200) // one request every 50ms
	completer := &countingCompleter{}
	embedder := &countingEmbedder{}
	c := throttle.Completer(completer)
	e := throttle.Embedder(embedder)

	start := time.Now()
	_, err := c.Complete(context.Background(), "a")
	require.NoError(t, err)
	_, err = e.Embed(context.Background(), "b")
	require.NoError(t, err)
	_, err = c.Complete(context.Background(), "c")
	require.NoError(t, err)

	assert.GreaterOrEqual(t, time.Since(start), 90*time.Millisecond)
	assert.Equal(t, int32(2), completer.calls.Load())
	assert.Equal(t, int32(1), embedder.calls.Load())
}

func TestThrottleHonoursCancellation(t *testing.T) {
	t.Parallel()

	throttle := NewThrottle(1)
	completer := &countingCompleter{}
	c := throttle.Completer(completer)

	_, err := c.Complete(context.Background(), "first")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = c.Complete(ctx, "second")
	require.Error(t, err)
	assert.Equal(t, int32(1), completer.calls.Load())
}
