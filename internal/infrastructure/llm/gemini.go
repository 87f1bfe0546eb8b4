package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"FinNewsScanner/internal/config"
	"FinNewsScanner/internal/ports"
)

// GeminiClient serves both completions and embeddings from the Gemini API.
type GeminiClient struct {
	client         *genai.Client
	model          string
	embeddingModel string
}

var (
	_ ports.Completer = (*GeminiClient)(nil)
	_ ports.Embedder  = (*GeminiClient)(nil)
)

// NewGeminiClient connects with the configured API key. baseURL overrides
// the API host and is empty outside tests.
func NewGeminiClient(ctx context.Context, cfg config.GeminiConfig, baseURL string) (*GeminiClient, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("gemini api key is empty")
	}

	clientCfg := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if baseURL != "" {
		clientCfg.HTTPOptions = genai.HTTPOptions{BaseURL: baseURL}
	}

	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		return nil, fmt.Errorf("init gemini client: %w", err)
	}
	return &GeminiClient{client: client, model: cfg.Model, embeddingModel: cfg.EmbeddingModel}, nil
}

// Complete runs a single-turn generation with zero temperature.
func (g *GeminiClient) Complete(ctx context.Context, prompt string) (string, error) {
	resp, err := g.client.Models.GenerateContent(ctx, g.model,
		genai.Text(prompt),
		&genai.GenerateContentConfig{Temperature: genai.Ptr[float32](0)},
	)
	if err != nil {
		return "", fmt.Errorf("gemini generate: %w", err)
	}

	var out strings.Builder
	if resp != nil {
		for _, candidate := range resp.Candidates {
			if candidate.Content == nil {
				continue
			}
			for _, part := range candidate.Content.Parts {
				out.WriteString(part.Text)
			}
			if out.Len() > 0 {
				break
			}
		}
	}
	if out.Len() == 0 {
		return "", errors.New("gemini returned no text")
	}
	return strings.TrimSpace(out.String()), nil
}

// Embed returns the embedding of text.
func (g *GeminiClient) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := g.client.Models.EmbedContent(ctx, g.embeddingModel,
		[]*genai.Content{genai.NewContentFromText(text, genai.RoleUser)}, nil)
	if err != nil {
		return nil, fmt.Errorf("gemini embed: %w", err)
	}
	if resp == nil || len(resp.Embeddings) == 0 || len(resp.Embeddings[0].Values) == 0 {
		return nil, errors.New("gemini returned no embedding")
	}
	return resp.Embeddings[0].Values, nil
}
