package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"FinNewsScanner/internal/domain"
	"FinNewsScanner/internal/ports"
)

// ErrSearchDisabled is returned when no embedder or vector index is configured.
var ErrSearchDisabled = errors.New("semantic search is not configured")

// SemanticSearch finds stored articles close in meaning to a free-text query.
type SemanticSearch struct {
	embedder ports.Embedder
	index    ports.VectorIndex
	minScore float64
}

func NewSemanticSearch(embedder ports.Embedder, index ports.VectorIndex, minScore float64) *SemanticSearch {
	return &SemanticSearch{embedder: embedder, index: index, minScore: minScore}
}

// Search embeds query and returns up to limit matches, best first.
func (s *SemanticSearch) Search(ctx context.Context, query string, limit int) ([]domain.VectorMatch, error) {
	if s.embedder == nil || s.index == nil {
		return nil, ErrSearchDisabled
	}
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, errors.New("query is empty")
	}
	if limit <= 0 {
		limit = 10
	}

	vector, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	matches, err := s.index.Search(ctx, vector, limit, s.minScore)
	if err != nil {
		return nil, fmt.Errorf("search vectors: %w", err)
	}
	return matches, nil
}
