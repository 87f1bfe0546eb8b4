package usecase

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"FinNewsScanner/internal/domain"
)

type searchIndex struct {
	vectorStub
	gotVector []float32
	gotLimit  int
	gotMin    float64
}

func (s *searchIndex) Search(_ context.Context, vector []float32, limit int, minScore float64) ([]domain.VectorMatch, error) {
	s.gotVector, s.gotLimit, s.gotMin = vector, limit, minScore
	return []domain.VectorMatch{{ID: "v1", Score: 0.91, Metadata: map[string]string{"title": "Giá thép"}}}, nil
}

func TestSemanticSearch(t *testing.T) {
	t.Parallel()

	index := &searchIndex{}
	s := NewSemanticSearch(embedderStub{}, index, 0.5)

	matches, err := s.Search(context.Background(), "  thép  ", 0)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "v1", matches[0].ID)
	assert.Equal(t, []float32{5, 1}, index.gotVector)
	assert.Equal(t, 10, index.gotLimit)
	assert.Equal(t, 0.5, index.gotMin)
}

func TestSemanticSearchErrors(t *testing.T) {
	t.Parallel()

	_, err := NewSemanticSearch(nil, nil, 0).Search(context.Background(), "x", 5)
	assert.ErrorIs(t, err, ErrSearchDisabled)

	_, err = NewSemanticSearch(embedderStub{}, &searchIndex{}, 0).Search(context.Background(), " ", 5)
	assert.Error(t, err)

	_, err = NewSemanticSearch(embedderStub{err: errors.New("quota")}, &searchIndex{}, 0).Search(context.Background(), "x", 5)
	assert.ErrorContains(t, err, "embed query")
}
