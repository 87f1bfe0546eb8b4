package usecase

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"FinNewsScanner/internal/domain"
)

type scriptedSentiment map[string]domain.SentimentResult

func (s scriptedSentiment) Score(_ context.Context, text string) domain.SentimentResult {
	for prefix, r := range s {
		if strings.HasPrefix(text, prefix) {
			return r
		}
	}
	return domain.SentimentResult{Label: domain.SentimentNeutral}
}

type rewriterStub struct {
	updates map[string]domain.SentimentResult
	failID  string
}

func (r *rewriterStub) UpdateSentiment(_ context.Context, id string, result domain.SentimentResult) error {
	if id == r.failID {
		return errors.New("row locked")
	}
	if r.updates == nil {
		r.updates = map[string]domain.SentimentResult{}
	}
	r.updates[id] = result
	return nil
}

func TestReanalyzerUpdatesChangedOnly(t *testing.T) {
	t.Parallel()

	lister := &listerStub{articles: []domain.EnrichedArticle{
		{ID: "same", Title: "Ổn định", SentimentLabel: domain.SentimentNeutral},
		{ID: "flip", Title: "Lãi lớn", SentimentLabel: domain.SentimentNeutral},
		{ID: "rumor", Title: "Nghe nói", SentimentLabel: domain.SentimentNegative, SentimentScore: -0.5},
		{ID: "locked", Title: "Lỗ nặng", SentimentLabel: domain.SentimentPositive, SentimentScore: 0.2},
	}}
	scorer := scriptedSentiment{
		"Lãi lớn":  {Label: domain.SentimentPositive, Score: 1.7},
		"Nghe nói": {Label: domain.SentimentNegative, Score: -0.5, IsRumor: true},
		"Lỗ nặng":  {Label: domain.SentimentNegative, Score: -0.8},
	}
	rewriter := &rewriterStub{failID: "locked"}

	report, err := NewReanalyzer(lister, rewriter, scorer, nil).Run(context.Background(), 7, 100)
	require.NoError(t, err)

	assert.Equal(t, ReanalyzeReport{Scanned: 4, Updated: 2, Unchanged: 1, Failed: 1}, report)
	assert.Equal(t, 7, lister.days)
	assert.Equal(t, 100, lister.limit)
	assert.Equal(t, 1.0, rewriter.updates["flip"].Score)
	assert.True(t, rewriter.updates["rumor"].IsRumor)
	assert.NotContains(t, rewriter.updates, "same")
}

func TestReanalyzerErrors(t *testing.T) {
	t.Parallel()

	_, err := NewReanalyzer(&listerStub{}, &rewriterStub{}, scriptedSentiment{}, nil).Run(context.Background(), 0, 10)
	assert.Error(t, err)

	_, err = NewReanalyzer(&listerStub{err: errors.New("db down")}, &rewriterStub{}, scriptedSentiment{}, nil).Run(context.Background(), 3, 10)
	assert.ErrorContains(t, err, "db down")
}
