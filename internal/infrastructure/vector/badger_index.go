// Package vector keeps article embeddings in a local Badger database and
// answers cosine-similarity queries over them.
package vector

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/timshannon/badgerhold/v4"

	"FinNewsScanner/internal/domain"
	"FinNewsScanner/internal/ports"
)

type record struct {
	ID        string `badgerhold:"key"`
	Vector    []float32
	Norm      float64
	Metadata  map[string]string
	CreatedAt time.Time
}

// BadgerIndex is a brute-force vector index. Every search scans all stored
// vectors, which is fine for the few hundred thousand articles a single
// node ingests.
type BadgerIndex struct {
	store *badgerhold.Store
	dim   int
	mu    sync.Mutex
}

var _ ports.VectorIndex = (*BadgerIndex)(nil)

// Open creates or reopens the index stored under dir.
func Open(dir string) (*BadgerIndex, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create vector dir: %w", err)
	}

	options := badgerhold.DefaultOptions
	options.Options = badger.DefaultOptions(dir).WithLogger(nil)

	store, err := badgerhold.Open(options)
	if err != nil {
		return nil, fmt.Errorf("open vector index: %w", err)
	}
	return &BadgerIndex{store: store}, nil
}

// Close flushes and closes the underlying database.
func (b *BadgerIndex) Close() error {
	return b.store.Close()
}

// Upsert stores vector with its metadata and returns the new id. All
// vectors of an index must share one dimension.
func (b *BadgerIndex) Upsert(ctx context.Context, vector []float32, metadata map[string]string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	norm := l2(vector)
	if norm == 0 {
		return "", errors.New("vector is empty or zero")
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.dim == 0 {
		b.dim = b.storedDim()
	}
	if b.dim != 0 && len(vector) != b.dim {
		return "", fmt.Errorf("vector dimension %d, index holds %d", len(vector), b.dim)
	}

	rec := record{
		ID:        uuid.NewString(),
		Vector:    vector,
		Norm:      norm,
		Metadata:  metadata,
		CreatedAt: time.Now().UTC(),
	}
	if err := b.store.Upsert(rec.ID, rec); err != nil {
		return "", fmt.Errorf("store vector: %w", err)
	}
	b.dim = len(vector)
	return rec.ID, nil
}

// Search returns up to limit matches whose cosine similarity is at least
// minScore, best first.
func (b *BadgerIndex) Search(ctx context.Context, vector []float32, limit int, minScore float64) ([]domain.VectorMatch, error) {
	norm := l2(vector)
	if norm == 0 {
		return nil, errors.New("query vector is empty or zero")
	}

	var records []record
	if err := b.store.Find(&records, nil); err != nil {
		return nil, fmt.Errorf("scan vectors: %w", err)
	}

	matches := make([]domain.VectorMatch, 0, len(records))
	for _, rec := range records {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if len(rec.Vector) != len(vector) || rec.Norm == 0 {
			continue
		}
		score := dot(vector, rec.Vector) / (norm * rec.Norm)
		if score < minScore {
			continue
		}
		matches = append(matches, domain.VectorMatch{ID: rec.ID, Score: score, Metadata: rec.Metadata})
	}

	sort.SliceStable(matches, func(i, j int) bool { return matches[i].Score > matches[j].Score })
	if limit > 0 && len(matches) > limit {
		matches = matches[:limit]
	}
	return matches, nil
}

// Count returns the number of stored vectors.
func (b *BadgerIndex) Count() (uint64, error) {
	return b.store.Count(&record{}, nil)
}

func (b *BadgerIndex) storedDim() int {
	var first []record
	if err := b.store.Find(&first, (&badgerhold.Query{}).Limit(1)); err != nil || len(first) == 0 {
		return 0
	}
	return len(first[0].Vector)
}

func dot(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}

func l2(v []float32) float64 {
	return math.Sqrt(dot(v, v))
}
