// Package memory provides a brute-force in-memory implementation of
// [index.Index].
//
// Every search scans all stored vectors, so it is only suitable for
// development, tests, and small corpora. Contents are lost on process exit.
package memory

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/saianfordx/vellum/pkg/index"
)

// Ensure Index implements the index.Index interface at compile time.
var _ index.Index = (*Index)(nil)

// Index stores records in a map guarded by a RWMutex. All methods are safe
// for concurrent use.
type Index struct {
	dims     int
	capacity int

	mu      sync.RWMutex
	records map[string]index.Record
}

// Option is a functional option for Index.
type Option func(*Index)

// WithCapacity sets a soft capacity used only for the IndexFullness stat.
// The index never rejects writes; fullness just reports count/capacity.
func WithCapacity(n int) Option {
	return func(ix *Index) {
		ix.capacity = n
	}
}

// New constructs an empty in-memory Index for vectors of the given dimension.
func New(dims int, opts ...Option) (*Index, error) {
	if dims <= 0 {
		return nil, fmt.Errorf("memory index: dimensions must be positive, got %d", dims)
	}
	ix := &Index{
		dims:    dims,
		records: make(map[string]index.Record),
	}
	for _, o := range opts {
		o(ix)
	}
	return ix, nil
}

// Upsert implements index.Index. Vectors of the wrong dimension are rejected
// before any record of the batch is stored.
func (ix *Index) Upsert(ctx context.Context, records []index.Record) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: upsert: %w", index.ErrWriteFailed, err)
	}
	for _, r := range records {
		if len(r.Vector) != ix.dims {
			return nil, fmt.Errorf("%w: record %q has dimension %d, index expects %d",
				index.ErrWriteFailed, r.ID, len(r.Vector), ix.dims)
		}
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()
	ids := make([]string, len(records))
	for i, r := range records {
		// Copy the vector so callers can reuse their slices.
		vec := make([]float32, len(r.Vector))
		copy(vec, r.Vector)
		r.Vector = vec
		ix.records[r.ID] = r
		ids[i] = r.ID
	}
	return ids, nil
}

// Search implements index.Index by scanning every stored record, applying the
// filter, and ranking the survivors by cosine similarity.
func (ix *Index) Search(ctx context.Context, vector []float32, q index.Query) ([]index.Match, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("memory index: search: %w", err)
	}
	if len(vector) != ix.dims {
		return nil, fmt.Errorf("memory index: query vector has dimension %d, index expects %d",
			len(vector), ix.dims)
	}
	if q.Filter != nil {
		if err := q.Filter.Validate(); err != nil {
			return nil, fmt.Errorf("memory index: %w", err)
		}
	}

	topK := q.TopK
	if topK < 1 {
		topK = 1
	}

	ix.mu.RLock()
	matches := make([]index.Match, 0, len(ix.records))
	for _, r := range ix.records {
		if q.Filter != nil && !q.Filter.Matches(r.Metadata) {
			continue
		}
		matches = append(matches, index.Match{
			Record: r,
			Score:  cosineSimilarity(vector, r.Vector),
		})
	}
	ix.mu.RUnlock()

	// Best first; ties break on ID so results are deterministic.
	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return matches[i].ID < matches[j].ID
	})
	if len(matches) > topK {
		matches = matches[:topK]
	}
	return matches, nil
}

// DeleteByDocumentID implements index.Index.
func (ix *Index) DeleteByDocumentID(ctx context.Context, documentID string) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("memory index: delete document: %w", err)
	}
	ix.mu.Lock()
	defer ix.mu.Unlock()
	for id, r := range ix.records {
		if r.Metadata.DocumentID == documentID {
			delete(ix.records, id)
		}
	}
	return nil
}

// DeleteAll implements index.Index.
func (ix *Index) DeleteAll(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("memory index: delete all: %w", err)
	}
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.records = make(map[string]index.Record)
	return nil
}

// Stats implements index.Index. IndexFullness is count/capacity when a
// capacity was configured and 0 otherwise.
func (ix *Index) Stats(ctx context.Context) (*index.Stats, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("memory index: stats: %w", err)
	}
	ix.mu.RLock()
	count := len(ix.records)
	ix.mu.RUnlock()

	fullness := 0.0
	if ix.capacity > 0 {
		fullness = float64(count) / float64(ix.capacity)
		if fullness > 1 {
			fullness = 1
		}
	}
	return &index.Stats{
		TotalVectorCount: count,
		IndexFullness:    fullness,
		Dimension:        ix.dims,
	}, nil
}

// cosineSimilarity returns the cosine similarity of a and b clamped to
// [0, 1]. Zero-magnitude inputs score 0.
func cosineSimilarity(a, b []float32) float64 {
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	sim := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	if sim < 0 {
		return 0
	}
	if sim > 1 {
		return 1
	}
	return sim
}
