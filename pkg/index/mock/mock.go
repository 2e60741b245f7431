// Package mock provides a test double for the index.Index interface.
package mock

import (
	"context"
	"sync"

	"github.com/saianfordx/vellum/pkg/index"
)

// UpsertCall records a single invocation of Upsert.
type UpsertCall struct {
	// Ctx is the context passed to Upsert.
	Ctx context.Context
	// Records is a copy of the slice passed to Upsert.
	Records []index.Record
}

// SearchCall records a single invocation of Search.
type SearchCall struct {
	// Ctx is the context passed to Search.
	Ctx context.Context
	// Vector is a copy of the query vector.
	Vector []float32
	// Query is the Query passed to Search.
	Query index.Query
}

// DeleteCall records a single invocation of DeleteByDocumentID.
type DeleteCall struct {
	// Ctx is the context passed to DeleteByDocumentID.
	Ctx context.Context
	// DocumentID is the argument passed to DeleteByDocumentID.
	DocumentID string
}

// Index is a mock implementation of index.Index.
// Zero values for response fields cause methods to return zero values and nil
// errors. Set Err fields to inject errors.
type Index struct {
	mu sync.Mutex

	// --- Configurable responses ---

	// UpsertErr, if non-nil, is returned as the error from Upsert.
	UpsertErr error

	// SearchMatches is returned by Search.
	SearchMatches []index.Match

	// SearchErr, if non-nil, is returned as the error from Search.
	SearchErr error

	// DeleteErr, if non-nil, is returned as the error from DeleteByDocumentID.
	DeleteErr error

	// DeleteAllErr, if non-nil, is returned as the error from DeleteAll.
	DeleteAllErr error

	// StatsResult is returned by Stats. May be nil (returns nil, nil when
	// StatsErr is also nil).
	StatsResult *index.Stats

	// StatsErr, if non-nil, is returned as the error from Stats.
	StatsErr error

	// --- Call records (read after test) ---

	// UpsertCalls records every invocation of Upsert in order.
	UpsertCalls []UpsertCall

	// SearchCalls records every invocation of Search in order.
	SearchCalls []SearchCall

	// DeleteCalls records every invocation of DeleteByDocumentID in order.
	DeleteCalls []DeleteCall

	// DeleteAllCallCount is the number of times DeleteAll was called.
	DeleteAllCallCount int

	// StatsCallCount is the number of times Stats was called.
	StatsCallCount int
}

// Upsert records the call. It returns the record IDs in input order unless
// UpsertErr is set.
func (ix *Index) Upsert(ctx context.Context, records []index.Record) ([]string, error) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	cp := make([]index.Record, len(records))
	copy(cp, records)
	ix.UpsertCalls = append(ix.UpsertCalls, UpsertCall{Ctx: ctx, Records: cp})
	if ix.UpsertErr != nil {
		return nil, ix.UpsertErr
	}
	ids := make([]string, len(records))
	for i, r := range records {
		ids[i] = r.ID
	}
	return ids, nil
}

// Search records the call and returns SearchMatches, SearchErr.
func (ix *Index) Search(ctx context.Context, vector []float32, q index.Query) ([]index.Match, error) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	vec := make([]float32, len(vector))
	copy(vec, vector)
	ix.SearchCalls = append(ix.SearchCalls, SearchCall{Ctx: ctx, Vector: vec, Query: q})
	if ix.SearchErr != nil {
		return nil, ix.SearchErr
	}
	return ix.SearchMatches, nil
}

// DeleteByDocumentID records the call and returns DeleteErr.
func (ix *Index) DeleteByDocumentID(ctx context.Context, documentID string) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.DeleteCalls = append(ix.DeleteCalls, DeleteCall{Ctx: ctx, DocumentID: documentID})
	return ix.DeleteErr
}

// DeleteAll records the call and returns DeleteAllErr.
func (ix *Index) DeleteAll(ctx context.Context) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.DeleteAllCallCount++
	return ix.DeleteAllErr
}

// Stats records the call and returns StatsResult, StatsErr.
func (ix *Index) Stats(ctx context.Context) (*index.Stats, error) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.StatsCallCount++
	if ix.StatsErr != nil {
		return nil, ix.StatsErr
	}
	return ix.StatsResult, nil
}

// Reset clears all recorded calls. Thread-safe.
func (ix *Index) Reset() {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.UpsertCalls = nil
	ix.SearchCalls = nil
	ix.DeleteCalls = nil
	ix.DeleteAllCallCount = 0
	ix.StatsCallCount = 0
}

// Ensure Index implements index.Index at compile time.
var _ index.Index = (*Index)(nil)
