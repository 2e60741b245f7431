// Package index defines the vector index abstraction used for semantic
// retrieval over embedded document chunks.
//
// An Index stores embedding vectors alongside chunk metadata and answers
// nearest-neighbour queries, optionally constrained by a metadata [Filter].
// Two backends ship with this module: a PostgreSQL/pgvector implementation
// (subpackage postgres) for production and a brute-force in-memory
// implementation (subpackage memory) for development and tests.
//
// Implementations must be safe for concurrent use.
package index

import (
	"context"
	"errors"
)

// Sentinel errors returned by Index implementations.
var (
	// ErrUnavailable indicates the backend could not be reached or refused
	// the connection. Retrying later may succeed.
	ErrUnavailable = errors.New("index: backend unavailable")

	// ErrWriteFailed indicates an upsert did not complete. The index state is
	// unknown: some records of the batch may have been written, others not.
	// Callers must not mark the source document as successfully indexed.
	ErrWriteFailed = errors.New("index: write failed, index state unknown")
)

// Metadata is the queryable payload stored next to each vector. Field names
// exposed to filters use the wire spelling (documentId, documentTitle, ...);
// see [Filter].
type Metadata struct {
	// DocumentID is the owning document. Deletes cascade on this value.
	DocumentID string
	// ChunkIndex is the position of the chunk within its document.
	ChunkIndex int
	// StartChar and EndChar delimit the chunk in the normalized document
	// content. EndChar is inclusive.
	StartChar int
	EndChar   int
	// PageNumber is the 1-based approximate page of the chunk.
	PageNumber int
	// Source is the origin filename or URL of the document.
	Source string
	// DocumentTitle is the human-readable document title.
	DocumentTitle string
	// Text is the chunk content itself, stored so search hits can be
	// returned without a second lookup.
	Text string
}

// Field returns the metadata value for a filter field name, using the wire
// spelling. The second return is false for names that are not filterable.
func (m Metadata) Field(name string) (any, bool) {
	switch name {
	case "documentId":
		return m.DocumentID, true
	case "chunkIndex":
		return m.ChunkIndex, true
	case "pageNumber":
		return m.PageNumber, true
	case "source":
		return m.Source, true
	case "documentTitle":
		return m.DocumentTitle, true
	default:
		return nil, false
	}
}

// Record is one embedded chunk as stored in the index.
type Record struct {
	// ID uniquely identifies the record. Upserting an existing ID replaces
	// the stored vector and metadata.
	ID string
	// Vector is the embedding. All records in one index share a dimension.
	Vector []float32
	// Metadata is the queryable payload.
	Metadata Metadata
}

// Match is a single search hit.
type Match struct {
	Record
	// Score is cosine similarity clamped to [0, 1]; higher is more similar.
	Score float64
}

// Query holds the non-vector parameters of a search.
type Query struct {
	// TopK is the maximum number of matches to return. Values < 1 are
	// treated as 1 by implementations.
	TopK int
	// Filter restricts candidates before ranking. Nil or empty means no
	// restriction.
	Filter Filter
}

// Stats is a point-in-time summary of index contents.
type Stats struct {
	// TotalVectorCount is the number of stored records.
	TotalVectorCount int
	// IndexFullness is the used fraction of backend capacity in [0, 1].
	// Backends without a hard capacity report 0.
	IndexFullness float64
	// Dimension is the configured vector dimension.
	Dimension int
}

// Index is the abstraction over any vector index backend.
//
// Implementations must be safe for concurrent use.
type Index interface {
	// Upsert writes records, replacing any stored record with the same ID,
	// and returns the stored IDs in input order. On failure it returns an
	// error wrapping ErrWriteFailed with no IDs; the batch may have been
	// partially applied.
	Upsert(ctx context.Context, records []Record) ([]string, error)

	// Search returns up to q.TopK records most similar to vector, best
	// first. The filter is applied before ranking, so a restrictive filter
	// never pushes matching records out of the result.
	Search(ctx context.Context, vector []float32, q Query) ([]Match, error)

	// DeleteByDocumentID removes every record whose metadata carries the
	// given document ID. Deleting an unknown document is not an error.
	DeleteByDocumentID(ctx context.Context, documentID string) error

	// DeleteAll removes every record in the index.
	DeleteAll(ctx context.Context) error

	// Stats reports the current contents summary.
	Stats(ctx context.Context) (*Stats, error)
}
