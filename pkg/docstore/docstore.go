// Package docstore defines storage for source documents and their processing
// state.
//
// The store holds the normalized document content plus bookkeeping metadata;
// the derived chunk vectors live in the vector index (package index). A
// document moves through the status lifecycle uploading → processing →
// completed or failed; the ingestion pipeline drives those transitions.
//
// Implementations must be safe for concurrent use.
package docstore

import (
	"context"
	"errors"

	"github.com/saianfordx/vellum/pkg/document"
)

// ErrNotFound is returned when no document exists for the requested ID.
var ErrNotFound = errors.New("docstore: document not found")

// Store is the abstraction over any document storage backend.
type Store interface {
	// Put inserts the document or fully replaces the stored one with the
	// same ID.
	Put(ctx context.Context, doc *document.Document) error

	// Get returns the document with the given ID, including its content.
	// Returns ErrNotFound when the ID is unknown.
	Get(ctx context.Context, id string) (*document.Document, error)

	// List returns all documents ordered by upload time, newest first.
	// Content is omitted from the returned documents; use Get for the full
	// text.
	List(ctx context.Context) ([]*document.Document, error)

	// UpdateStatus records a lifecycle transition. Returns ErrNotFound when
	// the ID is unknown.
	UpdateStatus(ctx context.Context, id string, status document.Status) error

	// Delete removes the document. Deleting an unknown ID is not an error;
	// removal of the document's index records is the caller's concern.
	Delete(ctx context.Context, id string) error
}
