// Package memory provides an in-memory implementation of [docstore.Store]
// for development and tests. Contents are lost on process exit.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/saianfordx/vellum/pkg/docstore"
	"github.com/saianfordx/vellum/pkg/document"
)

// Ensure Store implements the docstore.Store interface at compile time.
var _ docstore.Store = (*Store)(nil)

// Store keeps documents in a map guarded by a RWMutex. All methods are safe
// for concurrent use.
type Store struct {
	mu   sync.RWMutex
	docs map[string]document.Document
}

// New constructs an empty in-memory Store.
func New() *Store {
	return &Store{docs: make(map[string]document.Document)}
}

// Put implements docstore.Store.
func (s *Store) Put(ctx context.Context, doc *document.Document) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("memory docstore: put: %w", err)
	}
	cp := *doc
	if cp.UploadedAt.IsZero() {
		cp.UploadedAt = time.Now()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs[cp.ID] = cp
	return nil
}

// Get implements docstore.Store.
func (s *Store) Get(ctx context.Context, id string) (*document.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("memory docstore: get: %w", err)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.docs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", docstore.ErrNotFound, id)
	}
	cp := doc
	return &cp, nil
}

// List implements docstore.Store. Content is left empty to match the
// PostgreSQL backend.
func (s *Store) List(ctx context.Context) ([]*document.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("memory docstore: list: %w", err)
	}
	s.mu.RLock()
	docs := make([]*document.Document, 0, len(s.docs))
	for _, doc := range s.docs {
		cp := doc
		cp.Content = ""
		docs = append(docs, &cp)
	}
	s.mu.RUnlock()

	sort.Slice(docs, func(i, j int) bool {
		if !docs[i].UploadedAt.Equal(docs[j].UploadedAt) {
			return docs[i].UploadedAt.After(docs[j].UploadedAt)
		}
		return docs[i].ID < docs[j].ID
	})
	return docs, nil
}

// UpdateStatus implements docstore.Store.
func (s *Store) UpdateStatus(ctx context.Context, id string, status document.Status) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("memory docstore: update status: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.docs[id]
	if !ok {
		return fmt.Errorf("%w: %q", docstore.ErrNotFound, id)
	}
	doc.Status = status
	if status == document.StatusCompleted || status == document.StatusFailed {
		doc.ProcessedAt = time.Now()
	}
	s.docs[id] = doc
	return nil
}

// Delete implements docstore.Store. Deleting an unknown ID is a no-op.
func (s *Store) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("memory docstore: delete: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.docs, id)
	return nil
}
