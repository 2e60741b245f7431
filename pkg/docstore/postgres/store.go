package postgres

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/saianfordx/vellum/pkg/docstore"
	"github.com/saianfordx/vellum/pkg/document"
)

// Ensure Store implements the docstore.Store interface at compile time.
var _ docstore.Store = (*Store)(nil)

// Store is the PostgreSQL-backed document store. All methods are safe for
// concurrent use.
type Store struct {
	dsn string

	mu   sync.Mutex
	pool *pgxpool.Pool
}

// New constructs a Store for the PostgreSQL database at dsn. No connection is
// made until the first operation.
func New(dsn string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("postgres docstore: dsn must not be empty")
	}
	return &Store{dsn: dsn}, nil
}

// connect returns the cached pool, establishing it on first call. The first
// successful connect also runs Migrate.
func (s *Store) connect(ctx context.Context) (*pgxpool.Pool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pool != nil {
		return s.pool, nil
	}

	pool, err := pgxpool.New(ctx, s.dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres docstore: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres docstore: ping: %w", err)
	}
	if err := Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}

	s.pool = pool
	return pool, nil
}

// Reset discards the cached connection pool. The next operation reconnects.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pool != nil {
		s.pool.Close()
		s.pool = nil
	}
}

// Close releases the connection pool, typically via defer at shutdown.
func (s *Store) Close() {
	s.Reset()
}

// Put implements docstore.Store.
func (s *Store) Put(ctx context.Context, doc *document.Document) error {
	pool, err := s.connect(ctx)
	if err != nil {
		return err
	}

	const q = `
		INSERT INTO documents
		    (id, filename, content, status, original_name, mime_type, size_bytes,
		     page_count, language, source, chunk_count, uploaded_at, processed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (id) DO UPDATE SET
		    filename      = EXCLUDED.filename,
		    content       = EXCLUDED.content,
		    status        = EXCLUDED.status,
		    original_name = EXCLUDED.original_name,
		    mime_type     = EXCLUDED.mime_type,
		    size_bytes    = EXCLUDED.size_bytes,
		    page_count    = EXCLUDED.page_count,
		    language      = EXCLUDED.language,
		    source        = EXCLUDED.source,
		    chunk_count   = EXCLUDED.chunk_count,
		    uploaded_at   = EXCLUDED.uploaded_at,
		    processed_at  = EXCLUDED.processed_at`

	uploadedAt := doc.UploadedAt
	if uploadedAt.IsZero() {
		uploadedAt = time.Now()
	}
	var processedAt *time.Time
	if !doc.ProcessedAt.IsZero() {
		processedAt = &doc.ProcessedAt
	}

	_, err = pool.Exec(ctx, q,
		doc.ID,
		doc.Filename,
		doc.Content,
		string(doc.Status),
		doc.Metadata.OriginalName,
		doc.Metadata.MimeType,
		doc.Metadata.Size,
		doc.Metadata.PageCount,
		doc.Metadata.Language,
		doc.Metadata.Source,
		doc.Metadata.ChunkCount,
		uploadedAt,
		processedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres docstore: put %q: %w", doc.ID, err)
	}
	return nil
}

// Get implements docstore.Store.
func (s *Store) Get(ctx context.Context, id string) (*document.Document, error) {
	pool, err := s.connect(ctx)
	if err != nil {
		return nil, err
	}

	const q = `
		SELECT id, filename, content, status, original_name, mime_type, size_bytes,
		       page_count, language, source, chunk_count, uploaded_at, processed_at
		FROM   documents
		WHERE  id = $1`

	doc, err := scanDocument(pool.QueryRow(ctx, q, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %q", docstore.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("postgres docstore: get %q: %w", id, err)
	}
	return doc, nil
}

// List implements docstore.Store. Content is left empty to keep listing cheap.
func (s *Store) List(ctx context.Context) ([]*document.Document, error) {
	pool, err := s.connect(ctx)
	if err != nil {
		return nil, err
	}

	const q = `
		SELECT id, filename, '' AS content, status, original_name, mime_type, size_bytes,
		       page_count, language, source, chunk_count, uploaded_at, processed_at
		FROM   documents
		ORDER  BY uploaded_at DESC`

	rows, err := pool.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("postgres docstore: list: %w", err)
	}

	docs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*document.Document, error) {
		return scanDocument(row)
	})
	if err != nil {
		return nil, fmt.Errorf("postgres docstore: scan rows: %w", err)
	}
	if docs == nil {
		docs = []*document.Document{}
	}
	return docs, nil
}

// UpdateStatus implements docstore.Store. Transitions into completed or
// failed also stamp processed_at.
func (s *Store) UpdateStatus(ctx context.Context, id string, status document.Status) error {
	pool, err := s.connect(ctx)
	if err != nil {
		return err
	}

	const q = `
		UPDATE documents
		SET    status = $2,
		       processed_at = CASE WHEN $2 IN ('completed', 'failed') THEN now() ELSE processed_at END
		WHERE  id = $1`

	tag, err := pool.Exec(ctx, q, id, string(status))
	if err != nil {
		return fmt.Errorf("postgres docstore: update status of %q: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %q", docstore.ErrNotFound, id)
	}
	return nil
}

// Delete implements docstore.Store. Deleting an unknown ID is a no-op.
func (s *Store) Delete(ctx context.Context, id string) error {
	pool, err := s.connect(ctx)
	if err != nil {
		return err
	}
	if _, err := pool.Exec(ctx, `DELETE FROM documents WHERE id = $1`, id); err != nil {
		return fmt.Errorf("postgres docstore: delete %q: %w", id, err)
	}
	return nil
}

// scanRow is the subset of pgx.Row and pgx.CollectableRow used by
// scanDocument.
type scanRow interface {
	Scan(dest ...any) error
}

// scanDocument scans one documents row in SELECT column order.
func scanDocument(row scanRow) (*document.Document, error) {
	var (
		doc         document.Document
		status      string
		processedAt *time.Time
	)
	if err := row.Scan(
		&doc.ID,
		&doc.Filename,
		&doc.Content,
		&status,
		&doc.Metadata.OriginalName,
		&doc.Metadata.MimeType,
		&doc.Metadata.Size,
		&doc.Metadata.PageCount,
		&doc.Metadata.Language,
		&doc.Metadata.Source,
		&doc.Metadata.ChunkCount,
		&doc.UploadedAt,
		&processedAt,
	); err != nil {
		return nil, err
	}
	doc.Status = document.Status(status)
	if processedAt != nil {
		doc.ProcessedAt = *processedAt
	}
	return &doc, nil
}
