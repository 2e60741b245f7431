// Package postgres provides a PostgreSQL-backed implementation of
// [docstore.Store].
//
// Like the vector index, the connection pool is established lazily on first
// use and cached; [Store.Reset] forces a reconnect. Document content is kept
// in a plain TEXT column, which is comfortable for the corpus sizes this
// module targets (normalized text, not raw binaries).
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

const ddlDocuments = `
CREATE TABLE IF NOT EXISTS documents (
    id            TEXT         PRIMARY KEY,
    filename      TEXT         NOT NULL,
    content       TEXT         NOT NULL DEFAULT '',
    status        TEXT         NOT NULL,
    original_name TEXT         NOT NULL DEFAULT '',
    mime_type     TEXT         NOT NULL DEFAULT '',
    size_bytes    BIGINT       NOT NULL DEFAULT 0,
    page_count    INTEGER      NOT NULL DEFAULT 0,
    language      TEXT         NOT NULL DEFAULT '',
    source        TEXT         NOT NULL DEFAULT '',
    chunk_count   INTEGER      NOT NULL DEFAULT 0,
    uploaded_at   TIMESTAMPTZ  NOT NULL DEFAULT now(),
    processed_at  TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_documents_status
    ON documents (status);

CREATE INDEX IF NOT EXISTS idx_documents_uploaded_at
    ON documents (uploaded_at);
`

// Migrate creates or ensures the documents table and its indexes exist. It is
// idempotent and safe to call on every application start.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, ddlDocuments); err != nil {
		return fmt.Errorf("postgres docstore migrate: %w", err)
	}
	return nil
}
