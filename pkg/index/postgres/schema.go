// Package postgres provides a PostgreSQL-backed implementation of
// [index.Index] using the pgvector extension.
//
// Vectors live in a single document_chunks table with an HNSW index for
// approximate nearest-neighbour search under cosine distance. The pgvector
// extension must be installable in the target database; [Migrate] runs
// CREATE EXTENSION IF NOT EXISTS automatically.
//
// The connection pool is established lazily on first use and cached. Use
// [Index.Reset] to force a reconnect after credential rotation or failover.
//
// Usage:
//
//	ix, err := postgres.New(dsn, 3072)
//	if err != nil { … }
//	defer ix.Close()
//
//	_, _ = ix.Upsert(ctx, records)
//	matches, _ := ix.Search(ctx, queryVec, index.Query{TopK: 5})
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ddl returns the document_chunks DDL. pgvector fixes the dimension in the
// column type, so it has to be known when the table is first created.
func ddl(dims int) string {
	return fmt.Sprintf(`
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS document_chunks (
    id             TEXT         PRIMARY KEY,
    namespace      TEXT         NOT NULL DEFAULT '',
    document_id    TEXT         NOT NULL,
    chunk_index    INTEGER      NOT NULL DEFAULT 0,
    content        TEXT         NOT NULL,
    embedding      vector(%d),
    start_char     INTEGER      NOT NULL DEFAULT 0,
    end_char       INTEGER      NOT NULL DEFAULT 0,
    page_number    INTEGER      NOT NULL DEFAULT 1,
    source         TEXT         NOT NULL DEFAULT '',
    document_title TEXT         NOT NULL DEFAULT '',
    created_at     TIMESTAMPTZ  NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_document_chunks_namespace
    ON document_chunks (namespace);

CREATE INDEX IF NOT EXISTS idx_document_chunks_document_id
    ON document_chunks (namespace, document_id);

CREATE INDEX IF NOT EXISTS idx_document_chunks_source
    ON document_chunks (namespace, source);

CREATE INDEX IF NOT EXISTS idx_document_chunks_embedding
    ON document_chunks USING hnsw (embedding vector_cosine_ops);
`, dims)
}

// Migrate creates or ensures the document_chunks table, its indexes, and the
// pgvector extension exist. It is idempotent and safe to call on every
// application start.
//
// dims must match the vector model configured for your deployment (e.g., 3072
// for OpenAI text-embedding-3-large). Changing it after the first migration
// requires a manual schema update.
func Migrate(ctx context.Context, pool *pgxpool.Pool, dims int) error {
	if _, err := pool.Exec(ctx, ddl(dims)); err != nil {
		return fmt.Errorf("postgres index: migrate: %w", err)
	}
	return nil
}
