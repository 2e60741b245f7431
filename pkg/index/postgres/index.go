package postgres

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgv "github.com/pgvector/pgvector-go"
	pgxvec "github.com/pgvector/pgvector-go/pgx"

	"github.com/saianfordx/vellum/pkg/index"
)

// Ensure Index implements the index.Index interface at compile time.
var _ index.Index = (*Index)(nil)

// Index is the pgvector-backed vector index.
//
// The pool is created on the first operation and cached; a failed connect is
// reported as [index.ErrUnavailable] and retried on the next call. All methods
// are safe for concurrent use.
//
// Every operation is scoped to the configured namespace, so several logical
// indexes can share one document_chunks table.
type Index struct {
	dsn       string
	dims      int
	namespace string

	mu   sync.Mutex
	pool *pgxpool.Pool
}

// Option is a functional option for Index.
type Option func(*Index)

// WithNamespace scopes the Index to the given partition of the
// document_chunks table. The empty namespace (the default) is an ordinary
// partition of its own.
func WithNamespace(ns string) Option {
	return func(ix *Index) {
		ix.namespace = ns
	}
}

// New constructs an Index for the PostgreSQL database at dsn. No connection
// is made until the first operation.
//
// dims must match the output dimension of the embedding model that produces
// the stored vectors.
func New(dsn string, dims int, opts ...Option) (*Index, error) {
	if dsn == "" {
		return nil, fmt.Errorf("postgres index: dsn must not be empty")
	}
	if dims <= 0 {
		return nil, fmt.Errorf("postgres index: dimensions must be positive, got %d", dims)
	}
	ix := &Index{dsn: dsn, dims: dims}
	for _, o := range opts {
		o(ix)
	}
	return ix, nil
}

// connect returns the cached pool, establishing it on first call. The first
// successful connect also runs Migrate.
func (ix *Index) connect(ctx context.Context) (*pgxpool.Pool, error) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	if ix.pool != nil {
		return ix.pool, nil
	}

	cfg, err := pgxpool.ParseConfig(ix.dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres index: parse dsn: %w", err)
	}
	// Register pgvector types on every new connection so vector columns can
	// be scanned into and inserted from pgv.Vector values.
	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvec.RegisterTypes(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("%w: create pool: %w", index.ErrUnavailable, err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("%w: ping: %w", index.ErrUnavailable, err)
	}
	if err := Migrate(ctx, pool, ix.dims); err != nil {
		pool.Close()
		return nil, err
	}

	ix.pool = pool
	return pool, nil
}

// Reset discards the cached connection pool. The next operation reconnects
// from scratch. Use after credential rotation or a database failover.
func (ix *Index) Reset() {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	if ix.pool != nil {
		ix.pool.Close()
		ix.pool = nil
	}
}

// Close releases the connection pool, typically via defer at shutdown. The
// Index remains usable; a later operation reconnects.
func (ix *Index) Close() {
	ix.Reset()
}

// Upsert implements index.Index. All records are queued into a single
// pipelined batch; each row is inserted or fully replaced by ID.
func (ix *Index) Upsert(ctx context.Context, records []index.Record) ([]string, error) {
	if len(records) == 0 {
		return nil, nil
	}
	pool, err := ix.connect(ctx)
	if err != nil {
		return nil, err
	}

	const q = `
		INSERT INTO document_chunks
		    (id, namespace, document_id, chunk_index, content, embedding, start_char, end_char, page_number, source, document_title)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO UPDATE SET
		    namespace      = EXCLUDED.namespace,
		    document_id    = EXCLUDED.document_id,
		    chunk_index    = EXCLUDED.chunk_index,
		    content        = EXCLUDED.content,
		    embedding      = EXCLUDED.embedding,
		    start_char     = EXCLUDED.start_char,
		    end_char       = EXCLUDED.end_char,
		    page_number    = EXCLUDED.page_number,
		    source         = EXCLUDED.source,
		    document_title = EXCLUDED.document_title`

	batch := &pgx.Batch{}
	ids := make([]string, len(records))
	for i, r := range records {
		ids[i] = r.ID
		m := r.Metadata
		batch.Queue(q,
			r.ID,
			ix.namespace,
			m.DocumentID,
			m.ChunkIndex,
			m.Text,
			pgv.NewVector(r.Vector),
			m.StartChar,
			m.EndChar,
			m.PageNumber,
			m.Source,
			m.DocumentTitle,
		)
	}

	br := pool.SendBatch(ctx, batch)
	defer br.Close()
	for range records {
		if _, err := br.Exec(); err != nil {
			return nil, fmt.Errorf("%w: upsert batch: %w", index.ErrWriteFailed, err)
		}
	}
	return ids, nil
}

// Search implements index.Index. It finds the q.TopK records whose embeddings
// are closest (cosine distance) to vector, with the metadata filter applied
// in the WHERE clause before ranking.
func (ix *Index) Search(ctx context.Context, vector []float32, q index.Query) ([]index.Match, error) {
	pool, err := ix.connect(ctx)
	if err != nil {
		return nil, err
	}

	topK := q.TopK
	if topK < 1 {
		topK = 1
	}

	// arg registers a parameter value and hands back its placeholder, so the
	// filter translation can grow the argument list as it walks the clauses.
	args := []any{pgv.NewVector(vector), ix.namespace}
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	cond, err := filterSQL(q.Filter, arg)
	if err != nil {
		return nil, fmt.Errorf("postgres index: %w", err)
	}
	where := "WHERE namespace = $2"
	if cond != "" {
		where += " AND " + cond
	}

	sql := fmt.Sprintf(`
		SELECT id, document_id, chunk_index, content, embedding, start_char, end_char, page_number, source, document_title,
		       embedding <=> $1 AS distance
		FROM   document_chunks
		%s
		ORDER  BY distance
		LIMIT  %s`, where, arg(topK))

	rows, err := pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres index: search: %w", err)
	}

	matches, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (index.Match, error) {
		var (
			m        index.Match
			vec      pgv.Vector
			distance float64
		)
		if err := row.Scan(
			&m.ID,
			&m.Metadata.DocumentID,
			&m.Metadata.ChunkIndex,
			&m.Metadata.Text,
			&vec,
			&m.Metadata.StartChar,
			&m.Metadata.EndChar,
			&m.Metadata.PageNumber,
			&m.Metadata.Source,
			&m.Metadata.DocumentTitle,
			&distance,
		); err != nil {
			return index.Match{}, err
		}
		m.Vector = vec.Slice()
		// <=> is cosine distance; similarity is 1 - distance, clamped so
		// opposite-direction vectors score 0 rather than negative.
		m.Score = clamp01(1 - distance)
		return m, nil
	})
	if err != nil {
		return nil, fmt.Errorf("postgres index: scan rows: %w", err)
	}
	if matches == nil {
		matches = []index.Match{}
	}
	return matches, nil
}

// DeleteByDocumentID implements index.Index. Removing a document with no
// stored chunks is a no-op.
func (ix *Index) DeleteByDocumentID(ctx context.Context, documentID string) error {
	pool, err := ix.connect(ctx)
	if err != nil {
		return err
	}
	if _, err := pool.Exec(ctx, `DELETE FROM document_chunks WHERE namespace = $1 AND document_id = $2`, ix.namespace, documentID); err != nil {
		return fmt.Errorf("postgres index: delete document %q: %w", documentID, err)
	}
	return nil
}

// DeleteAll implements index.Index. Only the configured namespace is emptied.
func (ix *Index) DeleteAll(ctx context.Context) error {
	pool, err := ix.connect(ctx)
	if err != nil {
		return err
	}
	if _, err := pool.Exec(ctx, `DELETE FROM document_chunks WHERE namespace = $1`, ix.namespace); err != nil {
		return fmt.Errorf("postgres index: delete all: %w", err)
	}
	return nil
}

// Stats implements index.Index. A pgvector table has no hard capacity, so
// IndexFullness is always 0.
func (ix *Index) Stats(ctx context.Context) (*index.Stats, error) {
	pool, err := ix.connect(ctx)
	if err != nil {
		return nil, err
	}
	var count int
	if err := pool.QueryRow(ctx, `SELECT count(*) FROM document_chunks WHERE namespace = $1`, ix.namespace).Scan(&count); err != nil {
		return nil, fmt.Errorf("postgres index: stats: %w", err)
	}
	return &index.Stats{
		TotalVectorCount: count,
		IndexFullness:    0,
		Dimension:        ix.dims,
	}, nil
}

// filterColumns maps filter field names to table columns.
var filterColumns = map[string]string{
	"documentId":    "document_id",
	"chunkIndex":    "chunk_index",
	"pageNumber":    "page_number",
	"source":        "source",
	"documentTitle": "document_title",
}

// filterSQL translates a metadata filter into a SQL condition, registering
// parameter values through arg. An empty condition means the filter matches
// everything.
func filterSQL(f index.Filter, arg func(v any) string) (string, error) {
	if len(f) == 0 {
		return "", nil
	}
	clauses, err := f.Clauses()
	if err != nil {
		return "", err
	}

	var conds []string
	for _, c := range clauses {
		if c.IsOr {
			if len(c.Or) == 0 {
				// No alternative can match.
				conds = append(conds, "FALSE")
				continue
			}
			matchAll := false
			var parts []string
			for _, alt := range c.Or {
				sub, err := filterSQL(alt, arg)
				if err != nil {
					return "", err
				}
				if sub == "" {
					matchAll = true
					break
				}
				parts = append(parts, "("+sub+")")
			}
			if matchAll {
				// One alternative matches everything, so the group does.
				continue
			}
			conds = append(conds, "("+strings.Join(parts, " OR ")+")")
			continue
		}

		col, ok := filterColumns[c.Field]
		if !ok {
			return "", fmt.Errorf("unsupported filter field %q", c.Field)
		}
		conds = append(conds, col+" = "+arg(c.Value))
	}
	return strings.Join(conds, " AND "), nil
}

// clamp01 clamps v into the closed interval [0, 1].
func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
