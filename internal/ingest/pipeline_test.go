package ingest_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/saianfordx/vellum/internal/embed"
	"github.com/saianfordx/vellum/internal/ingest"
	"github.com/saianfordx/vellum/pkg/docstore"
	docmem "github.com/saianfordx/vellum/pkg/docstore/memory"
	"github.com/saianfordx/vellum/pkg/document"
	"github.com/saianfordx/vellum/pkg/index"
	idxmem "github.com/saianfordx/vellum/pkg/index/memory"
	idxmock "github.com/saianfordx/vellum/pkg/index/mock"
	embmock "github.com/saianfordx/vellum/pkg/provider/embeddings/mock"
	"github.com/saianfordx/vellum/pkg/provider/embeddings/simulated"
)

const testDims = 8

func newTestPipeline(t *testing.T) (*ingest.Pipeline, *docmem.Store, *idxmem.Index) {
	t.Helper()
	store := docmem.New()
	idx, err := idxmem.New(testDims)
	if err != nil {
		t.Fatalf("memory.New() error = %v", err)
	}
	batcher, err := embed.New(simulated.New(testDims), embed.WithBatchDelay(0))
	if err != nil {
		t.Fatalf("embed.New() error = %v", err)
	}
	p, err := ingest.NewPipeline(store, idx, batcher)
	if err != nil {
		t.Fatalf("NewPipeline() error = %v", err)
	}
	return p, store, idx
}

// handbookContent builds a few thousand characters of paragraph-structured
// text so the default chunker produces several chunks.
func handbookContent() string {
	var b strings.Builder
	for i := 0; i < 80; i++ {
		fmt.Fprintf(&b, "Policy clause %d explains expectations for daily work. ", i)
		if i == 40 {
			b.WriteString("The company gym benefit covers a full membership at partner facilities. ")
		}
		if i%6 == 0 {
			b.WriteString("\n\n")
		}
	}
	return b.String()
}

// TestPipeline_Ingest runs an upload end to end and checks the stored
// document, the chunk count, and that the chunks are searchable.
func TestPipeline_Ingest(t *testing.T) {
	ctx := context.Background()
	p, store, idx := newTestPipeline(t)

	doc, err := p.Ingest(ctx, ingest.Upload{
		Filename:     "handbook.txt",
		OriginalName: "Employee Handbook",
		MimeType:     "text/plain",
		Content:      handbookContent(),
	})
	if err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}
	if doc.Status != document.StatusCompleted {
		t.Errorf("Status = %q, want %q", doc.Status, document.StatusCompleted)
	}
	if doc.ProcessedAt.IsZero() {
		t.Error("ProcessedAt not set on completed document")
	}
	if doc.Metadata.ChunkCount < 2 {
		t.Errorf("ChunkCount = %d, want several chunks for a long document", doc.Metadata.ChunkCount)
	}
	if doc.Metadata.PageCount < 1 {
		t.Errorf("PageCount = %d, want at least 1", doc.Metadata.PageCount)
	}

	stored, err := store.Get(ctx, doc.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if stored.Status != document.StatusCompleted {
		t.Errorf("stored Status = %q, want %q", stored.Status, document.StatusCompleted)
	}
	if stored.Metadata.ChunkCount != doc.Metadata.ChunkCount {
		t.Errorf("stored ChunkCount = %d, want %d", stored.Metadata.ChunkCount, doc.Metadata.ChunkCount)
	}

	stats, err := idx.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats() error = %v", err)
	}
	if stats.TotalVectorCount != doc.Metadata.ChunkCount {
		t.Errorf("index holds %d vectors, want %d", stats.TotalVectorCount, doc.Metadata.ChunkCount)
	}

	query, err := simulated.New(testDims).Embed(ctx, "gym membership benefits")
	if err != nil {
		t.Fatalf("Embed() error = %v", err)
	}
	matches, err := idx.Search(ctx, query, index.Query{TopK: 5})
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(matches) == 0 {
		t.Fatal("Search() returned no matches for ingested content")
	}
	for _, m := range matches {
		if m.Metadata.DocumentID != doc.ID {
			t.Errorf("match DocumentID = %q, want %q", m.Metadata.DocumentID, doc.ID)
		}
		if !strings.HasPrefix(m.ID, doc.ID+"-chunk-") {
			t.Errorf("match ID = %q, want %q prefix", m.ID, doc.ID+"-chunk-")
		}
	}
}

// TestPipeline_Ingest_RequiresFilename rejects uploads without a filename
// before touching any backend.
func TestPipeline_Ingest_RequiresFilename(t *testing.T) {
	p, store, _ := newTestPipeline(t)

	if _, err := p.Ingest(context.Background(), ingest.Upload{Content: "text"}); err == nil {
		t.Fatal("Ingest() accepted an upload without a filename")
	}
	docs, err := store.List(context.Background())
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(docs) != 0 {
		t.Errorf("store holds %d documents, want 0", len(docs))
	}
}

// TestPipeline_Ingest_EmptyContent completes with zero chunks rather than
// failing when the upload normalizes to nothing.
func TestPipeline_Ingest_EmptyContent(t *testing.T) {
	ctx := context.Background()
	p, _, idx := newTestPipeline(t)

	doc, err := p.Ingest(ctx, ingest.Upload{Filename: "empty.txt", Content: "  \n\n\t  "})
	if err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}
	if doc.Status != document.StatusCompleted {
		t.Errorf("Status = %q, want %q", doc.Status, document.StatusCompleted)
	}
	if doc.Metadata.ChunkCount != 0 {
		t.Errorf("ChunkCount = %d, want 0", doc.Metadata.ChunkCount)
	}
	stats, err := idx.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats() error = %v", err)
	}
	if stats.TotalVectorCount != 0 {
		t.Errorf("index holds %d vectors, want 0", stats.TotalVectorCount)
	}
}

// TestPipeline_Ingest_NormalizesContent stores canonicalized text, not the
// raw upload bytes.
func TestPipeline_Ingest_NormalizesContent(t *testing.T) {
	ctx := context.Background()
	p, store, _ := newTestPipeline(t)

	doc, err := p.Ingest(ctx, ingest.Upload{
		Filename: "messy.txt",
		Content:  "line one\r\n\r\n\r\n\r\nline   two",
	})
	if err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}
	stored, err := store.Get(ctx, doc.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if want := "line one\n\nline two"; stored.Content != want {
		t.Errorf("stored Content = %q, want %q", stored.Content, want)
	}
}

// TestPipeline_Ingest_EmbedFailure marks the document failed and leaves the
// index untouched when embedding errors out.
func TestPipeline_Ingest_EmbedFailure(t *testing.T) {
	ctx := context.Background()
	store := docmem.New()
	idx, err := idxmem.New(testDims)
	if err != nil {
		t.Fatalf("memory.New() error = %v", err)
	}
	provider := &embmock.Provider{DimensionsValue: testDims, EmbedBatchErr: errors.New("quota exhausted")}
	batcher, err := embed.New(provider, embed.WithBatchDelay(0))
	if err != nil {
		t.Fatalf("embed.New() error = %v", err)
	}
	p, err := ingest.NewPipeline(store, idx, batcher)
	if err != nil {
		t.Fatalf("NewPipeline() error = %v", err)
	}

	_, err = p.Ingest(ctx, ingest.Upload{Filename: "doc.txt", Content: "some real content"})
	if err == nil {
		t.Fatal("Ingest() succeeded despite embedding failure")
	}

	docs, err := store.List(ctx)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(docs) != 1 {
		t.Fatalf("store holds %d documents, want 1", len(docs))
	}
	if docs[0].Status != document.StatusFailed {
		t.Errorf("Status = %q, want %q", docs[0].Status, document.StatusFailed)
	}

	stats, err := idx.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats() error = %v", err)
	}
	if stats.TotalVectorCount != 0 {
		t.Errorf("index holds %d vectors, want 0", stats.TotalVectorCount)
	}
}

// TestPipeline_Ingest_IndexFailure marks the document failed, never
// completed, when the index write fails.
func TestPipeline_Ingest_IndexFailure(t *testing.T) {
	ctx := context.Background()
	store := docmem.New()
	idx := &idxmock.Index{UpsertErr: index.ErrWriteFailed}
	batcher, err := embed.New(simulated.New(testDims), embed.WithBatchDelay(0))
	if err != nil {
		t.Fatalf("embed.New() error = %v", err)
	}
	p, err := ingest.NewPipeline(store, idx, batcher)
	if err != nil {
		t.Fatalf("NewPipeline() error = %v", err)
	}

	_, err = p.Ingest(ctx, ingest.Upload{Filename: "doc.txt", Content: "some real content"})
	if !errors.Is(err, index.ErrWriteFailed) {
		t.Fatalf("Ingest() error = %v, want ErrWriteFailed", err)
	}

	docs, err := store.List(ctx)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(docs) != 1 || docs[0].Status != document.StatusFailed {
		t.Errorf("document not marked failed after index write error")
	}
}

// TestPipeline_Delete cascades from the document to all of its vectors, and
// deleting an unknown id stays a no-op.
func TestPipeline_Delete(t *testing.T) {
	ctx := context.Background()
	p, store, idx := newTestPipeline(t)

	doc, err := p.Ingest(ctx, ingest.Upload{Filename: "handbook.txt", Content: handbookContent()})
	if err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}

	if err := p.Delete(ctx, doc.ID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}

	stats, err := idx.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats() error = %v", err)
	}
	if stats.TotalVectorCount != 0 {
		t.Errorf("index holds %d vectors after delete, want 0", stats.TotalVectorCount)
	}

	query, err := simulated.New(testDims).Embed(ctx, "gym membership benefits")
	if err != nil {
		t.Fatalf("Embed() error = %v", err)
	}
	matches, err := idx.Search(ctx, query, index.Query{TopK: 5})
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(matches) != 0 {
		t.Errorf("Search() returned %d matches after delete, want 0", len(matches))
	}

	if _, err := store.Get(ctx, doc.ID); !errors.Is(err, docstore.ErrNotFound) {
		t.Errorf("Get() error = %v, want ErrNotFound", err)
	}

	if err := p.Delete(ctx, doc.ID); err != nil {
		t.Errorf("second Delete() error = %v, want idempotent no-op", err)
	}
}

// TestPipeline_Reindex rebuilds a document's vectors in place.
func TestPipeline_Reindex(t *testing.T) {
	ctx := context.Background()
	p, _, idx := newTestPipeline(t)

	doc, err := p.Ingest(ctx, ingest.Upload{Filename: "handbook.txt", Content: handbookContent()})
	if err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}
	before, err := idx.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats() error = %v", err)
	}

	redone, err := p.Reindex(ctx, doc.ID)
	if err != nil {
		t.Fatalf("Reindex() error = %v", err)
	}
	if redone.Status != document.StatusCompleted {
		t.Errorf("Status = %q, want %q", redone.Status, document.StatusCompleted)
	}

	after, err := idx.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats() error = %v", err)
	}
	if after.TotalVectorCount != before.TotalVectorCount {
		t.Errorf("vector count changed across reindex: %d -> %d", before.TotalVectorCount, after.TotalVectorCount)
	}

	if _, err := p.Reindex(ctx, "missing-id"); !errors.Is(err, docstore.ErrNotFound) {
		t.Errorf("Reindex(missing) error = %v, want ErrNotFound", err)
	}
}
