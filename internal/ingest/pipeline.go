package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/saianfordx/vellum/internal/embed"
	"github.com/saianfordx/vellum/pkg/docstore"
	"github.com/saianfordx/vellum/pkg/document"
	"github.com/saianfordx/vellum/pkg/index"
)

// Upload is the already-extracted plain text handed over by the upload
// boundary. File-format extraction happens before this point.
type Upload struct {
	Filename     string
	Content      string
	OriginalName string
	MimeType     string
	Size         int64
	Source       string
	Language     string
}

// Pipeline moves a document through normalize, chunk, embed, and index,
// recording its status in the docstore at each stage. A document reaches
// completed only after every chunk is written to the index; any failure on
// the way marks it failed instead.
type Pipeline struct {
	store   docstore.Store
	index   index.Index
	batcher *embed.Batcher
	chunker *Chunker
	log     *slog.Logger
}

// PipelineOption configures a Pipeline.
type PipelineOption func(*Pipeline)

// WithChunker replaces the default chunking configuration.
func WithChunker(c *Chunker) PipelineOption {
	return func(p *Pipeline) { p.chunker = c }
}

// WithLogger sets the pipeline logger.
func WithLogger(log *slog.Logger) PipelineOption {
	return func(p *Pipeline) { p.log = log }
}

// NewPipeline wires the pipeline. The chunker defaults to
// DefaultChunkerConfig.
func NewPipeline(store docstore.Store, idx index.Index, batcher *embed.Batcher, opts ...PipelineOption) (*Pipeline, error) {
	if store == nil {
		return nil, fmt.Errorf("ingest: docstore must not be nil")
	}
	if idx == nil {
		return nil, fmt.Errorf("ingest: index must not be nil")
	}
	if batcher == nil {
		return nil, fmt.Errorf("ingest: batcher must not be nil")
	}
	p := &Pipeline{store: store, index: idx, batcher: batcher}
	for _, opt := range opts {
		opt(p)
	}
	if p.chunker == nil {
		c, err := NewChunker(DefaultChunkerConfig())
		if err != nil {
			return nil, err
		}
		p.chunker = c
	}
	if p.log == nil {
		p.log = slog.Default()
	}
	return p, nil
}

// Ingest stores the upload as a new document and processes it end to end.
// The returned document reflects the final state; on error the stored
// document is marked failed, never completed.
func (p *Pipeline) Ingest(ctx context.Context, up Upload) (*document.Document, error) {
	if up.Filename == "" {
		return nil, fmt.Errorf("ingest: upload filename must not be empty")
	}

	content := Normalize(up.Content)
	source := up.Source
	if source == "" {
		source = up.Filename
	}
	size := up.Size
	if size == 0 {
		size = int64(len(up.Content))
	}

	doc := &document.Document{
		ID:       uuid.NewString(),
		Filename: up.Filename,
		Content:  content,
		Metadata: document.Metadata{
			OriginalName: up.OriginalName,
			MimeType:     up.MimeType,
			Size:         size,
			Language:     up.Language,
			Source:       source,
		},
		Status:     document.StatusUploading,
		UploadedAt: time.Now().UTC(),
	}
	if err := p.store.Put(ctx, doc); err != nil {
		return nil, fmt.Errorf("ingest: store document: %w", err)
	}

	if err := p.process(ctx, doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// Reindex re-chunks and re-embeds a stored document, replacing its index
// records. Useful after chunking configuration changes.
func (p *Pipeline) Reindex(ctx context.Context, documentID string) (*document.Document, error) {
	doc, err := p.store.Get(ctx, documentID)
	if err != nil {
		return nil, fmt.Errorf("ingest: load document: %w", err)
	}
	if err := p.index.DeleteByDocumentID(ctx, doc.ID); err != nil {
		return nil, fmt.Errorf("ingest: clear old vectors: %w", err)
	}
	if err := p.process(ctx, doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// Delete removes a document and cascades to all of its index records. The
// index is cleared first so a failure never leaves searchable chunks of a
// deleted document behind.
func (p *Pipeline) Delete(ctx context.Context, documentID string) error {
	if err := p.index.DeleteByDocumentID(ctx, documentID); err != nil {
		return fmt.Errorf("ingest: delete vectors: %w", err)
	}
	if err := p.store.Delete(ctx, documentID); err != nil {
		return fmt.Errorf("ingest: delete document: %w", err)
	}
	p.log.Info("document deleted", "document_id", documentID)
	return nil
}

// process runs chunk, embed, and upsert for a stored document and settles
// its final status.
func (p *Pipeline) process(ctx context.Context, doc *document.Document) error {
	start := time.Now()
	if err := p.store.UpdateStatus(ctx, doc.ID, document.StatusProcessing); err != nil {
		return fmt.Errorf("ingest: mark processing: %w", err)
	}
	doc.Status = document.StatusProcessing

	chunks := p.chunker.Chunk(doc)
	if len(chunks) > 0 {
		texts := make([]string, len(chunks))
		for i, ch := range chunks {
			texts[i] = ch.Content
		}
		vectors, err := p.batcher.EmbedMany(ctx, texts)
		if err != nil {
			p.fail(ctx, doc, err)
			return fmt.Errorf("ingest: embed chunks: %w", err)
		}

		records := make([]index.Record, len(chunks))
		for i := range chunks {
			chunks[i].Embedding = vectors[i]
			records[i] = index.Record{
				ID:     chunks[i].ID,
				Vector: chunks[i].Embedding,
				Metadata: index.Metadata{
					DocumentID:    chunks[i].DocumentID,
					ChunkIndex:    chunks[i].Index,
					StartChar:     chunks[i].Metadata.StartChar,
					EndChar:       chunks[i].Metadata.EndChar,
					PageNumber:    chunks[i].Metadata.PageNumber,
					Source:        chunks[i].Metadata.Source,
					DocumentTitle: chunks[i].Metadata.DocumentTitle,
					Text:          chunks[i].Content,
				},
			}
		}
		if _, err := p.index.Upsert(ctx, records); err != nil {
			p.fail(ctx, doc, err)
			return fmt.Errorf("ingest: index chunks: %w", err)
		}
	}

	now := time.Now().UTC()
	doc.Status = document.StatusCompleted
	doc.ProcessedAt = now
	doc.Metadata.ChunkCount = len(chunks)
	doc.Metadata.PageCount = pageCount(doc.Content)
	if err := p.store.Put(ctx, doc); err != nil {
		return fmt.Errorf("ingest: persist completed document: %w", err)
	}

	p.log.Info("document processed",
		"document_id", doc.ID,
		"filename", doc.Filename,
		"chunks", len(chunks),
		"duration", time.Since(start))
	return nil
}

// fail marks the document failed. The write runs on a detached context so
// a canceled ingest still records the failure.
func (p *Pipeline) fail(ctx context.Context, doc *document.Document, cause error) {
	doc.Status = document.StatusFailed
	if err := p.store.UpdateStatus(context.WithoutCancel(ctx), doc.ID, document.StatusFailed); err != nil {
		p.log.Warn("could not mark document failed",
			"document_id", doc.ID, "cause", cause, "error", err)
		return
	}
	p.log.Warn("document processing failed", "document_id", doc.ID, "error", cause)
}

func pageCount(content string) int {
	n := utf8.RuneCountInString(content)
	if n == 0 {
		return 0
	}
	return (n-1)/charsPerPage + 1
}
