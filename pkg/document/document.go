// Package document defines the core data model for the Vellum knowledge base:
// uploaded documents, the chunks they are split into, and the read-model
// returned by similarity search.
//
// Documents and chunks are plain data holders. Lifecycle transitions
// (uploading → processing → completed / failed) are driven by the ingestion
// pipeline; this package only defines the vocabulary.
package document

import "time"

// Status describes where a document is in its ingestion lifecycle.
type Status string

const (
	// StatusUploading means the raw bytes have been received but text
	// extraction has not finished.
	StatusUploading Status = "uploading"

	// StatusProcessing means the document is being chunked and embedded.
	StatusProcessing Status = "processing"

	// StatusCompleted means every chunk has been embedded and indexed.
	StatusCompleted Status = "completed"

	// StatusFailed means ingestion aborted; no guarantee is made about which
	// chunks (if any) reached the index.
	StatusFailed Status = "failed"
)

// IsValid reports whether s is a recognised lifecycle status.
func (s Status) IsValid() bool {
	switch s {
	case StatusUploading, StatusProcessing, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

// Document is a logical uploaded file tracked by the document store.
// Deleting a document cascades to all of its chunks in the vector index.
type Document struct {
	// ID is the unique document identifier, assigned at upload time.
	ID string

	// Filename is the stored name of the file.
	Filename string

	// Content is the full extracted plain text. May be empty once the
	// document has been chunked and the caller no longer needs the original.
	Content string

	// Metadata carries descriptive attributes captured at upload time.
	Metadata Metadata

	// Status is the current lifecycle state.
	Status Status

	// UploadedAt is when the raw upload was received.
	UploadedAt time.Time

	// ProcessedAt is when ingestion finished (zero while pending or failed).
	ProcessedAt time.Time
}

// Metadata holds descriptive attributes of a document.
type Metadata struct {
	// OriginalName is the filename as supplied by the uploader.
	OriginalName string

	// MimeType is the detected or declared content type of the upload.
	MimeType string

	// Size is the upload size in bytes.
	Size int64

	// PageCount is the page count for paginated formats. Zero when unknown.
	PageCount int

	// Language is an optional ISO language hint. Empty when unknown.
	Language string

	// Source is the logical source label used for retrieval filtering.
	// Defaults to OriginalName when the uploader does not set it.
	Source string

	// ChunkCount is the number of chunks produced by ingestion.
	// Zero until processing completes.
	ChunkCount int
}

// Chunk is a contiguous slice of a document's text prepared for embedding.
//
// StartChar and EndChar are offsets into the normalized document content,
// with EndChar inclusive, so StartChar <= EndChar always holds for non-empty
// chunks. Consecutive chunks overlap by design; their character ranges are
// not disjoint. Chunks are immutable once indexed and are removed only by
// deleting their parent document.
type Chunk struct {
	// ID is the stable chunk identifier, derived from the parent document:
	// "<documentID>-chunk-<index>".
	ID string

	// DocumentID links the chunk to its parent document.
	DocumentID string

	// Content is the trimmed chunk text.
	Content string

	// Index is the 0-based position of this chunk within the document.
	// Indexes are contiguous per document.
	Index int

	// Metadata carries the retrieval attributes persisted alongside the text.
	Metadata ChunkMetadata

	// Embedding is the chunk's vector. Nil until the embedding stage has run.
	Embedding []float32
}

// ChunkMetadata is the per-chunk attribute set persisted in the vector index
// and exposed to retrieval tools.
type ChunkMetadata struct {
	// StartChar is the offset of the chunk's first character in the document.
	StartChar int

	// EndChar is the offset of the chunk's last character (inclusive).
	EndChar int

	// PageNumber is an estimated 1-based page derived from StartChar.
	PageNumber int

	// Source is the parent document's source label.
	Source string

	// DocumentTitle is the parent document's display title.
	DocumentTitle string
}

// Retrieved is a single similarity-search hit. It is an ephemeral read-model:
// constructed per query, never persisted.
type Retrieved struct {
	// Content is the chunk text.
	Content string

	// Metadata is the chunk's stored attribute set.
	Metadata ChunkMetadata

	// Score is the cosine similarity to the query in [0, 1], higher is closer.
	Score float64

	// DocumentID is the parent document of the matched chunk.
	DocumentID string
}
