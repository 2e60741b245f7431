// Package embeddings abstracts text-embedding backends behind a single
// Provider interface.
//
// Vellum embeds every chunk at ingestion time and every question at query
// time; similarity between the resulting vectors is what retrieval ranks by.
// Whether the vectors come from OpenAI, a local Ollama model or the
// deterministic simulator is invisible above this interface.
package embeddings

import "context"

// Provider turns text into dense float32 vectors.
//
// Every vector from one Provider instance has the same length, reported by
// Dimensions. Vectors from different instances live in different spaces and
// must not be compared unless the caller knows both use the same model.
//
// Implementations are safe for concurrent use.
type Provider interface {
	// Embed returns the vector for a single text. The text reaches the
	// backend verbatim; any model-specific prefixing ("query: " and friends)
	// is the caller's job.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch embeds texts in one backend call. The result is parallel to
	// texts. There are no partial results: any failure returns a nil slice
	// and the error.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions is the length of every vector this instance produces,
	// constant for its lifetime.
	Dimensions() int

	// ModelID names the underlying model, for logs and for pinning one
	// model per index.
	ModelID() string
}
