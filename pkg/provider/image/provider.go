// Package image defines the Provider interface for image generation backends.
//
// An image provider wraps a text-to-image service (e.g., OpenAI DALL-E). The
// agent exposes it through the generate_image tool; the returned URL is carried
// in the tool result and surfaced alongside the final answer.
//
// Implementations must be safe for concurrent use.
package image

import "context"

// Supported size values for Request.Size.
const (
	Size256  = "256x256"
	Size512  = "512x512"
	Size1024 = "1024x1024"
	// SizePortrait and SizeLandscape are the tall and wide large formats.
	SizePortrait  = "1024x1792"
	SizeLandscape = "1792x1024"
)

// Supported quality values for Request.Quality.
const (
	QualityStandard = "standard"
	QualityHD       = "hd"
)

// Supported style values for Request.Style.
const (
	StyleVivid   = "vivid"
	StyleNatural = "natural"
)

// Request describes a single image generation.
type Request struct {
	// Prompt is the text description of the desired image. Must not be empty.
	Prompt string

	// Size is one of the Size* constants. Empty means Size1024.
	Size string

	// Quality is one of the Quality* constants. Empty means QualityStandard.
	Quality string

	// Style is one of the Style* constants. Empty means StyleVivid.
	Style string
}

// Result is the outcome of a successful generation.
type Result struct {
	// URL points at the generated image. Hosted providers typically expire
	// these links after a retention window, so callers should download or
	// re-host promptly if persistence matters.
	URL string

	// RevisedPrompt is the provider's rewritten version of the prompt, when
	// the backend performs prompt expansion. Empty otherwise.
	RevisedPrompt string
}

// Provider is the abstraction over any image generation backend.
//
// Implementations must be safe for concurrent use.
type Provider interface {
	// Generate renders a single image for the given request. It blocks until
	// the image is available or ctx is cancelled.
	Generate(ctx context.Context, req Request) (*Result, error)

	// ModelID returns the provider-specific model identifier used for
	// generation (e.g., "dall-e-3"). Useful for logging.
	ModelID() string
}
