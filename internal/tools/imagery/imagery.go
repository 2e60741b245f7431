// Package imagery implements the generate_image tool over an image provider.
//
// The tool validates prompt, size, quality, and style against the provider
// contract before any generation call, applies documented defaults, and
// returns the hosted image URL together with the prompt the backend actually
// rendered.
package imagery

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/saianfordx/vellum/internal/tools"
	"github.com/saianfordx/vellum/pkg/provider/image"
	"github.com/saianfordx/vellum/pkg/types"
)

// ToolGenerateImage is the registered tool name.
const ToolGenerateImage = "generate_image"

// Result is the wire shape of generate_image.
type Result struct {
	ImageURL       string `json:"imageUrl"`
	OriginalPrompt string `json:"originalPrompt"`
	RevisedPrompt  string `json:"revisedPrompt,omitempty"`
	Size           string `json:"size"`
	Quality        string `json:"quality"`
	Style          string `json:"style"`
}

// generateArgs is the JSON-decoded input for the tool.
type generateArgs struct {
	// Prompt describes the image to generate.
	Prompt string `json:"prompt"`

	// Size is the output resolution. Empty means 1024x1024.
	Size string `json:"size"`

	// Quality selects standard or hd rendering. Empty means standard.
	Quality string `json:"quality"`

	// Style selects vivid or natural rendering. Empty means vivid.
	Style string `json:"style"`
}

// Service holds the image provider behind the generate_image tool.
type Service struct {
	provider image.Provider
}

// New wires an imagery tool service over the given provider.
func New(provider image.Provider) (*Service, error) {
	if provider == nil {
		return nil, fmt.Errorf("imagery: provider must not be nil")
	}
	return &Service{provider: provider}, nil
}

// handler validates the request, applies defaults, and delegates to the
// provider. Validation failures never reach the backend.
func (s *Service) handler(ctx context.Context, args string) (string, error) {
	var a generateArgs
	if err := json.Unmarshal([]byte(args), &a); err != nil {
		return "", fmt.Errorf("%w: generate_image: parse arguments: %w", tools.ErrInvalidInput, err)
	}
	prompt := strings.TrimSpace(a.Prompt)
	if prompt == "" {
		return "", fmt.Errorf("%w: generate_image: prompt must not be empty", tools.ErrInvalidInput)
	}
	size, err := normalizeSize(a.Size)
	if err != nil {
		return "", fmt.Errorf("%w: generate_image: %w", tools.ErrInvalidInput, err)
	}
	quality, err := normalizeQuality(a.Quality)
	if err != nil {
		return "", fmt.Errorf("%w: generate_image: %w", tools.ErrInvalidInput, err)
	}
	style, err := normalizeStyle(a.Style)
	if err != nil {
		return "", fmt.Errorf("%w: generate_image: %w", tools.ErrInvalidInput, err)
	}

	generated, err := s.provider.Generate(ctx, image.Request{
		Prompt:  prompt,
		Size:    size,
		Quality: quality,
		Style:   style,
	})
	if err != nil {
		return "", fmt.Errorf("imagery: generate: %w", err)
	}
	if generated == nil || generated.URL == "" {
		return "", fmt.Errorf("imagery: provider returned no image")
	}

	res := Result{
		ImageURL:       generated.URL,
		OriginalPrompt: prompt,
		RevisedPrompt:  generated.RevisedPrompt,
		Size:           size,
		Quality:        quality,
		Style:          style,
	}
	out, err := json.Marshal(res)
	if err != nil {
		return "", fmt.Errorf("imagery: encode result: %w", err)
	}
	return string(out), nil
}

// Tools returns the imagery tool set ready for registration with the tool
// host.
func (s *Service) Tools() []tools.Tool {
	return []tools.Tool{
		{
			Definition: types.ToolDefinition{
				Name:        ToolGenerateImage,
				Description: "Generate an image from a text prompt and return its URL. Use only when the user explicitly asks for an image, drawing, or illustration.",
				Parameters: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"prompt": map[string]any{
							"type":        "string",
							"description": "Description of the image to generate.",
						},
						"size": map[string]any{
							"type":        "string",
							"enum":        []string{image.Size256, image.Size512, image.Size1024, image.SizePortrait, image.SizeLandscape},
							"description": "Output resolution. Defaults to 1024x1024.",
						},
						"quality": map[string]any{
							"type":        "string",
							"enum":        []string{image.QualityStandard, image.QualityHD},
							"description": "Rendering quality. Defaults to standard.",
						},
						"style": map[string]any{
							"type":        "string",
							"enum":        []string{image.StyleVivid, image.StyleNatural},
							"description": "Rendering style. Defaults to vivid.",
						},
					},
					"required": []string{"prompt"},
				},
			},
			Handler: s.handler,
		},
	}
}

func normalizeSize(s string) (string, error) {
	switch s {
	case "":
		return image.Size1024, nil
	case image.Size256, image.Size512, image.Size1024, image.SizePortrait, image.SizeLandscape:
		return s, nil
	}
	return "", fmt.Errorf("size %q is not supported (use 256x256, 512x512, 1024x1024, 1024x1792, or 1792x1024)", s)
}

func normalizeQuality(q string) (string, error) {
	switch q {
	case "":
		return image.QualityStandard, nil
	case image.QualityStandard, image.QualityHD:
		return q, nil
	}
	return "", fmt.Errorf("quality %q is not supported (use standard or hd)", q)
}

func normalizeStyle(s string) (string, error) {
	switch s {
	case "":
		return image.StyleVivid, nil
	case image.StyleVivid, image.StyleNatural:
		return s, nil
	}
	return "", fmt.Errorf("style %q is not supported (use vivid or natural)", s)
}
