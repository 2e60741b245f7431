// Package openai provides an image generation provider backed by the OpenAI API.
package openai

import (
	"context"
	"fmt"
	"net/http"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"

	"github.com/saianfordx/vellum/pkg/provider/image"
)

// DefaultModel is the default OpenAI image model.
const DefaultModel = oai.ImageModelDallE3

// Ensure Provider implements the image.Provider interface.
var _ image.Provider = (*Provider)(nil)

// Provider implements image.Provider using the OpenAI Images API.
type Provider struct {
	client oai.Client
	model  oai.ImageModel
}

// config holds optional configuration for the provider.
type config struct {
	baseURL string
	timeout time.Duration
}

// Option is a functional option for Provider.
type Option func(*config)

// WithBaseURL overrides the default OpenAI API base URL.
func WithBaseURL(url string) Option {
	return func(c *config) {
		c.baseURL = url
	}
}

// WithTimeout sets a per-request HTTP timeout. Image generation routinely
// takes tens of seconds, so prefer generous values.
func WithTimeout(d time.Duration) Option {
	return func(c *config) {
		c.timeout = d
	}
}

// New constructs a new OpenAI image Provider.
// If model is empty, DefaultModel (dall-e-3) is used.
func New(apiKey string, model string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai image: apiKey must not be empty")
	}
	if model == "" {
		model = DefaultModel
	}

	cfg := &config{}
	for _, o := range opts {
		o(cfg)
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
	}
	if cfg.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.baseURL))
	}
	if cfg.timeout > 0 {
		reqOpts = append(reqOpts, option.WithHTTPClient(&http.Client{
			Timeout: cfg.timeout,
		}))
	}

	client := oai.NewClient(reqOpts...)
	return &Provider{client: client, model: oai.ImageModel(model)}, nil
}

// Generate implements image.Provider.
//
// The small formats (256x256, 512x512) exist only on dall-e-2, so when the
// configured model is dall-e-3 those sizes are silently routed to dall-e-2.
// Quality and style are dall-e-3 features and are dropped on the older model.
func (p *Provider) Generate(ctx context.Context, req image.Request) (*image.Result, error) {
	if req.Prompt == "" {
		return nil, fmt.Errorf("openai image: prompt must not be empty")
	}

	size, err := convertSize(req.Size)
	if err != nil {
		return nil, fmt.Errorf("openai image: %w", err)
	}
	quality, err := convertQuality(req.Quality)
	if err != nil {
		return nil, fmt.Errorf("openai image: %w", err)
	}
	style, err := convertStyle(req.Style)
	if err != nil {
		return nil, fmt.Errorf("openai image: %w", err)
	}

	model := p.model
	smallFormat := size == oai.ImageGenerateParamsSize256x256 || size == oai.ImageGenerateParamsSize512x512
	if smallFormat && model == oai.ImageModelDallE3 {
		model = oai.ImageModelDallE2
	}

	params := oai.ImageGenerateParams{
		Prompt:         req.Prompt,
		Model:          model,
		Size:           size,
		N:              param.NewOpt(int64(1)),
		ResponseFormat: oai.ImageGenerateParamsResponseFormatURL,
	}
	if model != oai.ImageModelDallE2 {
		params.Quality = quality
		params.Style = style
	}

	resp, err := p.client.Images.Generate(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("openai image: generate: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("openai image: empty response")
	}

	return &image.Result{
		URL:           resp.Data[0].URL,
		RevisedPrompt: resp.Data[0].RevisedPrompt,
	}, nil
}

// ModelID implements image.Provider.
func (p *Provider) ModelID() string {
	return string(p.model)
}

// convertSize maps a Request.Size value to the SDK constant.
func convertSize(size string) (oai.ImageGenerateParamsSize, error) {
	switch size {
	case "", image.Size1024:
		return oai.ImageGenerateParamsSize1024x1024, nil
	case image.Size256:
		return oai.ImageGenerateParamsSize256x256, nil
	case image.Size512:
		return oai.ImageGenerateParamsSize512x512, nil
	case image.SizePortrait:
		return oai.ImageGenerateParamsSize1024x1792, nil
	case image.SizeLandscape:
		return oai.ImageGenerateParamsSize1792x1024, nil
	default:
		return "", fmt.Errorf("unsupported size %q", size)
	}
}

// convertQuality maps a Request.Quality value to the SDK constant.
func convertQuality(quality string) (oai.ImageGenerateParamsQuality, error) {
	switch quality {
	case "", image.QualityStandard:
		return oai.ImageGenerateParamsQualityStandard, nil
	case image.QualityHD:
		return oai.ImageGenerateParamsQualityHD, nil
	default:
		return "", fmt.Errorf("unsupported quality %q", quality)
	}
}

// convertStyle maps a Request.Style value to the SDK constant.
func convertStyle(style string) (oai.ImageGenerateParamsStyle, error) {
	switch style {
	case "", image.StyleVivid:
		return oai.ImageGenerateParamsStyleVivid, nil
	case image.StyleNatural:
		return oai.ImageGenerateParamsStyleNatural, nil
	default:
		return "", fmt.Errorf("unsupported style %q", style)
	}
}
