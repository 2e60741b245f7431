// Package mock provides a test double for the image.Provider interface.
package mock

import (
	"context"
	"sync"

	"github.com/saianfordx/vellum/pkg/provider/image"
)

// GenerateCall records a single invocation of Generate.
type GenerateCall struct {
	// Ctx is the context passed to Generate.
	Ctx context.Context
	// Req is the Request passed to Generate.
	Req image.Request
}

// Provider is a mock implementation of image.Provider.
// Zero values for response fields cause methods to return zero values and nil
// errors. Set GenerateErr to inject errors.
type Provider struct {
	mu sync.Mutex

	// GenerateResult is returned by Generate. May be nil (returns nil, nil).
	GenerateResult *image.Result

	// GenerateErr, if non-nil, is returned as the error from Generate.
	GenerateErr error

	// ModelIDValue is returned by ModelID.
	ModelIDValue string

	// GenerateCalls records every invocation of Generate in order.
	GenerateCalls []GenerateCall
}

// Generate records the call and returns GenerateResult, GenerateErr.
func (p *Provider) Generate(ctx context.Context, req image.Request) (*image.Result, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.GenerateCalls = append(p.GenerateCalls, GenerateCall{Ctx: ctx, Req: req})
	if p.GenerateErr != nil {
		return nil, p.GenerateErr
	}
	return p.GenerateResult, nil
}

// ModelID returns ModelIDValue.
func (p *Provider) ModelID() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ModelIDValue
}

// Reset clears all recorded calls. Thread-safe.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.GenerateCalls = nil
}

// Ensure Provider implements image.Provider at compile time.
var _ image.Provider = (*Provider)(nil)
