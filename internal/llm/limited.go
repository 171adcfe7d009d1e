package llm

import (
	"context"

	"github.com/avolkov/quaero/internal/worker"
)

// Rate limiter keys for provider calls.
const (
	limitKeyChat  = "llm:chat"
	limitKeyEmbed = "llm:embed"
)

// RateLimited wraps a Provider with a token-bucket limiter so that
// concurrent queries cannot stampede the model endpoint. Waiting counts
// against the caller's context.
type RateLimited struct {
	inner   Provider
	limiter *worker.Limiter
}

// NewRateLimited wraps the provider with the given limiter.
func NewRateLimited(inner Provider, limiter *worker.Limiter) *RateLimited {
	return &RateLimited{inner: inner, limiter: limiter}
}

// Name returns the wrapped provider's name.
func (p *RateLimited) Name() string {
	return p.inner.Name()
}

// Chat waits for rate clearance, then delegates.
func (p *RateLimited) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	if err := p.limiter.Wait(ctx, limitKeyChat); err != nil {
		return nil, err
	}
	return p.inner.Chat(ctx, req)
}

// Embed waits for rate clearance, then delegates.
func (p *RateLimited) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := p.limiter.Wait(ctx, limitKeyEmbed); err != nil {
		return nil, err
	}
	return p.inner.Embed(ctx, text)
}

// IsAvailable delegates without rate limiting.
func (p *RateLimited) IsAvailable(ctx context.Context) bool {
	return p.inner.IsAvailable(ctx)
}
