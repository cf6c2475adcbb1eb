// internal/adapters/execution/rate_limited.go
package execution

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"
)

// RateLimited throttles Submit with a token bucket. Submit blocks until a
// token is available or ctx ends.
type RateLimited struct {
	Backend
	limiter *rate.Limiter
}

func NewRateLimited(backend Backend, perSecond float64, burst int) *RateLimited {
	if burst <= 0 {
		burst = 1
	}
	limit := rate.Limit(perSecond)
	if perSecond <= 0 {
		limit = rate.Inf
	}
	return &RateLimited{Backend: backend, limiter: rate.NewLimiter(limit, burst)}
}

func (r *RateLimited) Submit(ctx context.Context, order Order) (Position, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return Position{}, fmt.Errorf("execution rate limit: %w", err)
	}
	return r.Backend.Submit(ctx, order)
}
