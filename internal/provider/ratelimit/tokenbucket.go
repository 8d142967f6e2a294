package ratelimit

import (
    "context"

    "golang.org/x/time/rate"

    "quoteproxy/internal/pair"
    "quoteproxy/internal/provider"
)

// TokenBucketProvider wraps a Provider and gates calls using a token bucket.
type TokenBucketProvider struct {
    P  provider.Provider
    TB *rate.Limiter
}

// NewTokenBucketProvider allows tokensPerSecond calls with the given burst.
// The bucket starts full.
func NewTokenBucketProvider(p provider.Provider, tokensPerSecond float64, burst int) *TokenBucketProvider {
    if tokensPerSecond <= 0 { tokensPerSecond = 0.0000001 }
    if burst <= 0 { burst = 1 }
    return &TokenBucketProvider{P: p, TB: rate.NewLimiter(rate.Limit(tokensPerSecond), burst)}
}

func (t *TokenBucketProvider) Name() string { return t.P.Name() }

func (t *TokenBucketProvider) Fetch(ctx context.Context, pr pair.Pair) (provider.Quote, error) {
    if t.TB != nil {
        if err := t.TB.Wait(ctx); err != nil { return provider.Quote{}, limited(t.P.Name(), err) }
    }
    return t.P.Fetch(ctx, pr)
}
