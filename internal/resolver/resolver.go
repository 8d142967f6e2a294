// Package resolver answers quote requests from a short-lived cache or, on a
// miss, from an ordered chain of providers.
package resolver

import (
    "context"
    "errors"
    "fmt"
    "log/slog"
    "strings"
    "time"

    "golang.org/x/sync/singleflight"

    "quoteproxy/internal/pair"
    "quoteproxy/internal/provider"
    "quoteproxy/internal/provider/cache"
    "quoteproxy/internal/telemetry"
)

// ErrNoProviders is returned when the chain is empty.
var ErrNoProviders = errors.New("no quote providers configured")

// Config wires a Resolver.
type Config struct {
    // Providers are tried in order; the first is the primary.
    Providers []provider.Provider
    // Cache may be nil to disable caching.
    Cache *cache.Store
    // Clock defaults to time.Now.
    Clock func() time.Time
    // SupportedPairs restricts requests when non-empty.
    SupportedPairs pair.Set
    // TrustProviderTimestamp reports the provider's own timestamp, when it
    // sends one, instead of the local receive time.
    TrustProviderTimestamp bool
    // AttemptTimeout bounds each provider call separately, so a stalled
    // primary cannot spend the fallback's time. Zero leaves only the HTTP
    // client's own timeout.
    AttemptTimeout time.Duration
    Logger         *slog.Logger
}

// Resolver implements CHECK_CACHE -> CALL_PRIMARY -> CALL_FALLBACK.
type Resolver struct {
    cfg Config
    sf  singleflight.Group
}

// Resolution is a successfully resolved quote.
type Resolution struct {
    Pair   pair.Pair
    Quote  provider.Quote
    Cached bool
    // FetchedAt is when the quote was received from its provider.
    FetchedAt time.Time
    // Timestamp is the time reported to callers: FetchedAt, or the provider's
    // own time when trusted and present.
    Timestamp time.Time
    // Attempts lists the provider calls made for this resolution; empty on a
    // cache hit.
    Attempts []provider.Result
}

// ExhaustedError reports that every provider in the chain failed.
type ExhaustedError struct {
    Pair    pair.Pair
    Results []provider.Result
}

func (e *ExhaustedError) Error() string {
    parts := make([]string, 0, len(e.Results))
    for _, r := range e.Results {
        parts = append(parts, r.Err.Error())
    }
    return fmt.Sprintf("all providers failed for %s: %s", e.Pair, strings.Join(parts, "; "))
}

// Last is the final attempt in the chain.
func (e *ExhaustedError) Last() provider.Result { return e.Results[len(e.Results)-1] }

// TransportOnly reports whether every attempt failed before any upstream
// response was received.
func (e *ExhaustedError) TransportOnly() bool {
    for _, r := range e.Results {
        if !provider.IsKind(r.Err, provider.KindTransport) { return false }
    }
    return len(e.Results) > 0
}

func New(cfg Config) *Resolver {
    if cfg.Clock == nil { cfg.Clock = time.Now }
    if cfg.Logger == nil { cfg.Logger = slog.Default() }
    return &Resolver{cfg: cfg}
}

// Providers returns the configured chain.
func (r *Resolver) Providers() []provider.Provider { return r.cfg.Providers }

// Resolve returns the quote for p.
// Errors: pair.ErrUnsupported, ErrNoProviders, a *provider.Error of
// KindConfig (chain aborted), *ExhaustedError, or ctx.Err() when the caller
// stops waiting first. An abandoned lookup still completes and fills the cache.
func (r *Resolver) Resolve(ctx context.Context, p pair.Pair) (Resolution, error) {
    if err := r.cfg.SupportedPairs.Check(p); err != nil {
        return Resolution{}, err
    }
    if len(r.cfg.Providers) == 0 {
        return Resolution{}, ErrNoProviders
    }

    key := p.String()
    if res, ok := r.fromCache(p, key); ok {
        return res, nil
    }

    // The flight outlives any single caller: it runs detached from ctx and
    // each caller waits on its own ctx.
    flightCtx := context.WithoutCancel(ctx)
    ch := r.sf.DoChan(key, func() (any, error) {
        // another flight may have filled the cache while we queued
        if res, ok := r.fromCache(p, key); ok {
            return res, nil
        }
        return r.callChain(flightCtx, p, key)
    })
    select {
    case <-ctx.Done():
        return Resolution{}, ctx.Err()
    case out := <-ch:
        if out.Shared {
            r.cfg.Logger.Debug("quote request coalesced", slog.String("pair", key))
        }
        if out.Err != nil {
            return Resolution{}, out.Err
        }
        return out.Val.(Resolution), nil
    }
}

func (r *Resolver) fromCache(p pair.Pair, key string) (Resolution, bool) {
    e, ok := r.cfg.Cache.Get(key, r.cfg.Clock())
    if !ok {
        return Resolution{}, false
    }
    telemetry.CacheHits.Add(1)
    return Resolution{
        Pair:      p,
        Quote:     e.Quote,
        Cached:    true,
        FetchedAt: e.FetchedAt,
        Timestamp: r.timestamp(e.Quote, e.FetchedAt),
    }, true
}

func (r *Resolver) callChain(ctx context.Context, p pair.Pair, key string) (Resolution, error) {
    telemetry.CacheMisses.Add(1)
    results := make([]provider.Result, 0, len(r.cfg.Providers))
    for i, prov := range r.cfg.Providers {
        if i > 0 {
            telemetry.FallbackHops.Add(1)
        }
        res := r.attempt(ctx, prov, p)
        results = append(results, res)
        if res.OK() {
            now := r.cfg.Clock()
            e := r.cfg.Cache.Set(key, *res.Quote, now)
            r.cfg.Logger.Info("quote resolved",
                slog.String("pair", key),
                slog.String("source", res.Source),
                slog.Float64("price", *res.Quote.Price),
                slog.Int("attempt", i+1),
            )
            return Resolution{
                Pair:      p,
                Quote:     *res.Quote,
                FetchedAt: e.FetchedAt,
                Timestamp: r.timestamp(*res.Quote, e.FetchedAt),
                Attempts:  results,
            }, nil
        }

        telemetry.ProviderFailures.Add(res.Source, 1)
        r.cfg.Logger.Warn("quote provider failed",
            slog.String("pair", key),
            slog.String("provider", res.Source),
            slog.Any("error", res.Err),
        )
        if provider.IsKind(res.Err, provider.KindConfig) {
            return Resolution{}, res.Err
        }
    }
    return Resolution{}, &ExhaustedError{Pair: p, Results: results}
}

func (r *Resolver) attempt(ctx context.Context, prov provider.Provider, p pair.Pair) provider.Result {
    if r.cfg.AttemptTimeout > 0 {
        var cancel context.CancelFunc
        ctx, cancel = context.WithTimeout(ctx, r.cfg.AttemptTimeout)
        defer cancel()
    }
    return provider.Call(ctx, prov, p)
}

func (r *Resolver) timestamp(q provider.Quote, fetchedAt time.Time) time.Time {
    if r.cfg.TrustProviderTimestamp && !q.ProviderTime.IsZero() {
        return q.ProviderTime
    }
    return fetchedAt
}
