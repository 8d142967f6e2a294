package ratelimit

import (
    "context"
    "sync"
    "time"

    "quoteproxy/internal/pair"
    "quoteproxy/internal/provider"
)

// MinInterval wraps a provider and enforces a minimum time between calls.
// Concurrent calls will wait until the interval has elapsed since the last call,
// or return early if the context is canceled.
type MinInterval struct {
    P        provider.Provider
    Interval time.Duration
    mu       sync.Mutex
    last     time.Time
}

func (m *MinInterval) Name() string { return m.P.Name() }

func (m *MinInterval) Fetch(ctx context.Context, pr pair.Pair) (provider.Quote, error) {
    if m.Interval > 0 {
        m.mu.Lock()
        wait := time.Until(m.last.Add(m.Interval))
        m.mu.Unlock()
        if wait > 0 {
            t := time.NewTimer(wait)
            defer t.Stop()
            select {
            case <-ctx.Done():
                return provider.Quote{}, limited(m.P.Name(), ctx.Err())
            case <-t.C:
            }
        }
    }
    q, err := m.P.Fetch(ctx, pr)
    if m.Interval > 0 {
        m.mu.Lock()
        m.last = time.Now()
        m.mu.Unlock()
    }
    return q, err
}

// Wrap applies the limiter selected by the settings: a token bucket when
// rpm > 0, otherwise a minimum interval when minInterval > 0.
func Wrap(p provider.Provider, rpm, burst int, minInterval time.Duration) provider.Provider {
    if rpm > 0 {
        return NewTokenBucketProvider(p, float64(rpm)/60.0, burst)
    }
    if minInterval > 0 {
        return &MinInterval{P: p, Interval: minInterval}
    }
    return p
}

// limited reports a limiter wait that ended before the provider was called.
func limited(name string, err error) error {
    return &provider.Error{Provider: name, Kind: provider.KindTransport, Message: "rate limiter wait aborted", Err: err}
}
