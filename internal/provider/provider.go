package provider

import (
    "context"
    "encoding/json"
    "time"

    "quoteproxy/internal/pair"
)

// OHLC is the session range some providers report alongside the price.
type OHLC struct {
    Open  *float64 `json:"open"`
    High  *float64 `json:"high"`
    Low   *float64 `json:"low"`
    Close *float64 `json:"close"`
}

// Quote is the normalized shape returned by all providers.
// Price is nil only when the provider answered without a usable number;
// providers report that as an error, so a returned Quote always has one.
type Quote struct {
    Source        string          `json:"source"`
    Symbol        string          `json:"symbol"`
    Price         *float64        `json:"price"`
    Raw           json.RawMessage `json:"raw"`
    ReceivedAt    time.Time       `json:"received_at"`
    ProviderTime  time.Time       `json:"provider_time,omitzero"`
    OHLC          *OHLC           `json:"ohlc,omitempty"`
    Change        *float64        `json:"change,omitempty"`
    PercentChange *float64        `json:"percent_change,omitempty"`
    IsMarketOpen  *bool           `json:"is_market_open,omitempty"`
}

// Provider fetches one pair from one upstream source.
//
//go:generate mockgen -package=resolver_test -destination=../resolver/mock_provider_test.go -source=provider.go Provider
type Provider interface {
    Name() string
    Fetch(ctx context.Context, p pair.Pair) (Quote, error)
}

// Result is the outcome of calling one provider. Exactly one of Quote and
// Err is set.
type Result struct {
    Source string
    Quote  *Quote
    Err    error
}

func (r Result) OK() bool { return r.Err == nil && r.Quote != nil && r.Quote.Price != nil }

// Call runs p.Fetch and records the outcome instead of returning it.
func Call(ctx context.Context, p Provider, pr pair.Pair) Result {
    q, err := p.Fetch(ctx, pr)
    if err != nil {
        return Result{Source: p.Name(), Err: err}
    }
    if q.Source == "" { q.Source = p.Name() }
    if q.Price == nil {
        return Result{Source: p.Name(), Err: &Error{Provider: p.Name(), Kind: KindNoPrice, Message: "provider returned no price", Raw: q.Raw}}
    }
    return Result{Source: q.Source, Quote: &q}
}
