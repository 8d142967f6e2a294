package erapi

import (
    "context"
    "fmt"
    "net/url"
    "strings"
    "time"

    "quoteproxy/internal/pair"
    "quoteproxy/internal/provider"
    "quoteproxy/internal/provider/extract"
)

// Config controls the open.er-api.com provider.
type Config struct {
    Name string
    URL  string // base, e.g. https://open.er-api.com/v6/latest
}

// Provider fetches the base currency's rate table and picks the quote leg.
type Provider struct {
    cfg    Config
    client provider.HTTPClient
    now    func() time.Time
}

func New(cfg Config, hc provider.HTTPClient) *Provider {
    if cfg.Name == "" { cfg.Name = "open.er-api.com" }
    if cfg.URL == "" { cfg.URL = "https://open.er-api.com/v6/latest" }
    return &Provider{cfg: cfg, client: hc, now: time.Now}
}

func (p *Provider) Name() string { return p.cfg.Name }

func (p *Provider) Fetch(ctx context.Context, pr pair.Pair) (provider.Quote, error) {
    u, err := url.Parse(strings.TrimRight(p.cfg.URL, "/") + "/" + url.PathEscape(pr.Base))
    if err != nil {
        return provider.Quote{}, provider.ConfigError(p.cfg.Name, fmt.Sprintf("bad endpoint %q: %v", p.cfg.URL, err))
    }

    raw, err := provider.GetJSON(ctx, p.client, p.cfg.Name, u.String())
    if err != nil { return provider.Quote{}, err }

    // {"result":"error","error-type":"unsupported-code"}
    if extract.StringAt(raw, "result") == "error" {
        msg := extract.StringAt(raw, "error-type")
        if msg == "" { msg = "provider reported an error" }
        return provider.Quote{}, &provider.Error{Provider: p.cfg.Name, Kind: provider.KindPayload, StatusCode: 200, Message: msg, Raw: raw}
    }

    price, _, ok := extract.First(raw, extract.PriceFields(pr.Quote))
    if !ok {
        return provider.Quote{}, &provider.Error{Provider: p.cfg.Name, Kind: provider.KindNoPrice, Message: fmt.Sprintf("no rate for %s", pr), Raw: raw}
    }

    out := provider.Quote{
        Source:     p.cfg.Name,
        Symbol:     pr.String(),
        Price:      &price,
        Raw:        raw,
        ReceivedAt: p.now().UTC(),
    }
    if ts, ok := extract.Int64At(raw, "time_last_update_unix"); ok && ts > 0 {
        out.ProviderTime = time.Unix(ts, 0).UTC()
    }
    return out, nil
}
