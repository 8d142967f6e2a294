package exchangeratehost

import (
    "context"
    "fmt"
    "net/url"
    "time"

    "quoteproxy/internal/pair"
    "quoteproxy/internal/provider"
    "quoteproxy/internal/provider/extract"
)

// Config controls the exchangerate.host provider.
type Config struct {
    Name      string
    URL       string // latest-rates endpoint
    AccessKey string // optional; sent as access_key
}

// Provider fetches a single rate from exchangerate.host.
type Provider struct {
    cfg    Config
    client provider.HTTPClient
    now    func() time.Time
}

func New(cfg Config, hc provider.HTTPClient) *Provider {
    if cfg.Name == "" { cfg.Name = "exchangerate.host" }
    if cfg.URL == "" { cfg.URL = "https://api.exchangerate.host/latest" }
    return &Provider{cfg: cfg, client: hc, now: time.Now}
}

func (p *Provider) Name() string { return p.cfg.Name }

func (p *Provider) Fetch(ctx context.Context, pr pair.Pair) (provider.Quote, error) {
    u, err := url.Parse(p.cfg.URL)
    if err != nil {
        return provider.Quote{}, provider.ConfigError(p.cfg.Name, fmt.Sprintf("bad endpoint %q: %v", p.cfg.URL, err))
    }
    q := u.Query()
    q.Set("base", pr.Base)
    q.Set("symbols", pr.Quote)
    // the /live flavor of the API takes source/currencies instead
    q.Set("source", pr.Base)
    q.Set("currencies", pr.Quote)
    if p.cfg.AccessKey != "" { q.Set("access_key", p.cfg.AccessKey) }
    u.RawQuery = q.Encode()

    raw, err := provider.GetJSON(ctx, p.client, p.cfg.Name, u.String())
    if err != nil { return provider.Quote{}, err }

    // {"success":false,"error":{"code":101,"type":"missing_access_key","info":"..."}}
    if e := extract.StringAt(raw, "error"); extract.StringAt(raw, "success") == "false" || (e != "" && e != "false") {
        msg := extract.StringAt(raw, "error.info")
        if msg == "" { msg = extract.StringAt(raw, "error.type") }
        if msg == "" { msg = extract.StringAt(raw, "error") }
        if msg == "" { msg = "provider reported an error" }
        return provider.Quote{}, &provider.Error{Provider: p.cfg.Name, Kind: provider.KindPayload, StatusCode: 200, Message: msg, Raw: raw}
    }

    // rates.<QUOTE>, then the /live shape quotes.<BASEQUOTE>, then the generic fields
    base := extract.PriceFields(pr.Quote)
    fields := make([]extract.Field, 0, len(base)+1)
    fields = append(fields, base[0], extract.Field{Path: "quotes." + pr.Concat()})
    fields = append(fields, base[1:]...)
    price, _, ok := extract.First(raw, fields)
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
    if ts, ok := extract.Int64At(raw, "timestamp"); ok && ts > 0 {
        out.ProviderTime = parseEpochMaybeMillis(ts)
    }
    return out, nil
}

func parseEpochMaybeMillis(v int64) time.Time {
    if v > 1_000_000_000_000 { // ms
        return time.UnixMilli(v).UTC()
    }
    return time.Unix(v, 0).UTC()
}
