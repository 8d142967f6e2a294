package twelvedata

import (
	"context"
	"time"

	"quoteproxy/internal/pair"
	"quoteproxy/internal/provider"
	"quoteproxy/internal/provider/extract"
)

// Provider adapts Client to provider.Provider.
type Provider struct {
	client *Client
	now    func() time.Time
}

func NewProvider(client *Client) *Provider {
	return &Provider{client: client, now: time.Now}
}

func (p *Provider) Name() string { return Name }

func (p *Provider) Fetch(ctx context.Context, pr pair.Pair) (provider.Quote, error) {
	raw, err := p.client.GetQuote(ctx, pr.String())
	if err != nil {
		return provider.Quote{}, err
	}

	price, _, ok := extract.First(raw, extract.PriceFields(pr.Quote))
	if !ok {
		return provider.Quote{}, &provider.Error{Provider: Name, Kind: provider.KindNoPrice, Message: "no finite price, close, bid or ask field", Raw: raw}
	}

	q := provider.Quote{
		Source:        Name,
		Symbol:        pr.String(),
		Price:         &price,
		Raw:           raw,
		ReceivedAt:    p.now().UTC(),
		Change:        extract.NumberAt(raw, "change"),
		PercentChange: extract.NumberAt(raw, "percent_change"),
		IsMarketOpen:  extract.BoolAt(raw, "is_market_open"),
	}
	if ts, ok := extract.Int64At(raw, "timestamp"); ok && ts > 0 {
		q.ProviderTime = time.Unix(ts, 0).UTC()
	}
	ohlc := provider.OHLC{
		Open:  extract.NumberAt(raw, "open"),
		High:  extract.NumberAt(raw, "high"),
		Low:   extract.NumberAt(raw, "low"),
		Close: extract.NumberAt(raw, "close"),
	}
	if ohlc.Open != nil || ohlc.High != nil || ohlc.Low != nil || ohlc.Close != nil {
		q.OHLC = &ohlc
	}
	return q, nil
}
