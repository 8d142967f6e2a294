package app

import (
    "fmt"
    "log/slog"
    "net/http"

    "quoteproxy/internal/config"
    "quoteproxy/internal/httpx"
    "quoteproxy/internal/pair"
    "quoteproxy/internal/provider"
    "quoteproxy/internal/provider/cache"
    "quoteproxy/internal/provider/erapi"
    "quoteproxy/internal/provider/exchangeratehost"
    "quoteproxy/internal/provider/ratelimit"
    "quoteproxy/internal/provider/twelvedata"
    "quoteproxy/internal/resolver"
)

// BuildProviders assembles the provider chain in configured order, each
// wrapped with its outbound limiter.
func BuildProviders(cfg config.Config, hc *httpx.Client) ([]provider.Provider, error) {
    providers := make([]provider.Provider, 0, len(cfg.Resolver.Providers))
    for _, name := range cfg.Resolver.Providers {
        var p provider.Provider
        var limits config.Limits
        switch name {
        case config.ProviderTwelveData:
            client, err := twelvedata.NewClient(
                cfg.TwelveData.APIKey,
                twelvedata.WithBaseURL(cfg.TwelveData.Endpoint),
                twelvedata.WithHTTPClient(hc),
                twelvedata.WithHeader(http.Header{"User-Agent": []string{hc.UserAgent}}),
            )
            if err != nil {
                return nil, fmt.Errorf("twelvedata client: %w", err)
            }
            if !client.Configured() {
                slog.Warn("twelvedata is in the provider chain but TWELVEDATA_API_KEY is not set; requests will fail with 500")
            }
            p, limits = twelvedata.NewProvider(client), cfg.TwelveData.Limits
        case config.ProviderExchangeRateHost:
            p = exchangeratehost.New(exchangeratehost.Config{
                URL:       cfg.ExchangeRateHost.Endpoint,
                AccessKey: cfg.ExchangeRateHost.AccessKey,
            }, hc)
            limits = cfg.ExchangeRateHost.Limits
        case config.ProviderERAPI:
            p, limits = erapi.New(erapi.Config{URL: cfg.ERAPI.Endpoint}, hc), cfg.ERAPI.Limits
        default:
            return nil, fmt.Errorf("unknown provider %q", name)
        }
        providers = append(providers, ratelimit.Wrap(p, limits.MaxRequestsPerMinute, limits.Burst, limits.MinInterval()))
    }
    return providers, nil
}

// BuildResolver wires the cache, the provider chain and the pair allow-list.
func BuildResolver(cfg config.Config, hc *httpx.Client, logger *slog.Logger) (*resolver.Resolver, error) {
    providers, err := BuildProviders(cfg, hc)
    if err != nil {
        return nil, err
    }
    supported, err := pair.NewSet(cfg.Resolver.SupportedPairs)
    if err != nil {
        return nil, fmt.Errorf("supported pairs: %w", err)
    }
    var store *cache.Store
    if cfg.MinRefresh() > 0 {
        store = cache.NewStore(cfg.MinRefresh(), cfg.Resolver.CacheMaxItems)
    }
    return resolver.New(resolver.Config{
        Providers:              providers,
        Cache:                  store,
        SupportedPairs:         supported,
        TrustProviderTimestamp: cfg.Resolver.TrustProviderTimestamp,
        AttemptTimeout:         cfg.RequestTimeout(),
        Logger:                 logger,
    }), nil
}
