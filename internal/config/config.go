package config

import (
    "errors"
    "fmt"
    "os"
    "strings"
    "time"

    "github.com/mitchellh/mapstructure"
    "github.com/spf13/viper"

    "quoteproxy/internal/pair"
)

// Provider names accepted in resolver.providers.
const (
    ProviderTwelveData       = "twelvedata"
    ProviderExchangeRateHost = "exchangeratehost"
    ProviderERAPI            = "erapi"
)

type Server struct {
    Port              string `mapstructure:"port"`
    RequestTimeoutSec int    `mapstructure:"request_timeout_sec"`
}

type Resolver struct {
    // Providers is the chain in preference order; the first is the primary.
    Providers              []string `mapstructure:"providers"`
    MinRefreshMs           int      `mapstructure:"min_refresh_ms"`
    SupportedPairs         []string `mapstructure:"supported_pairs"`
    TrustProviderTimestamp bool     `mapstructure:"trust_provider_timestamp"`
    CacheMaxItems          int      `mapstructure:"cache_max_items"`
}

// Limits are the outbound rate limits applied to one provider.
type Limits struct {
    MaxRequestsPerMinute  int `mapstructure:"max_requests_per_minute"`
    MinRequestIntervalSec int `mapstructure:"min_request_interval_sec"`
    Burst                 int `mapstructure:"burst"`
}

type TwelveData struct {
    APIKey   string `mapstructure:"api_key"`
    Endpoint string `mapstructure:"endpoint"`
    Limits   `mapstructure:",squash"`
}

type ExchangeRateHost struct {
    AccessKey string `mapstructure:"access_key"`
    Endpoint  string `mapstructure:"endpoint"`
    Limits    `mapstructure:",squash"`
}

type ERAPI struct {
    Endpoint string `mapstructure:"endpoint"`
    Limits   `mapstructure:",squash"`
}

type Config struct {
    Server           Server           `mapstructure:"server"`
    Resolver         Resolver         `mapstructure:"resolver"`
    TwelveData       TwelveData       `mapstructure:"twelvedata"`
    ExchangeRateHost ExchangeRateHost `mapstructure:"exchangeratehost"`
    ERAPI            ERAPI            `mapstructure:"erapi"`
}

// RequestTimeout is Server.RequestTimeoutSec as a duration.
func (c Config) RequestTimeout() time.Duration {
    return time.Duration(c.Server.RequestTimeoutSec) * time.Second
}

// ChainTimeout is the longest a cache miss can take: every provider in the
// chain may use its full per-attempt timeout.
func (c Config) ChainTimeout() time.Duration {
    return time.Duration(len(c.Resolver.Providers)) * c.RequestTimeout()
}

// MinRefresh is the cache freshness window.
func (c Config) MinRefresh() time.Duration {
    return time.Duration(c.Resolver.MinRefreshMs) * time.Millisecond
}

func (l Limits) MinInterval() time.Duration {
    return time.Duration(l.MinRequestIntervalSec) * time.Second
}

func setDefaults(v *viper.Viper) {
    v.SetDefault("server.port", "8080")
    v.SetDefault("server.request_timeout_sec", 10)

    v.SetDefault("resolver.providers", []string{ProviderExchangeRateHost, ProviderERAPI})
    v.SetDefault("resolver.min_refresh_ms", 5000)
    v.SetDefault("resolver.supported_pairs", []string{pair.Default})
    v.SetDefault("resolver.trust_provider_timestamp", false)
    v.SetDefault("resolver.cache_max_items", 1000)

    v.SetDefault("twelvedata.api_key", "")
    v.SetDefault("twelvedata.endpoint", "https://api.twelvedata.com")
    v.SetDefault("exchangeratehost.access_key", "")
    v.SetDefault("exchangeratehost.endpoint", "https://api.exchangerate.host/latest")
    v.SetDefault("erapi.endpoint", "https://open.er-api.com/v6/latest")
    for _, p := range []string{ProviderTwelveData, ProviderExchangeRateHost, ProviderERAPI} {
        v.SetDefault(p+".max_requests_per_minute", 0)
        v.SetDefault(p+".min_request_interval_sec", 0)
        v.SetDefault(p+".burst", 1)
    }
}

// envAliases are the short variable names kept from the serverless
// deployment; QUOTEPROXY_<SECTION>_<KEY> works for every key as well.
var envAliases = map[string][]string{
    "server.port":                       {"PORT"},
    "server.request_timeout_sec":        {"REQUEST_TIMEOUT_SEC"},
    "twelvedata.api_key":                {"TWELVEDATA_API_KEY"},
    "exchangeratehost.access_key":       {"EXCHANGERATE_HOST_ACCESS_KEY"},
    "resolver.providers":                {"QUOTE_PROVIDERS"},
    "resolver.min_refresh_ms":           {"QUOTE_MIN_REFRESH_MS"},
    "resolver.supported_pairs":          {"QUOTE_SUPPORTED_PAIRS"},
    "resolver.trust_provider_timestamp": {"QUOTE_TRUST_PROVIDER_TIMESTAMP"},
}

// Load reads config from path (JSON, YAML or TOML by extension). If path is
// empty, ./config.json is used when present; a missing file means defaults.
// Environment variables override file values.
func Load(path string) (Config, error) {
    v := viper.New()
    setDefaults(v)

    if path == "" {
        if _, err := os.Stat("config.json"); err == nil {
            path = "config.json"
        }
    }
    if path != "" {
        v.SetConfigFile(path)
        if err := v.ReadInConfig(); err != nil && !errors.Is(err, os.ErrNotExist) {
            return Config{}, fmt.Errorf("read config: %w", err)
        }
    }

    v.SetEnvPrefix("QUOTEPROXY")
    v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
    v.AutomaticEnv()
    for key, names := range envAliases {
        prefixed := "QUOTEPROXY_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
        if err := v.BindEnv(append([]string{key, prefixed}, names...)...); err != nil {
            return Config{}, fmt.Errorf("bind env %s: %w", key, err)
        }
    }

    var cfg Config
    err := v.Unmarshal(&cfg, viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
        mapstructure.StringToTimeDurationHookFunc(),
        mapstructure.StringToSliceHookFunc(","),
    )))
    if err != nil {
        return Config{}, fmt.Errorf("parse config: %w", err)
    }

    cfg.Resolver.Providers = cleanList(cfg.Resolver.Providers, strings.ToLower)
    cfg.Resolver.SupportedPairs = cleanList(cfg.Resolver.SupportedPairs, strings.ToUpper)
    if err := cfg.Validate(); err != nil {
        return Config{}, err
    }
    return cfg, nil
}

// Validate checks values that would otherwise fail on the first request.
// Missing API keys are not an error here: they are reported per request.
func (c Config) Validate() error {
    if c.Server.Port == "" {
        return fmt.Errorf("config: server.port is empty")
    }
    if c.Server.RequestTimeoutSec <= 0 {
        return fmt.Errorf("config: server.request_timeout_sec must be positive")
    }
    if c.Resolver.MinRefreshMs < 0 {
        return fmt.Errorf("config: resolver.min_refresh_ms must not be negative")
    }
    if len(c.Resolver.Providers) == 0 {
        return fmt.Errorf("config: resolver.providers is empty")
    }
    seen := make(map[string]struct{}, len(c.Resolver.Providers))
    for _, p := range c.Resolver.Providers {
        switch p {
        case ProviderTwelveData, ProviderExchangeRateHost, ProviderERAPI:
        default:
            return fmt.Errorf("config: unknown provider %q", p)
        }
        if _, dup := seen[p]; dup {
            return fmt.Errorf("config: provider %q listed twice", p)
        }
        seen[p] = struct{}{}
    }
    if _, err := pair.NewSet(c.Resolver.SupportedPairs); err != nil {
        return fmt.Errorf("config: resolver.supported_pairs: %w", err)
    }
    return nil
}

func cleanList(in []string, norm func(string) string) []string {
    out := make([]string, 0, len(in))
    for _, p := range in {
        p = strings.TrimSpace(p)
        if p != "" { out = append(out, norm(p)) }
    }
    return out
}
