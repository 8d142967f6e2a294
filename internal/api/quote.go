package api

import (
    "context"
    "encoding/json"
    "errors"
    "log/slog"
    "net/http"
    "time"

    "quoteproxy/internal/pair"
    "quoteproxy/internal/provider"
    "quoteproxy/internal/resolver"
)

// Resolver is the part of *resolver.Resolver the handler needs.
type Resolver interface {
    Resolve(ctx context.Context, p pair.Pair) (resolver.Resolution, error)
}

type quoteHandler struct {
    res    Resolver
    logger *slog.Logger
    now    func() time.Time
}

// QuoteEnvelope is the success body.
type QuoteEnvelope struct {
    OK            bool            `json:"ok"`
    Provider      string          `json:"provider"`
    Pair          string          `json:"pair"`
    Symbol        string          `json:"symbol"`
    Price         *float64        `json:"price"`
    TimestampMs   int64           `json:"timestamp_ms"`
    LatencyMs     int64           `json:"latency_ms"`
    Cached        bool            `json:"cached"`
    Source        string          `json:"source"`
    Raw           json.RawMessage `json:"raw"`
    OHLC          *provider.OHLC  `json:"ohlc,omitempty"`
    Change        *float64        `json:"change,omitempty"`
    PercentChange *float64        `json:"percent_change,omitempty"`
    IsMarketOpen  *bool           `json:"is_market_open,omitempty"`
}

// UpstreamErrorEnvelope is the 502 body sent when every provider failed.
type UpstreamErrorEnvelope struct {
    OK            bool              `json:"ok"`
    Provider      string            `json:"provider"`
    Pair          string            `json:"pair"`
    Symbol        string            `json:"symbol"`
    Raw           json.RawMessage   `json:"raw"`
    Status        string            `json:"status"`
    PrimaryError  *provider.Detail  `json:"primary_error"`
    FallbackError *provider.Detail  `json:"fallback_error,omitempty"`
    Errors        []provider.Detail `json:"errors"`
}

// ErrorEnvelope is the body of 4xx and 500 responses.
type ErrorEnvelope struct {
    OK    bool   `json:"ok"`
    Error string `json:"error"`
}

func (h *quoteHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
    q := r.URL.Query()
    raw := q.Get("pair")
    if raw == "" { raw = q.Get("symbol") }

    p, err := pair.Parse(raw)
    if err != nil {
        writeError(w, http.StatusBadRequest, err.Error())
        return
    }

    start := h.now()
    res, err := h.res.Resolve(r.Context(), p)
    latency := h.now().Sub(start)
    if err != nil {
        h.writeResolveError(w, p, err)
        return
    }

    w.Header().Set("Cache-Control", "no-store")
    writeJSON(w, http.StatusOK, NewQuoteEnvelope(res, latency))
}

// NewQuoteEnvelope shapes a resolution for the wire.
func NewQuoteEnvelope(res resolver.Resolution, latency time.Duration) QuoteEnvelope {
    q := res.Quote
    return QuoteEnvelope{
        OK:            true,
        Provider:      q.Source,
        Pair:          res.Pair.String(),
        Symbol:        q.Symbol,
        Price:         q.Price,
        TimestampMs:   res.Timestamp.UnixMilli(),
        LatencyMs:     latency.Milliseconds(),
        Cached:        res.Cached,
        Source:        q.Source,
        Raw:           q.Raw,
        OHLC:          q.OHLC,
        Change:        q.Change,
        PercentChange: q.PercentChange,
        IsMarketOpen:  q.IsMarketOpen,
    }
}

// NewUpstreamErrorEnvelope describes an exhausted chain. Raw is the payload
// of the last provider tried.
func NewUpstreamErrorEnvelope(ex *resolver.ExhaustedError) UpstreamErrorEnvelope {
    env := UpstreamErrorEnvelope{
        Pair:   ex.Pair.String(),
        Symbol: ex.Pair.String(),
        Status: "error",
        Errors: make([]provider.Detail, 0, len(ex.Results)),
    }
    for _, r := range ex.Results {
        env.Errors = append(env.Errors, provider.DetailOf(r.Source, r.Err))
    }
    if len(env.Errors) > 0 {
        env.PrimaryError = &env.Errors[0]
        last := env.Errors[len(env.Errors)-1]
        env.Provider = ex.Last().Source
        env.Raw = last.Raw
    }
    if len(env.Errors) > 1 {
        env.FallbackError = &env.Errors[1]
    }
    return env
}

func (h *quoteHandler) writeResolveError(w http.ResponseWriter, p pair.Pair, err error) {
    var ex *resolver.ExhaustedError
    var pe *provider.Error
    switch {
    case errors.Is(err, pair.ErrUnsupported), errors.Is(err, pair.ErrInvalid):
        writeError(w, http.StatusBadRequest, err.Error())
    case errors.As(err, &pe) && pe.Kind == provider.KindConfig:
        h.logger.Error("provider not configured", slog.String("provider", pe.Provider), slog.String("message", pe.Message))
        writeError(w, http.StatusInternalServerError, pe.Message)
    case errors.As(err, &ex):
        if len(ex.Results) == 1 && ex.TransportOnly() {
            // no upstream answer to relay
            writeError(w, http.StatusInternalServerError, err.Error())
            return
        }
        h.logger.Warn("all providers failed", slog.String("pair", p.String()), slog.Any("error", err))
        writeJSON(w, http.StatusBadGateway, NewUpstreamErrorEnvelope(ex))
    default:
        h.logger.Error("resolve quote", slog.String("pair", p.String()), slog.Any("error", err))
        writeError(w, http.StatusInternalServerError, err.Error())
    }
}

func writeError(w http.ResponseWriter, status int, msg string) {
    writeJSON(w, status, ErrorEnvelope{OK: false, Error: msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
    w.Header().Set("Content-Type", "application/json; charset=utf-8")
    w.WriteHeader(status)
    enc := json.NewEncoder(w)
    enc.SetEscapeHTML(false)
    _ = enc.Encode(v)
}
