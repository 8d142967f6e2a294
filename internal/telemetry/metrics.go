package telemetry

import (
    "expvar"
    "net/http"
    "strings"
    "time"

    "github.com/go-chi/chi/v5"
)

var (
    CacheHits        = expvar.NewInt("quote_cache_hits_total")
    CacheMisses      = expvar.NewInt("quote_cache_misses_total")
    FallbackHops     = expvar.NewInt("quote_fallback_hops_total")
    ProviderFailures = expvar.NewMap("quote_provider_failures_by_name")

    apiRequestsTotal         = expvar.NewInt("api_requests_total")
    apiRequestsErrorsTotal   = expvar.NewInt("api_requests_errors_total")
    apiRequestLatencyMsTotal = expvar.NewInt("api_request_latency_ms_total")
    apiRequestsByRoute       = expvar.NewMap("api_requests_by_route")
    apiResponsesByStatus     = expvar.NewMap("api_responses_by_status")
)

type statusRecorder struct {
    http.ResponseWriter
    status int
}

func (r *statusRecorder) WriteHeader(status int) {
    r.status = status
    r.ResponseWriter.WriteHeader(status)
}

// APIRequestMetricsMiddleware records request volume, error rate, and latency.
func APIRequestMetricsMiddleware(next http.Handler) http.Handler {
    return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
        start := time.Now()
        recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

        next.ServeHTTP(recorder, r)

        key := strings.TrimSpace(r.Method + " " + requestRoute(r))
        apiRequestsTotal.Add(1)
        apiRequestsByRoute.Add(key, 1)
        apiResponsesByStatus.Add(http.StatusText(recorder.status), 1)
        if recorder.status >= http.StatusBadRequest {
            apiRequestsErrorsTotal.Add(1)
        }
        apiRequestLatencyMsTotal.Add(time.Since(start).Milliseconds())
    })
}

// Handler serves the expvar page.
func Handler() http.Handler { return expvar.Handler() }

func requestRoute(r *http.Request) string {
    if rctx := chi.RouteContext(r.Context()); rctx != nil {
        if pattern := strings.TrimSpace(rctx.RoutePattern()); pattern != "" {
            return pattern
        }
    }
    return "/unknown"
}
