// Package api serves quotes over HTTP.
package api

import (
    "log/slog"
    "net/http"
    "time"

    "github.com/go-chi/chi/v5"

    "quoteproxy/internal/telemetry"
)

// QuoteRoutes are the paths answering quote requests. The second keeps
// existing serverless clients working unchanged.
var QuoteRoutes = []string{"/api/quote", "/.netlify/functions/quote"}

// NewRouter builds the HTTP handler. Provider calls are bounded by the
// resolver's per-attempt timeout, not by a deadline on the whole request.
func NewRouter(res Resolver, logger *slog.Logger) http.Handler {
    if logger == nil { logger = slog.Default() }
    h := &quoteHandler{res: res, logger: logger, now: time.Now}

    r := chi.NewRouter()
    r.Use(requestLogger(logger))
    r.Use(withCORS)
    r.Use(withGzip)
    r.Use(recoverPanic(logger))
    r.Use(telemetry.APIRequestMetricsMiddleware)

    for _, path := range QuoteRoutes {
        r.Get(path, h.ServeHTTP)
        r.Options(path, preflight)
    }
    r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
        w.Header().Set("Content-Type", "text/plain; charset=utf-8")
        _, _ = w.Write([]byte("ok"))
    })
    r.Handle("/debug/vars", telemetry.Handler())

    r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
        writeError(w, http.StatusMethodNotAllowed, "method not allowed")
    })
    r.NotFound(func(w http.ResponseWriter, r *http.Request) {
        writeError(w, http.StatusNotFound, "not found")
    })
    return r
}

func preflight(w http.ResponseWriter, _ *http.Request) {
    w.WriteHeader(http.StatusOK)
}
