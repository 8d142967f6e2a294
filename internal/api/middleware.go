package api

import (
    "compress/gzip"
    "fmt"
    "io"
    "log/slog"
    "net/http"
    "strings"
    "sync"
    "time"

    "github.com/google/uuid"
)

const requestIDHeader = "X-Request-ID"

func withCORS(next http.Handler) http.Handler {
    return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
        h := w.Header()
        h.Set("Access-Control-Allow-Origin", "*")
        h.Set("Access-Control-Allow-Methods", "GET, OPTIONS")
        h.Set("Access-Control-Allow-Headers", "Content-Type")
        next.ServeHTTP(w, r)
    })
}

var gzPool = sync.Pool{New: func() any {
    // payloads are small JSON documents
    w, _ := gzip.NewWriterLevel(io.Discard, gzip.BestSpeed)
    return w
}}

// withGzip compresses response when client supports gzip.
func withGzip(next http.Handler) http.Handler {
    return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
        if r.Method != http.MethodGet || !strings.Contains(r.Header.Get("Accept-Encoding"), "gzip") {
            next.ServeHTTP(w, r)
            return
        }
        gz := gzPool.Get().(*gzip.Writer)
        gz.Reset(w)
        defer func() {
            _ = gz.Close()
            gz.Reset(io.Discard)
            gzPool.Put(gz)
        }()
        w.Header().Set("Content-Encoding", "gzip")
        w.Header().Add("Vary", "Accept-Encoding")
        next.ServeHTTP(gzipResponseWriter{ResponseWriter: w, Writer: gz}, r)
    })
}

type gzipResponseWriter struct {
    http.ResponseWriter
    Writer io.Writer
}

func (g gzipResponseWriter) Write(b []byte) (int, error) {
    return g.Writer.Write(b)
}

// wroteWriter records whether a response has been started.
type wroteWriter struct {
    http.ResponseWriter
    wrote bool
}

func (ww *wroteWriter) WriteHeader(status int) {
    ww.wrote = true
    ww.ResponseWriter.WriteHeader(status)
}

func (ww *wroteWriter) Write(b []byte) (int, error) {
    ww.wrote = true
    return ww.ResponseWriter.Write(b)
}

// recoverPanic turns a handler panic into a JSON 500. Once the handler has
// started its response the status is already sent, so the panic is only logged.
func recoverPanic(logger *slog.Logger) func(http.Handler) http.Handler {
    return func(next http.Handler) http.Handler {
        return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
            ww := &wroteWriter{ResponseWriter: w}
            defer func() {
                if rec := recover(); rec != nil {
                    if rec == http.ErrAbortHandler { panic(rec) }
                    logger.Error("handler panic",
                        slog.Any("panic", rec),
                        slog.String("request_id", w.Header().Get(requestIDHeader)),
                        slog.Bool("response_started", ww.wrote),
                    )
                    if !ww.wrote {
                        writeError(w, http.StatusInternalServerError, fmt.Sprint(rec))
                    }
                }
            }()
            next.ServeHTTP(ww, r)
        })
    }
}

type loggedWriter struct {
    http.ResponseWriter
    status int
}

func (l *loggedWriter) WriteHeader(status int) {
    l.status = status
    l.ResponseWriter.WriteHeader(status)
}

// requestLogger tags every request with an id (the inbound X-Request-ID when
// present) and logs one line per request.
func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
    return func(next http.Handler) http.Handler {
        return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
            id := strings.TrimSpace(r.Header.Get(requestIDHeader))
            if id == "" { id = uuid.NewString() }
            w.Header().Set(requestIDHeader, id)

            start := time.Now()
            lw := &loggedWriter{ResponseWriter: w, status: http.StatusOK}
            next.ServeHTTP(lw, r)

            level := slog.LevelInfo
            if lw.status >= http.StatusInternalServerError { level = slog.LevelWarn }
            logger.LogAttrs(r.Context(), level, "request",
                slog.String("request_id", id),
                slog.String("method", r.Method),
                slog.String("path", r.URL.Path),
                slog.String("query", r.URL.RawQuery),
                slog.Int("status", lw.status),
                slog.Duration("duration", time.Since(start)),
            )
        })
    }
}
