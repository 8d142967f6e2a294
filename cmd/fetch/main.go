package main

import (
    "context"
    "encoding/json"
    "errors"
    "flag"
    "fmt"
    "log/slog"
    "os"
    "time"

    "quoteproxy/internal/api"
    "quoteproxy/internal/app"
    "quoteproxy/internal/config"
    "quoteproxy/internal/httpx"
    "quoteproxy/internal/pair"
    "quoteproxy/internal/resolver"
)

func main() {
    var pairArg string
    var configPath string
    var providersCSV string
    var timeout int
    var verbose bool

    flag.StringVar(&pairArg, "pair", getenv("PAIR", pair.Default), "currency pair, EUR/USD or EURUSD")
    flag.StringVar(&configPath, "config", getenv("CONFIG_FILE", ""), "path to config file (optional)")
    flag.StringVar(&providersCSV, "providers", "", "provider chain override, e.g. twelvedata,erapi")
    flag.IntVar(&timeout, "timeout", 0, "request timeout seconds (default from config)")
    flag.BoolVar(&verbose, "v", false, "log provider attempts to stderr")
    flag.Parse()

    level := slog.LevelWarn
    if verbose { level = slog.LevelDebug }
    logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

    if providersCSV != "" {
        // QUOTE_PROVIDERS goes through the same normalization as the server
        _ = os.Setenv("QUOTE_PROVIDERS", providersCSV)
    }
    cfg, err := config.Load(configPath)
    if err != nil { fatal("config: %v", err) }
    if timeout > 0 { cfg.Server.RequestTimeoutSec = timeout }

    p, err := pair.Parse(pairArg)
    if err != nil { fatal("%v", err) }

    res, err := app.BuildResolver(cfg, httpx.New(cfg.RequestTimeout()), logger)
    if err != nil { fatal("build resolver: %v", err) }

    ctx, cancel := context.WithTimeout(context.Background(), cfg.ChainTimeout())
    defer cancel()

    start := time.Now()
    out, err := res.Resolve(ctx, p)
    latency := time.Since(start)

    enc := json.NewEncoder(os.Stdout)
    enc.SetIndent("", "  ")
    enc.SetEscapeHTML(false)

    var ex *resolver.ExhaustedError
    switch {
    case err == nil:
        _ = enc.Encode(api.NewQuoteEnvelope(out, latency))
    case errors.As(err, &ex):
        _ = enc.Encode(api.NewUpstreamErrorEnvelope(ex))
        os.Exit(2)
    default:
        _ = enc.Encode(api.ErrorEnvelope{OK: false, Error: err.Error()})
        os.Exit(1)
    }
}

func fatal(format string, args ...any) {
    fmt.Fprintf(os.Stderr, format+"\n", args...)
    os.Exit(1)
}

func getenv(key, def string) string { if v := os.Getenv(key); v != "" { return v }; return def }
