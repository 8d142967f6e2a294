package main

import (
    "context"
    "errors"
    "log/slog"
    "net/http"
    "os"
    "os/signal"
    "syscall"
    "time"

    "quoteproxy/internal/api"
    "quoteproxy/internal/app"
    "quoteproxy/internal/config"
    "quoteproxy/internal/httpx"
)

func main() {
    logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel()}))
    slog.SetDefault(logger)

    cfg, err := config.Load(os.Getenv("CONFIG_FILE"))
    if err != nil {
        logger.Error("config", slog.Any("error", err))
        os.Exit(1)
    }

    httpClient := httpx.New(cfg.RequestTimeout())
    res, err := app.BuildResolver(cfg, httpClient, logger)
    if err != nil {
        logger.Error("build resolver", slog.Any("error", err))
        os.Exit(1)
    }

    srv := &http.Server{
        Addr:              ":" + cfg.Server.Port,
        Handler:           api.NewRouter(res, logger),
        ReadHeaderTimeout: 5 * time.Second,
        ReadTimeout:       15 * time.Second,
        WriteTimeout:      cfg.ChainTimeout() + 5*time.Second,
        IdleTimeout:       60 * time.Second,
    }

    go func() {
        logger.Info("server listening",
            slog.String("addr", srv.Addr),
            slog.Any("providers", cfg.Resolver.Providers),
            slog.Duration("min_refresh", cfg.MinRefresh()),
        )
        if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
            logger.Error("server", slog.Any("error", err))
            os.Exit(1)
        }
    }()

    // graceful shutdown
    ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
    defer stop()
    <-ctx.Done()
    shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
    defer cancel()
    if err := srv.Shutdown(shutdownCtx); err != nil {
        logger.Warn("shutdown", slog.Any("error", err))
    }
}

func logLevel() slog.Level {
    var l slog.Level
    if err := l.UnmarshalText([]byte(os.Getenv("LOG_LEVEL"))); err != nil {
        return slog.LevelInfo
    }
    return l
}
