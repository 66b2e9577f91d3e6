package main

import (
    "context"
    "log"
    "net/http"
    "os"
    "os/signal"
    "syscall"
    "time"

    "github.com/joho/godotenv"
    "github.com/prometheus/client_golang/prometheus/promhttp"
    "github.com/redis/go-redis/v9"

    "carevoice/agent/internal/asr"
    "carevoice/agent/internal/config"
    "carevoice/agent/internal/history"
    "carevoice/agent/internal/llm"
    "carevoice/agent/internal/manage"
    "carevoice/agent/internal/registry"
    "carevoice/agent/internal/scheduler"
    "carevoice/agent/internal/session"
    "carevoice/agent/internal/tools"
)

func main() {
    // Load .env file if present (ignored if missing)
    _ = godotenv.Load()

    cfg := config.Load()

    reg := registry.New()
    manageClient := manage.NewClient(cfg.Manage.BaseURL, cfg.Manage.Secret)

    store := buildHistoryStore(cfg)
    defer store.Close()

    toolset := tools.NewRegistry()
    tools.RegisterBuiltins(toolset)

    deps := session.Deps{
        Registry: reg,
        Manage:   manageClient,
        History:  store,
        Model:    llm.NewClient(cfg.LLM.BaseURL, cfg.LLM.APIKey, cfg.LLM.Model),
        Tools:    toolset,
        ASR:      asr.NewHTTPProvider(cfg.ASR.BaseURL, cfg.ASR.APIKey, cfg.ASR.Model),
    }

    ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
    defer stop()

    if manageClient.Enabled() {
        scheduler.New(manageClient, reg, cfg.Scheduler.Interval).Start(ctx)
    }

    mux := http.NewServeMux()
    mux.Handle("/voice/v1/", session.NewHandler(cfg, deps))
    mux.Handle("/metrics", promhttp.Handler())
    mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
        w.WriteHeader(http.StatusOK)
        _, _ = w.Write([]byte("ok"))
    })
    mux.HandleFunc("/readyz", func(w http.ResponseWriter, _ *http.Request) {
        w.WriteHeader(http.StatusOK)
        _, _ = w.Write([]byte("ready"))
    })

    addr := ":" + cfg.Server.Port
    srv := &http.Server{
        Addr:              addr,
        Handler:           mux,
        ReadHeaderTimeout: 5 * time.Second,
    }

    go func() {
        <-ctx.Done()
        log.Printf("shutdown signal received; stopping server...")
        sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
        defer cancel()
        _ = srv.Shutdown(sctx)
    }()

    log.Printf("server starting on %s (devices=%d)", addr, reg.Count())
    if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
        log.Println("server error:", err)
        os.Exit(1)
    }
}

func buildHistoryStore(cfg config.Config) history.Store {
    if cfg.History.RedisAddr == "" {
        log.Printf("history: no redis configured, using in-memory store")
        return history.NewMemoryStore()
    }
    client := redis.NewClient(&redis.Options{Addr: cfg.History.RedisAddr})
    return history.NewRedisStore(client, cfg.History.TTL)
}
