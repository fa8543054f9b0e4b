package main

import (
    "context"
    "net/http"
    "os"
    "os/signal"
    "syscall"
    "time"

    "github.com/joho/godotenv"
    "github.com/rs/zerolog/log"

    cfgpkg "github.com/local/blinkpdf/internal/config"
    "github.com/local/blinkpdf/internal/converter"
    "github.com/local/blinkpdf/internal/dispatcher"
    "github.com/local/blinkpdf/internal/limiter"
    logpkg "github.com/local/blinkpdf/internal/logger"
    "github.com/local/blinkpdf/internal/metrics"
    "github.com/local/blinkpdf/internal/mupdf"
    "github.com/local/blinkpdf/internal/ocr"
    "github.com/local/blinkpdf/internal/pdf"
    "github.com/local/blinkpdf/internal/queue"
    "github.com/local/blinkpdf/internal/server"
    "github.com/local/blinkpdf/internal/statuscheck"
    "github.com/local/blinkpdf/internal/storage"
    "github.com/local/blinkpdf/internal/store"
    "github.com/local/blinkpdf/internal/web"
)

func main() {
    _ = godotenv.Load()
    cfg := cfgpkg.FromEnv()

    _ = logpkg.Init(logpkg.Options{
        Level:        cfg.Logging.Level,
        Pretty:       cfg.Logging.Pretty,
        File:         cfg.Logging.File,
        MaxSizeMB:    cfg.Logging.MaxSizeMB,
        MaxBackups:   cfg.Logging.MaxBackups,
        MaxAgeDays:   cfg.Logging.MaxAgeDays,
        Compress:     cfg.Logging.Compress,
        SendToAxiom:  cfg.Axiom.Send && cfg.Axiom.APIKey != "",
        AxiomAPIKey:  cfg.Axiom.APIKey,
        AxiomOrgID:   cfg.Axiom.OrgID,
        AxiomDataset: cfg.Axiom.Dataset,
        AxiomFlush:   cfg.Axiom.FlushInterval,
    })
    defer logpkg.Close()

    metrics.Init()

    if err := os.MkdirAll(cfg.Storage.WorkDir, 0o755); err != nil {
        log.Fatal().Err(err).Str("dir", cfg.Storage.WorkDir).Msg("cannot create work dir")
    }

    rq, err := queue.NewRedisQueue(cfg.Queue.RedisURL, cfg.Queue.Stream, cfg.Queue.Group, cfg.Queue.PollInterval)
    if err != nil {
        log.Fatal().Err(err).Msg("failed to connect to redis")
    }
    defer rq.Close()

    rs, err := store.NewRedisStatus(cfg.Queue.RedisURL, 24*time.Hour)
    if err != nil {
        log.Fatal().Err(err).Msg("failed to init status store")
    }
    defer rs.Close()

    cs, err := store.NewChunkStore(cfg.Queue.RedisURL, 24*time.Hour)
    if err != nil {
        log.Fatal().Err(err).Msg("failed to init chunk store")
    }
    defer cs.Close()

    soffice := converter.NewLibreOffice(cfg.Convert.SofficePath, cfg.Convert.MaxConcurrent, cfg.Convert.Timeout)
    tess := ocr.NewTesseract(cfg.OCR.TesseractPath, cfg.OCR.Languages, cfg.OCR.Timeout)
    engine := pdf.NewEngine(soffice, tess)
    extractor := mupdf.NewChain()

    rootCtx, cancelRoot := context.WithCancel(context.Background())
    defer cancelRoot()

    var archiver server.Archiver
    if cfg.Storage.S3Bucket != "" {
        s3a, err := storage.NewS3Archiver(rootCtx, cfg.Storage.S3Bucket, cfg.Storage.S3Region, cfg.Storage.S3Password)
        if err != nil {
            log.Warn().Err(err).Msg("s3 archiver unavailable, results stay local")
        } else {
            archiver = s3a
        }
    }

    checker := statuscheck.New(statuscheck.Options{
        Redis:         rq,
        Extractor:     extractor,
        S3Bucket:      cfg.Storage.S3Bucket,
        GeminiKey:     os.Getenv("GEMINI_API_KEY"),
        OpenAIKey:     os.Getenv("OPENAI_API_KEY"),
        SofficePath:   cfg.Convert.SofficePath,
        TesseractPath: cfg.OCR.TesseractPath,
    })

    srv := server.New(cfg, server.Dependencies{
        Queue:    rq,
        Status:   rs,
        Chunks:   cs,
        Extract:  extractor,
        Renderer: engine,
        Archiver: archiver,
        Checks:   checker,
    })
    mux := http.NewServeMux()
    srv.RegisterRoutes(mux)
    mux.Handle("GET /metrics", metrics.Handler())
    srv.StartCleanup(rootCtx)

    if cfg.Web.Enabled {
        web.New(cfg, checker).RegisterRoutes(mux)
    }

    runWorkers := os.Getenv("RUN_WORKERS")
    if runWorkers == "" || runWorkers == "1" || runWorkers == "true" {
        breaker := dispatcher.NewCircuitBreaker(rq.Client(), cfg.Worker.BreakerBaseBackoff, cfg.Worker.BreakerMaxBackoff)
        lim := limiter.New(limiter.Options{MaxInflight: cfg.Worker.MaxInflightPerModel})
        w := dispatcher.New(cfg, rq, engine, breaker, lim)
        w.Start()
        defer func() {
            ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
            defer cancel()
            _ = w.Stop(ctx)
        }()
    }

    httpSrv := &http.Server{Addr: cfg.HTTP.Addr, Handler: mux}
    go func() {
        log.Info().Str("addr", cfg.HTTP.Addr).Msg("http server listening")
        if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
            log.Fatal().Err(err).Msg("http server error")
        }
    }()

    stop := make(chan os.Signal, 1)
    signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
    <-stop
    log.Info().Msg("shutting down")
    cancelRoot()
    ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
    defer cancel()
    _ = httpSrv.Shutdown(ctx)
}
