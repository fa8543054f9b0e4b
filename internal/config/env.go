package config

import (
    "os"
    "strconv"
    "strings"
    "time"
)

// LoggingConfig holds logging-related configuration.
type LoggingConfig struct {
    Level        string
    Pretty       bool
    File         string
    MaxSizeMB    int
    MaxBackups   int
    MaxAgeDays   int
    Compress     bool
}

// AxiomConfig holds Axiom logging configuration.
type AxiomConfig struct {
    Send          bool
    APIKey        string
    OrgID         string
    Dataset       string
    FlushInterval time.Duration
}

// ProviderModels defines the model pair for a provider.
type ProviderModels struct {
    Primary   string
    Secondary string
}

// ProvidersConfig defines engines and models per AI provider.
type ProvidersConfig struct {
    PrimaryEngine   string // "gemini"|"openai"
    SecondaryEngine string // "openai"|"gemini"
    Gemini          ProviderModels
    OpenAI          ProviderModels
    ChunkChars      int
}

// WorkerConfig defines worker behavior and limits.
type WorkerConfig struct {
    Concurrency         int
    RequestTimeout      time.Duration
    GeminiTimeout       time.Duration
    OpenAITimeout       time.Duration
    ToolTimeout         time.Duration
    JobMaxAttempts      int
    RetryBaseDelay      time.Duration
    RetryJitter         time.Duration
    RetryBackoffFactor  float64
    MaxInflightPerModel int
    BreakerBaseBackoff  time.Duration
    BreakerMaxBackoff   time.Duration
}

// QueueConfig defines queue connectivity and names.
type QueueConfig struct {
    RedisURL     string
    Stream       string
    Group        string
    PollInterval time.Duration
}

// HTTPConfig defines listen address and the internal callback base URL
// workers post completion events to.
type HTTPConfig struct {
    Addr         string
    InternalBase string
}

// StorageConfig defines where uploads and results live on disk.
type StorageConfig struct {
    WorkDir      string
    MaxUploadMB  int
    Retention    time.Duration
    CleanupEvery time.Duration
    S3Bucket     string
    S3Region     string
    S3Password   string
}

// ConvertConfig defines the LibreOffice bridge limits.
type ConvertConfig struct {
    SofficePath   string
    MaxConcurrent int
    Timeout       time.Duration
}

// OCRConfig defines the tesseract bridge.
type OCRConfig struct {
    TesseractPath string
    Languages     string
    Timeout       time.Duration
}

// WebConfig defines the dashboard.
type WebConfig struct {
    Enabled  bool
    Username string
    Password string
}

// Config is the top-level configuration.
type Config struct {
    Logging   LoggingConfig
    Axiom     AxiomConfig
    Providers ProvidersConfig
    Worker    WorkerConfig
    Queue     QueueConfig
    HTTP      HTTPConfig
    Storage   StorageConfig
    Convert   ConvertConfig
    OCR       OCRConfig
    Web       WebConfig
}

// FromEnv loads configuration from environment with sensible defaults.
func FromEnv() Config {
    cfg := Config{}

    // Logging defaults
    cfg.Logging = LoggingConfig{
        Level:      getEnv("LOG_LEVEL", "info"),
        Pretty:     parseBool(getEnv("LOG_PRETTY", devDefaultPretty())),
        File:       getEnv("LOG_FILE", "logs/blinkpdf.log"),
        MaxSizeMB:  parseInt(getEnv("LOG_MAX_SIZE_MB", "100"), 100),
        MaxBackups: parseInt(getEnv("LOG_MAX_BACKUPS", "10"), 10),
        MaxAgeDays: parseInt(getEnv("LOG_MAX_AGE_DAYS", "30"), 30),
        Compress:   parseBool(getEnv("LOG_COMPRESS", "true")),
    }

    // Axiom defaults
    baseDataset := getEnv("AXIOM_DATASET", "dev")
    cfg.Axiom = AxiomConfig{
        Send:          parseBool(getEnv("SEND_LOGS_TO_AXIOM", "0")),
        APIKey:        getEnv("AXIOM_API_KEY", ""),
        OrgID:         getEnv("AXIOM_ORG_ID", ""),
        Dataset:       baseDataset + "_blinkpdf",
        FlushInterval: parseDuration(getEnv("AXIOM_FLUSH_INTERVAL", "10s"), 10*time.Second),
    }

    // Providers defaults. API keys themselves stay in GEMINI_API_KEY and
    // OPENAI_API_KEY and are read by the clients, never stored here.
    cfg.Providers = ProvidersConfig{
        PrimaryEngine:   getEnv("PRIMARY_ENGINE", "gemini"),
        SecondaryEngine: getEnv("SECONDARY_ENGINE", "openai"),
        Gemini: ProviderModels{
            Primary:   getEnv("GEMINI_PRIMARY_MODEL", "gemini-2.0-flash"),
            Secondary: getEnv("GEMINI_SECONDARY_MODEL", "gemini-1.5-pro"),
        },
        OpenAI: ProviderModels{
            Primary:   getEnv("OPENAI_PRIMARY_MODEL", "gpt-4.1"),
            Secondary: getEnv("OPENAI_SECONDARY_MODEL", "gpt-4o"),
        },
        ChunkChars: parseInt(getEnv("AI_CHUNK_CHARS", "8000"), 8000),
    }

    // Worker defaults
    cfg.Worker = WorkerConfig{
        Concurrency:         parseInt(getEnv("WORKER_CONCURRENCY", "8"), 8),
        RequestTimeout:      parseDuration(getEnv("REQUEST_TIMEOUT", "60s"), 60*time.Second),
        GeminiTimeout:       parseDuration(getEnv("GEMINI_TIMEOUT", ""), 0),
        OpenAITimeout:       parseDuration(getEnv("OPENAI_TIMEOUT", ""), 0),
        ToolTimeout:         parseDuration(getEnv("TOOL_TIMEOUT", "5m"), 5*time.Minute),
        JobMaxAttempts:      parseInt(getEnv("JOB_MAX_ATTEMPTS", "3"), 3),
        RetryBaseDelay:      parseDuration(getEnv("RETRY_BASE_DELAY", "2s"), 2*time.Second),
        RetryJitter:         parseDuration(getEnv("RETRY_JITTER", "200ms"), 200*time.Millisecond),
        RetryBackoffFactor:  parseFloat(getEnv("RETRY_BACKOFF_FACTOR", "2.0"), 2.0),
        MaxInflightPerModel: parseInt(getEnv("MAX_INFLIGHT_PER_MODEL", "2"), 2),
        BreakerBaseBackoff:  parseDuration(getEnv("BREAKER_BASE_BACKOFF", "30s"), 30*time.Second),
        BreakerMaxBackoff:   parseDuration(getEnv("BREAKER_MAX_BACKOFF", "5m"), 5*time.Minute),
    }
    if cfg.Worker.GeminiTimeout <= 0 { cfg.Worker.GeminiTimeout = cfg.Worker.RequestTimeout }
    if cfg.Worker.OpenAITimeout <= 0 { cfg.Worker.OpenAITimeout = cfg.Worker.RequestTimeout }

    // Queue defaults
    cfg.Queue = QueueConfig{
        RedisURL:     getEnv("REDIS_URL", "redis://localhost:6379"),
        Stream:       getEnv("QUEUE_STREAM", "jobs:tools"),
        Group:        getEnv("QUEUE_GROUP", "workers:tools"),
        PollInterval: parseDuration(getEnv("QUEUE_POLL_INTERVAL", "100ms"), 100*time.Millisecond),
    }

    // HTTP defaults
    cfg.HTTP = HTTPConfig{
        Addr:         getEnv("HTTP_ADDR", ":8080"),
        InternalBase: getEnv("INTERNAL_BASE_URL", "http://127.0.0.1:8080"),
    }

    // Storage defaults
    cfg.Storage = StorageConfig{
        WorkDir:      getEnv("WORK_DIR", "data/jobs"),
        MaxUploadMB:  parseInt(getEnv("MAX_UPLOAD_MB", "100"), 100),
        Retention:    parseDuration(getEnv("JOB_RETENTION", "2h"), 2*time.Hour),
        CleanupEvery: parseDuration(getEnv("CLEANUP_INTERVAL", "10m"), 10*time.Minute),
        S3Bucket:     getEnv("AWS_S3_BUCKET", ""),
        S3Region:     getEnv("AWS_REGION", "us-east-1"),
        S3Password:   getEnv("S3_ARCHIVE_PASSWORD", ""),
    }

    // Converter defaults
    cfg.Convert = ConvertConfig{
        SofficePath:   getEnv("SOFFICE_PATH", "soffice"),
        MaxConcurrent: parseInt(getEnv("SOFFICE_MAX_CONCURRENT", "2"), 2),
        Timeout:       parseDuration(getEnv("SOFFICE_TIMEOUT", "120s"), 120*time.Second),
    }

    // OCR defaults
    cfg.OCR = OCRConfig{
        TesseractPath: getEnv("TESSERACT_PATH", "tesseract"),
        Languages:     getEnv("OCR_LANGUAGES", "eng"),
        Timeout:       parseDuration(getEnv("OCR_TIMEOUT", "120s"), 120*time.Second),
    }

    // Web dashboard defaults
    cfg.Web = WebConfig{
        Enabled:  parseBool(getEnv("WEB_ENABLED", "true")),
        Username: getEnv("WEB_USERNAME", "admin"),
        Password: getEnv("WEB_PASSWORD", ""),
    }

    return cfg
}

// Helpers
func getEnv(key, def string) string {
    if v := os.Getenv(key); v != "" {
        return v
    }
    return def
}

func parseInt(s string, def int) int {
    if s == "" { return def }
    if n, err := strconv.Atoi(s); err == nil { return n }
    return def
}

func parseFloat(s string, def float64) float64 {
    if s == "" { return def }
    if f, err := strconv.ParseFloat(s, 64); err == nil { return f }
    return def
}

func parseBool(s string) bool {
    v := strings.ToLower(strings.TrimSpace(s))
    return v == "1" || v == "true" || v == "yes" || v == "on"
}

func parseDuration(s string, def time.Duration) time.Duration {
    if s == "" { return def }
    if d, err := time.ParseDuration(s); err == nil { return d }
    return def
}

func devDefaultPretty() string {
    env := strings.ToLower(os.Getenv("ENVIRONMENT"))
    if env == "dev" || env == "development" || env == "local" { return "true" }
    return "false"
}
