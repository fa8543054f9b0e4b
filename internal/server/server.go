package server

import (
    "context"
    "encoding/json"
    "net/http"
    "time"

    cfgpkg "github.com/local/blinkpdf/internal/config"
    "github.com/local/blinkpdf/internal/mupdf"
    "github.com/local/blinkpdf/internal/statuscheck"
    "github.com/local/blinkpdf/internal/store"
    "github.com/local/blinkpdf/internal/tools"
)

type Queue interface {
    Enqueue(ctx context.Context, payload []byte) error
    CancelJob(ctx context.Context, jobID string) error
    IsCancelled(ctx context.Context, jobID string) (bool, error)
    Depths(ctx context.Context) (int64, int64, int64, error)
}

type StatusStore interface {
    Set(ctx context.Context, jobID string, st store.Status) error
    Update(ctx context.Context, jobID string, fields map[string]interface{}) error
    Get(ctx context.Context, jobID string) (store.Status, bool, error)
}

type ChunkStore interface {
    SaveChunk(ctx context.Context, jobID string, chunk int, text, provider, model string) (int64, error)
    GetChunk(ctx context.Context, jobID string, chunk int) (string, error)
    DoneCount(ctx context.Context, jobID string) (int64, error)
    AggregateText(ctx context.Context, jobID string, total int) (string, error)
    Drop(ctx context.Context, jobID string, total int) error
}

// TextRenderer turns an aggregated AI text result into a PDF.
type TextRenderer interface {
    TextToPDF(ctx context.Context, textPath, outPath string) error
}

// Archiver pushes finished results to long-term storage. Optional.
type Archiver interface {
    SaveResult(ctx context.Context, jobID, path, name string) (string, error)
}

// HealthChecker reports dependency readiness. Optional.
type HealthChecker interface {
    Summary(ctx context.Context) statuscheck.Summary
}

type Dependencies struct {
    Queue    Queue
    Status   StatusStore
    Chunks   ChunkStore
    Extract  mupdf.TextExtractor
    Renderer TextRenderer
    Archiver Archiver
    Checks   HealthChecker
}

type Server struct {
    conf cfgpkg.Config
    deps Dependencies
}

func New(conf cfgpkg.Config, deps Dependencies) *Server {
    return &Server{conf: conf, deps: deps}
}

func (s *Server) RegisterRoutes(mux *http.ServeMux) {
    mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
        w.WriteHeader(http.StatusOK)
        _, _ = w.Write([]byte("ok"))
    })
    mux.HandleFunc("GET /api/tools", s.handleTools)
    mux.HandleFunc("GET /api/status", s.handleStatus)
    mux.HandleFunc("POST /api/process", s.handleProcess)
    mux.HandleFunc("GET /api/jobs/{id}", s.handleJobStatus)
    mux.HandleFunc("GET /api/jobs/{id}/download", s.handleDownload)
    mux.HandleFunc("POST /api/jobs/{id}/cancel", s.handleCancel)
    mux.HandleFunc("POST /internal/job_done", s.handleJobDone)
    mux.HandleFunc("POST /internal/job_failed", s.handleJobFailed)
    mux.HandleFunc("POST /internal/chunk_done", s.handleChunkDone)
}

type toolEntry struct {
    Slug        string `json:"slug"`
    Title       string `json:"title"`
    Description string `json:"description"`
    Category    string `json:"category"`
    MinFiles    int    `json:"min_files"`
    MaxFiles    int    `json:"max_files"`
    AI          bool   `json:"ai"`
}

func (s *Server) handleTools(w http.ResponseWriter, r *http.Request) {
    catalog := tools.Catalog()
    out := make([]toolEntry, 0, len(catalog))
    for _, t := range catalog {
        out = append(out, toolEntry{
            Slug:        t.Slug,
            Title:       t.Title,
            Description: t.Description,
            Category:    string(t.Category),
            MinFiles:    t.MinFiles,
            MaxFiles:    t.MaxFiles,
            AI:          t.AI,
        })
    }
    writeJSON(w, http.StatusOK, map[string]any{"tools": out})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
    if s.deps.Checks == nil {
        apiError(w, http.StatusServiceUnavailable, "status checks not configured")
        return
    }
    writeJSON(w, http.StatusOK, s.deps.Checks.Summary(r.Context()))
}

func writeJSON(w http.ResponseWriter, code int, v any) {
    w.Header().Set("Content-Type", "application/json")
    w.WriteHeader(code)
    _ = json.NewEncoder(w).Encode(v)
}

func apiError(w http.ResponseWriter, code int, msg string) {
    writeJSON(w, code, map[string]any{"error": msg})
}

func nowPtr() *time.Time {
    t := time.Now()
    return &t
}
