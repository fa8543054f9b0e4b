package server

import (
    "context"
    "os"
    "path/filepath"
    "time"

    "github.com/rs/zerolog/log"

    "github.com/local/blinkpdf/internal/metrics"
)

// StartCleanup runs the retention loop: job work dirs older than the retention
// window are removed, and queue depth gauges refreshed. Stops when ctx ends.
func (s *Server) StartCleanup(ctx context.Context) {
    every := s.conf.Storage.CleanupEvery
    if every <= 0 {
        every = 10 * time.Minute
    }
    ticker := time.NewTicker(every)
    go func() {
        defer ticker.Stop()
        for {
            select {
            case <-ctx.Done():
                return
            case <-ticker.C:
                s.cleanupWorkDirs()
                s.refreshQueueDepths(ctx)
            }
        }
    }()
}

func (s *Server) cleanupWorkDirs() {
    retention := s.conf.Storage.Retention
    if retention <= 0 {
        return
    }
    entries, err := os.ReadDir(s.conf.Storage.WorkDir)
    if err != nil {
        return
    }
    cutoff := time.Now().Add(-retention)
    removed := 0
    for _, e := range entries {
        if !e.IsDir() {
            continue
        }
        info, err := e.Info()
        if err != nil || info.ModTime().After(cutoff) {
            continue
        }
        if err := os.RemoveAll(filepath.Join(s.conf.Storage.WorkDir, e.Name())); err == nil {
            removed++
        }
    }
    if removed > 0 {
        log.Info().Int("removed", removed).Msg("cleaned up expired job work dirs")
    }
}

func (s *Server) refreshQueueDepths(ctx context.Context) {
    stream, delayed, dlq, err := s.deps.Queue.Depths(ctx)
    if err != nil {
        return
    }
    metrics.SetQueueDepth("stream", stream)
    metrics.SetQueueDepth("delayed", delayed)
    metrics.SetQueueDepth("dlq", dlq)
}
