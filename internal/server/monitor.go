package server

import (
    "context"
    "fmt"
    "os"
    "path/filepath"
    "strings"
    "time"

    "github.com/rs/zerolog/log"

    "github.com/local/blinkpdf/internal/ai"
    "github.com/local/blinkpdf/internal/filetype"
    "github.com/local/blinkpdf/internal/queue"
    "github.com/local/blinkpdf/internal/store"
    "github.com/local/blinkpdf/internal/tools"
)

// monitorAIJob waits for all chunks of an AI job and finalizes the result.
// It also owns the job deadline: a stuck job is finalized with whatever
// chunks made it, or failed when nothing did.
func (s *Server) monitorAIJob(jobID string, tool *tools.Tool, in queue.TaskInput, opts map[string]string, workDir string, total int) {
    deadline := s.conf.Worker.ToolTimeout
    if perChunk := time.Duration(total) * s.conf.Worker.RequestTimeout; perChunk > deadline {
        deadline = perChunk
    }
    timeout := time.NewTimer(deadline)
    defer timeout.Stop()
    ticker := time.NewTicker(2 * time.Second)
    defer ticker.Stop()

    log.Info().Str("job_id", jobID).Int("chunks", total).Dur("deadline", deadline).Msg("started job monitor")

    for {
        select {
        case <-timeout.C:
            ctx := context.Background()
            done, _ := s.deps.Chunks.DoneCount(ctx, jobID)
            log.Warn().Str("job_id", jobID).Int64("done", done).Int("total", total).Msg("job deadline reached")
            _ = s.deps.Queue.CancelJob(ctx, jobID)
            if done == 0 {
                s.setTerminal(ctx, jobID, store.StateFailed, "failed", "job timed out before any chunk completed")
                return
            }
            s.finalizeAIJob(ctx, jobID, tool, in, opts, workDir, total, true)
            return

        case <-ticker.C:
            ctx := context.Background()
            if cancelled, _ := s.deps.Queue.IsCancelled(ctx, jobID); cancelled {
                log.Info().Str("job_id", jobID).Msg("job cancelled, stopping monitor")
                return
            }
            st, ok, err := s.deps.Status.Get(ctx, jobID)
            if err != nil || !ok {
                continue
            }
            if st.Terminal() {
                return
            }
            done, err := s.deps.Chunks.DoneCount(ctx, jobID)
            if err != nil {
                continue
            }
            if int(done) >= total {
                s.finalizeAIJob(ctx, jobID, tool, in, opts, workDir, total, false)
                return
            }
        }
    }
}

// finalizeAIJob aggregates chunk results into the job's download artifact.
func (s *Server) finalizeAIJob(ctx context.Context, jobID string, tool *tools.Tool, in queue.TaskInput, opts map[string]string, workDir string, total int, partial bool) {
    st, ok, err := s.deps.Status.Get(ctx, jobID)
    if err != nil || !ok || st.Terminal() {
        return
    }

    done, _ := s.deps.Chunks.DoneCount(ctx, jobID)

    var text string
    if tool.Slug == "ai-chat" {
        // Chat answers need per-chunk filtering before joining.
        parts := make([]string, 0, total)
        for i := 1; i <= total; i++ {
            t, err := s.deps.Chunks.GetChunk(ctx, jobID, i)
            if err != nil {
                log.Warn().Err(err).Str("job_id", jobID).Int("chunk", i).Msg("chunk fetch failed during finalization")
                continue
            }
            parts = append(parts, t)
        }
        text = ai.JoinChunkAnswers(parts)
    } else {
        var err error
        text, err = s.deps.Chunks.AggregateText(ctx, jobID, total)
        if err != nil {
            log.Warn().Err(err).Str("job_id", jobID).Msg("chunk aggregation incomplete")
        }
    }
    if strings.TrimSpace(text) == "" {
        s.setTerminal(ctx, jobID, store.StateFailed, "failed", "no chunk produced output")
        return
    }

    base := uploadBase(in.OriginalName)
    ext := ".txt"
    if tool.Slug == "ai-table-extract" {
        ext = ".csv"
    }

    name := tool.DownloadName(base, ext)
    path := filepath.Join(workDir, name)
    if err := os.WriteFile(path, []byte(text), 0o644); err != nil {
        s.setTerminal(ctx, jobID, store.StateFailed, "failed", fmt.Sprintf("write result: %v", err))
        return
    }

    // optional PDF rendering of the text result
    if opts["output"] == "pdf" && s.deps.Renderer != nil && ext == ".txt" {
        pdfName := tool.DownloadName(base, ".pdf")
        pdfPath := filepath.Join(workDir, pdfName)
        if err := s.deps.Renderer.TextToPDF(ctx, path, pdfPath); err != nil {
            log.Warn().Err(err).Str("job_id", jobID).Msg("pdf rendering failed, serving text result")
        } else {
            name, path = pdfName, pdfPath
        }
    }

    message := "completed"
    if partial {
        message = fmt.Sprintf("completed with partial results (%d of %d chunks)", done, total)
    }
    _ = s.deps.Status.Update(ctx, jobID, map[string]interface{}{
        "state":       store.StateDone,
        "progress":    100,
        "message":     message,
        "result_path": path,
        "result_name": name,
        "result_mime": filetype.MIMEForName(name),
        "end":         time.Now().Format(time.RFC3339Nano),
    })

    if s.deps.Archiver != nil {
        if url, err := s.deps.Archiver.SaveResult(ctx, jobID, path, name); err != nil {
            log.Warn().Err(err).Str("job_id", jobID).Msg("result archive failed")
        } else {
            _ = s.deps.Status.Update(ctx, jobID, map[string]interface{}{"result_archive_url": url})
        }
    }

    _ = s.deps.Chunks.Drop(ctx, jobID, total)
    log.Info().Str("job_id", jobID).Str("result", name).Bool("partial", partial).Msg("ai job finalized")
}

// uploadBase mirrors the result naming the tool engine uses.
func uploadBase(original string) string {
    base := strings.TrimSuffix(filepath.Base(original), filepath.Ext(original))
    var b strings.Builder
    for _, r := range base {
        if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '-' || r == '_' {
            b.WriteRune(r)
        } else {
            b.WriteRune('_')
        }
    }
    if b.Len() == 0 {
        return "document"
    }
    return b.String()
}
