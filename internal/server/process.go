package server

import (
    "context"
    "encoding/json"
    "fmt"
    "io"
    "mime/multipart"
    "net/http"
    "os"
    "path/filepath"
    "strings"
    "time"

    "github.com/google/uuid"
    "github.com/rs/zerolog/log"

    "github.com/local/blinkpdf/internal/ai"
    "github.com/local/blinkpdf/internal/filetype"
    "github.com/local/blinkpdf/internal/metrics"
    "github.com/local/blinkpdf/internal/mupdf"
    "github.com/local/blinkpdf/internal/queue"
    "github.com/local/blinkpdf/internal/store"
    "github.com/local/blinkpdf/internal/tools"
)

// reserved form fields that are not tool options
var reservedFields = map[string]bool{"tool": true, "options": true}

func (s *Server) handleProcess(w http.ResponseWriter, r *http.Request) {
    maxBytes := int64(s.conf.Storage.MaxUploadMB) << 20
    r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
    if err := r.ParseMultipartForm(64 << 20); err != nil {
        apiError(w, http.StatusBadRequest, "invalid multipart form")
        return
    }
    defer func() { _ = r.MultipartForm.RemoveAll() }()

    slug := r.FormValue("tool")
    tool, err := tools.BySlug(slug)
    if err != nil {
        apiError(w, http.StatusBadRequest, err.Error())
        return
    }

    files := r.MultipartForm.File["files"]
    if len(files) == 0 {
        files = r.MultipartForm.File["file"]
    }
    if len(files) < tool.MinFiles || len(files) > tool.MaxFiles {
        apiError(w, http.StatusBadRequest,
            fmt.Sprintf("tool %s takes %d-%d files, got %d", tool.Slug, tool.MinFiles, tool.MaxFiles, len(files)))
        return
    }

    opts := collectOptions(r)

    jobID := uuid.NewString()
    workDir := filepath.Join(s.conf.Storage.WorkDir, jobID)
    if err := os.MkdirAll(workDir, 0o755); err != nil {
        apiError(w, http.StatusInternalServerError, "cannot create work dir")
        return
    }

    inputs, err := s.saveUploads(tool, files, workDir)
    if err != nil {
        _ = os.RemoveAll(workDir)
        apiError(w, http.StatusBadRequest, err.Error())
        return
    }

    st := store.Status{
        State:    store.StateQueued,
        Tool:     tool.Slug,
        Progress: 0,
        Message:  "queued",
        Start:    nowPtr(),
    }
    if err := s.deps.Status.Set(r.Context(), jobID, st); err != nil {
        _ = os.RemoveAll(workDir)
        apiError(w, http.StatusServiceUnavailable, "status store unavailable")
        return
    }

    if tool.AI {
        if err := s.startAIJob(r, jobID, tool, inputs[0], opts, workDir); err != nil {
            s.failJob(r.Context(), jobID, err.Error())
            apiError(w, http.StatusUnprocessableEntity, err.Error())
            return
        }
    } else {
        task := queue.Task{
            JobID:   jobID,
            Kind:    queue.KindTool,
            Tool:    tool.Slug,
            Inputs:  inputs,
            Options: opts,
            WorkDir: workDir,
        }
        payload, _ := task.Encode()
        if err := s.deps.Queue.Enqueue(r.Context(), payload); err != nil {
            s.failJob(r.Context(), jobID, "queue unavailable")
            apiError(w, http.StatusServiceUnavailable, "queue unavailable")
            return
        }
    }

    log.Info().Str("job_id", jobID).Str("tool", tool.Slug).Int("files", len(inputs)).Msg("job created")
    writeJSON(w, http.StatusCreated, map[string]any{"job_id": jobID, "status": store.StateQueued})
}

// collectOptions merges plain form fields and the optional "options" JSON blob.
func collectOptions(r *http.Request) map[string]string {
    opts := map[string]string{}
    for k, vs := range r.MultipartForm.Value {
        if reservedFields[k] || len(vs) == 0 {
            continue
        }
        opts[k] = vs[0]
    }
    if blob := r.FormValue("options"); blob != "" {
        var m map[string]string
        if err := json.Unmarshal([]byte(blob), &m); err == nil {
            for k, v := range m {
                opts[k] = v
            }
        }
    }
    return opts
}

// saveUploads writes each upload into workDir, validates content against the
// tool's accepted kinds, and names the file with its detected extension.
func (s *Server) saveUploads(tool *tools.Tool, files []*multipart.FileHeader, workDir string) ([]queue.TaskInput, error) {
    det := filetype.New()
    inputs := make([]queue.TaskInput, 0, len(files))
    for i, hdr := range files {
        f, err := hdr.Open()
        if err != nil {
            return nil, fmt.Errorf("open upload %d: %w", i+1, err)
        }
        // keep the claimed extension for the first write: the detector needs
        // it to tell Office formats apart from bare ZIP/OLE containers
        dst := filepath.Join(workDir, fmt.Sprintf("input_%d%s", i+1, strings.ToLower(filepath.Ext(hdr.Filename))))
        out, err := os.Create(dst)
        if err != nil {
            f.Close()
            return nil, fmt.Errorf("save upload: %w", err)
        }
        size, err := io.Copy(out, f)
        out.Close()
        f.Close()
        if err != nil {
            return nil, fmt.Errorf("save upload: %w", err)
        }

        info, err := det.Detect(dst)
        if err != nil {
            return nil, fmt.Errorf("detect file type: %w", err)
        }
        if !filetype.Accepts(info.Kind, tool.Accepts) {
            metrics.ObserveUpload(string(info.Kind), false, size)
            return nil, fmt.Errorf("file %q is %s, tool %s does not accept it", hdr.Filename, info.Description, tool.Slug)
        }
        metrics.ObserveUpload(string(info.Kind), true, size)

        // rename with the detected extension; tools key off it
        final := strings.TrimSuffix(dst, filepath.Ext(dst)) + info.Extension
        if final != dst {
            if err := os.Rename(dst, final); err != nil {
                return nil, fmt.Errorf("save upload: %w", err)
            }
        }
        name := filepath.Base(hdr.Filename)
        if name == "" || name == "." {
            name = "upload" + info.Extension
        }
        inputs = append(inputs, queue.TaskInput{Path: final, OriginalName: name})
    }
    return inputs, nil
}

// startAIJob extracts page text, chunks it and fans the chunks out onto
// the queue. AI tools take exactly one PDF.
func (s *Server) startAIJob(r *http.Request, jobID string, tool *tools.Tool, in queue.TaskInput, opts map[string]string, workDir string) error {
    ctx := r.Context()

    pageCount, err := s.deps.Extract.GetPageCount(in.Path)
    if err != nil {
        return fmt.Errorf("page count: %w", err)
    }
    pages := make([]string, 0, pageCount)
    for p := 1; p <= pageCount; p++ {
        text, err := s.deps.Extract.ExtractTextByPage(in.Path, p)
        if err != nil {
            log.Warn().Err(err).Str("job_id", jobID).Int("page", p).Msg("page text extraction failed")
            continue
        }
        pages = append(pages, mupdf.CleanPageText(text, p))
    }

    chunks := ai.ChunkText(pages, s.conf.Providers.ChunkChars)
    if len(chunks) == 0 {
        return fmt.Errorf("no extractable text in %q, run ocr-pdf first", in.OriginalName)
    }

    // validate options up front so a bad request fails fast, not per chunk
    if _, _, err := ai.BuildPrompt(tool.Slug, opts, 1, len(chunks), chunks[0]); err != nil {
        return err
    }

    if err := s.deps.Status.Update(ctx, jobID, map[string]interface{}{
        "total_chunks": len(chunks),
        "state":        store.StateProcessing,
        "message":      "processing chunks",
    }); err != nil {
        return fmt.Errorf("status update: %w", err)
    }

    for i, chunk := range chunks {
        task := queue.Task{
            JobID:       jobID,
            Kind:        queue.KindAIChunk,
            Tool:        tool.Slug,
            Inputs:      []queue.TaskInput{in},
            Options:     opts,
            WorkDir:     workDir,
            ChunkID:     i + 1,
            TotalChunks: len(chunks),
            Text:        chunk,
        }
        payload, _ := task.Encode()
        if err := s.deps.Queue.Enqueue(ctx, payload); err != nil {
            return fmt.Errorf("queue unavailable: %w", err)
        }
    }

    go s.monitorAIJob(jobID, tool, in, opts, workDir, len(chunks))
    return nil
}

func (s *Server) failJob(ctx context.Context, jobID, reason string) {
    _ = s.deps.Status.Update(ctx, jobID, map[string]interface{}{
        "state":   store.StateFailed,
        "error":   reason,
        "message": "failed",
        "end":     time.Now().Format(time.RFC3339Nano),
    })
}
