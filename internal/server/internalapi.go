package server

import (
    "context"
    "encoding/json"
    "net/http"
    "strconv"
    "time"

    "github.com/rs/zerolog/log"

    "github.com/local/blinkpdf/internal/store"
)

func (s *Server) setTerminal(ctx context.Context, jobID, state, message, errMsg string) {
    fields := map[string]interface{}{
        "state":   state,
        "message": message,
        "end":     time.Now().Format(time.RFC3339Nano),
    }
    if state == store.StateDone {
        fields["progress"] = 100
    }
    if errMsg != "" {
        fields["error"] = errMsg
    }
    _ = s.deps.Status.Update(ctx, jobID, fields)
}

type jobDoneBody struct {
    Path string `json:"path"`
    Name string `json:"name"`
    MIME string `json:"mime"`
}

func (s *Server) handleJobDone(w http.ResponseWriter, r *http.Request) {
    jobID := r.URL.Query().Get("job_id")
    if jobID == "" {
        apiError(w, http.StatusBadRequest, "missing job_id")
        return
    }
    var body jobDoneBody
    if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Path == "" {
        apiError(w, http.StatusBadRequest, "missing result")
        return
    }

    st, ok, err := s.deps.Status.Get(r.Context(), jobID)
    if err != nil || !ok {
        apiError(w, http.StatusNotFound, "job not found")
        return
    }
    if st.Terminal() {
        w.WriteHeader(http.StatusNoContent)
        return
    }

    fields := map[string]interface{}{
        "state":       store.StateDone,
        "progress":    100,
        "message":     "completed",
        "result_path": body.Path,
        "result_name": body.Name,
        "result_mime": body.MIME,
        "end":         time.Now().Format(time.RFC3339Nano),
    }
    _ = s.deps.Status.Update(r.Context(), jobID, fields)

    if s.deps.Archiver != nil {
        if url, err := s.deps.Archiver.SaveResult(r.Context(), jobID, body.Path, body.Name); err != nil {
            log.Warn().Err(err).Str("job_id", jobID).Msg("result archive failed")
        } else {
            _ = s.deps.Status.Update(r.Context(), jobID, map[string]interface{}{"result_archive_url": url})
        }
    }

    log.Info().Str("job_id", jobID).Str("result", body.Name).Msg("job completed")
    w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleJobFailed(w http.ResponseWriter, r *http.Request) {
    jobID := r.URL.Query().Get("job_id")
    if jobID == "" {
        apiError(w, http.StatusBadRequest, "missing job_id")
        return
    }
    var body struct {
        Error string `json:"error"`
    }
    _ = json.NewDecoder(r.Body).Decode(&body)
    if body.Error == "" {
        body.Error = "processing failed"
    }

    st, ok, err := s.deps.Status.Get(r.Context(), jobID)
    if err != nil || !ok {
        apiError(w, http.StatusNotFound, "job not found")
        return
    }
    if st.Terminal() {
        w.WriteHeader(http.StatusNoContent)
        return
    }

    s.setTerminal(r.Context(), jobID, store.StateFailed, "failed", body.Error)
    log.Warn().Str("job_id", jobID).Str("error", body.Error).Msg("job failed")
    w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleChunkDone(w http.ResponseWriter, r *http.Request) {
    jobID := r.URL.Query().Get("job_id")
    chunkStr := r.URL.Query().Get("chunk_id")
    if jobID == "" || chunkStr == "" {
        apiError(w, http.StatusBadRequest, "missing job_id/chunk_id")
        return
    }
    chunkID, err := strconv.Atoi(chunkStr)
    if err != nil || chunkID < 1 {
        apiError(w, http.StatusBadRequest, "bad chunk_id")
        return
    }
    var body struct {
        Text     string `json:"text"`
        Provider string `json:"provider"`
        Model    string `json:"model"`
    }
    _ = json.NewDecoder(r.Body).Decode(&body)

    st, ok, err := s.deps.Status.Get(r.Context(), jobID)
    if err != nil || !ok {
        apiError(w, http.StatusNotFound, "job not found")
        return
    }
    if st.Terminal() {
        w.WriteHeader(http.StatusNoContent)
        return
    }

    done, err := s.deps.Chunks.SaveChunk(r.Context(), jobID, chunkID, body.Text, body.Provider, body.Model)
    if err != nil {
        apiError(w, http.StatusInternalServerError, "chunk store error")
        return
    }

    total := st.TotalChunks
    if total > 0 {
        progress := int(float64(done) / float64(total) * 100)
        if progress > 99 {
            progress = 99
        }
        _ = s.deps.Status.Update(r.Context(), jobID, map[string]interface{}{
            "progress": progress,
            "message":  "processing chunks",
        })
    }
    log.Debug().Str("job_id", jobID).Int("chunk_id", chunkID).Int64("done", done).Int("total", total).Msg("chunk done")
    w.WriteHeader(http.StatusNoContent)
}
