package server

import (
    "fmt"
    "net/http"
    "os"

    "github.com/rs/zerolog/log"

    "github.com/local/blinkpdf/internal/store"
)

func (s *Server) handleJobStatus(w http.ResponseWriter, r *http.Request) {
    id := r.PathValue("id")
    st, ok, err := s.deps.Status.Get(r.Context(), id)
    if err != nil {
        apiError(w, http.StatusInternalServerError, "status store error")
        return
    }
    if !ok {
        apiError(w, http.StatusNotFound, "job not found")
        return
    }
    resp := map[string]any{
        "job_id":     id,
        "tool":       st.Tool,
        "state":      st.State,
        "progress":   st.Progress,
        "message":    st.Message,
        "start_time": st.Start,
        "end_time":   st.End,
    }
    if st.Error != "" {
        resp["error"] = st.Error
    }
    if st.State == store.StateDone && st.ResultName != "" {
        resp["download_url"] = fmt.Sprintf("/api/jobs/%s/download", id)
        resp["result_name"] = st.ResultName
    }
    writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
    id := r.PathValue("id")
    st, ok, err := s.deps.Status.Get(r.Context(), id)
    if err != nil || !ok {
        apiError(w, http.StatusNotFound, "job not found")
        return
    }
    if st.State != store.StateDone {
        apiError(w, http.StatusConflict, fmt.Sprintf("job is %s, result not ready", st.State))
        return
    }
    if st.ResultPath == "" {
        apiError(w, http.StatusNotFound, "result not available")
        return
    }
    if _, err := os.Stat(st.ResultPath); err != nil {
        log.Warn().Str("job_id", id).Str("path", st.ResultPath).Msg("result file missing, likely expired")
        apiError(w, http.StatusGone, "result expired")
        return
    }
    mime := st.ResultMIME
    if mime == "" {
        mime = "application/octet-stream"
    }
    w.Header().Set("Content-Type", mime)
    w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", st.ResultName))
    http.ServeFile(w, r, st.ResultPath)
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
    id := r.PathValue("id")
    st, ok, err := s.deps.Status.Get(r.Context(), id)
    if err != nil {
        apiError(w, http.StatusInternalServerError, "status store error")
        return
    }
    if !ok {
        apiError(w, http.StatusNotFound, "job not found")
        return
    }
    if st.Terminal() {
        apiError(w, http.StatusConflict, fmt.Sprintf("job already %s", st.State))
        return
    }
    if err := s.deps.Queue.CancelJob(r.Context(), id); err != nil {
        apiError(w, http.StatusInternalServerError, "cancel failed")
        return
    }
    s.setTerminal(r.Context(), id, store.StateCancelled, "cancelled", "")
    log.Info().Str("job_id", id).Msg("job cancelled")
    writeJSON(w, http.StatusOK, map[string]any{"job_id": id, "state": store.StateCancelled})
}
