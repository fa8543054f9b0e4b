package server

import (
    "bytes"
    "context"
    "encoding/json"
    "fmt"
    "mime/multipart"
    "net/http"
    "net/http/httptest"
    "os"
    "path/filepath"
    "strings"
    "sync"
    "testing"
    "time"

    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"

    cfgpkg "github.com/local/blinkpdf/internal/config"
    "github.com/local/blinkpdf/internal/queue"
    "github.com/local/blinkpdf/internal/store"
    "github.com/local/blinkpdf/internal/tools"
)

// ---- fakes ----

type fakeQueue struct {
    mu        sync.Mutex
    enqueued  [][]byte
    cancelled map[string]bool
    failEnq   bool
}

func newFakeQueue() *fakeQueue {
    return &fakeQueue{cancelled: map[string]bool{}}
}

func (q *fakeQueue) Enqueue(ctx context.Context, payload []byte) error {
    q.mu.Lock()
    defer q.mu.Unlock()
    if q.failEnq {
        return fmt.Errorf("redis down")
    }
    q.enqueued = append(q.enqueued, payload)
    return nil
}

func (q *fakeQueue) CancelJob(ctx context.Context, jobID string) error {
    q.mu.Lock()
    defer q.mu.Unlock()
    q.cancelled[jobID] = true
    return nil
}

func (q *fakeQueue) IsCancelled(ctx context.Context, jobID string) (bool, error) {
    q.mu.Lock()
    defer q.mu.Unlock()
    return q.cancelled[jobID], nil
}

func (q *fakeQueue) Depths(ctx context.Context) (int64, int64, int64, error) {
    q.mu.Lock()
    defer q.mu.Unlock()
    return int64(len(q.enqueued)), 0, 0, nil
}

func (q *fakeQueue) tasks(t *testing.T) []queue.Task {
    t.Helper()
    q.mu.Lock()
    defer q.mu.Unlock()
    out := make([]queue.Task, 0, len(q.enqueued))
    for _, p := range q.enqueued {
        task, err := queue.DecodeTask(p)
        require.NoError(t, err)
        out = append(out, task)
    }
    return out
}

type fakeStatus struct {
    mu   sync.Mutex
    jobs map[string]store.Status
}

func newFakeStatus() *fakeStatus {
    return &fakeStatus{jobs: map[string]store.Status{}}
}

func (f *fakeStatus) Set(ctx context.Context, jobID string, st store.Status) error {
    f.mu.Lock()
    defer f.mu.Unlock()
    f.jobs[jobID] = st
    return nil
}

func (f *fakeStatus) Update(ctx context.Context, jobID string, fields map[string]interface{}) error {
    f.mu.Lock()
    defer f.mu.Unlock()
    st := f.jobs[jobID]
    for k, v := range fields {
        switch k {
        case "state":
            st.State = v.(string)
        case "message":
            st.Message = v.(string)
        case "error":
            st.Error = v.(string)
        case "progress":
            st.Progress = v.(int)
        case "total_chunks":
            st.TotalChunks = v.(int)
        case "result_path":
            st.ResultPath = v.(string)
        case "result_name":
            st.ResultName = v.(string)
        case "result_mime":
            st.ResultMIME = v.(string)
        case "end":
            ts, _ := time.Parse(time.RFC3339Nano, v.(string))
            st.End = &ts
        }
    }
    f.jobs[jobID] = st
    return nil
}

func (f *fakeStatus) Get(ctx context.Context, jobID string) (store.Status, bool, error) {
    f.mu.Lock()
    defer f.mu.Unlock()
    st, ok := f.jobs[jobID]
    return st, ok, nil
}

func (f *fakeStatus) get(jobID string) store.Status {
    f.mu.Lock()
    defer f.mu.Unlock()
    return f.jobs[jobID]
}

type fakeChunks struct {
    mu      sync.Mutex
    chunks  map[string]map[int]string
    dropped []string
}

func newFakeChunks() *fakeChunks {
    return &fakeChunks{chunks: map[string]map[int]string{}}
}

func (f *fakeChunks) SaveChunk(ctx context.Context, jobID string, chunk int, text, provider, model string) (int64, error) {
    f.mu.Lock()
    defer f.mu.Unlock()
    if f.chunks[jobID] == nil {
        f.chunks[jobID] = map[int]string{}
    }
    f.chunks[jobID][chunk] = text
    return int64(len(f.chunks[jobID])), nil
}

func (f *fakeChunks) GetChunk(ctx context.Context, jobID string, chunk int) (string, error) {
    f.mu.Lock()
    defer f.mu.Unlock()
    return f.chunks[jobID][chunk], nil
}

func (f *fakeChunks) DoneCount(ctx context.Context, jobID string) (int64, error) {
    f.mu.Lock()
    defer f.mu.Unlock()
    return int64(len(f.chunks[jobID])), nil
}

func (f *fakeChunks) AggregateText(ctx context.Context, jobID string, total int) (string, error) {
    f.mu.Lock()
    defer f.mu.Unlock()
    parts := []string{}
    for i := 1; i <= total; i++ {
        if t := f.chunks[jobID][i]; t != "" {
            parts = append(parts, t)
        }
    }
    return strings.Join(parts, "\n\n"), nil
}

func (f *fakeChunks) Drop(ctx context.Context, jobID string, total int) error {
    f.mu.Lock()
    defer f.mu.Unlock()
    delete(f.chunks, jobID)
    f.dropped = append(f.dropped, jobID)
    return nil
}

type fakeExtract struct {
    pages []string
    err   error
}

func (f *fakeExtract) IsAvailable() bool { return true }

func (f *fakeExtract) GetPageCount(pdfPath string) (int, error) {
    if f.err != nil {
        return 0, f.err
    }
    return len(f.pages), nil
}

func (f *fakeExtract) ExtractText(pdfPath string) (string, error) {
    return strings.Join(f.pages, "\n"), f.err
}

func (f *fakeExtract) ExtractTextByPage(pdfPath string, pageNum int) (string, error) {
    if f.err != nil {
        return "", f.err
    }
    return f.pages[pageNum-1], nil
}

// ---- helpers ----

var pdfBytes = []byte("%PDF-1.4\n1 0 obj\n<< /Type /Catalog >>\nendobj\ntrailer\n<< /Root 1 0 R >>\n%%EOF\n")

func testConf(t *testing.T) cfgpkg.Config {
    t.Helper()
    var conf cfgpkg.Config
    conf.Storage.WorkDir = t.TempDir()
    conf.Storage.MaxUploadMB = 10
    conf.Providers.ChunkChars = 8000
    conf.Worker.ToolTimeout = 5 * time.Minute
    conf.Worker.RequestTimeout = time.Minute
    return conf
}

type testEnv struct {
    srv    *Server
    mux    *http.ServeMux
    q      *fakeQueue
    status *fakeStatus
    chunks *fakeChunks
    ext    *fakeExtract
}

func newTestEnv(t *testing.T) *testEnv {
    t.Helper()
    env := &testEnv{
        q:      newFakeQueue(),
        status: newFakeStatus(),
        chunks: newFakeChunks(),
        ext:    &fakeExtract{pages: []string{"alpha page text", "beta page text"}},
    }
    env.srv = New(testConf(t), Dependencies{
        Queue:   env.q,
        Status:  env.status,
        Chunks:  env.chunks,
        Extract: env.ext,
    })
    env.mux = http.NewServeMux()
    env.srv.RegisterRoutes(env.mux)
    return env
}

func multipartUpload(t *testing.T, tool string, fields map[string]string, files map[string][]byte) *http.Request {
    t.Helper()
    var buf bytes.Buffer
    mw := multipart.NewWriter(&buf)
    require.NoError(t, mw.WriteField("tool", tool))
    for k, v := range fields {
        require.NoError(t, mw.WriteField(k, v))
    }
    for name, data := range files {
        fw, err := mw.CreateFormFile("files", name)
        require.NoError(t, err)
        _, err = fw.Write(data)
        require.NoError(t, err)
    }
    require.NoError(t, mw.Close())
    req := httptest.NewRequest(http.MethodPost, "/api/process", &buf)
    req.Header.Set("Content-Type", mw.FormDataContentType())
    return req
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
    t.Helper()
    var m map[string]any
    require.NoError(t, json.NewDecoder(rec.Body).Decode(&m))
    return m
}

// ---- process ----

func TestProcessUnknownTool(t *testing.T) {
    env := newTestEnv(t)
    req := multipartUpload(t, "shred-pdf", nil, map[string][]byte{"a.pdf": pdfBytes})
    rec := httptest.NewRecorder()
    env.mux.ServeHTTP(rec, req)
    assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestProcessWrongFileCount(t *testing.T) {
    env := newTestEnv(t)
    req := multipartUpload(t, "merge-pdf", nil, map[string][]byte{"a.pdf": pdfBytes})
    rec := httptest.NewRecorder()
    env.mux.ServeHTTP(rec, req)
    assert.Equal(t, http.StatusBadRequest, rec.Code)
    assert.Contains(t, decodeBody(t, rec)["error"], "takes 2-20 files, got 1")
}

func TestProcessRejectsWrongContent(t *testing.T) {
    env := newTestEnv(t)
    req := multipartUpload(t, "compress-pdf", nil, map[string][]byte{"notes.pdf": []byte("just some plain text")})
    rec := httptest.NewRecorder()
    env.mux.ServeHTTP(rec, req)
    assert.Equal(t, http.StatusBadRequest, rec.Code)
    assert.Contains(t, decodeBody(t, rec)["error"], "does not accept")
    assert.Empty(t, env.q.enqueued)
}

func TestProcessEnqueuesToolJob(t *testing.T) {
    env := newTestEnv(t)
    req := multipartUpload(t, "compress-pdf", map[string]string{"quality": "low"}, map[string][]byte{"report.pdf": pdfBytes})
    rec := httptest.NewRecorder()
    env.mux.ServeHTTP(rec, req)
    require.Equal(t, http.StatusCreated, rec.Code)

    body := decodeBody(t, rec)
    jobID, _ := body["job_id"].(string)
    require.NotEmpty(t, jobID)
    assert.Equal(t, store.StateQueued, body["status"])

    tasks := env.q.tasks(t)
    require.Len(t, tasks, 1)
    assert.Equal(t, queue.KindTool, tasks[0].Kind)
    assert.Equal(t, "compress-pdf", tasks[0].Tool)
    assert.Equal(t, jobID, tasks[0].JobID)
    assert.Equal(t, "low", tasks[0].Options["quality"])
    require.Len(t, tasks[0].Inputs, 1)
    assert.Equal(t, "report.pdf", tasks[0].Inputs[0].OriginalName)
    assert.FileExists(t, tasks[0].Inputs[0].Path)

    st := env.status.get(jobID)
    assert.Equal(t, store.StateQueued, st.State)
    assert.Equal(t, "compress-pdf", st.Tool)
}

func TestProcessQueueUnavailable(t *testing.T) {
    env := newTestEnv(t)
    env.q.failEnq = true
    req := multipartUpload(t, "compress-pdf", nil, map[string][]byte{"report.pdf": pdfBytes})
    rec := httptest.NewRecorder()
    env.mux.ServeHTTP(rec, req)
    assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestProcessAIJobFansOutChunks(t *testing.T) {
    env := newTestEnv(t)
    req := multipartUpload(t, "ai-summarizer", nil, map[string][]byte{"paper.pdf": pdfBytes})
    rec := httptest.NewRecorder()
    env.mux.ServeHTTP(rec, req)
    require.Equal(t, http.StatusCreated, rec.Code)

    jobID := decodeBody(t, rec)["job_id"].(string)
    tasks := env.q.tasks(t)
    require.Len(t, tasks, 1) // two small pages fit one chunk
    assert.Equal(t, queue.KindAIChunk, tasks[0].Kind)
    assert.Equal(t, 1, tasks[0].ChunkID)
    assert.Equal(t, 1, tasks[0].TotalChunks)
    assert.Contains(t, tasks[0].Text, "alpha page text")
    assert.Contains(t, tasks[0].Text, "beta page text")

    st := env.status.get(jobID)
    assert.Equal(t, store.StateProcessing, st.State)
    assert.Equal(t, 1, st.TotalChunks)
}

func TestProcessAIJobNoText(t *testing.T) {
    env := newTestEnv(t)
    env.ext.pages = []string{"", "  "}
    req := multipartUpload(t, "ai-summarizer", nil, map[string][]byte{"scan.pdf": pdfBytes})
    rec := httptest.NewRecorder()
    env.mux.ServeHTTP(rec, req)
    assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
    assert.Contains(t, decodeBody(t, rec)["error"], "run ocr-pdf first")
}

func TestProcessAIJobMissingOption(t *testing.T) {
    env := newTestEnv(t)
    req := multipartUpload(t, "ai-translator", nil, map[string][]byte{"paper.pdf": pdfBytes})
    rec := httptest.NewRecorder()
    env.mux.ServeHTTP(rec, req)
    assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
    assert.Contains(t, decodeBody(t, rec)["error"], "language")
    assert.Empty(t, env.q.enqueued)
}

func TestCollectOptionsJSONBlobOverrides(t *testing.T) {
    env := newTestEnv(t)
    req := multipartUpload(t, "compress-pdf",
        map[string]string{"quality": "high", "options": `{"quality":"low","dpi":"150"}`},
        map[string][]byte{"a.pdf": pdfBytes})
    rec := httptest.NewRecorder()
    env.mux.ServeHTTP(rec, req)
    require.Equal(t, http.StatusCreated, rec.Code)

    tasks := env.q.tasks(t)
    require.Len(t, tasks, 1)
    assert.Equal(t, "low", tasks[0].Options["quality"])
    assert.Equal(t, "150", tasks[0].Options["dpi"])
    assert.NotContains(t, tasks[0].Options, "tool")
}

// ---- job status / download / cancel ----

func TestJobStatusNotFound(t *testing.T) {
    env := newTestEnv(t)
    req := httptest.NewRequest(http.MethodGet, "/api/jobs/nope", nil)
    rec := httptest.NewRecorder()
    env.mux.ServeHTTP(rec, req)
    assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestJobStatusDoneIncludesDownloadURL(t *testing.T) {
    env := newTestEnv(t)
    _ = env.status.Set(context.Background(), "j-1", store.Status{
        State: store.StateDone, Tool: "compress-pdf", Progress: 100,
        ResultName: "report_compressed.pdf",
    })
    req := httptest.NewRequest(http.MethodGet, "/api/jobs/j-1", nil)
    rec := httptest.NewRecorder()
    env.mux.ServeHTTP(rec, req)
    require.Equal(t, http.StatusOK, rec.Code)
    body := decodeBody(t, rec)
    assert.Equal(t, "/api/jobs/j-1/download", body["download_url"])
    assert.Equal(t, "report_compressed.pdf", body["result_name"])
}

func TestDownloadNotReady(t *testing.T) {
    env := newTestEnv(t)
    _ = env.status.Set(context.Background(), "j-1", store.Status{State: store.StateProcessing})
    req := httptest.NewRequest(http.MethodGet, "/api/jobs/j-1/download", nil)
    rec := httptest.NewRecorder()
    env.mux.ServeHTTP(rec, req)
    assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestDownloadServesResult(t *testing.T) {
    env := newTestEnv(t)
    path := filepath.Join(t.TempDir(), "out.txt")
    require.NoError(t, os.WriteFile(path, []byte("hello"), 0o644))
    _ = env.status.Set(context.Background(), "j-1", store.Status{
        State: store.StateDone, ResultPath: path, ResultName: "paper_summary.txt", ResultMIME: "text/plain",
    })
    req := httptest.NewRequest(http.MethodGet, "/api/jobs/j-1/download", nil)
    rec := httptest.NewRecorder()
    env.mux.ServeHTTP(rec, req)
    require.Equal(t, http.StatusOK, rec.Code)
    assert.Equal(t, "hello", rec.Body.String())
    assert.Contains(t, rec.Header().Get("Content-Disposition"), "paper_summary.txt")
}

func TestDownloadExpiredResult(t *testing.T) {
    env := newTestEnv(t)
    _ = env.status.Set(context.Background(), "j-1", store.Status{
        State: store.StateDone, ResultPath: "/nonexistent/out.txt", ResultName: "out.txt",
    })
    req := httptest.NewRequest(http.MethodGet, "/api/jobs/j-1/download", nil)
    rec := httptest.NewRecorder()
    env.mux.ServeHTTP(rec, req)
    assert.Equal(t, http.StatusGone, rec.Code)
}

func TestCancelJob(t *testing.T) {
    env := newTestEnv(t)
    _ = env.status.Set(context.Background(), "j-1", store.Status{State: store.StateProcessing})
    req := httptest.NewRequest(http.MethodPost, "/api/jobs/j-1/cancel", nil)
    rec := httptest.NewRecorder()
    env.mux.ServeHTTP(rec, req)
    require.Equal(t, http.StatusOK, rec.Code)
    assert.True(t, env.q.cancelled["j-1"])
    assert.Equal(t, store.StateCancelled, env.status.get("j-1").State)
}

func TestCancelTerminalJob(t *testing.T) {
    env := newTestEnv(t)
    _ = env.status.Set(context.Background(), "j-1", store.Status{State: store.StateDone})
    req := httptest.NewRequest(http.MethodPost, "/api/jobs/j-1/cancel", nil)
    rec := httptest.NewRecorder()
    env.mux.ServeHTTP(rec, req)
    assert.Equal(t, http.StatusConflict, rec.Code)
    assert.False(t, env.q.cancelled["j-1"])
}

// ---- internal callbacks ----

func TestJobDoneCallback(t *testing.T) {
    env := newTestEnv(t)
    _ = env.status.Set(context.Background(), "j-1", store.Status{State: store.StateProcessing, Tool: "compress-pdf"})

    body, _ := json.Marshal(jobDoneBody{Path: "/tmp/x/out.pdf", Name: "report_compressed.pdf", MIME: "application/pdf"})
    req := httptest.NewRequest(http.MethodPost, "/internal/job_done?job_id=j-1", bytes.NewReader(body))
    rec := httptest.NewRecorder()
    env.mux.ServeHTTP(rec, req)
    require.Equal(t, http.StatusNoContent, rec.Code)

    st := env.status.get("j-1")
    assert.Equal(t, store.StateDone, st.State)
    assert.Equal(t, 100, st.Progress)
    assert.Equal(t, "/tmp/x/out.pdf", st.ResultPath)
    assert.Equal(t, "report_compressed.pdf", st.ResultName)
    require.NotNil(t, st.End)
}

func TestJobDoneIgnoresTerminalJob(t *testing.T) {
    env := newTestEnv(t)
    _ = env.status.Set(context.Background(), "j-1", store.Status{State: store.StateCancelled})
    body, _ := json.Marshal(jobDoneBody{Path: "/tmp/out.pdf", Name: "out.pdf"})
    req := httptest.NewRequest(http.MethodPost, "/internal/job_done?job_id=j-1", bytes.NewReader(body))
    rec := httptest.NewRecorder()
    env.mux.ServeHTTP(rec, req)
    assert.Equal(t, http.StatusNoContent, rec.Code)
    assert.Equal(t, store.StateCancelled, env.status.get("j-1").State)
}

func TestJobFailedCallback(t *testing.T) {
    env := newTestEnv(t)
    _ = env.status.Set(context.Background(), "j-1", store.Status{State: store.StateProcessing})
    req := httptest.NewRequest(http.MethodPost, "/internal/job_failed?job_id=j-1",
        strings.NewReader(`{"error":"pdf is encrypted"}`))
    rec := httptest.NewRecorder()
    env.mux.ServeHTTP(rec, req)
    require.Equal(t, http.StatusNoContent, rec.Code)
    st := env.status.get("j-1")
    assert.Equal(t, store.StateFailed, st.State)
    assert.Equal(t, "pdf is encrypted", st.Error)
}

func TestChunkDoneUpdatesProgress(t *testing.T) {
    env := newTestEnv(t)
    _ = env.status.Set(context.Background(), "j-1", store.Status{State: store.StateProcessing, TotalChunks: 4})

    req := httptest.NewRequest(http.MethodPost, "/internal/chunk_done?job_id=j-1&chunk_id=1",
        strings.NewReader(`{"text":"part one","provider":"gemini","model":"gemini-2.0-flash"}`))
    rec := httptest.NewRecorder()
    env.mux.ServeHTTP(rec, req)
    require.Equal(t, http.StatusNoContent, rec.Code)
    assert.Equal(t, 25, env.status.get("j-1").Progress)

    // progress is capped below 100, finalization owns the last step
    for i := 2; i <= 4; i++ {
        req := httptest.NewRequest(http.MethodPost,
            fmt.Sprintf("/internal/chunk_done?job_id=j-1&chunk_id=%d", i),
            strings.NewReader(`{"text":"part"}`))
        env.mux.ServeHTTP(httptest.NewRecorder(), req)
    }
    assert.Equal(t, 99, env.status.get("j-1").Progress)
}

func TestChunkDoneBadChunkID(t *testing.T) {
    env := newTestEnv(t)
    req := httptest.NewRequest(http.MethodPost, "/internal/chunk_done?job_id=j-1&chunk_id=zero", nil)
    rec := httptest.NewRecorder()
    env.mux.ServeHTTP(rec, req)
    assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// ---- finalization ----

func TestFinalizeJoinsChunks(t *testing.T) {
    env := newTestEnv(t)
    ctx := context.Background()
    workDir := t.TempDir()
    _ = env.status.Set(ctx, "j-1", store.Status{State: store.StateProcessing, Tool: "ai-summarizer", TotalChunks: 2})
    _, _ = env.chunks.SaveChunk(ctx, "j-1", 1, "first summary", "gemini", "m")
    _, _ = env.chunks.SaveChunk(ctx, "j-1", 2, "second summary", "gemini", "m")

    tool, _ := tools.BySlug("ai-summarizer")
    env.srv.finalizeAIJob(ctx, "j-1", tool, queue.TaskInput{OriginalName: "paper.pdf"}, nil, workDir, 2, false)

    st := env.status.get("j-1")
    assert.Equal(t, store.StateDone, st.State)
    assert.Equal(t, "paper_summary.txt", st.ResultName)
    assert.Equal(t, "completed", st.Message)
    data, err := os.ReadFile(st.ResultPath)
    require.NoError(t, err)
    assert.Equal(t, "first summary\n\nsecond summary", string(data))
    assert.Contains(t, env.chunks.dropped, "j-1")
}

func TestFinalizeChatFiltersNoAnswerChunks(t *testing.T) {
    env := newTestEnv(t)
    ctx := context.Background()
    _ = env.status.Set(ctx, "j-1", store.Status{State: store.StateProcessing, TotalChunks: 2})
    _, _ = env.chunks.SaveChunk(ctx, "j-1", 1, "NO ANSWER IN THIS PART.", "g", "m")
    _, _ = env.chunks.SaveChunk(ctx, "j-1", 2, "The deadline is March 3.", "g", "m")

    tool, _ := tools.BySlug("ai-chat")
    env.srv.finalizeAIJob(ctx, "j-1", tool, queue.TaskInput{OriginalName: "contract.pdf"}, nil, t.TempDir(), 2, false)

    st := env.status.get("j-1")
    require.Equal(t, store.StateDone, st.State)
    data, _ := os.ReadFile(st.ResultPath)
    assert.Equal(t, "The deadline is March 3.", string(data))
}

func TestFinalizeTableExtractUsesCSV(t *testing.T) {
    env := newTestEnv(t)
    ctx := context.Background()
    _ = env.status.Set(ctx, "j-1", store.Status{State: store.StateProcessing, TotalChunks: 1})
    _, _ = env.chunks.SaveChunk(ctx, "j-1", 1, "a,b\n1,2", "g", "m")

    tool, _ := tools.BySlug("ai-table-extract")
    env.srv.finalizeAIJob(ctx, "j-1", tool, queue.TaskInput{OriginalName: "data.pdf"}, nil, t.TempDir(), 1, false)

    st := env.status.get("j-1")
    assert.Equal(t, "data_tables.csv", st.ResultName)
    assert.Equal(t, "text/csv", st.ResultMIME)
}

func TestFinalizeWithNoOutputFails(t *testing.T) {
    env := newTestEnv(t)
    ctx := context.Background()
    _ = env.status.Set(ctx, "j-1", store.Status{State: store.StateProcessing, TotalChunks: 2})

    tool, _ := tools.BySlug("ai-summarizer")
    env.srv.finalizeAIJob(ctx, "j-1", tool, queue.TaskInput{OriginalName: "x.pdf"}, nil, t.TempDir(), 2, false)

    st := env.status.get("j-1")
    assert.Equal(t, store.StateFailed, st.State)
    assert.Equal(t, "no chunk produced output", st.Error)
}

func TestFinalizePartialMessage(t *testing.T) {
    env := newTestEnv(t)
    ctx := context.Background()
    _ = env.status.Set(ctx, "j-1", store.Status{State: store.StateProcessing, TotalChunks: 3})
    _, _ = env.chunks.SaveChunk(ctx, "j-1", 1, "only part", "g", "m")

    tool, _ := tools.BySlug("ai-summarizer")
    env.srv.finalizeAIJob(ctx, "j-1", tool, queue.TaskInput{OriginalName: "x.pdf"}, nil, t.TempDir(), 3, true)

    st := env.status.get("j-1")
    assert.Equal(t, store.StateDone, st.State)
    assert.Equal(t, "completed with partial results (1 of 3 chunks)", st.Message)
}

func TestUploadBase(t *testing.T) {
    cases := map[string]string{
        "paper.pdf":            "paper",
        "My Report (v2).pdf":   "My_Report__v2_",
        "":                     "document",
        "résumé.pdf":           "r_sum_",
    }
    for in, want := range cases {
        assert.Equal(t, want, uploadBase(in), "input %q", in)
    }
}

// ---- cleanup ----

func TestCleanupWorkDirs(t *testing.T) {
    env := newTestEnv(t)
    env.srv.conf.Storage.Retention = time.Hour

    workDir := env.srv.conf.Storage.WorkDir
    oldDir := filepath.Join(workDir, "old-job")
    newDir := filepath.Join(workDir, "new-job")
    require.NoError(t, os.Mkdir(oldDir, 0o755))
    require.NoError(t, os.Mkdir(newDir, 0o755))
    past := time.Now().Add(-2 * time.Hour)
    require.NoError(t, os.Chtimes(oldDir, past, past))

    env.srv.cleanupWorkDirs()

    assert.NoDirExists(t, oldDir)
    assert.DirExists(t, newDir)
}
