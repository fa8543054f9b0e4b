package dispatcher

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/local/blinkpdf/internal/ai"
	cfgpkg "github.com/local/blinkpdf/internal/config"
	"github.com/local/blinkpdf/internal/pdf"
	"github.com/local/blinkpdf/internal/queue"
	"github.com/local/blinkpdf/internal/tools"
)

type fakeClient struct {
	name  string
	resp  ai.Response
	err   error
	calls []ai.Request
}

func (f *fakeClient) Name() string { return f.name }
func (f *fakeClient) Do(ctx context.Context, req ai.Request) (ai.Response, error) {
	f.calls = append(f.calls, req)
	return f.resp, f.err
}

type fakeBreaker struct {
	open   map[string]bool
	opened []string
	closed []string
}

func (f *fakeBreaker) IsCircuitOpen(ctx context.Context, provider, model string) bool {
	return f.open[provider+":"+model]
}
func (f *fakeBreaker) OpenCircuitBreaker(ctx context.Context, provider, model string) {
	f.opened = append(f.opened, provider+":"+model)
}
func (f *fakeBreaker) CloseCircuitBreaker(ctx context.Context, provider, model string) {
	f.closed = append(f.closed, provider+":"+model)
}

type openLimiter struct{}

func (openLimiter) Allow(provider, model string) (func(), bool) { return func() {}, true }

type fakeQueue struct {
	mu        sync.Mutex
	cancelled map[string]bool
	idemDone  map[string]bool
	delayed   [][]byte
	dlq       []string
}

func newFakeQueue() *fakeQueue {
	return &fakeQueue{cancelled: map[string]bool{}, idemDone: map[string]bool{}}
}

func (f *fakeQueue) Dequeue(ctx context.Context, consumer string, timeout time.Duration) (string, []byte, error) {
	return "", nil, nil
}
func (f *fakeQueue) Ack(ctx context.Context, msgID string) error { return nil }
func (f *fakeQueue) IsCancelled(ctx context.Context, jobID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cancelled[jobID], nil
}
func (f *fakeQueue) IsIdemDone(ctx context.Context, key string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.idemDone[key], nil
}
func (f *fakeQueue) MarkIdemDone(ctx context.Context, key string, ttl time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.idemDone[key] = true
	return nil
}
func (f *fakeQueue) EnqueueDelayed(ctx context.Context, payload []byte, executeAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.delayed = append(f.delayed, payload)
	return nil
}
func (f *fakeQueue) AddDLQ(ctx context.Context, payload []byte, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dlq = append(f.dlq, reason)
	return nil
}

type fakeEngine struct {
	out  pdf.Output
	err  error
	runs int
}

func (f *fakeEngine) Run(ctx context.Context, tool *tools.Tool, inputs []pdf.Input, opts pdf.Options, workDir string) (pdf.Output, error) {
	f.runs++
	return f.out, f.err
}

func testConf() cfgpkg.Config {
	conf := cfgpkg.Config{}
	conf.Providers.PrimaryEngine = "gemini"
	conf.Providers.SecondaryEngine = "openai"
	conf.Providers.Gemini.Primary = "gemini-2.0-flash"
	conf.Providers.Gemini.Secondary = "gemini-1.5-pro"
	conf.Providers.OpenAI.Primary = "gpt-4.1"
	conf.Providers.OpenAI.Secondary = "gpt-4o"
	conf.Worker.RequestTimeout = time.Minute
	conf.Worker.ToolTimeout = time.Minute
	conf.Worker.JobMaxAttempts = 3
	conf.Worker.RetryBaseDelay = time.Millisecond
	conf.Worker.RetryBackoffFactor = 2.0
	return conf
}

func newTestWorker(q Queue, engine ToolRunner, gemini, openai ai.Client, br Breaker) *Worker {
	w := New(testConf(), q, engine, br, openLimiter{})
	w.gemini = gemini
	w.openai = openai
	return w
}

func chunkTask() queue.Task {
	return queue.Task{
		JobID:       "j-1",
		Kind:        queue.KindAIChunk,
		Tool:        "ai-summarizer",
		ChunkID:     1,
		TotalChunks: 2,
		Text:        "some document text",
	}
}

func TestFailoverPrimarySucceeds(t *testing.T) {
	gem := &fakeClient{name: "gemini", resp: ai.Response{Text: "summary"}}
	oai := &fakeClient{name: "openai"}
	br := &fakeBreaker{open: map[string]bool{}}
	w := newTestWorker(newFakeQueue(), nil, gem, oai, br)

	ok, provider, model, text, err := w.processChunkWithFailover(context.Background(), chunkTask())
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "gemini", provider)
	assert.Equal(t, "gemini-2.0-flash", model)
	assert.Equal(t, "summary", text)
	assert.Len(t, gem.calls, 1)
	assert.Empty(t, oai.calls)
	assert.Contains(t, br.closed, "gemini:gemini-2.0-flash")
}

func TestFailoverFallsThroughToOpenAI(t *testing.T) {
	gem := &fakeClient{name: "gemini", err: ai.ErrRateLimited}
	oai := &fakeClient{name: "openai", resp: ai.Response{Text: "answer"}}
	br := &fakeBreaker{open: map[string]bool{}}
	w := newTestWorker(newFakeQueue(), nil, gem, oai, br)

	ok, provider, model, text, err := w.processChunkWithFailover(context.Background(), chunkTask())
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "openai", provider)
	assert.Equal(t, "gpt-4.1", model)
	assert.Equal(t, "answer", text)
	// both gemini models tried and opened
	assert.Len(t, gem.calls, 2)
	assert.Contains(t, br.opened, "gemini:gemini-2.0-flash")
	assert.Contains(t, br.opened, "gemini:gemini-1.5-pro")
}

func TestFailoverSkipsOpenBreaker(t *testing.T) {
	gem := &fakeClient{name: "gemini", resp: ai.Response{Text: "late summary"}}
	oai := &fakeClient{name: "openai", resp: ai.Response{Text: "unused"}}
	br := &fakeBreaker{open: map[string]bool{"gemini:gemini-2.0-flash": true}}
	w := newTestWorker(newFakeQueue(), nil, gem, oai, br)

	ok, provider, model, _, err := w.processChunkWithFailover(context.Background(), chunkTask())
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "gemini", provider)
	assert.Equal(t, "gemini-1.5-pro", model)
	assert.Len(t, gem.calls, 1)
}

func TestFailoverExhausted(t *testing.T) {
	gem := &fakeClient{name: "gemini", err: ai.ErrRateLimited}
	oai := &fakeClient{name: "openai", err: ai.ErrRateLimited}
	br := &fakeBreaker{open: map[string]bool{}}
	w := newTestWorker(newFakeQueue(), nil, gem, oai, br)

	ok, _, _, _, err := w.processChunkWithFailover(context.Background(), chunkTask())
	assert.False(t, ok)
	assert.Error(t, err)
	assert.Len(t, gem.calls, 2)
	assert.Len(t, oai.calls, 2)
}

func TestFailoverFatalStopsChain(t *testing.T) {
	gem := &fakeClient{name: "gemini", err: &ValidationError{Message: "bad request"}}
	oai := &fakeClient{name: "openai", resp: ai.Response{Text: "unused"}}
	br := &fakeBreaker{open: map[string]bool{}}
	w := newTestWorker(newFakeQueue(), nil, gem, oai, br)

	ok, _, _, _, err := w.processChunkWithFailover(context.Background(), chunkTask())
	assert.False(t, ok)
	assert.Error(t, err)
	assert.Empty(t, oai.calls)
}

func TestFailoverBadToolOptionsFatal(t *testing.T) {
	gem := &fakeClient{name: "gemini"}
	w := newTestWorker(newFakeQueue(), nil, gem, gem, &fakeBreaker{open: map[string]bool{}})

	task := chunkTask()
	task.Tool = "ai-translator" // missing language option
	ok, _, _, _, err := w.processChunkWithFailover(context.Background(), task)
	assert.False(t, ok)
	assert.True(t, isFatalError(err))
	assert.Empty(t, gem.calls)
}

func TestRunToolPostsJobDone(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path + "?" + r.URL.RawQuery
	}))
	defer srv.Close()

	q := newFakeQueue()
	engine := &fakeEngine{out: pdf.Output{Path: "/tmp/out.pdf", Name: "doc_merged.pdf", MIME: "application/pdf"}}
	w := newTestWorker(q, engine, &fakeClient{}, &fakeClient{}, &fakeBreaker{open: map[string]bool{}})
	w.conf.HTTP.InternalBase = srv.URL

	task := queue.Task{JobID: "j-2", Kind: queue.KindTool, Tool: "merge-pdf", Inputs: []queue.TaskInput{{Path: "a.pdf"}, {Path: "b.pdf"}}}
	raw, _ := task.Encode()
	w.handle(task, raw)

	assert.Equal(t, 1, engine.runs)
	assert.Equal(t, "/internal/job_done?job_id=j-2", gotPath)
	assert.True(t, q.idemDone["j-2"])
}

func TestRunToolRetriesThenDLQ(t *testing.T) {
	var failedCalls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		failedCalls++
	}))
	defer srv.Close()

	q := newFakeQueue()
	engine := &fakeEngine{err: errors.New("connection refused")}
	w := newTestWorker(q, engine, &fakeClient{}, &fakeClient{}, &fakeBreaker{open: map[string]bool{}})
	w.conf.HTTP.InternalBase = srv.URL

	task := queue.Task{JobID: "j-3", Kind: queue.KindTool, Tool: "optimize-pdf", Inputs: []queue.TaskInput{{Path: "a.pdf"}}}
	raw, _ := task.Encode()

	// first failure: requeued with attempt bumped
	w.handle(task, raw)
	require.Len(t, q.delayed, 1)
	assert.Empty(t, q.dlq)

	next, err := queue.DecodeTask(q.delayed[0])
	require.NoError(t, err)
	assert.Equal(t, 1, next.Attempt)

	// last allowed attempt: DLQ + job_failed
	last := task
	last.Attempt = 2
	raw2, _ := last.Encode()
	w.handle(last, raw2)
	assert.Len(t, q.dlq, 1)
	assert.Equal(t, 1, failedCalls)
}

func TestHandleSkipsCancelledAndDone(t *testing.T) {
	q := newFakeQueue()
	q.cancelled["j-4"] = true
	engine := &fakeEngine{}
	w := newTestWorker(q, engine, &fakeClient{}, &fakeClient{}, &fakeBreaker{open: map[string]bool{}})

	task := queue.Task{JobID: "j-4", Kind: queue.KindTool, Tool: "optimize-pdf"}
	raw, _ := task.Encode()
	w.handle(task, raw)
	assert.Zero(t, engine.runs)

	q2 := newFakeQueue()
	q2.idemDone["j-5"] = true
	w2 := newTestWorker(q2, engine, &fakeClient{}, &fakeClient{}, &fakeBreaker{open: map[string]bool{}})
	task2 := queue.Task{JobID: "j-5", Kind: queue.KindTool, Tool: "optimize-pdf"}
	raw2, _ := task2.Encode()
	w2.handle(task2, raw2)
	assert.Zero(t, engine.runs)
}
