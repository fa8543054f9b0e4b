package dispatcher

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/local/blinkpdf/internal/ai"
	cfgpkg "github.com/local/blinkpdf/internal/config"
	mpkg "github.com/local/blinkpdf/internal/metrics"
	"github.com/local/blinkpdf/internal/pdf"
	"github.com/local/blinkpdf/internal/queue"
	"github.com/local/blinkpdf/internal/tools"
)

type Queue interface {
	Dequeue(ctx context.Context, consumer string, timeout time.Duration) (string, []byte, error)
	Ack(ctx context.Context, msgID string) error
	IsCancelled(ctx context.Context, jobID string) (bool, error)
	IsIdemDone(ctx context.Context, key string) (bool, error)
	MarkIdemDone(ctx context.Context, key string, ttl time.Duration) error
	EnqueueDelayed(ctx context.Context, payload []byte, executeAt time.Time) error
	AddDLQ(ctx context.Context, payload []byte, reason string) error
}

// ToolRunner executes one PDF tool operation.
type ToolRunner interface {
	Run(ctx context.Context, tool *tools.Tool, inputs []pdf.Input, opts pdf.Options, workDir string) (pdf.Output, error)
}

// Breaker gates provider/model attempts.
type Breaker interface {
	IsCircuitOpen(ctx context.Context, provider, model string) bool
	OpenCircuitBreaker(ctx context.Context, provider, model string)
	CloseCircuitBreaker(ctx context.Context, provider, model string)
}

// Limiter bounds in-process inflight calls per provider/model.
type Limiter interface {
	Allow(provider, model string) (func(), bool)
}

type Worker struct {
	conf    cfgpkg.Config
	q       Queue
	engine  ToolRunner
	gemini  ai.Client
	openai  ai.Client
	breaker Breaker
	lim     Limiter
	http    *http.Client
	stop    chan struct{}
}

func New(conf cfgpkg.Config, q Queue, engine ToolRunner, breaker Breaker, lim Limiter) *Worker {
	return &Worker{
		conf:    conf,
		q:       q,
		engine:  engine,
		gemini:  ai.NewGeminiClient(),
		openai:  ai.NewOpenAIClient(),
		breaker: breaker,
		lim:     lim,
		http:    &http.Client{Timeout: 10 * time.Second},
		stop:    make(chan struct{}),
	}
}

func (w *Worker) Start() {
	n := w.conf.Worker.Concurrency
	if n <= 0 {
		n = 2
	}
	for i := 0; i < n; i++ {
		go w.loop(i)
	}
}

func (w *Worker) Stop(ctx context.Context) error {
	close(w.stop)
	return nil
}

func (w *Worker) loop(id int) {
	log.Info().Int("worker", id).Msg("dispatcher worker started")
	consumer := fmt.Sprintf("worker-%d", id)
	for {
		select {
		case <-w.stop:
			log.Info().Int("worker", id).Msg("dispatcher worker stopped")
			return
		default:
		}

		msgID, data, err := w.q.Dequeue(context.Background(), consumer, 2*time.Second)
		if err != nil {
			log.Error().Err(err).Msg("queue dequeue error")
			time.Sleep(500 * time.Millisecond)
			continue
		}
		if data == nil {
			continue
		}

		task, err := queue.DecodeTask(data)
		if err != nil {
			log.Error().Err(err).Str("msg_id", msgID).Msg("dropping undecodable task")
			_ = w.q.AddDLQ(context.Background(), data, "undecodable")
			_ = w.q.Ack(context.Background(), msgID)
			continue
		}

		w.handle(task, data)
		_ = w.q.Ack(context.Background(), msgID)
	}
}

func (w *Worker) handle(task queue.Task, raw []byte) {
	ctx := context.Background()

	if cancelled, _ := w.q.IsCancelled(ctx, task.JobID); cancelled {
		log.Warn().Str("job_id", task.JobID).Msg("job cancelled before processing; skipping")
		return
	}
	if done, _ := w.q.IsIdemDone(ctx, task.IdemKey()); done {
		log.Debug().Str("job_id", task.JobID).Int("chunk_id", task.ChunkID).Msg("task already done; skipping redelivery")
		return
	}

	switch task.Kind {
	case queue.KindTool:
		w.runTool(ctx, task, raw)
	case queue.KindAIChunk:
		w.runChunk(ctx, task, raw)
	default:
		log.Error().Str("job_id", task.JobID).Str("kind", task.Kind).Msg("unknown task kind")
		_ = w.q.AddDLQ(ctx, raw, "unknown kind")
	}
}

func (w *Worker) runTool(ctx context.Context, task queue.Task, raw []byte) {
	tool, err := tools.BySlug(task.Tool)
	if err != nil {
		w.postJobFailed(task.JobID, err.Error())
		return
	}

	inputs := make([]pdf.Input, 0, len(task.Inputs))
	for _, in := range task.Inputs {
		inputs = append(inputs, pdf.Input{Path: in.Path, OriginalName: in.OriginalName})
	}

	tctx, cancel := context.WithTimeout(ctx, w.conf.Worker.ToolTimeout)
	defer cancel()

	start := time.Now()
	out, err := w.engine.Run(tctx, tool, inputs, pdf.Options(task.Options), task.WorkDir)
	if err != nil {
		mpkg.ObserveTool(task.Tool, "failed", time.Since(start))
		log.Warn().Err(err).Str("job_id", task.JobID).Str("tool", task.Tool).Int("attempt", task.Attempt).Msg("tool run failed")
		if isFatalError(err) || task.Attempt+1 >= w.conf.Worker.JobMaxAttempts {
			_ = w.q.AddDLQ(ctx, raw, err.Error())
			w.postJobFailed(task.JobID, err.Error())
			return
		}
		w.requeue(ctx, task)
		return
	}

	mpkg.ObserveTool(task.Tool, "success", time.Since(start))

	if cancelled, _ := w.q.IsCancelled(ctx, task.JobID); cancelled {
		log.Warn().Str("job_id", task.JobID).Msg("job cancelled during processing; discarding result")
		return
	}

	_ = w.q.MarkIdemDone(ctx, task.IdemKey(), 24*time.Hour)
	w.postJSON("/internal/job_done?job_id="+task.JobID, map[string]any{
		"path": out.Path,
		"name": out.Name,
		"mime": out.MIME,
	})
}

func (w *Worker) runChunk(ctx context.Context, task queue.Task, raw []byte) {
	ok, provider, model, text, err := w.processChunkWithFailover(ctx, task)
	if !ok {
		log.Warn().Err(err).Str("job_id", task.JobID).Int("chunk_id", task.ChunkID).Int("attempt", task.Attempt).Msg("chunk processing failed")
		mpkg.IncChunk("failed")
		if err != nil && isFatalError(err) || task.Attempt+1 >= w.conf.Worker.JobMaxAttempts {
			_ = w.q.AddDLQ(ctx, raw, fmt.Sprintf("chunk %d: %v", task.ChunkID, err))
			w.postJobFailed(task.JobID, fmt.Sprintf("chunk %d failed: %v", task.ChunkID, err))
			return
		}
		w.requeue(ctx, task)
		return
	}

	if cancelled, _ := w.q.IsCancelled(ctx, task.JobID); cancelled {
		log.Warn().Str("job_id", task.JobID).Msg("job cancelled during processing; discarding chunk")
		return
	}

	mpkg.IncChunk("success")
	_ = w.q.MarkIdemDone(ctx, task.IdemKey(), 24*time.Hour)
	w.postJSON(fmt.Sprintf("/internal/chunk_done?job_id=%s&chunk_id=%d", task.JobID, task.ChunkID), map[string]any{
		"text":     text,
		"provider": provider,
		"model":    model,
	})
}

// requeue schedules another attempt with exponential backoff plus jitter.
func (w *Worker) requeue(ctx context.Context, task queue.Task) {
	task.Attempt++
	delay := w.conf.Worker.RetryBaseDelay
	for i := 1; i < task.Attempt; i++ {
		delay = time.Duration(float64(delay) * w.conf.Worker.RetryBackoffFactor)
	}
	if w.conf.Worker.RetryJitter > 0 {
		delay += time.Duration(rand.Int63n(int64(w.conf.Worker.RetryJitter)))
	}
	payload, err := task.Encode()
	if err != nil {
		log.Error().Err(err).Str("job_id", task.JobID).Msg("requeue encode failed")
		return
	}
	mpkg.IncRetry()
	if err := w.q.EnqueueDelayed(ctx, payload, time.Now().Add(delay)); err != nil {
		log.Error().Err(err).Str("job_id", task.JobID).Msg("requeue failed")
	}
}

func (w *Worker) postJobFailed(jobID, reason string) {
	w.postJSON("/internal/job_failed?job_id="+jobID, map[string]any{"error": reason})
}

func (w *Worker) postJSON(path string, body map[string]any) {
	b, _ := json.Marshal(body)
	url := w.conf.HTTP.InternalBase + path
	resp, err := w.http.Post(url, "application/json", bytes.NewReader(b))
	if err != nil {
		log.Error().Err(err).Str("url", url).Msg("internal callback failed")
		return
	}
	resp.Body.Close()
}
