package dispatcher

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/local/blinkpdf/internal/ai"
	mpkg "github.com/local/blinkpdf/internal/metrics"
	"github.com/local/blinkpdf/internal/queue"
)

// processChunkWithFailover runs one AI chunk through the 4-step provider/model
// chain with a Redis-backed circuit breaker: primary provider primary model,
// primary secondary, secondary primary, secondary secondary.
func (w *Worker) processChunkWithFailover(ctx context.Context, task queue.Task) (bool, string, string, string, error) {
	system, prompt, err := ai.BuildPrompt(task.Tool, task.Options, task.ChunkID, task.TotalChunks, task.Text)
	if err != nil {
		return false, "", "", "", &ValidationError{Message: err.Error()}
	}

	primaryProv := w.conf.Providers.PrimaryEngine
	secondaryProv := w.conf.Providers.SecondaryEngine

	getModel := func(provider, tier string) string {
		models := w.conf.Providers.Gemini
		if provider == "openai" {
			models = w.conf.Providers.OpenAI
		}
		if tier == "secondary" {
			return models.Secondary
		}
		return models.Primary
	}

	callAI := func(provider, model string) (ai.Response, error) {
		timeout := w.conf.Worker.RequestTimeout
		if provider == "gemini" && w.conf.Worker.GeminiTimeout > 0 {
			timeout = w.conf.Worker.GeminiTimeout
		}
		if provider == "openai" && w.conf.Worker.OpenAITimeout > 0 {
			timeout = w.conf.Worker.OpenAITimeout
		}

		var client ai.Client
		switch provider {
		case "gemini":
			client = w.gemini
		case "openai":
			client = w.openai
		default:
			return ai.Response{}, fmt.Errorf("unknown provider: %s", provider)
		}

		release, allowed := w.lim.Allow(provider, model)
		if !allowed {
			return ai.Response{}, &RateLimitError{Provider: provider, Model: model, Reason: "inflight limit"}
		}
		defer release()

		req := ai.Request{
			JobID:   task.JobID,
			ChunkID: task.ChunkID,
			Tool:    task.Tool,
			Model:   model,
			System:  system,
			Prompt:  prompt,
			Timeout: timeout,
		}

		// Fresh context per attempt so a timed-out attempt does not poison the next
		cctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		start := time.Now()
		resp, err := client.Do(cctx, req)
		dur := time.Since(start)

		if err != nil && cctx.Err() == context.DeadlineExceeded {
			mpkg.ObserveProvider(provider, model, "timeout", dur)
			log.Warn().
				Str("job_id", task.JobID).
				Int("chunk_id", task.ChunkID).
				Str("provider", provider).
				Str("model", model).
				Dur("duration", dur).
				Msg("AI request timeout, failing over")
			return ai.Response{}, &RateLimitError{Provider: provider, Model: model, Reason: "timeout"}
		}

		result := "success"
		if err != nil {
			switch {
			case ai.IsContentRefused(err):
				result = "content_refused"
				mpkg.IncRefusal(provider, model)
			case ai.IsRateLimited(err):
				result = "rate_limited"
			case isTransientError(err):
				result = "transient"
			case isFatalError(err):
				result = "fatal"
			default:
				result = "unknown"
			}
		}
		mpkg.ObserveProvider(provider, model, result, dur)

		if err != nil {
			log.Warn().
				Str("job_id", task.JobID).
				Int("chunk_id", task.ChunkID).
				Str("provider", provider).
				Str("model", model).
				Str("result", result).
				Err(err).
				Msg("AI provider call failed")
		} else {
			log.Debug().
				Str("job_id", task.JobID).
				Int("chunk_id", task.ChunkID).
				Str("provider", provider).
				Str("model", model).
				Dur("duration", dur).
				Int("tokens_in", resp.TokensIn).
				Int("tokens_out", resp.TokensOut).
				Msg("AI provider call success")
		}
		return resp, err
	}

	attempts := []struct {
		provider string
		tier     string
	}{
		{primaryProv, "primary"},
		{primaryProv, "secondary"},
		{secondaryProv, "primary"},
		{secondaryProv, "secondary"},
	}

	var lastErr error
	tried := map[string]bool{}
	for i, a := range attempts {
		model := getModel(a.provider, a.tier)
		key := a.provider + ":" + model
		if model == "" || tried[key] {
			continue
		}
		tried[key] = true

		if w.breaker.IsCircuitOpen(ctx, a.provider, model) {
			log.Debug().
				Str("provider", a.provider).
				Str("model", model).
				Msg("circuit breaker open, skipping attempt")
			continue
		}

		log.Info().
			Str("job_id", task.JobID).
			Int("chunk_id", task.ChunkID).
			Str("provider", a.provider).
			Str("model", model).
			Msgf("attempting AI processing [%d/%d]", i+1, len(attempts))

		resp, err := callAI(a.provider, model)
		if err == nil {
			w.breaker.CloseCircuitBreaker(ctx, a.provider, model)
			mpkg.BreakerClosed(a.provider, model)
			return true, a.provider, model, resp.Text, nil
		}

		if isFatalError(err) {
			log.Error().
				Err(err).
				Str("job_id", task.JobID).
				Int("chunk_id", task.ChunkID).
				Str("provider", a.provider).
				Str("model", model).
				Msg("fatal error, no retry")
			return false, "", "", "", err
		}
		if isTransientError(err) {
			w.breaker.OpenCircuitBreaker(ctx, a.provider, model)
			mpkg.BreakerOpened(a.provider, model)
		}
		lastErr = err
	}

	log.Error().
		Str("job_id", task.JobID).
		Int("chunk_id", task.ChunkID).
		Err(lastErr).
		Msg("all AI providers/models exhausted")
	mpkg.ObserveProvider("all", "all", "exhausted", 0)

	if lastErr == nil {
		lastErr = fmt.Errorf("all providers exhausted for job %s chunk %d", task.JobID, task.ChunkID)
	}
	return false, "", "", "", lastErr
}
