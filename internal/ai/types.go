package ai

import (
    "context"
    "errors"
    "time"
)

// Request represents one AI inference call for a text chunk.
type Request struct {
    JobID       string
    ChunkID     int
    Tool        string
    Model       string
    System      string        // system instruction
    Prompt      string        // user prompt, already carries the chunk text
    Timeout     time.Duration
}

type Response struct {
    Text      string
    TokensIn  int
    TokensOut int
}

// Client interface for providers like Gemini, OpenAI.
type Client interface {
    Name() string
    Do(ctx context.Context, req Request) (Response, error)
}

var (
    ErrRateLimited    = errors.New("rate_limited")
    ErrContentRefused = errors.New("content_refused")
)

func IsRateLimited(err error) bool { return errors.Is(err, ErrRateLimited) }
func IsContentRefused(err error) bool { return errors.Is(err, ErrContentRefused) }
