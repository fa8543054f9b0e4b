package dispatcher

import "fmt"

// RateLimitError marks a provider call that was throttled or timed out.
// The failover chain treats it as transient and moves on.
type RateLimitError struct {
	Provider string
	Model    string
	Reason   string
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limited on %s/%s: %s", e.Provider, e.Model, e.Reason)
}

// HTTPError carries a non-2xx provider response.
type HTTPError struct {
	StatusCode int
	Body       string
	Provider   string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("%s returned HTTP %d: %s", e.Provider, e.StatusCode, e.Body)
}

// ValidationError marks a task that can never succeed as submitted.
// It is fatal: the chunk is not retried on another model.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error: %s", e.Message)
}
