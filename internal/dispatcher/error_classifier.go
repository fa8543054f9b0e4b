package dispatcher

import (
	"context"
	"errors"
	"strings"

	"github.com/local/blinkpdf/internal/ai"
)

var transientHints = []string{
	"connection refused",
	"connection reset",
	"timeout",
	"network",
	"eof",
}

var fatalHints = []string{
	"invalid request",
	"validation failed",
	"bad request",
	"malformed",
}

func containsAny(s string, hints []string) bool {
	for _, h := range hints {
		if strings.Contains(s, h) {
			return true
		}
	}
	return false
}

// isTransientError reports whether the failover chain should move on to the
// next model. Refusals count as transient: a different model may answer.
func isTransientError(err error) bool {
	if err == nil {
		return false
	}

	if ai.IsContentRefused(err) || ai.IsRateLimited(err) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var rateLimitErr *RateLimitError
	if errors.As(err, &rateLimitErr) {
		return true
	}

	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		if httpErr.StatusCode >= 500 && httpErr.StatusCode < 600 {
			return true
		}
		if httpErr.StatusCode == 429 {
			return true
		}
	}

	return containsAny(strings.ToLower(err.Error()), transientHints)
}

// isFatalError reports whether the task can never succeed and must not be
// retried on any model.
func isFatalError(err error) bool {
	if err == nil {
		return false
	}

	var valErr *ValidationError
	if errors.As(err, &valErr) {
		return true
	}

	// 4xx means the request itself is rejected; 429 is throttling, not rejection
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		if httpErr.StatusCode >= 400 && httpErr.StatusCode < 500 && httpErr.StatusCode != 429 {
			return true
		}
	}

	return containsAny(strings.ToLower(err.Error()), fatalHints)
}

// isTimeoutError singles out timeouts for metrics labelling.
func isTimeoutError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "timeout") || strings.Contains(errStr, "deadline exceeded")
}
