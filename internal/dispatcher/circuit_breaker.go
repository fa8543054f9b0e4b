package dispatcher

import (
	"context"
	"fmt"
	"strconv"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// CircuitBreaker tracks provider/model health in a Redis hash shared by all
// worker processes. An open breaker makes the failover chain skip that model
// until the cooldown lapses.
type CircuitBreaker struct {
	redis       *redis.Client
	baseBackoff time.Duration
	maxBackoff  time.Duration
}

func NewCircuitBreaker(redisClient *redis.Client, baseBackoff, maxBackoff time.Duration) *CircuitBreaker {
	return &CircuitBreaker{
		redis:       redisClient,
		baseBackoff: baseBackoff,
		maxBackoff:  maxBackoff,
	}
}

func breakerKey(provider, model string) string {
	return fmt.Sprintf("cb:%s:%s", provider, model)
}

// OpenCircuitBreaker records a failure and extends the cooldown. The cooldown
// doubles per consecutive failure up to maxBackoff; the record itself expires
// after 10 minutes of silence so stale breakers self-heal.
func (cb *CircuitBreaker) OpenCircuitBreaker(ctx context.Context, provider, model string) {
	key := breakerKey(provider, model)

	failuresStr, _ := cb.redis.HGet(ctx, key, "failures").Result()
	failures, _ := strconv.Atoi(failuresStr)
	failures++

	backoff := cb.baseBackoff
	for i := 1; i < failures; i++ {
		backoff *= 2
		if backoff > cb.maxBackoff {
			backoff = cb.maxBackoff
			break
		}
	}

	now := time.Now()
	cb.redis.HSet(ctx, key, map[string]interface{}{
		"state":     "open",
		"retry_at":  now.Add(backoff).Unix(),
		"failures":  failures,
		"opened_at": now.Unix(),
	})
	cb.redis.Expire(ctx, key, 10*time.Minute)

	log.Warn().
		Str("provider", provider).
		Str("model", model).
		Dur("cooldown", backoff).
		Int("failures", failures).
		Msg("circuit breaker opened")
}

// IsCircuitOpen reports whether calls to provider/model should be skipped.
// When the cooldown has lapsed the breaker flips to half-open and lets one
// probe request through.
func (cb *CircuitBreaker) IsCircuitOpen(ctx context.Context, provider, model string) bool {
	key := breakerKey(provider, model)

	state, err := cb.redis.HGet(ctx, key, "state").Result()
	if err != nil || state != "open" {
		return false
	}

	retryAtStr, _ := cb.redis.HGet(ctx, key, "retry_at").Result()
	retryAt, _ := strconv.ParseInt(retryAtStr, 10, 64)
	if time.Now().Unix() >= retryAt {
		cb.redis.HSet(ctx, key, "state", "half_open")
		log.Info().
			Str("provider", provider).
			Str("model", model).
			Msg("circuit breaker half-open, allowing probe")
		return false
	}

	return true
}

// CloseCircuitBreaker resets the breaker after a successful call.
func (cb *CircuitBreaker) CloseCircuitBreaker(ctx context.Context, provider, model string) {
	key := breakerKey(provider, model)

	state, _ := cb.redis.HGet(ctx, key, "state").Result()
	if state == "" || state == "closed" {
		return
	}

	cb.redis.Del(ctx, key)

	log.Info().
		Str("provider", provider).
		Str("model", model).
		Msg("circuit breaker closed")
}
