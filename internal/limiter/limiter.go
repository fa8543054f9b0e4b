package limiter

import (
    "strings"
    "sync"
)

// Adaptive caps in-flight requests per provider:model inside this process.
// Cross-process cooldowns are the circuit breaker's job; this only keeps one
// worker pool from piling onto a single model.
type Adaptive struct {
    maxInflight int
    mu          sync.Mutex
    sem         map[string]chan struct{}
}

type Options struct {
    MaxInflight int
}

func New(opts Options) *Adaptive {
    if opts.MaxInflight <= 0 { opts.MaxInflight = 2 }
    return &Adaptive{maxInflight: opts.MaxInflight, sem: map[string]chan struct{}{}}
}

// Allow tries to reserve a slot for provider:model.
// Returns a release function and true if allowed; otherwise a no-op and false.
func (a *Adaptive) Allow(provider, model string) (func(), bool) {
    key := strings.ToLower(provider) + ":" + strings.ToLower(model)
    a.mu.Lock()
    ch, ok := a.sem[key]
    if !ok {
        ch = make(chan struct{}, a.maxInflight)
        a.sem[key] = ch
    }
    a.mu.Unlock()
    select {
    case ch <- struct{}{}:
        return func() { <-ch }, true
    default:
        return func(){}, false
    }
}

// Inflight reports the current reservation count for provider:model.
func (a *Adaptive) Inflight(provider, model string) int {
    key := strings.ToLower(provider) + ":" + strings.ToLower(model)
    a.mu.Lock()
    defer a.mu.Unlock()
    if ch, ok := a.sem[key]; ok {
        return len(ch)
    }
    return 0
}
