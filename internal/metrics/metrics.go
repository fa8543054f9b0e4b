package metrics

import (
    "net/http"
    "time"

    "github.com/prometheus/client_golang/prometheus"
    "github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
    toolReqs = prometheus.NewCounterVec(
        prometheus.CounterOpts{
            Namespace: "blinkpdf",
            Name:      "tool_requests_total",
            Help:      "Total tool executions by tool slug and result",
        },
        []string{"tool", "result"},
    )

    toolLatency = prometheus.NewHistogramVec(
        prometheus.HistogramOpts{
            Namespace: "blinkpdf",
            Name:      "tool_duration_seconds",
            Help:      "Duration of tool executions by tool slug",
            Buckets:   []float64{.1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120, 300},
        },
        []string{"tool"},
    )

    providerReqs = prometheus.NewCounterVec(
        prometheus.CounterOpts{
            Namespace: "blinkpdf",
            Name:      "provider_requests_total",
            Help:      "Total AI provider requests by provider, model and result",
        },
        []string{"provider", "model", "result"},
    )

    providerLatency = prometheus.NewHistogramVec(
        prometheus.HistogramOpts{
            Namespace: "blinkpdf",
            Name:      "provider_request_duration_seconds",
            Help:      "Duration of AI provider requests by provider and model",
            Buckets:   prometheus.DefBuckets,
        },
        []string{"provider", "model"},
    )

    chunksProcessed = prometheus.NewCounterVec(
        prometheus.CounterOpts{
            Namespace: "blinkpdf",
            Name:      "ai_chunks_processed_total",
            Help:      "Total AI text chunks processed by result (success, dlq)",
        },
        []string{"result"},
    )

    retriesTotal = prometheus.NewCounter(
        prometheus.CounterOpts{
            Namespace: "blinkpdf",
            Name:      "retries_total",
            Help:      "Total number of task retries",
        },
    )

    uploadsTotal = prometheus.NewCounterVec(
        prometheus.CounterOpts{
            Namespace: "blinkpdf",
            Name:      "uploads_total",
            Help:      "Uploads by detected kind and acceptance",
        },
        []string{"kind", "accepted"},
    )

    uploadBytes = prometheus.NewHistogram(
        prometheus.HistogramOpts{
            Namespace: "blinkpdf",
            Name:      "upload_size_bytes",
            Help:      "Size of accepted uploads",
            Buckets:   prometheus.ExponentialBuckets(1024, 4, 10),
        },
    )

    breakerEvents = prometheus.NewCounterVec(
        prometheus.CounterOpts{
            Namespace: "blinkpdf",
            Name:      "breaker_events_total",
            Help:      "Circuit breaker events by provider, model and action",
        },
        []string{"provider", "model", "action"},
    )

    refusalsTotal = prometheus.NewCounterVec(
        prometheus.CounterOpts{
            Namespace: "blinkpdf",
            Name:      "ai_content_refusals_total",
            Help:      "AI content refusals by provider and model",
        },
        []string{"provider", "model"},
    )

    queueDepth = prometheus.NewGaugeVec(
        prometheus.GaugeOpts{
            Namespace: "blinkpdf",
            Name:      "queue_depth",
            Help:      "Queue depth gauges for stream, delayed and dlq",
        },
        []string{"type"},
    )
)

// Init registers collectors.
func Init() {
    prometheus.MustRegister(toolReqs, toolLatency, providerReqs, providerLatency, chunksProcessed, retriesTotal, uploadsTotal, uploadBytes, breakerEvents, refusalsTotal, queueDepth)
}

// Handler returns the http.Handler for /metrics
func Handler() http.Handler { return promhttp.Handler() }

func ObserveTool(tool, result string, dur time.Duration) {
    toolReqs.WithLabelValues(tool, result).Inc()
    toolLatency.WithLabelValues(tool).Observe(dur.Seconds())
}

func ObserveProvider(provider, model, result string, dur time.Duration) {
    providerReqs.WithLabelValues(provider, model, result).Inc()
    providerLatency.WithLabelValues(provider, model).Observe(dur.Seconds())
}

func IncChunk(result string) { chunksProcessed.WithLabelValues(result).Inc() }
func IncRetry()              { retriesTotal.Inc() }

func ObserveUpload(kind string, accepted bool, size int64) {
    uploadsTotal.WithLabelValues(kind, boolToStr(accepted)).Inc()
    if accepted {
        uploadBytes.Observe(float64(size))
    }
}

func BreakerOpened(provider, model string) { breakerEvents.WithLabelValues(provider, model, "opened").Inc() }
func BreakerClosed(provider, model string) { breakerEvents.WithLabelValues(provider, model, "closed").Inc() }

func SetQueueDepth(kind string, v int64) { queueDepth.WithLabelValues(kind).Set(float64(v)) }

// IncRefusal tracks content refusal events by provider and model
func IncRefusal(provider, model string) {
    refusalsTotal.WithLabelValues(provider, model).Inc()
}

func boolToStr(b bool) string { if b { return "true" }; return "false" }
