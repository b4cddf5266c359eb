// Package observability exposes Prometheus metrics for the search
// service.
package observability

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vastra-ai/vastra/internal/llm"
)

// Metrics holds the service's Prometheus instruments on a private
// registry.
type Metrics struct {
	registry *prometheus.Registry

	// SearchTurns counts conversational turns by mode
	// ("conversational"/"stateless") and outcome ("ok"/"error").
	SearchTurns *prometheus.CounterVec

	// LLMCalls counts provider calls by purpose ("constraints",
	// "recommendation", "followup", "extraction") and outcome.
	LLMCalls *prometheus.CounterVec

	// ImplicitRejections counts products rejected through phrasing
	// detection.
	ImplicitRejections prometheus.Counter

	// ActiveSessions tracks the stored session count.
	ActiveSessions prometheus.Gauge

	// RequestDuration observes HTTP handler latency.
	RequestDuration *prometheus.HistogramVec
}

// New creates the metric set on a fresh registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,
		SearchTurns: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "vastra_search_turns_total",
			Help: "Search turns processed, by mode and outcome.",
		}, []string{"mode", "outcome"}),
		LLMCalls: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "vastra_llm_calls_total",
			Help: "LLM provider calls, by purpose and outcome.",
		}, []string{"purpose", "outcome"}),
		ImplicitRejections: factory.NewCounter(prometheus.CounterOpts{
			Name: "vastra_implicit_rejections_total",
			Help: "Products rejected via implicit phrasing detection.",
		}),
		ActiveSessions: factory.NewGauge(prometheus.GaugeOpts{
			Name: "vastra_active_sessions",
			Help: "Sessions currently stored.",
		}),
		RequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "vastra_http_request_duration_seconds",
			Help:    "HTTP request latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path", "status"}),
	}
}

// Handler serves the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// GinMiddleware records request latency per route.
func (m *Metrics) GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		m.RequestDuration.WithLabelValues(
			c.Request.Method,
			path,
			strconv.Itoa(c.Writer.Status()),
		).Observe(time.Since(start).Seconds())
	}
}

// ObserveLLMCall records one provider call.
func (m *Metrics) ObserveLLMCall(purpose string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.LLMCalls.WithLabelValues(purpose, outcome).Inc()
}

// TrackCompletion lets Metrics sit on the LLM client's tracker hook.
func (m *Metrics) TrackCompletion(_ context.Context, rec llm.CompletionRecord) {
	m.ObserveLLMCall(rec.Purpose, rec.Err)
}

// ObserveImplicitRejections records products rejected through phrasing
// detection. Lets Metrics sit on the chat service's observer hook.
func (m *Metrics) ObserveImplicitRejections(count int) {
	m.ImplicitRejections.Add(float64(count))
}
