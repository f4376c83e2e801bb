package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Counter: response cache lookups by kind (chat|completion) and result.
	CacheLookupsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ollamagate_cache_lookups_total",
			Help: "Response cache lookups by request kind and result (hit, miss, error).",
		},
		[]string{"kind", "result"},
	)

	// Counter: prompts the converter refused.
	ConversionErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ollamagate_conversion_errors_total",
			Help: "Prompt conversions that failed, by reason.",
		},
		[]string{"reason"},
	)

	// Counter: tool calls discarded by legacy function calling.
	DroppedToolCallsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "ollamagate_legacy_dropped_tool_calls_total",
			Help: "Tool calls dropped because legacy function calling keeps one call per message.",
		},
	)

	// Counter: upstream Ollama calls by endpoint and outcome.
	UpstreamRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ollamagate_upstream_requests_total",
			Help: "Requests sent to the Ollama server by endpoint and outcome.",
		},
		[]string{"endpoint", "outcome"},
	)

	// Histogram: gateway HTTP latency in seconds.
	GatewayLatencySeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ollamagate_http_latency_seconds",
			Help:    "HTTP request latency for the gateway in seconds.",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 15, 30, 60},
		},
		[]string{"route", "method", "status_code"},
	)
)

// Register is called once in main() to register metrics.
func Register() {
	prometheus.MustRegister(
		CacheLookupsTotal,
		ConversionErrorsTotal,
		DroppedToolCallsTotal,
		UpstreamRequestsTotal,
		GatewayLatencySeconds,
	)
}

// Handler exposes the /metrics endpoint for Prometheus to scrape.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware measures gateway latency per chi route pattern.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		rec := &statusRecorder{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		next.ServeHTTP(rec, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}

		GatewayLatencySeconds.
			WithLabelValues(route, r.Method, strconv.Itoa(rec.statusCode)).
			Observe(time.Since(start).Seconds())
	})
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.statusCode = code
	r.ResponseWriter.WriteHeader(code)
}
