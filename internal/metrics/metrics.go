// Package metrics registers and exposes Prometheus instrumentation for the
// overlay engine: HTTP traffic, geometry recomputes, raster builds, aurora
// fetches and SSE streaming.
package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "grayline_http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"path", "method", "code"},
	)

	httpDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "grayline_http_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"path", "method"},
	)

	geometryComputeSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "grayline_geometry_compute_seconds",
			Help:    "Terminator/twilight geometry recompute duration in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.0001, 4, 10),
		},
	)

	geometryRecomputesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "grayline_geometry_recomputes_total",
			Help: "Total number of geometry generations computed.",
		},
	)

	rasterBuildSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "grayline_raster_build_seconds",
			Help:    "Aurora raster composite duration in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.0001, 4, 10),
		},
	)

	rasterBuildErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "grayline_raster_build_errors_total",
			Help: "Total number of failed aurora raster builds.",
		},
	)

	auroraFetchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "grayline_aurora_fetches_total",
			Help: "Total number of aurora dataset fetch attempts.",
		},
		[]string{"outcome"},
	)

	auroraSampleCount = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "grayline_aurora_samples",
			Help: "Number of grid samples in the current aurora dataset.",
		},
	)

	auroraDatasetAgeSeconds = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "grayline_aurora_dataset_age_seconds",
			Help: "Age of the current aurora dataset in seconds.",
		},
	)

	streamConnectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "grayline_stream_connections_total",
			Help: "Total SSE connection events.",
		},
		[]string{"event"},
	)

	streamsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "grayline_streams_active",
			Help: "Currently connected SSE streams.",
		},
	)

	streamErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "grayline_stream_errors_total",
			Help: "Total SSE stream errors by reason.",
		},
		[]string{"reason"},
	)

	streamMessagesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "grayline_stream_messages_total",
			Help: "Total SSE data messages sent.",
		},
	)

	streamBytesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "grayline_stream_bytes_total",
			Help: "Total bytes written to SSE streams.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		httpRequestsTotal,
		httpDurationSeconds,
		geometryComputeSeconds,
		geometryRecomputesTotal,
		rasterBuildSeconds,
		rasterBuildErrorsTotal,
		auroraFetchesTotal,
		auroraSampleCount,
		auroraDatasetAgeSeconds,
		streamConnectionsTotal,
		streamsActive,
		streamErrorsTotal,
		streamMessagesTotal,
		streamBytesTotal,
	)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveGeometryCompute records one geometry generation.
func ObserveGeometryCompute(d time.Duration) {
	geometryComputeSeconds.Observe(d.Seconds())
	geometryRecomputesTotal.Inc()
}

// ObserveRasterBuild records one successful raster build.
func ObserveRasterBuild(d time.Duration) {
	rasterBuildSeconds.Observe(d.Seconds())
}

// IncRasterBuildErrors counts a failed raster build.
func IncRasterBuildErrors() {
	rasterBuildErrorsTotal.Inc()
}

// IncAuroraFetch counts a fetch attempt by outcome ("success" or "error").
func IncAuroraFetch(outcome string) {
	auroraFetchesTotal.WithLabelValues(outcome).Inc()
}

// SetAuroraSampleCount publishes the current dataset's grid size.
func SetAuroraSampleCount(n int) {
	auroraSampleCount.Set(float64(n))
}

// SetAuroraDatasetAge publishes the current dataset age in seconds.
func SetAuroraDatasetAge(seconds float64) {
	auroraDatasetAgeSeconds.Set(seconds)
}

// IncStreamConnections counts an SSE connection event ("connect"/"disconnect").
func IncStreamConnections(event string) {
	streamConnectionsTotal.WithLabelValues(event).Inc()
}

// IncStreamsActive increments the active stream gauge.
func IncStreamsActive() { streamsActive.Inc() }

// DecStreamsActive decrements the active stream gauge.
func DecStreamsActive() { streamsActive.Dec() }

// IncStreamErrors counts an SSE error by reason.
func IncStreamErrors(reason string) {
	streamErrorsTotal.WithLabelValues(reason).Inc()
}

// IncStreamMessages counts one SSE data message.
func IncStreamMessages() { streamMessagesTotal.Inc() }

// AddStreamBytes adds to the SSE byte counter.
func AddStreamBytes(n int64) { streamBytesTotal.Add(float64(n)) }

// knownRoutes are the exact paths we expose; anything else collapses to a
// shared label to keep cardinality bounded against bot traffic.
var knownRoutes = map[string]bool{
	"/":                                true,
	"/healthz":                         true,
	"/readyz":                          true,
	"/metrics":                         true,
	"/api/v1/terminator":               true,
	"/api/v1/overlays/terminator":      true,
	"/api/v1/overlays/aurora.png":      true,
	"/api/v1/overlays/aurora/metadata": true,
	"/api/v1/overlays/stats":           true,
	"/api/v1/aurora/refresh":           true,
	"/api/v1/stream/overlays":          true,
}

// normalizeRoute maps a request path to a bounded metric label.
func normalizeRoute(path string) string {
	if knownRoutes[path] {
		return path
	}
	// Embedded frontend assets share one label.
	if strings.HasSuffix(path, ".js") || strings.HasSuffix(path, ".css") || strings.HasSuffix(path, ".html") {
		return "static"
	}
	return "other"
}

// responseWriter wraps http.ResponseWriter to capture the status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Unwrap exposes the underlying writer so http.ResponseController can reach
// the connection (SSE handlers clear the write deadline through it).
func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Middleware records request count and duration for each request.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(rw, r)

		duration := time.Since(start).Seconds()
		code := strconv.Itoa(rw.statusCode)
		route := normalizeRoute(r.URL.Path)

		httpRequestsTotal.WithLabelValues(route, r.Method, code).Inc()
		httpDurationSeconds.WithLabelValues(route, r.Method).Observe(duration)
	})
}
