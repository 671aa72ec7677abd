package obs

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HTTP-level metrics.
var (
	httpInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "http_in_flight_requests",
		Help: "In-flight HTTP requests.",
	})

	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)

// Credential-core metrics. Labels stay low-cardinality: result/kind/class
// enumerations only, never principal identifiers.
var (
	loginsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "keygate_logins_total",
			Help: "Login attempts by principal kind and outcome.",
		},
		[]string{"kind", "result"},
	)

	tokensIssuedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "keygate_tokens_issued_total",
			Help: "Tokens minted by class.",
		},
		[]string{"class"},
	)

	refreshRotationsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "keygate_refresh_rotations_total",
		Help: "Successful single-use refresh rotations.",
	})

	revocationsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "keygate_revocations_total",
		Help: "Refresh-token revocations recorded (logout and rotation).",
	})

	authzDecisionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "keygate_authz_decisions_total",
			Help: "Authorization decisions by outcome.",
		},
		[]string{"decision"},
	)
)

// Init registers all metrics in the default registry.
func Init() {
	prometheus.MustRegister(
		httpInFlight, httpRequestsTotal, httpRequestDuration,
		loginsTotal, tokensIssuedTotal, refreshRotationsTotal,
		revocationsTotal, authzDecisionsTotal,
	)
}

// Handler exposes the Prometheus scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveLogin records a login attempt outcome. kind is "client" or "user",
// result is "ok" or "failed".
func ObserveLogin(kind, result string) {
	loginsTotal.WithLabelValues(kind, result).Inc()
}

// ObserveTokenIssued records a minted token by class ("access" or "refresh").
func ObserveTokenIssued(class string) {
	tokensIssuedTotal.WithLabelValues(class).Inc()
}

// ObserveRefreshRotation records a successful refresh rotation.
func ObserveRefreshRotation() {
	refreshRotationsTotal.Inc()
}

// ObserveRevocation records a revocation insert.
func ObserveRevocation() {
	revocationsTotal.Inc()
}

// ObserveAuthzDecision records an authorization outcome ("allow" or "deny").
func ObserveAuthzDecision(decision string) {
	authzDecisionsTotal.WithLabelValues(decision).Inc()
}

// CanonicalPath collapses per-entity URL segments so metric labels stay
// bounded. Unknown paths are returned as-is.
func CanonicalPath(path string) string {
	if path == "" {
		return "/"
	}
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	const usersPrefix = "/v1/users/"
	if rest, ok := strings.CutPrefix(path, usersPrefix); ok {
		parts := strings.Split(rest, "/")
		if len(parts) == 2 && parts[1] == "roles" {
			return usersPrefix + ":id/roles"
		}
	}
	return path
}

// Instrument wraps a handler with RPS/latency/in-flight measurements.
func Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := CanonicalPath(r.URL.Path)
		method := r.Method

		httpInFlight.Inc()
		start := time.Now()

		sw := &statusWriter{ResponseWriter: w, code: 200}
		next.ServeHTTP(sw, r)

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(sw.code)

		httpRequestDuration.WithLabelValues(method, path, status).Observe(duration)
		httpRequestsTotal.WithLabelValues(method, path, status).Inc()
		httpInFlight.Dec()
	})
}

// statusWriter captures the response code written by downstream handlers.
type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}
