package kit

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	labelService = "service"
	labelMethod  = "method"
	labelRoute   = "route"
	labelClass   = "class"

	// UnmatchedRoute labels requests no route accepted, so scanners probing
	// random paths cannot blow up series cardinality.
	UnmatchedRoute = "unmatched"
)

// Metrics holds the HTTP collectors for one service. Series are keyed by
// route pattern and status class, never by raw path or exact code.
type Metrics struct {
	Requests *prometheus.CounterVec
	Latency  *prometheus.HistogramVec
	InFlight *prometheus.GaugeVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Requests: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "HTTP requests by route and status class.",
			},
			[]string{labelService, labelMethod, labelRoute, labelClass},
		),
		Latency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP latency by route.",
				Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 10},
			},
			[]string{labelService, labelMethod, labelRoute},
		),
		InFlight: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "http_requests_in_flight",
				Help: "Requests currently being served.",
			},
			[]string{labelService},
		),
	}
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	if w.status == 0 {
		w.status = code
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	return w.ResponseWriter.Write(b)
}

func (w *statusWriter) Unwrap() http.ResponseWriter { return w.ResponseWriter }

func (m *Metrics) Middleware(service string) func(http.Handler) http.Handler {
	inFlight := m.InFlight.WithLabelValues(service)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sw := &statusWriter{ResponseWriter: w}

			inFlight.Inc()
			start := time.Now()
			next.ServeHTTP(sw, r)
			inFlight.Dec()

			route := RouteLabel(r)
			m.Latency.WithLabelValues(service, r.Method, route).
				Observe(time.Since(start).Seconds())
			m.Requests.WithLabelValues(service, r.Method, route, StatusClass(sw.status)).
				Inc()
		})
	}
}

// RouteLabel is the chi route pattern, or UnmatchedRoute when chi found
// nothing. Must be called after the router has run.
func RouteLabel(r *http.Request) string {
	if rc := chi.RouteContext(r.Context()); rc != nil {
		if rp := rc.RoutePattern(); rp != "" && rp != "/*" {
			return rp
		}
	}
	return UnmatchedRoute
}

// StatusClass buckets a code into "2xx", "4xx" and so on. A handler that
// wrote nothing answered 200.
func StatusClass(code int) string {
	if code == 0 {
		code = http.StatusOK
	}
	if code < 100 || code > 599 {
		return "other"
	}
	return strconv.Itoa(code/100) + "xx"
}

// ChiRoutePatternOrPath is the route pattern for logs, falling back to the
// raw path so unmatched requests stay readable.
func ChiRoutePatternOrPath(r *http.Request) string {
	if rl := RouteLabel(r); rl != UnmatchedRoute {
		return rl
	}
	return r.URL.Path
}
