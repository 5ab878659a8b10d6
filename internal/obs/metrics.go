package obs

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/AlexKimmel/admitgate/internal/gateway"
)

type Metrics struct {
	RequestsTotal    *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec
	Decisions        *prometheus.CounterVec
	LimiterErrors    *prometheus.CounterVec
	JanitorEvictions prometheus.Counter

	reg prometheus.Registerer
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		RequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "admitgate_requests_total",
				Help: "Total HTTP requests processed by the gateway",
			},
			[]string{"route", "method", "code"},
		),
		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "admitgate_request_duration_seconds",
				Help:    "Request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"route", "method"},
		),
		Decisions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "admitgate_admission_decisions_total",
				Help: "Admission decisions by route and result",
			},
			[]string{"route", "result"},
		),
		LimiterErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "admitgate_limiter_errors_total",
				Help: "Total admission controller errors",
			},
			[]string{"route"},
		),
		JanitorEvictions: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "admitgate_janitor_evictions_total",
				Help: "Idle identities removed by the janitor",
			},
		),
		reg: reg,
	}

	reg.MustRegister(m.RequestsTotal, m.RequestDuration, m.Decisions, m.LimiterErrors, m.JanitorEvictions)
	return m
}

// TrackIdentities exports fn as the tracked-identities gauge.
func (m *Metrics) TrackIdentities(fn func() int) {
	m.reg.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "admitgate_tracked_identities",
			Help: "Identities currently holding a window log",
		},
		func() float64 { return float64(fn()) },
	))
}

func (m *Metrics) OnAdmit(routeID string)   { m.Decisions.WithLabelValues(routeID, "admit").Inc() }
func (m *Metrics) OnLimited(routeID string) { m.Decisions.WithLabelValues(routeID, "reject").Inc() }
func (m *Metrics) OnError(routeID string)   { m.LimiterErrors.WithLabelValues(routeID).Inc() }
func (m *Metrics) OnSweep(evicted int)      { m.JanitorEvictions.Add(float64(evicted)) }

type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (w *statusRecorder) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusRecorder) Write(b []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	n, err := w.ResponseWriter.Write(b)
	w.bytes += n
	return n, err
}

func (w *statusRecorder) Unwrap() http.ResponseWriter { return w.ResponseWriter }

// Middleware records per-request metrics.
// Mount it inside RouteMatcher so the matched route is on the request.
func (m *Metrics) Middleware(skip map[string]struct{}) gateway.Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := skip[r.URL.Path]; ok {
				next.ServeHTTP(w, r)
				return
			}

			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w}

			next.ServeHTTP(rec, r)

			m.RequestDuration.WithLabelValues(gateway.RouteID(r), r.Method).Observe(time.Since(start).Seconds())
			code := rec.status
			if code == 0 {
				code = http.StatusOK
			}
			m.RequestsTotal.WithLabelValues(gateway.RouteID(r), r.Method, strconv.Itoa(code)).Inc()
		})
	}
}
