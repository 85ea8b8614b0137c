package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "trackboard"

// breaker states as reported by the circuit breaker
var breakerStates = map[string]float64{
	"closed":    0,
	"half-open": 1,
	"open":      2,
}

// Recorder collects poll, backend and SSE metrics.
type Recorder struct {
	registry *prometheus.Registry

	pollCycles   *prometheus.CounterVec
	pollDuration *prometheus.HistogramVec

	requests        *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	refreshes       *prometheus.CounterVec
	breakerState    prometheus.Gauge

	sseClients prometheus.Gauge
}

// New creates a Recorder with a fresh registry that also carries the Go
// runtime and process collectors.
func New() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		pollCycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "poll_cycles_total",
			Help:      "Completed poll cycles by view and result (ok, error).",
		}, []string{"view", "result"}),
		pollDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "poll_cycle_duration_seconds",
			Help:      "Duration of poll cycle fetches.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"view"}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "backend_requests_total",
			Help:      "Backend requests by method, route and status code (0 when no response).",
		}, []string{"method", "route", "status"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "backend_request_duration_seconds",
			Help:      "Backend request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		refreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "token_refreshes_total",
			Help:      "Access token refreshes by result (ok, failed).",
		}, []string{"result"}),
		breakerState: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "backend_breaker_state",
			Help:      "Backend circuit breaker state: 0 closed, 1 half-open, 2 open.",
		}),
		sseClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sse_clients",
			Help:      "Connected SSE clients.",
		}),
	}

	r.registry.MustRegister(
		r.pollCycles,
		r.pollDuration,
		r.requests,
		r.requestDuration,
		r.refreshes,
		r.breakerState,
		r.sseClients,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return r
}

// Registry returns the registry the recorder writes to.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}

// ObserveCycle records one poll cycle of the named view.
func (r *Recorder) ObserveCycle(view string, d time.Duration, err error) {
	r.pollCycles.WithLabelValues(view, result(err == nil, "ok", "error")).Inc()
	r.pollDuration.WithLabelValues(view).Observe(d.Seconds())
}

// ObserveRequest records one backend request.
func (r *Recorder) ObserveRequest(method, route string, status int, d time.Duration, _ error) {
	r.requests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	r.requestDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

// ObserveRefresh records a token refresh attempt.
func (r *Recorder) ObserveRefresh(ok bool) {
	r.refreshes.WithLabelValues(result(ok, "ok", "failed")).Inc()
}

// ObserveBreakerState records a circuit breaker transition. Unknown states
// are ignored.
func (r *Recorder) ObserveBreakerState(state string) {
	if v, ok := breakerStates[state]; ok {
		r.breakerState.Set(v)
	}
}

// SSEConnected counts a new SSE client.
func (r *Recorder) SSEConnected() { r.sseClients.Inc() }

// SSEDisconnected counts a closed SSE client.
func (r *Recorder) SSEDisconnected() { r.sseClients.Dec() }

func result(ok bool, yes, no string) string {
	if ok {
		return yes
	}
	return no
}
