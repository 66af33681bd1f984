package metrics

import (
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the collectors for one process. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	registry *prometheus.Registry

	// RPCRequests counts JSON-RPC calls per method and outcome (ok, error)
	RPCRequests *prometheus.CounterVec
	// RPCDuration tracks JSON-RPC round trip latency
	RPCDuration *prometheus.HistogramVec
	// LastScanned is the highest block the watcher has fully processed
	LastScanned prometheus.Gauge
	// Delivered counts transfers handed to callbacks
	Delivered prometheus.Counter
	// PollFailures counts watcher polls that failed and were retried
	PollFailures prometheus.Counter
}

// New creates the collectors on a private registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		RPCRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rpc_requests_total",
				Help: "Total number of JSON-RPC requests",
			},
			[]string{"method", "outcome"},
		),
		RPCDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "rpc_request_duration_seconds",
				Help:    "JSON-RPC request latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method"},
		),
		LastScanned: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "watcher_last_scanned_block",
			Help: "Highest block fully scanned by the transfer watcher",
		}),
		Delivered: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "watcher_transfers_delivered_total",
			Help: "Total number of transfers delivered to callbacks",
		}),
		PollFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "watcher_poll_failures_total",
			Help: "Total number of failed watcher poll attempts",
		}),
	}
	m.registry.MustRegister(m.RPCRequests, m.RPCDuration, m.LastScanned, m.Delivered, m.PollFailures)
	return m
}

// ObserveCall records one JSON-RPC round trip.
func (m *Metrics) ObserveCall(method string, took time.Duration, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.RPCRequests.WithLabelValues(method, outcome).Inc()
	m.RPCDuration.WithLabelValues(method).Observe(took.Seconds())
}

func (m *Metrics) SetLastScanned(block uint64) {
	if m == nil {
		return
	}
	m.LastScanned.Set(float64(block))
}

func (m *Metrics) IncDelivered() {
	if m == nil {
		return
	}
	m.Delivered.Inc()
}

func (m *Metrics) IncPollFailure() {
	if m == nil {
		return
	}
	m.PollFailures.Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until the server fails or is closed.
// It returns an *http.Server so the caller can shut it down.
func (m *Metrics) Serve(addr string, errc chan<- error) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
	}()
	return srv
}
