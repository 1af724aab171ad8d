package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	SignalsScanned = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "signals_scanned_total", Help: "Opportunity signals produced by discovery scans"},
	)
	SignalsDropped = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "signals_dropped_total", Help: "Signals rejected by a hard filter rule"},
		[]string{"rule"},
	)
	ExecutionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "executions_total", Help: "Trade executions by side and outcome"},
		[]string{"side", "status"},
	)
	QuoteRetries = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "quote_retries_total", Help: "Quote attempts retried after rate limit or timeout"},
	)
	EndpointRotations = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "endpoint_rotations_total", Help: "Pool endpoint rotations by pool kind"},
		[]string{"pool"},
	)
	ExitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "exits_total", Help: "Position exits by trigger reason"},
		[]string{"reason"},
	)
	UnconfirmedSubmissions = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "unconfirmed_submissions_total", Help: "Transactions whose confirmation poll timed out"},
	)
	OpenPositions = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "open_positions", Help: "Positions currently owned by the lifecycle manager"},
	)
)

func init() {
	prometheus.MustRegister(
		SignalsScanned, SignalsDropped, ExecutionsTotal, QuoteRetries,
		EndpointRotations, ExitsTotal, UnconfirmedSubmissions, OpenPositions,
	)
}

// NewMux returns a mux with the /metrics handler mounted; callers may add snapshot routes.
func NewMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}

// Serve starts an HTTP server for the supplied mux in the background.
func Serve(addr string, mux *http.ServeMux) *http.Server {
	if mux == nil {
		mux = NewMux()
	}
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() { _ = srv.ListenAndServe() }()
	return srv
}
