package observability

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type settlementMetrics struct {
	depositsAdmitted prometheus.Counter
	depositsRefused  *prometheus.CounterVec
	claimsSettled    *prometheus.CounterVec
	compensations    *prometheus.CounterVec
}

type rpcMetrics struct {
	requests *prometheus.CounterVec
	latency  *prometheus.HistogramVec
}

var (
	settlementOnce     sync.Once
	settlementRegistry *settlementMetrics

	rpcOnce     sync.Once
	rpcRegistry *rpcMetrics
)

func settlement() *settlementMetrics {
	settlementOnce.Do(func() {
		settlementRegistry = &settlementMetrics{
			depositsAdmitted: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "launchpad",
				Subsystem: "settlement",
				Name:      "deposits_admitted_total",
				Help:      "Deposits that passed admission and were recorded.",
			}),
			depositsRefused: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "launchpad",
				Subsystem: "settlement",
				Name:      "deposits_refused_total",
				Help:      "Deposits refused during admission, segmented by cause.",
			}, []string{"cause"}),
			claimsSettled: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "launchpad",
				Subsystem: "settlement",
				Name:      "claims_settled_total",
				Help:      "Claim transfers that completed, segmented by claim kind.",
			}, []string{"kind"}),
			compensations: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "launchpad",
				Subsystem: "settlement",
				Name:      "compensations_total",
				Help:      "Compensating rollbacks applied after a failed external effect.",
			}, []string{"kind"}),
		}
		prometheus.MustRegister(
			settlementRegistry.depositsAdmitted,
			settlementRegistry.depositsRefused,
			settlementRegistry.claimsSettled,
			settlementRegistry.compensations,
		)
	})
	return settlementRegistry
}

func rpc() *rpcMetrics {
	rpcOnce.Do(func() {
		rpcRegistry = &rpcMetrics{
			requests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "launchpad",
				Subsystem: "rpc",
				Name:      "requests_total",
				Help:      "JSON-RPC requests segmented by method and status code.",
			}, []string{"method", "status"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "launchpad",
				Subsystem: "rpc",
				Name:      "request_duration_seconds",
				Help:      "Latency distribution for JSON-RPC handlers.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"method"}),
		}
		prometheus.MustRegister(rpcRegistry.requests, rpcRegistry.latency)
	})
	return rpcRegistry
}

// RecordDepositAdmitted counts a successfully admitted deposit.
func RecordDepositAdmitted() {
	settlement().depositsAdmitted.Inc()
}

// RecordDepositRefused counts an admission refusal under its cause.
func RecordDepositRefused(cause string) {
	settlement().depositsRefused.WithLabelValues(cause).Inc()
}

// RecordClaimSettled counts a completed claim transfer.
func RecordClaimSettled(kind string) {
	settlement().claimsSettled.WithLabelValues(kind).Inc()
}

// RecordCompensation counts a compensating rollback.
func RecordCompensation(kind string) {
	settlement().compensations.WithLabelValues(kind).Inc()
}

// ObserveRPC records the outcome and latency of one JSON-RPC request.
func ObserveRPC(method string, status int, started time.Time) {
	reg := rpc()
	reg.requests.WithLabelValues(method, strconv.Itoa(status)).Inc()
	reg.latency.WithLabelValues(method).Observe(time.Since(started).Seconds())
}

// MetricsHandler exposes the process metrics in Prometheus text format.
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
