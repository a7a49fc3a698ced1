package node

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	gatewayRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "contractindexor_node_requests_total",
		Help: "Node gateway requests by method and outcome (ok, cancelled, timeout, transient, permanent)",
	}, []string{"method", "outcome"})

	gatewayRetries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "contractindexor_node_retries_total",
		Help: "Node gateway requests that were repeated after a transient failure",
	}, []string{"method"})

	gatewayLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "contractindexor_node_request_duration_seconds",
		Help:    "Latency of single node gateway requests, retries excluded",
		Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
	}, []string{"method"})
)

func observeRequest(method string, elapsed time.Duration, err error) {
	gatewayLatency.WithLabelValues(method).Observe(elapsed.Seconds())

	outcome := "ok"
	if err != nil {
		outcome = errorType(err)
	}
	gatewayRequests.WithLabelValues(method, outcome).Inc()
}

func retryInc(method string) {
	gatewayRetries.WithLabelValues(method).Inc()
}
