// Package telemetry holds the prometheus collectors of the service.
package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "unifiedpush"

// Result labels.
const (
	ResultOK      = "ok"
	ResultError   = "error"
	ResultDropped = "dropped"
)

var (
	sendRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "send_requests_total",
			Help:      "Push submissions handled by the sender, by result.",
		},
		[]string{"result"},
	)

	fanoutEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fanout_events_total",
			Help:      "Fan-out events per variant type, by result.",
		},
		[]string{"type", "result"},
	)

	deliveries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deliveries_total",
			Help:      "Per-variant delivery attempts by downstream senders.",
		},
		[]string{"type", "result"},
	)

	documentOps = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "document_operations_total",
			Help:      "Document saves and reads, by operation and result.",
		},
		[]string{"op", "result"},
	)
)

func SendRequest(result string) { sendRequests.WithLabelValues(result).Inc() }

func FanoutEvent(variantType, result string) {
	fanoutEvents.WithLabelValues(variantType, result).Inc()
}

func Delivery(variantType, result string) {
	deliveries.WithLabelValues(variantType, result).Inc()
}

func DocumentOperation(op, result string) {
	documentOps.WithLabelValues(op, result).Inc()
}

// Handler exposes the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
