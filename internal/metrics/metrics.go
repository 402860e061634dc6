// Package metrics exposes Prometheus counters for reservations and dispatch
// outcomes.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	Reservations = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "queuelabs",
		Name:      "reservations_total",
		Help:      "Slot reservation attempts by result.",
	}, []string{"result"})

	DispatchOutcomes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "queuelabs",
		Name:      "dispatch_outcomes_total",
		Help:      "Per-item dispatch outcomes.",
	}, []string{"outcome"})

	StaleLeasesReleased = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "queuelabs",
		Name:      "stale_leases_released_total",
		Help:      "Leases freed after exceeding the staleness window.",
	})
)

var registry = prometheus.NewRegistry()

func init() {
	registry.MustRegister(Reservations, DispatchOutcomes, StaleLeasesReleased)
}

// Handler serves the registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}

func ObserveReservation(result string) {
	Reservations.WithLabelValues(result).Inc()
}

func ObserveDispatch(outcome string) {
	DispatchOutcomes.WithLabelValues(outcome).Inc()
}
