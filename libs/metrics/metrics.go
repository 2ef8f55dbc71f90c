// Package metrics holds the Prometheus collectors shared by staffops services.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	circuitBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "staffops_circuit_breaker_state",
		Help: "Circuit breaker state by category (1 for the active state, 0 otherwise)",
	}, []string{"category", "state"})

	circuitBreakerTrips = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "staffops_circuit_breaker_trips_total",
		Help: "Total number of circuit breaker trips (transitions to open state)",
	}, []string{"category", "reason"})

	workflowTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "staffops_workflow_transitions_total",
		Help: "Committed workflow operations by operation and outcome",
	}, []string{"operation", "outcome"})

	outboxPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "staffops_outbox_published_total",
		Help: "Outbox records handed to the event bus",
	}, []string{"sink"})

	outboxFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "staffops_outbox_publish_failures_total",
		Help: "Outbox relay passes that failed",
	}, []string{"sink"})

	geocodeLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "staffops_geocode_lookups_total",
		Help: "Geocoding lookups by result (cache_hit, cache_miss, error)",
	}, []string{"result"})
)

var circuitStates = []string{"closed", "half-open", "open"}

// SetCircuitBreakerState records the active circuit breaker state for a category.
func SetCircuitBreakerState(category, state string) {
	for _, s := range circuitStates {
		value := 0.0
		if s == state {
			value = 1.0
		}
		circuitBreakerState.WithLabelValues(category, s).Set(value)
	}
}

// RecordCircuitBreakerTrip increments the trip counter when a breaker opens.
func RecordCircuitBreakerTrip(category, reason string) {
	circuitBreakerTrips.WithLabelValues(category, reason).Inc()
}

func RecordTransition(operation string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	workflowTransitions.WithLabelValues(operation, outcome).Inc()
}

func RecordOutboxPublished(sink string, n int) {
	outboxPublished.WithLabelValues(sink).Add(float64(n))
}

func RecordOutboxFailure(sink string) {
	outboxFailures.WithLabelValues(sink).Inc()
}

func RecordGeocodeLookup(result string) {
	geocodeLookups.WithLabelValues(result).Inc()
}
