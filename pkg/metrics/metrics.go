package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	RateLimitAllowed = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "diagramsync", Name: "rate_limit_allowed_total", Help: "Number of allowed requests by limiter type."},
		[]string{"limiter"},
	)
	RateLimitRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "diagramsync", Name: "rate_limit_rejected_total", Help: "Number of rejected requests by limiter type."},
		[]string{"limiter"},
	)

	SessionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{Namespace: "diagramsync", Subsystem: "collab", Name: "sessions_active", Help: "Authenticated persistent connections currently open."},
	)
	RoomsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{Namespace: "diagramsync", Subsystem: "collab", Name: "rooms_active", Help: "Documents with at least one joined session."},
	)
	// Mutations counts update attempts by source (ws|rest|relay) and result (ok|forbidden|not_found|storage_failure).
	Mutations = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "diagramsync", Subsystem: "collab", Name: "mutations_total", Help: "Document mutations routed through the broadcast router."},
		[]string{"source", "result"},
	)
	// Deliveries counts fan-out enqueue attempts by result (ok|dropped).
	Deliveries = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "diagramsync", Subsystem: "collab", Name: "deliveries_total", Help: "Fan-out deliveries to room members."},
		[]string{"result"},
	)
)

func RegisterCollectors(reg prometheus.Registerer) {
	reg.MustRegister(RateLimitAllowed)
	reg.MustRegister(RateLimitRejected)
	reg.MustRegister(SessionsActive)
	reg.MustRegister(RoomsActive)
	reg.MustRegister(Mutations)
	reg.MustRegister(Deliveries)
}
