package session

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SignalsTotal counts strategy signals dispatched, labeled by type.
	SignalsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "polymarket_session_signals_total",
		Help: "Total strategy signals dispatched by the session orchestrator, by type",
	}, []string{"type"})

	// SessionStatePersistsTotal counts successful state-file writes.
	SessionStatePersistsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "polymarket_session_state_persists_total",
		Help: "Total successful session state persists",
	})
)
