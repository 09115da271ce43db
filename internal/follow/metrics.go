package follow

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// PollErrorsTotal counts failed activity-feed polls.
	PollErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "polymarket_follow_poll_errors_total",
		Help: "Total failed follow-runner activity polls",
	})

	// SuggestionsTotal counts suggestions built, labeled by outcome
	// ("accepted" or a drop reason).
	SuggestionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "polymarket_follow_suggestions_total",
		Help: "Total follow-trade suggestions built, by outcome",
	}, []string{"outcome"})

	// AutoTradeOrdersTotal counts orders produced by the AutoTrader,
	// labeled by style ("copy"/"sweep") and mode ("paper"/"live").
	AutoTradeOrdersTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "polymarket_follow_autotrade_orders_total",
		Help: "Total autotrade orders produced, by style and execution mode",
	}, []string{"style", "mode"})
)
