package settlement

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SettlementOpsTotal counts split/merge/redeem/approve calls by operation.
	SettlementOpsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "polyarb_settlement_ops_total",
		Help: "Total CTF settlement operations attempted, by op.",
	}, []string{"op"})

	// GasCostWei accumulates gas spent in wei, by op and outcome.
	GasCostWei = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "polyarb_settlement_gas_cost_wei_total",
		Help: "Cumulative gas cost in wei for settlement transactions.",
	}, []string{"op", "status"})
)
