package ratelimiter

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CallsTotal tracks calls dispatched per API class.
	CallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "polymarket_arb_ratelimiter_calls_total",
			Help: "Total number of calls dispatched through the rate limiter",
		},
		[]string{"class"},
	)

	// RateLimitHitsTotal tracks 429 responses observed per API class.
	RateLimitHitsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "polymarket_arb_ratelimiter_429_total",
			Help: "Total number of rate-limited (429) responses observed",
		},
		[]string{"class"},
	)

	// WaitDurationSeconds tracks time spent waiting for a slot before fn ran.
	WaitDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "polymarket_arb_ratelimiter_wait_seconds",
			Help:    "Time spent waiting for a rate limiter slot",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"class"},
	)
)
