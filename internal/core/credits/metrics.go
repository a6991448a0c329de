package credits

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	debitsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "imaginario",
		Subsystem: "credits",
		Name:      "debits_total",
		Help:      "Debit attempts by outcome (applied, insufficient, error).",
	}, []string{"outcome"})

	refundsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "imaginario",
		Subsystem: "credits",
		Name:      "refunds_total",
		Help:      "Refunds issued after failed work by outcome (ok, duplicate, failed).",
	}, []string{"outcome"})

	creditsSpent = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "imaginario",
		Subsystem: "credits",
		Name:      "spent_total",
		Help:      "Credits consumed by completed charges.",
	})

	creditsGranted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "imaginario",
		Subsystem: "credits",
		Name:      "granted_total",
		Help:      "Credits added to balances by kind.",
	}, []string{"kind"})
)
