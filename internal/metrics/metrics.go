// Package metrics registers the prometheus collectors exposed on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	FillsExecuted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "skynet_fills_executed_total",
			Help: "Total number of simulated fills (by side).",
		},
		[]string{"side"},
	)

	RunsCompleted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "skynet_backtest_runs_total",
			Help: "Total number of simulator runs (by outcome).",
		},
		[]string{"outcome"},
	)

	DrawdownAlerts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "skynet_drawdown_alerts_total",
			Help: "Total number of drawdown alert events emitted.",
		},
	)

	GenerationsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "skynet_generations_total",
			Help: "Total number of optimizer generations completed.",
		},
	)

	BestFitness = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "skynet_best_fitness",
			Help: "Fitness of the best candidate in the latest generation.",
		},
	)

	CandidateFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "skynet_candidate_failures_total",
			Help: "Candidates that failed evaluation and received worst fitness.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		FillsExecuted,
		RunsCompleted,
		DrawdownAlerts,
		GenerationsTotal,
		BestFitness,
		CandidateFailures,
	)
}
