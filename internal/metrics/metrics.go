package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aqensemble_runs_total",
			Help: "Total combination runs by method and outcome",
		},
		[]string{"method", "status"},
	)

	RunDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "aqensemble_run_duration_seconds",
			Help:    "Wall time of a combination run, statistics included",
			Buckets: prometheus.ExponentialBuckets(0.001, 4, 10),
		},
		[]string{"method"},
	)

	StepsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aqensemble_steps_processed_total",
			Help: "Total learning steps processed",
		},
		[]string{"method"},
	)

	FinalScore = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "aqensemble_final_score",
			Help: "Global score of the last successful run of each method",
		},
		[]string{"method", "measure"},
	)

	ObservationsLoaded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aqensemble_observations_loaded_total",
			Help: "Observations loaded into ensembles, by quality outcome",
		},
		[]string{"outcome"},
	)
)
