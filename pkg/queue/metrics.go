package queue

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	queueOperations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stacks_queue_operations_total",
		Help: "Committed queue operations by kind.",
	}, []string{"op"})

	queueLength = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "stacks_queue_length",
		Help: "Number of books in the download queue.",
	})

	cleanupRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stacks_cleanup_runs_total",
		Help: "Bulk cleanups run, by target.",
	}, []string{"target"})

	cleanupWarnings = promauto.NewCounter(prometheus.CounterOpts{
		Name: "stacks_cleanup_warnings_total",
		Help: "Books whose files could not be verified during a bulk cleanup.",
	})
)
