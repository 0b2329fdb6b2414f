// Package metrics exposes Prometheus counters for the resolution and
// generation pipelines.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Resolutions counts completed branch resolutions.
	Resolutions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "taleloom_resolution_total",
		Help: "Completed branch resolutions.",
	})

	// ResolutionWarnings counts advisory signals emitted during resolution,
	// labelled by warning kind (cycle, depth, size, legacy inference).
	ResolutionWarnings = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "taleloom_resolution_warnings_total",
		Help: "Warnings emitted during branch resolution.",
	}, []string{"kind"})

	// Generations counts model invocations by outcome: ok, error, aborted.
	Generations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "taleloom_generation_total",
		Help: "Model generation attempts by outcome.",
	}, []string{"outcome"})
)
