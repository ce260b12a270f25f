package main

import (
	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "signalquery"

// Autocomplete metrics.
var (
	// SuggestionsTotal counts suggestion requests by source and clause context.
	SuggestionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "suggestions_total",
			Help:      "Total suggestion requests",
		},
		[]string{"source", "context"},
	)
)

// Builder metrics.
var (
	// BuildsTotal counts compiled drafts by source, mode and outcome.
	BuildsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "builds_total",
			Help:      "Total query drafts compiled",
		},
		[]string{"source", "mode", "status"},
	)
)

// Facet metrics.
var (
	// FacetLoadsTotal counts facet loads from ClickHouse by source and status.
	FacetLoadsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "facet_loads_total",
			Help:      "Total facet loads",
		},
		[]string{"source", "status"},
	)

	// FacetLoadDuration measures facet loads in seconds.
	FacetLoadDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "facet_load_duration_seconds",
			Help:      "Duration of facet loads in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
		},
		[]string{"source"},
	)
)

// Execution metrics.
var (
	// ExecutionsTotal counts forwarded executions by source, mode and status.
	ExecutionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "executions_total",
			Help:      "Total query executions forwarded to the engine",
		},
		[]string{"source", "mode", "status"},
	)

	// ExecutionDuration measures engine round trips in seconds.
	ExecutionDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "execution_duration_seconds",
			Help:      "Duration of query executions in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 14),
		},
		[]string{"source", "mode"},
	)
)

func init() {
	prometheus.MustRegister(
		SuggestionsTotal,
		BuildsTotal,
		FacetLoadsTotal,
		FacetLoadDuration,
		ExecutionsTotal,
		ExecutionDuration,
	)
}

func statusLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
