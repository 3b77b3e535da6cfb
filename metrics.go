package vdego

import "github.com/hupe1980/vdego/observability"

// MetricsCollector defines an interface for collecting operational metrics.
// Implement this interface to integrate with monitoring systems, or use
// observability.NewPrometheusCollector.
//
// Example with BasicMetricsCollector:
//
//	metrics := &vdego.BasicMetricsCollector{}
//	seg, _ := vdego.Open(ctx, "./data", vdego.WithMetricsCollector(metrics))
//	// ... use seg ...
//	stats := metrics.GetStats()
//	fmt.Printf("Searches: %d, avg latency: %dns\n", stats.SearchCount, stats.SearchAvgNanos)
type MetricsCollector = observability.MetricsCollector

// NoopMetricsCollector is a no-op implementation of MetricsCollector.
type NoopMetricsCollector = observability.NoopMetricsCollector

// BasicMetricsCollector provides simple in-memory metrics collection.
// Useful for debugging and basic monitoring without external dependencies.
type BasicMetricsCollector = observability.BasicMetricsCollector

// BasicMetricsStats is a snapshot of BasicMetricsCollector state.
type BasicMetricsStats = observability.BasicMetricsStats
