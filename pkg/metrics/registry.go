// Package metrics provides Prometheus metrics collection for DriftFS
// components.
//
// All metrics are optional. If the registry is never initialized, the
// constructors return no-op implementations with zero overhead, so the
// server runs identically with or without metrics collection.
//
// Usage:
//
//	// Initialize global registry (typically in main.go)
//	metrics.InitRegistry()
//
//	// Create metrics instances for components
//	httpMetrics := metrics.NewHTTPMetrics()
//	engineMetrics := metrics.NewEngineMetrics()
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// registry is the global Prometheus registry for all DriftFS metrics.
	// Write-once via registryOnce, read-many afterwards.
	registry     *prometheus.Registry
	registryOnce sync.Once
)

// InitRegistry initializes the global Prometheus registry.
//
// Must be called before creating any metrics instances. Safe to call
// multiple times; subsequent calls are ignored. If never called, the
// metrics constructors return no-op implementations.
func InitRegistry() {
	registryOnce.Do(func() {
		registry = prometheus.NewRegistry()
	})
}

// GetRegistry returns the global Prometheus registry, or nil if
// InitRegistry has not been called.
func GetRegistry() *prometheus.Registry {
	return registry
}

// IsEnabled returns true if metrics collection is enabled.
func IsEnabled() bool {
	return GetRegistry() != nil
}
