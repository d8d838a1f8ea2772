// Package metric provides Prometheus metrics for the Kinetic simulator.
//
// This package implements metrics collection and exposition:
//
//   - prometheus.go: Prometheus registry, request and security counters, HTTP handler
//   - collector.go: Collector reporting storage and ACL table state at scrape time
//
// Metrics are exposed at /metrics in Prometheus format by the ops HTTP
// server. A nil *Registry is valid and records nothing.
package metric
