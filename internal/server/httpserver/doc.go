// Package httpserver serves the simulator ops endpoint.
//
// The router is built with chi and exposes health, readiness, Prometheus
// metrics and read-only views of device state:
//
//   - /health, /ready, /metrics
//   - /status, /connections, /acl, /storage
//
// The device endpoints can be limited to an IP allowlist and rate limited
// per client IP.
package httpserver
