// Package handler provides the HTTP handlers of the simulator ops endpoint.
//
//   - health.go: liveness and readiness
//   - device.go: connections, ACL summary, storage and build status
//
// Handlers read device state through small interfaces and never expose
// ACL keys.
package handler
