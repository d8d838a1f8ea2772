// Package tlsroots builds the TLS configuration of the Kinetic TLS
// listener, the ops HTTP server and the command-line client.
//
//   - roots.go: trusted CA pools from PEM files
//   - watcher.go: server certificate hot reload via fsnotify
//   - config.go: server and client tls.Config construction
package tlsroots
