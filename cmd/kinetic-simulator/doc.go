// Command kinetic-simulator runs a simulated Kinetic drive.
//
// It serves the Kinetic protocol on a TCP port (and optionally TLS),
// keeps key-value data in Badger, bbolt or memory, enforces per-identity
// HMAC ACLs persisted under the data directory, and exposes health,
// metrics and connection state on an ops HTTP endpoint.
//
// Usage:
//
//	kinetic-simulator --config /etc/kinetic/simulator.yaml
//	kinetic-simulator --data-dir /tmp/drive1 --port 8124 --log-level debug
//
// Configuration is layered: defaults, the YAML file, KINETIC_*
// environment variables (KINETIC_STORAGE__ENGINE=memory), then flags.
// Editing the file while running reloads the log level.
package main
