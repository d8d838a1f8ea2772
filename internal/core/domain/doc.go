// Package domain defines the core domain models for the Kinetic simulator.
//
// Domain models are pure value objects without IO dependencies. This
// package contains:
//
//   - Connection: per-connection sequence admission state
//   - ACL / ACLTable: access-control entries and the immutable identity snapshot
//   - Permission / HMACAlgorithm: closed enumerations from the wire protocol
//   - Errors: domain error values and their client status mapping
package domain
