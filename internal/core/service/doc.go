// Package service provides domain services for the Kinetic simulator.
//
// Domain services contain business logic and orchestrate operations on
// domain models. They define interfaces for storage dependencies,
// allowing for dependency injection and testability.
//
// This package contains:
//
//   - SecurityService: ACL table ownership, authorization and durable security updates
//
// Services are thread-safe; reads never block on updates.
package service
