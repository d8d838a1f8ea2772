// Package command provides the kinetic-cli command tree.
//
// Commands are built with urfave/cli/v2:
//
//   - root.go: application, global flags, profile resolution
//   - kv.go: noop, put, get, delete
//   - batch.go: atomic batches from a YAML file
//   - security.go: ACL replacement from a YAML file
//   - ops.go: status, connections, acl, storage (ops HTTP endpoint)
//   - config.go: CLI profile management
//
// Device commands speak the Kinetic protocol through internal/client;
// ops commands read the simulator's JSON endpoint.
package command
