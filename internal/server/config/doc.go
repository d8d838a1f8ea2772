// Package config defines the simulator configuration.
//
//   - spec.go: ServerConfig and its sections
//   - default.go: default values
//   - verify.go: validation (addresses, TLS files, engine, data dir)
//   - sanitize.go: masking of secrets for logging
//
// Configuration is loaded with internal/infra/confloader from a YAML file
// and KINETIC_ environment variables, then overridden by command-line flags.
package config
