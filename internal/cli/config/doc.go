// Package config holds kinetic-cli profiles (~/.kinetic/cli.yaml).
//
// A profile names a device address, the identity and HMAC key used to
// sign requests, and TLS settings. Flags and KINETIC_* environment
// variables override the selected profile.
package config
