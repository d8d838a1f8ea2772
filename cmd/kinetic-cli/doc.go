// Command kinetic-cli is a command-line client for the Kinetic device
// simulator.
//
// Usage:
//
//	kinetic-cli put --new-version v1 sensor/1 21.5
//	kinetic-cli -o json get sensor/1
//	kinetic-cli delete --force sensor/1
//	kinetic-cli batch -f ops.yaml
//	kinetic-cli security apply -f acl.yaml
//	kinetic-cli --identity 20 --key reader --algorithm HmacSHA256 get pub/a
//	kinetic-cli status
//
// Connection settings come from profiles in ~/.kinetic/cli.yaml and can
// be overridden with flags or KINETIC_* environment variables.
package main
