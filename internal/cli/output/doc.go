// Package output renders kinetic-cli results as a table, JSON or YAML.
package output
