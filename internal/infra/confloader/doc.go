// Package confloader loads configuration with koanf.
//
// Sources, highest priority first:
//
//  1. Overrides (command-line flags)
//  2. Environment variables (KINETIC_ prefix, "__" between levels)
//  3. YAML configuration file
//  4. Defaults held by the target struct
//
// Watcher reports writes to the configuration file through fsnotify so the
// caller can reload the values that may change at runtime.
package confloader
