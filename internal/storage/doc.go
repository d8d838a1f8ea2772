// Package storage provides the device's key-value storage engines.
//
// Engines implement KVEngine and are selected by name with Open:
//
//   - badger: LSM engine (default), batch applied in one transaction
//   - bbolt: B+tree engine, one fsynced transaction per update
//   - memory: ordered in-memory engine for tests and ephemeral devices
//
// Batch groups puts and deletes into one atomic, durable commit on top
// of any engine.
package storage
