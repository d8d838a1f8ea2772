// Package memory provides an ordered in-memory key-value store.
//
// Keys are kept in a red-black tree so iteration is always in byte order.
// Writes are staged in a transaction overlay and published in one step,
// which gives the store the same all-or-nothing batch semantics as the
// on-disk engines.
//
// Thread Safety:
//
// All operations are thread-safe. Reads take a read lock, Update takes
// the write lock for the whole transaction.
package memory
