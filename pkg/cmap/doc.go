// Package cmap provides a concurrent map implementation.
//
// Keys are spread over a power-of-two number of shards by their murmur3
// hash; each shard has its own RWMutex.
//
// Usage:
//
//	m := cmap.New[int64, *Conn]()
//	m.Set(id, conn)
//	c, ok := m.Get(id)
//
// All operations are thread-safe. Iteration locks one shard at a time, so
// it does not observe a single consistent snapshot.
package cmap
