package cmap

import (
	"encoding/binary"
	"math/rand/v2"
	"reflect"
	"sync"

	"github.com/spaolacci/murmur3"
)

// DefaultShardCount is used when no valid shard count is given.
const DefaultShardCount = 16

// Key lists the key kinds the map knows how to hash, including named
// types built on them.
type Key interface {
	~int | ~int32 | ~int64 | ~uint32 | ~uint64 | ~string
}

// Map is a hash map split into independently locked shards.
type Map[K Key, V any] struct {
	shards []shard[K, V]
	mask   uint64
	seed   uint32
}

type shard[K Key, V any] struct {
	mu    sync.RWMutex
	items map[K]V
}

// New returns a map with DefaultShardCount shards.
func New[K Key, V any]() *Map[K, V] {
	return NewWithShards[K, V](DefaultShardCount)
}

// NewWithShards returns a map with n shards. n must be a positive power
// of two; anything else means DefaultShardCount.
func NewWithShards[K Key, V any](n int) *Map[K, V] {
	if n <= 0 || n&(n-1) != 0 {
		n = DefaultShardCount
	}
	m := &Map[K, V]{
		shards: make([]shard[K, V], n),
		mask:   uint64(n - 1),
		seed:   rand.Uint32(),
	}
	for i := range m.shards {
		m.shards[i].items = make(map[K]V)
	}
	return m
}

// sum hashes the key's canonical bytes: UTF-8 for strings, 8 little-endian
// bytes for integers.
func (m *Map[K, V]) sum(key K) uint64 {
	rv := reflect.ValueOf(key)
	if rv.Kind() == reflect.String {
		return murmur3.Sum64WithSeed([]byte(rv.String()), m.seed)
	}
	var n uint64
	if rv.CanUint() {
		n = rv.Uint()
	} else {
		n = uint64(rv.Int())
	}
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], n)
	return murmur3.Sum64WithSeed(b[:], m.seed)
}

func (m *Map[K, V]) shardFor(key K) *shard[K, V] {
	return &m.shards[m.sum(key)&m.mask]
}

// Get returns the value for key.
func (m *Map[K, V]) Get(key K) (V, bool) {
	s := m.shardFor(key)
	s.mu.RLock()
	v, ok := s.items[key]
	s.mu.RUnlock()
	return v, ok
}

// Has reports whether key is present.
func (m *Map[K, V]) Has(key K) bool {
	_, ok := m.Get(key)
	return ok
}

// Set stores value under key, replacing any previous value.
func (m *Map[K, V]) Set(key K, value V) {
	s := m.shardFor(key)
	s.mu.Lock()
	s.items[key] = value
	s.mu.Unlock()
}

// SetIfAbsent stores value only when key is absent. It reports whether
// the value was stored.
func (m *Map[K, V]) SetIfAbsent(key K, value V) bool {
	s := m.shardFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, dup := s.items[key]; dup {
		return false
	}
	s.items[key] = value
	return true
}

// Delete removes key if present.
func (m *Map[K, V]) Delete(key K) {
	m.Pop(key)
}

// Pop removes key and returns what it held.
func (m *Map[K, V]) Pop(key K) (V, bool) {
	s := m.shardFor(key)
	s.mu.Lock()
	v, ok := s.items[key]
	delete(s.items, key)
	s.mu.Unlock()
	return v, ok
}

// Count sums the shard sizes. Concurrent writers can make the result stale
// by the time it returns.
func (m *Map[K, V]) Count() int {
	n := 0
	for i := range m.shards {
		s := &m.shards[i]
		s.mu.RLock()
		n += len(s.items)
		s.mu.RUnlock()
	}
	return n
}
