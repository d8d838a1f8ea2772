// Package memory provides an ordered in-memory key-value store.
package memory

import (
	"bytes"
	"errors"
	"sync"

	"github.com/emirpasic/gods/maps/treemap"
)

// ErrKeyNotFound is returned by Get for missing keys.
var ErrKeyNotFound = errors.New("memory: key not found")

// Store is an ordered, concurrency-safe key-value map. Writes go through
// Update, which stages them and publishes all or nothing.
type Store struct {
	mu   sync.RWMutex
	tree *treemap.Map // string -> []byte
}

// New creates an empty store.
func New() *Store {
	return &Store{tree: treemap.NewWithStringComparator()}
}

// Get returns a copy of the value stored under key.
func (s *Store) Get(key []byte) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.tree.Get(string(key))
	if !ok {
		return nil, ErrKeyNotFound
	}
	return bytes.Clone(v.([]byte)), nil
}

// Len returns the number of keys.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tree.Size()
}

// Size returns the sum of key and value lengths.
func (s *Store) Size() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n uint64
	it := s.tree.Iterator()
	for it.Next() {
		n += uint64(len(it.Key().(string)) + len(it.Value().([]byte)))
	}
	return n
}

// Keys returns all keys in ascending order.
func (s *Store) Keys() [][]byte {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make([][]byte, 0, s.tree.Size())
	for _, k := range s.tree.Keys() {
		keys = append(keys, []byte(k.(string)))
	}
	return keys
}

// Update runs fn against a transaction. The staged writes are published
// only if fn returns nil; otherwise the store is left untouched.
// Updates are serialized.
func (s *Store) Update(fn func(tx *Txn) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &Txn{store: s, pending: make(map[string]pendingWrite)}
	if err := fn(tx); err != nil {
		return err
	}

	for k, w := range tx.pending {
		if w.deleted {
			s.tree.Remove(k)
			continue
		}
		s.tree.Put(k, w.value)
	}
	return nil
}

type pendingWrite struct {
	value   []byte
	deleted bool
}

// Txn stages writes for Update. It is only valid inside the Update callback.
type Txn struct {
	store   *Store
	pending map[string]pendingWrite
}

// Get reads through the staged writes.
func (tx *Txn) Get(key []byte) ([]byte, error) {
	if w, ok := tx.pending[string(key)]; ok {
		if w.deleted {
			return nil, ErrKeyNotFound
		}
		return bytes.Clone(w.value), nil
	}
	v, ok := tx.store.tree.Get(string(key))
	if !ok {
		return nil, ErrKeyNotFound
	}
	return bytes.Clone(v.([]byte)), nil
}

// Set stages a put. A later write to the same key replaces it.
func (tx *Txn) Set(key, value []byte) {
	tx.pending[string(key)] = pendingWrite{value: bytes.Clone(value)}
}

// Delete stages a delete.
func (tx *Txn) Delete(key []byte) {
	tx.pending[string(key)] = pendingWrite{deleted: true}
}
