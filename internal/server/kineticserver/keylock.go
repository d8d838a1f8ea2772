package kineticserver

import (
	"slices"
	"sync"

	"github.com/spaolacci/murmur3"
)

// keyLockStripes is the number of mutexes versioned writes are spread over.
const keyLockStripes = 256

// keyLocks serializes a version check with the write it guards, per key.
// Keys share a stripe by hash, so unrelated keys rarely contend.
type keyLocks struct {
	stripes [keyLockStripes]sync.Mutex
}

func (l *keyLocks) stripe(key []byte) int {
	return int(murmur3.Sum32(key) % keyLockStripes)
}

// lock locks the stripe of key and returns its unlock.
func (l *keyLocks) lock(key []byte) func() {
	mu := &l.stripes[l.stripe(key)]
	mu.Lock()
	return mu.Unlock
}

// lockAll locks the stripes of every key in ascending stripe order, each
// stripe once, and returns a function unlocking them all.
func (l *keyLocks) lockAll(keys [][]byte) func() {
	idx := make([]int, 0, len(keys))
	for _, k := range keys {
		idx = append(idx, l.stripe(k))
	}
	slices.Sort(idx)
	idx = slices.Compact(idx)
	for _, i := range idx {
		l.stripes[i].Lock()
	}
	return func() {
		for j := len(idx) - 1; j >= 0; j-- {
			l.stripes[idx[j]].Unlock()
		}
	}
}
