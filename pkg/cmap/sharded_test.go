package cmap

import (
	"fmt"
	"sort"
	"sync"
	"testing"
)

func TestNewWithShards(t *testing.T) {
	tests := []struct {
		input    int
		expected int
	}{
		{0, DefaultShardCount},
		{-1, DefaultShardCount},
		{3, DefaultShardCount},
		{1, 1},
		{8, 8},
		{32, 32},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("shards=%d", tt.input), func(t *testing.T) {
			m := NewWithShards[string, int](tt.input)
			if len(m.shards) != tt.expected {
				t.Errorf("NewWithShards(%d) shard count = %d, want %d",
					tt.input, len(m.shards), tt.expected)
			}
		})
	}
}

func TestMap_Basic(t *testing.T) {
	m := New[int64, string]()

	m.Set(1, "one")
	m.Set(-1, "minus one")
	if v, ok := m.Get(1); !ok || v != "one" {
		t.Errorf("Get(1) = %q, %v", v, ok)
	}
	if !m.Has(-1) {
		t.Error("Has(-1) = false")
	}
	if m.Count() != 2 {
		t.Errorf("Count() = %d, want 2", m.Count())
	}

	if m.SetIfAbsent(1, "uno") {
		t.Error("SetIfAbsent overwrote an existing key")
	}
	if !m.SetIfAbsent(2, "two") {
		t.Error("SetIfAbsent(2) = false for absent key")
	}

	if v, ok := m.Pop(2); !ok || v != "two" {
		t.Errorf("Pop(2) = %q, %v", v, ok)
	}
	if _, ok := m.Pop(2); ok {
		t.Error("Pop of removed key reported ok")
	}

	m.Delete(1)
	if m.Has(1) {
		t.Error("key present after Delete")
	}
}

type connID int64

func TestMap_NamedKeyType(t *testing.T) {
	m := NewWithShards[connID, int](4)
	for i := connID(0); i < 100; i++ {
		m.Set(i, int(i))
	}
	for i := connID(0); i < 100; i++ {
		if v, ok := m.Get(i); !ok || v != int(i) {
			t.Fatalf("Get(%d) = %d, %v", i, v, ok)
		}
	}
}

func TestMap_Spread(t *testing.T) {
	m := NewWithShards[uint32, struct{}](8)
	for i := uint32(0); i < 800; i++ {
		m.Set(i, struct{}{})
	}
	for i := range m.shards {
		if len(m.shards[i].items) == 0 {
			t.Errorf("shard %d is empty after 800 inserts", i)
		}
	}
}

func TestMap_Iteration(t *testing.T) {
	m := New[string, int]()
	for i := 0; i < 10; i++ {
		m.Set(fmt.Sprintf("k%d", i), i)
	}

	var keys []string
	sum := 0
	for k, v := range m.All() {
		keys = append(keys, k)
		sum += v
	}
	sort.Strings(keys)
	if len(keys) != 10 || keys[0] != "k0" || sum != 45 {
		t.Errorf("All() keys = %v, sum = %d", keys, sum)
	}

	seen := 0
	m.Range(func(string, int) bool {
		seen++
		return seen < 3
	})
	if seen != 3 {
		t.Errorf("Range visited %d items after stop, want 3", seen)
	}

	seen = 0
	for range m.All() {
		seen++
		if seen == 5 {
			break
		}
	}
	// A broken loop must release the shard lock.
	m.Set("after-break", 1)
	if m.Count() != 11 {
		t.Errorf("Count() = %d after break, want 11", m.Count())
	}
}

func TestMap_Concurrent(t *testing.T) {
	m := New[int64, int64]()
	var wg sync.WaitGroup
	for g := int64(0); g < 8; g++ {
		wg.Add(1)
		go func(base int64) {
			defer wg.Done()
			for i := int64(0); i < 500; i++ {
				m.Set(base*1000+i, i)
				m.Get(base*1000 + i)
			}
		}(g)
	}
	wg.Wait()
	if m.Count() != 4000 {
		t.Errorf("Count() = %d, want 4000", m.Count())
	}
}
