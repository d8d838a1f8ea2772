package storage

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stephzylstra/kinetic-sim/internal/core/domain"
)

// failingEngine records ApplyBatch calls and fails them on demand.
type failingEngine struct {
	*MemoryEngine
	mu       sync.Mutex
	calls    int
	durable  bool
	fail     error
	syncFail bool // apply, then report ErrSyncFailed
}

func (f *failingEngine) ApplyBatch(ctx context.Context, ops []Mutation, durable bool) error {
	f.mu.Lock()
	f.calls++
	f.durable = durable
	fail, syncFail := f.fail, f.syncFail
	f.mu.Unlock()
	if fail != nil {
		return fail
	}
	if err := f.MemoryEngine.ApplyBatch(ctx, ops, durable); err != nil {
		return err
	}
	if syncFail {
		return fmt.Errorf("memory: %w: fsync: input/output error", ErrSyncFailed)
	}
	return nil
}

func TestBatch_Commit(t *testing.T) {
	engine := &failingEngine{MemoryEngine: NewMemoryEngine()}
	ctx := context.Background()

	b := NewBatch(engine)
	if b.State() != BatchOpen || b.IsClosed() {
		t.Fatalf("new batch state = %s", b.State())
	}

	key := []byte("k")
	if err := b.Put(key, []byte("v1")); err != nil {
		t.Fatal(err)
	}
	if err := b.Put(key, []byte("v2")); err != nil {
		t.Fatal(err)
	}
	if err := b.Delete([]byte("missing")); err != nil {
		t.Fatal(err)
	}
	key[0] = 'x' // caller buffers may be reused after Put

	if b.Len() != 3 {
		t.Errorf("Len() = %d, want 3", b.Len())
	}

	// Nothing is visible before commit.
	if _, err := engine.Get(ctx, []byte("k")); !errors.Is(err, ErrKeyNotFound) {
		t.Errorf("uncommitted write visible: %v", err)
	}

	if err := b.Commit(ctx); err != nil {
		t.Fatalf("Commit() error = %v", err)
	}
	if !engine.durable {
		t.Error("Commit() must request a durable apply")
	}
	if b.State() != BatchCommitted {
		t.Errorf("State() = %s, want committed", b.State())
	}

	got, err := engine.Get(ctx, []byte("k"))
	if err != nil || string(got) != "v2" {
		t.Errorf("Get(k) = %q, %v; want %q", got, err, "v2")
	}
}

func TestBatch_ClosedRejectsMutations(t *testing.T) {
	ctx := context.Background()

	t.Run("after commit", func(t *testing.T) {
		engine := &failingEngine{MemoryEngine: NewMemoryEngine()}
		b := NewBatch(engine)
		_ = b.Put([]byte("a"), []byte("1"))
		if err := b.Commit(ctx); err != nil {
			t.Fatal(err)
		}

		if err := b.Put([]byte("b"), []byte("2")); !errors.Is(err, domain.ErrInvalidState) {
			t.Errorf("Put after commit = %v, want ErrInvalidState", err)
		}
		if err := b.Delete([]byte("a")); !errors.Is(err, domain.ErrInvalidState) {
			t.Errorf("Delete after commit = %v, want ErrInvalidState", err)
		}
		if err := b.Commit(ctx); !errors.Is(err, domain.ErrInvalidState) {
			t.Errorf("second Commit = %v, want ErrInvalidState", err)
		}
		if engine.calls != 1 {
			t.Errorf("engine applied %d times, want 1", engine.calls)
		}
	})

	t.Run("after abandon", func(t *testing.T) {
		engine := &failingEngine{MemoryEngine: NewMemoryEngine()}
		b := NewBatch(engine)
		_ = b.Put([]byte("a"), []byte("1"))
		b.Abandon()
		b.Abandon() // idempotent

		if !b.IsClosed() || b.State() != BatchAbandoned {
			t.Errorf("State() = %s, want abandoned", b.State())
		}
		if err := b.Put([]byte("b"), []byte("2")); domain.StatusOf(err) != domain.StatusInvalidState {
			t.Errorf("Put after abandon status = %v", domain.StatusOf(err))
		}
		if err := b.Commit(ctx); !errors.Is(err, domain.ErrInvalidState) {
			t.Errorf("Commit after abandon = %v, want ErrInvalidState", err)
		}
		if engine.calls != 0 {
			t.Errorf("abandoned batch reached the engine")
		}
		if _, err := engine.Get(ctx, []byte("a")); !errors.Is(err, ErrKeyNotFound) {
			t.Errorf("abandoned write visible: %v", err)
		}
	})

	t.Run("abandon after commit keeps committed", func(t *testing.T) {
		b := NewBatch(NewMemoryEngine())
		_ = b.Commit(ctx)
		b.Abandon()
		if b.State() != BatchCommitted {
			t.Errorf("State() = %s, want committed", b.State())
		}
	})
}

func TestBatch_EngineFailure(t *testing.T) {
	engine := &failingEngine{MemoryEngine: NewMemoryEngine(), fail: errors.New("disk full")}
	ctx := context.Background()

	b := NewBatch(engine)
	_ = b.Put([]byte("a"), []byte("1"))

	err := b.Commit(ctx)
	if !errors.Is(err, domain.ErrInternal) {
		t.Fatalf("Commit() = %v, want ErrInternal", err)
	}
	if domain.StatusOf(err) != domain.StatusInternalError {
		t.Errorf("StatusOf() = %v", domain.StatusOf(err))
	}
	if !b.IsClosed() {
		t.Error("failed batch should be closed")
	}
	if _, err := engine.Get(ctx, []byte("a")); !errors.Is(err, ErrKeyNotFound) {
		t.Errorf("failed batch visible: %v", err)
	}
}

func TestBatch_SyncFailureAfterApply(t *testing.T) {
	engine := &failingEngine{MemoryEngine: NewMemoryEngine(), syncFail: true}
	ctx := context.Background()

	b := NewBatch(engine)
	_ = b.Put([]byte("a"), []byte("1"))

	err := b.Commit(ctx)
	if !errors.Is(err, domain.ErrInternal) || !errors.Is(err, ErrSyncFailed) {
		t.Fatalf("Commit() = %v, want ErrInternal wrapping ErrSyncFailed", err)
	}
	if b.State() != BatchCommitted {
		t.Errorf("State() = %s, want committed since the mutations were applied", b.State())
	}
	if v, err := engine.Get(ctx, []byte("a")); err != nil || string(v) != "1" {
		t.Errorf("Get(a) = %q, %v", v, err)
	}
}

func TestBatch_FaultMidApply(t *testing.T) {
	engine := NewMemoryEngine()
	ctx := context.Background()

	if err := engine.Set(ctx, []byte("c"), []byte("old")); err != nil {
		t.Fatal(err)
	}
	engine.applyHook = func(i int, op Mutation) error {
		if i == 2 {
			return errors.New("injected fault")
		}
		return nil
	}

	b := NewBatch(engine)
	_ = b.Put([]byte("a"), []byte("1"))
	_ = b.Put([]byte("b"), []byte("2"))
	_ = b.Put([]byte("c"), []byte("3"))

	if err := b.Commit(ctx); !errors.Is(err, domain.ErrInternal) {
		t.Fatalf("Commit() = %v, want ErrInternal", err)
	}

	engine.applyHook = nil
	for _, k := range []string{"a", "b"} {
		if _, err := engine.Get(ctx, []byte(k)); !errors.Is(err, ErrKeyNotFound) {
			t.Errorf("Get(%s) err = %v, want ErrKeyNotFound", k, err)
		}
	}
	if got, _ := engine.Get(ctx, []byte("c")); string(got) != "old" {
		t.Errorf("Get(c) = %q, want %q", got, "old")
	}
}

func TestBatch_ConcurrentPutAndCommit(t *testing.T) {
	engine := NewMemoryEngine()
	ctx := context.Background()
	b := NewBatch(engine)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = b.Put([]byte{byte(i)}, []byte{byte(i)})
		}(i)
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = b.Commit(ctx)
	}()
	wg.Wait()

	// Every put either made it into the commit or was rejected; the
	// engine holds exactly what was queued before the commit.
	stats, _ := engine.Stats(ctx)
	if b.State() != BatchCommitted {
		t.Fatalf("State() = %s", b.State())
	}
	if stats.TotalKeys > 50 {
		t.Errorf("TotalKeys = %d, want <= 50", stats.TotalKeys)
	}
}
