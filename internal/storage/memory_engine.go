package storage

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/stephzylstra/kinetic-sim/internal/storage/memory"
)

// MemoryEngine implements KVEngine on memory.Store. Nothing survives a
// restart; durable is accepted and ignored.
type MemoryEngine struct {
	store  *memory.Store
	closed atomic.Bool

	// applyHook, when set, is called before each batch op is staged.
	// Returning an error aborts the batch.
	applyHook func(i int, op Mutation) error
}

var _ KVEngine = (*MemoryEngine)(nil)

// NewMemoryEngine returns an empty in-memory engine.
func NewMemoryEngine() *MemoryEngine {
	return &MemoryEngine{store: memory.New()}
}

// Get retrieves a value by key.
func (e *MemoryEngine) Get(ctx context.Context, key []byte) ([]byte, error) {
	if e.closed.Load() {
		return nil, ErrClosed
	}
	v, err := e.store.Get(key)
	if errors.Is(err, memory.ErrKeyNotFound) {
		return nil, ErrKeyNotFound
	}
	return v, err
}

// Set stores a key-value pair.
func (e *MemoryEngine) Set(ctx context.Context, key, value []byte) error {
	return e.ApplyBatch(ctx, []Mutation{{Kind: MutationPut, Key: key, Value: value}}, false)
}

// Delete removes a key.
func (e *MemoryEngine) Delete(ctx context.Context, key []byte) error {
	return e.ApplyBatch(ctx, []Mutation{{Kind: MutationDelete, Key: key}}, false)
}

// ApplyBatch stages ops in a memory transaction and publishes them together.
func (e *MemoryEngine) ApplyBatch(ctx context.Context, ops []Mutation, durable bool) error {
	if e.closed.Load() {
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	return e.store.Update(func(tx *memory.Txn) error {
		for i, op := range ops {
			if e.applyHook != nil {
				if err := e.applyHook(i, op); err != nil {
					return fmt.Errorf("memory: apply batch: op %d: %w", i, err)
				}
			}
			switch op.Kind {
			case MutationPut:
				tx.Set(op.Key, op.Value)
			case MutationDelete:
				tx.Delete(op.Key)
			default:
				return fmt.Errorf("memory: apply batch: op %d: unknown mutation kind %s", i, op.Kind)
			}
		}
		return nil
	})
}

// Stats returns storage statistics.
func (e *MemoryEngine) Stats(ctx context.Context) (*KVStats, error) {
	return &KVStats{
		Engine:    EngineMemory,
		TotalKeys: uint64(e.store.Len()),
		TotalSize: e.store.Size(),
	}, nil
}

// Close marks the engine closed.
func (e *MemoryEngine) Close() error {
	e.closed.Store(true)
	return nil
}
