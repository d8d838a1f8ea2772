package storage

import (
	"bytes"
	"context"
	"errors"
	"sync"

	"github.com/stephzylstra/kinetic-sim/internal/core/domain"
)

// BatchState is the lifecycle state of a Batch.
type BatchState int32

// Batch states. Committed and Abandoned are terminal.
const (
	BatchOpen BatchState = iota
	BatchCommitted
	BatchAbandoned
)

func (s BatchState) String() string {
	switch s {
	case BatchOpen:
		return "open"
	case BatchCommitted:
		return "committed"
	case BatchAbandoned:
		return "abandoned"
	default:
		return "unknown"
	}
}

// ErrBatchClosed is returned for mutations or commits on a closed batch.
var ErrBatchClosed = domain.ErrInvalidState

// Batch accumulates puts and deletes and applies them to a KVEngine as
// one atomic, durable unit. A batch commits at most once.
type Batch struct {
	engine KVEngine

	mu    sync.Mutex
	ops   []Mutation
	state BatchState
}

// NewBatch opens a batch against engine.
func NewBatch(engine KVEngine) *Batch {
	return &Batch{engine: engine}
}

// Put queues a write of value under key. Key and value are copied.
func (b *Batch) Put(key, value []byte) error {
	return b.queue(Mutation{Kind: MutationPut, Key: bytes.Clone(key), Value: bytes.Clone(value)})
}

// Delete queues removal of key.
func (b *Batch) Delete(key []byte) error {
	return b.queue(Mutation{Kind: MutationDelete, Key: bytes.Clone(key)})
}

func (b *Batch) queue(op Mutation) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state != BatchOpen {
		return ErrBatchClosed.WithDetailsf("batch is %s", b.state)
	}
	b.ops = append(b.ops, op)
	return nil
}

// Commit applies every queued mutation atomically and durably. On engine
// failure nothing is applied, the batch is abandoned and the error wraps
// domain.ErrInternal. If the engine applied the mutations but could not
// confirm they reached disk (ErrSyncFailed), the batch is committed and
// the error still wraps domain.ErrInternal.
func (b *Batch) Commit(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state != BatchOpen {
		return ErrBatchClosed.WithDetailsf("batch is %s", b.state)
	}

	err := b.engine.ApplyBatch(ctx, b.ops, true)
	b.ops = nil
	switch {
	case err == nil:
		b.state = BatchCommitted
		return nil
	case errors.Is(err, ErrSyncFailed):
		b.state = BatchCommitted
		return domain.ErrInternal.WithDetails("batch applied, durability unconfirmed").WithCause(err)
	default:
		b.state = BatchAbandoned
		return domain.ErrInternal.WithDetails("batch commit failed").WithCause(err)
	}
}

// Abandon discards the queued mutations. It is a no-op on a closed batch.
func (b *Batch) Abandon() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state != BatchOpen {
		return
	}
	b.ops = nil
	b.state = BatchAbandoned
}

// IsClosed reports whether the batch was committed or abandoned.
func (b *Batch) IsClosed() bool {
	return b.State() != BatchOpen
}

// State returns the lifecycle state.
func (b *Batch) State() BatchState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Len returns the number of queued mutations.
func (b *Batch) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.ops)
}
