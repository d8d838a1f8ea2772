package client

import (
	"context"
	"errors"

	ks "github.com/stephzylstra/kinetic-sim/internal/server/kineticserver"
)

// ErrBatchDone is returned for use of a committed or aborted batch.
var ErrBatchDone = errors.New("client: batch is finished")

// BatchWriter queues puts and deletes that the device applies atomically
// on Commit. Queued operations get no response of their own.
type BatchWriter struct {
	c     *Client
	id    uint32
	count int32
	done  bool
}

// StartBatch opens a batch on the device.
func (c *Client) StartBatch(ctx context.Context) (*BatchWriter, error) {
	c.mu.Lock()
	c.nextBatch++
	id := c.nextBatch
	c.mu.Unlock()

	cmd := &ks.Command{Header: ks.Header{MessageType: ks.MessageStartBatch, BatchID: id}}
	if _, _, err := c.call(ctx, cmd, nil); err != nil {
		return nil, err
	}
	return &BatchWriter{c: c, id: id}, nil
}

// ID returns the batch id.
func (b *BatchWriter) ID() uint32 {
	return b.id
}

// Put queues a write.
func (b *BatchWriter) Put(ctx context.Context, key, value []byte, o *WriteOptions) error {
	return b.send(ctx, writeCommand(ks.MessagePut, key, o, b.id), value)
}

// Delete queues a removal.
func (b *BatchWriter) Delete(ctx context.Context, key []byte, o *WriteOptions) error {
	return b.send(ctx, writeCommand(ks.MessageDelete, key, o, b.id), nil)
}

func (b *BatchWriter) send(ctx context.Context, cmd *ks.Command, value []byte) error {
	if b.done {
		return ErrBatchDone
	}
	b.c.mu.Lock()
	defer b.c.mu.Unlock()
	if _, err := b.c.sendLocked(ctx, cmd, value); err != nil {
		return err
	}
	b.count++
	return nil
}

// Commit applies every queued operation. On a version failure the
// returned StatusError names the sequence of the failing operation.
func (b *BatchWriter) Commit(ctx context.Context) error {
	if b.done {
		return ErrBatchDone
	}
	b.done = true
	cmd := &ks.Command{
		Header: ks.Header{MessageType: ks.MessageEndBatch, BatchID: b.id},
		Body:   ks.Body{Batch: &ks.BatchBody{Count: b.count}},
	}
	_, _, err := b.c.call(ctx, cmd, nil)
	return err
}

// Abort discards the batch.
func (b *BatchWriter) Abort(ctx context.Context) error {
	if b.done {
		return ErrBatchDone
	}
	b.done = true
	cmd := &ks.Command{Header: ks.Header{MessageType: ks.MessageAbortBatch, BatchID: b.id}}
	_, _, err := b.c.call(ctx, cmd, nil)
	return err
}
