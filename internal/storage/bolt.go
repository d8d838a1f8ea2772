package storage

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"

	bolt "go.etcd.io/bbolt"
)

var boltBucket = []byte("kinetic")

// BoltEngine implements KVEngine on a single bbolt bucket. Every update
// transaction is fsynced on commit.
type BoltEngine struct {
	db     *bolt.DB
	logger *slog.Logger
	closed atomic.Bool
}

var _ KVEngine = (*BoltEngine)(nil)

// NewBoltEngine opens (or creates) the bbolt file under cfg.Dir.
func NewBoltEngine(cfg KVConfig, logger *slog.Logger) (*BoltEngine, error) {
	if cfg.Dir == "" {
		return nil, fmt.Errorf("bbolt: dir is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(cfg.Dir, 0750); err != nil {
		return nil, fmt.Errorf("bbolt: create dir: %w", err)
	}

	file := cfg.Bolt.File
	if file == "" {
		file = DefaultBoltConfig().File
	}
	path := filepath.Join(cfg.Dir, file)

	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: cfg.Bolt.OpenTimeout})
	if err != nil {
		return nil, fmt.Errorf("bbolt: open %s: %w", path, err)
	}

	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(boltBucket)
		return err
	}); err != nil {
		db.Close()
		return nil, fmt.Errorf("bbolt: ensure bucket: %w", err)
	}

	logger.Info("bbolt engine started", "path", path)

	return &BoltEngine{db: db, logger: logger}, nil
}

// Get retrieves a value by key.
func (e *BoltEngine) Get(ctx context.Context, key []byte) ([]byte, error) {
	if e.closed.Load() {
		return nil, ErrClosed
	}

	var value []byte
	err := e.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(boltBucket).Get(key)
		if v == nil {
			return ErrKeyNotFound
		}
		value = bytes.Clone(v)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return value, nil
}

// Set stores a key-value pair.
func (e *BoltEngine) Set(ctx context.Context, key, value []byte) error {
	return e.ApplyBatch(ctx, []Mutation{{Kind: MutationPut, Key: key, Value: value}}, true)
}

// Delete removes a key.
func (e *BoltEngine) Delete(ctx context.Context, key []byte) error {
	return e.ApplyBatch(ctx, []Mutation{{Kind: MutationDelete, Key: key}}, true)
}

// ApplyBatch applies ops in one read-write transaction. bbolt rolls the
// transaction back if any op fails.
func (e *BoltEngine) ApplyBatch(ctx context.Context, ops []Mutation, durable bool) error {
	if e.closed.Load() {
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	err := e.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(boltBucket)
		for i, op := range ops {
			var err error
			switch op.Kind {
			case MutationPut:
				err = b.Put(op.Key, op.Value)
			case MutationDelete:
				err = b.Delete(op.Key)
			default:
				err = fmt.Errorf("unknown mutation kind %s", op.Kind)
			}
			if err != nil {
				return fmt.Errorf("op %d: %w", i, err)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("bbolt: apply batch: %w", err)
	}
	return nil
}

// Stats returns storage statistics.
func (e *BoltEngine) Stats(ctx context.Context) (*KVStats, error) {
	stats := &KVStats{Engine: EngineBolt}
	err := e.db.View(func(tx *bolt.Tx) error {
		stats.TotalSize = uint64(tx.Size())
		stats.TotalKeys = uint64(tx.Bucket(boltBucket).Stats().KeyN)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return stats, nil
}

// Close closes the database file.
func (e *BoltEngine) Close() error {
	if !e.closed.CompareAndSwap(false, true) {
		return nil
	}
	if err := e.db.Close(); err != nil {
		return fmt.Errorf("bbolt: close: %w", err)
	}
	e.logger.Info("bbolt engine shutdown complete")
	return nil
}
