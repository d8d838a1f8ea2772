package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

var (
	ErrKeyNotFound = errors.New("key not found")
	ErrClosed      = errors.New("kv engine closed")

	// ErrSyncFailed wraps a failed flush after a durable ApplyBatch has
	// already committed. The mutations are visible but may not survive a
	// crash.
	ErrSyncFailed = errors.New("kv engine sync failed")
)

// Engine names accepted by Open.
const (
	EngineBadger = "badger"
	EngineBolt   = "bbolt"
	EngineMemory = "memory"
)

// KVEngine is the device's embedded key-value store.
//
// Implementations must be safe for concurrent use. ApplyBatch applies all
// mutations atomically: either every mutation becomes visible or none
// does. With durable set, ApplyBatch returns only after the engine has
// made the mutations durable.
type KVEngine interface {
	// Get returns ErrKeyNotFound for a missing key.
	Get(ctx context.Context, key []byte) ([]byte, error)
	Set(ctx context.Context, key, value []byte) error
	// Delete of a missing key succeeds.
	Delete(ctx context.Context, key []byte) error
	// ApplyBatch errors leave nothing applied, except ErrSyncFailed.
	ApplyBatch(ctx context.Context, ops []Mutation, durable bool) error
	Stats(ctx context.Context) (*KVStats, error)
	Close() error
}

// MutationKind distinguishes puts from deletes in a batch.
type MutationKind uint8

// Mutation kinds.
const (
	MutationPut MutationKind = iota + 1
	MutationDelete
)

func (k MutationKind) String() string {
	switch k {
	case MutationPut:
		return "put"
	case MutationDelete:
		return "delete"
	default:
		return fmt.Sprintf("MutationKind(%d)", uint8(k))
	}
}

// Mutation is one write of a batch. Value is ignored for deletes.
type Mutation struct {
	Kind  MutationKind
	Key   []byte
	Value []byte
}

// KVStats is a point-in-time view of an engine. Fields an engine cannot
// report stay zero.
type KVStats struct {
	Engine           string
	TotalKeys        uint64
	TotalSize        uint64 // bytes on disk
	LSMSize          uint64 // badger only
	ValueLogSize     uint64 // badger only
	LastGCTime       int64  // unix millis of the last value log GC
	GCBytesReclaimed uint64
}

// KVConfig selects and tunes an engine. Engine is one of EngineBadger,
// EngineBolt or EngineMemory; empty means badger.
type KVConfig struct {
	Engine string
	Dir    string
	Badger BadgerConfig
	Bolt   BoltConfig
}

// BadgerConfig tunes the badger engine. GCInterval is a duration string
// read by the background value log GC; GCThreshold is its discard ratio.
type BadgerConfig struct {
	GCInterval  string
	GCThreshold float64

	CacheSize               int64 // block cache, bytes
	ValueLogFileSize        int64
	NumMemtables            int
	NumLevelZeroTables      int
	NumLevelZeroTablesStall int

	// SyncWrites fsyncs every commit instead of only durable batches.
	SyncWrites bool
}

// BoltConfig tunes the bbolt engine. File lives inside KVConfig.Dir.
type BoltConfig struct {
	File        string
	OpenTimeout time.Duration // wait for the file lock
}

// DefaultKVConfig returns a badger configuration rooted at dir.
func DefaultKVConfig(dir string) KVConfig {
	return KVConfig{
		Engine: EngineBadger,
		Dir:    dir,
		Badger: DefaultBadgerConfig(),
		Bolt:   DefaultBoltConfig(),
	}
}

func DefaultBadgerConfig() BadgerConfig {
	return BadgerConfig{
		GCInterval:              "10m",
		GCThreshold:             0.5,
		CacheSize:               64 << 20,
		ValueLogFileSize:        256 << 20,
		NumMemtables:            2,
		NumLevelZeroTables:      5,
		NumLevelZeroTablesStall: 10,
	}
}

func DefaultBoltConfig() BoltConfig {
	return BoltConfig{File: "kinetic.db", OpenTimeout: time.Second}
}

// Open opens the engine named by cfg.Engine.
func Open(cfg KVConfig, logger *slog.Logger) (KVEngine, error) {
	switch cfg.Engine {
	case EngineBadger, "":
		return NewBadgerEngine(cfg, logger)
	case EngineBolt:
		return NewBoltEngine(cfg, logger)
	case EngineMemory:
		return NewMemoryEngine(), nil
	default:
		return nil, fmt.Errorf("storage: unknown engine %q", cfg.Engine)
	}
}
