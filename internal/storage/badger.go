package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/dgraph-io/badger/v3"
	"github.com/prometheus/client_golang/prometheus"
)

// BadgerEngine is the persistent KVEngine backed by Badger v3.
type BadgerEngine struct {
	db     *badger.DB
	cfg    BadgerConfig
	logger *slog.Logger

	lastGC    atomic.Int64 // unix millis
	reclaimed atomic.Uint64
	gcRuns    atomic.Uint64
	closed    atomic.Bool

	stop    chan struct{}
	gcIdled chan struct{}
}

var _ KVEngine = (*BadgerEngine)(nil)

// NewBadgerEngine opens (or creates) the database in cfg.Dir and starts the
// value-log GC loop.
func NewBadgerEngine(cfg KVConfig, logger *slog.Logger) (*BadgerEngine, error) {
	if cfg.Dir == "" {
		return nil, fmt.Errorf("badger: dir is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	bc := cfg.Badger

	opts := badger.DefaultOptions(cfg.Dir).
		WithLogger(badgerLogger{logger.With("component", "badger")}).
		WithBlockCacheSize(bc.CacheSize).
		WithValueLogFileSize(bc.ValueLogFileSize).
		WithNumMemtables(bc.NumMemtables).
		WithNumLevelZeroTables(bc.NumLevelZeroTables).
		WithNumLevelZeroTablesStall(bc.NumLevelZeroTablesStall).
		WithSyncWrites(bc.SyncWrites)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("badger: open %s: %w", cfg.Dir, err)
	}

	e := &BadgerEngine{
		db:      db,
		cfg:     bc,
		logger:  logger,
		stop:    make(chan struct{}),
		gcIdled: make(chan struct{}),
	}
	go e.gcLoop()

	logger.Info("badger engine opened", "dir", cfg.Dir, "sync_writes", bc.SyncWrites, "gc_interval", bc.GCInterval)
	return e, nil
}

// Get returns a copy of the value stored under key.
func (e *BadgerEngine) Get(_ context.Context, key []byte) ([]byte, error) {
	if e.closed.Load() {
		return nil, ErrClosed
	}
	var value []byte
	err := e.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrKeyNotFound
		}
		if err != nil {
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	return value, err
}

// Set writes one entry without forcing a sync.
func (e *BadgerEngine) Set(ctx context.Context, key, value []byte) error {
	return e.ApplyBatch(ctx, []Mutation{{Kind: MutationPut, Key: key, Value: value}}, false)
}

// Delete removes one entry without forcing a sync.
func (e *BadgerEngine) Delete(ctx context.Context, key []byte) error {
	return e.ApplyBatch(ctx, []Mutation{{Kind: MutationDelete, Key: key}}, false)
}

func applyToTxn(txn *badger.Txn, ops []Mutation) error {
	for i, op := range ops {
		var err error
		switch op.Kind {
		case MutationPut:
			err = txn.Set(op.Key, op.Value)
		case MutationDelete:
			err = txn.Delete(op.Key)
		default:
			err = fmt.Errorf("unknown mutation kind %s", op.Kind)
		}
		if err != nil {
			return fmt.Errorf("op %d: %w", i, err)
		}
	}
	return nil
}

// ApplyBatch commits ops in one Badger transaction, so either all of them
// are visible or none are. A batch too large for one transaction fails
// with badger.ErrTxnTooBig. When durable is set and the database does not
// already sync every write, the value log is synced after the commit; a
// failed sync returns ErrSyncFailed with the mutations applied but their
// durability unconfirmed.
func (e *BadgerEngine) ApplyBatch(ctx context.Context, ops []Mutation, durable bool) error {
	if e.closed.Load() {
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := e.db.Update(func(txn *badger.Txn) error { return applyToTxn(txn, ops) }); err != nil {
		return fmt.Errorf("badger: apply batch: %w", err)
	}
	if durable && !e.cfg.SyncWrites {
		if err := e.db.Sync(); err != nil {
			return fmt.Errorf("badger: %w: %w", ErrSyncFailed, err)
		}
	}
	return nil
}

// GC rewrites value-log files until Badger reports nothing left to do.
// The returned byte count is an estimate of one file-size unit per rewrite.
func (e *BadgerEngine) GC(ctx context.Context) (uint64, error) {
	start := time.Now()
	var rewrites uint64
	for ctx.Err() == nil {
		err := e.db.RunValueLogGC(e.cfg.GCThreshold)
		if errors.Is(err, badger.ErrNoRewrite) {
			break
		}
		if err != nil {
			return rewrites << 20, fmt.Errorf("gc: %w", err)
		}
		rewrites++
	}
	if err := ctx.Err(); err != nil {
		return rewrites << 20, err
	}

	reclaimed := rewrites << 20
	e.lastGC.Store(time.Now().UnixMilli())
	e.reclaimed.Add(reclaimed)
	e.gcRuns.Add(1)
	e.logger.Debug("value log gc finished", "rewrites", rewrites, "elapsed", time.Since(start))
	return reclaimed, nil
}

// Stats reports sizes from Badger and counts live keys with a key-only
// iterator.
func (e *BadgerEngine) Stats(ctx context.Context) (*KVStats, error) {
	if e.closed.Load() {
		return nil, ErrClosed
	}

	var keys uint64
	err := e.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			if keys%1024 == 0 && ctx.Err() != nil {
				return ctx.Err()
			}
			keys++
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("badger: count keys: %w", err)
	}

	lsm, vlog := e.db.Size()
	return &KVStats{
		Engine:           EngineBadger,
		TotalKeys:        keys,
		TotalSize:        uint64(lsm + vlog),
		LSMSize:          uint64(lsm),
		ValueLogSize:     uint64(vlog),
		LastGCTime:       e.lastGC.Load(),
		GCBytesReclaimed: e.reclaimed.Load(),
	}, nil
}

// Close stops the GC loop and closes the database. Later calls are no-ops.
func (e *BadgerEngine) Close() error {
	if !e.closed.CompareAndSwap(false, true) {
		return nil
	}
	close(e.stop)
	<-e.gcIdled

	if err := e.db.Close(); err != nil {
		return fmt.Errorf("badger: close: %w", err)
	}
	e.logger.Info("badger engine closed")
	return nil
}

// RegisterMetrics exports size and GC metrics to registry. Values are read
// at scrape time. Call it at most once per registry.
func (e *BadgerEngine) RegisterMetrics(registry prometheus.Registerer) *BadgerEngine {
	gauge := func(name, help string, fn func() float64) prometheus.Collector {
		return prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "kinetic",
			Subsystem: "badger",
			Name:      name,
			Help:      help,
		}, fn)
	}
	size := func(lsmPart, vlogPart bool) func() float64 {
		return func() float64 {
			if e.closed.Load() {
				return 0
			}
			lsm, vlog := e.db.Size()
			var n int64
			if lsmPart {
				n += lsm
			}
			if vlogPart {
				n += vlog
			}
			return float64(n)
		}
	}

	registry.MustRegister(
		gauge("lsm_size_bytes", "Size of the LSM tree in bytes.", size(true, false)),
		gauge("value_log_size_bytes", "Size of the value log in bytes.", size(false, true)),
		gauge("total_size_bytes", "LSM tree plus value log in bytes.", size(true, true)),
		gauge("last_gc_timestamp_seconds", "Unix time of the last completed value log GC.", func() float64 {
			return float64(e.lastGC.Load()) / 1e3
		}),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: "kinetic",
			Subsystem: "badger",
			Name:      "gc_runs_total",
			Help:      "Completed value log GC runs.",
		}, func() float64 { return float64(e.gcRuns.Load()) }),
	)
	return e
}

func (e *BadgerEngine) gcLoop() {
	defer close(e.gcIdled)

	interval, err := time.ParseDuration(e.cfg.GCInterval)
	if err != nil || interval <= 0 {
		e.logger.Warn("bad gc_interval, using 10m", "gc_interval", e.cfg.GCInterval)
		interval = 10 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-e.stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
			if _, err := e.GC(ctx); err != nil {
				e.logger.Error("value log gc failed", "error", err)
			}
			cancel()
		}
	}
}

// badgerLogger routes Badger's printf-style logging into slog. Badger's
// info output is chatty, so it is logged at debug.
type badgerLogger struct{ l *slog.Logger }

func (b badgerLogger) Errorf(f string, args ...any)   { b.l.Error(fmt.Sprintf(f, args...)) }
func (b badgerLogger) Warningf(f string, args ...any) { b.l.Warn(fmt.Sprintf(f, args...)) }
func (b badgerLogger) Infof(f string, args ...any)    { b.l.Debug(fmt.Sprintf(f, args...)) }
func (b badgerLogger) Debugf(f string, args ...any)   { b.l.Debug(fmt.Sprintf(f, args...)) }
