// Package aclfile persists the device ACL table to a file with a
// single-generation backup.
package aclfile

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/stephzylstra/kinetic-sim/internal/core/domain"
)

// File names inside the store directory.
const (
	FileName   = ".acl"
	BackupName = ".acl.bak"
	tmpSuffix  = ".tmp"
)

// Step names a point in the persist sequence.
type Step int

// Persist steps in execution order.
const (
	StepRemoveBackup Step = iota + 1
	StepBackupPrimary
	StepWritePrimary
	StepPublishPrimary
)

func (s Step) String() string {
	switch s {
	case StepRemoveBackup:
		return "remove-backup"
	case StepBackupPrimary:
		return "backup-primary"
	case StepWritePrimary:
		return "write-primary"
	case StepPublishPrimary:
		return "publish-primary"
	default:
		return fmt.Sprintf("Step(%d)", int(s))
	}
}

// Store reads and writes the ACL file of one device directory.
// Store does no locking; callers serialize Persist.
type Store struct {
	dir    string
	sealer *sealer
	logger *slog.Logger
	now    func() time.Time

	// beforeStep is called before each persist step; an error stops
	// the sequence there.
	beforeStep func(Step) error
	// noRollback leaves the files as they are after a failed persist.
	noRollback bool
}

// Option configures a Store.
type Option func(*Store) error

// WithSealKey seals the file at rest under a key derived from secret.
func WithSealKey(secret []byte) Option {
	return func(s *Store) error {
		if len(secret) == 0 {
			return nil
		}
		sl, err := newSealer(secret)
		if err != nil {
			return err
		}
		s.sealer = sl
		return nil
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) error {
		if logger != nil {
			s.logger = logger
		}
		return nil
	}
}

// New returns a store for dir, creating the directory if needed.
func New(dir string, opts ...Option) (*Store, error) {
	if dir == "" {
		return nil, errors.New("aclfile: dir is required")
	}
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("aclfile: create dir: %w", err)
	}

	s := &Store{
		dir:    dir,
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Path returns the primary file path.
func (s *Store) Path() string {
	return filepath.Join(s.dir, FileName)
}

// BackupPath returns the backup file path.
func (s *Store) BackupPath() string {
	return filepath.Join(s.dir, BackupName)
}

// Persist durably replaces the primary file with entries. The sequence is:
// remove the old backup, rename the primary to the backup, write the new
// primary. The new primary is written to a temporary file, fsynced and
// renamed into place.
//
// Any failure returns domain.ErrPersistenceFailed. After a failure the
// previous primary is restored from the backup if the primary is missing.
func (s *Store) Persist(entries []*domain.ACL) (err error) {
	data, err := encodeDocument(entries, s.now())
	if err != nil {
		return domain.ErrPersistenceFailed.WithDetails("encode").WithCause(err)
	}
	if s.sealer != nil {
		if data, err = s.sealer.seal(data); err != nil {
			return domain.ErrPersistenceFailed.WithDetails("seal").WithCause(err)
		}
	}

	var step Step
	defer func() {
		if err == nil {
			return
		}
		s.logger.Error("acl persist failed", "step", step.String(), "error", err)
		if !s.noRollback {
			s.rollback()
		}
		err = domain.ErrPersistenceFailed.WithDetails(step.String()).WithCause(err)
	}()

	primary, backup := s.Path(), s.BackupPath()

	step = StepRemoveBackup
	if err = s.enter(step); err != nil {
		return err
	}
	if err = os.Remove(backup); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}

	step = StepBackupPrimary
	if err = s.enter(step); err != nil {
		return err
	}
	if err = os.Rename(primary, backup); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}

	step = StepWritePrimary
	if err = s.enter(step); err != nil {
		return err
	}
	tmp := primary + tmpSuffix
	if err = writeFileSync(tmp, data); err != nil {
		return err
	}

	step = StepPublishPrimary
	if err = s.enter(step); err != nil {
		return err
	}
	if err = os.Rename(tmp, primary); err != nil {
		return err
	}
	if err = syncDir(s.dir); err != nil {
		return err
	}

	s.logger.Debug("acl persisted", "path", primary, "entries", len(entries), "bytes", len(data))
	return nil
}

// Load reads the primary file. A missing or empty primary yields an empty
// table; the backup is never consulted. Duplicate identities in the file
// resolve to the later entry.
func (s *Store) Load() (*domain.ACLTable, error) {
	return s.load(s.Path())
}

// LoadBackup reads the backup file, for operator-driven recovery.
func (s *Store) LoadBackup() (*domain.ACLTable, error) {
	return s.load(s.BackupPath())
}

func (s *Store) load(path string) (*domain.ACLTable, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return domain.NewACLTable(nil), nil
	}
	if err != nil {
		return nil, fmt.Errorf("aclfile: read %s: %w", path, err)
	}
	if len(data) == 0 {
		return domain.NewACLTable(nil), nil
	}

	if isSealed(data) {
		if s.sealer == nil {
			return nil, ErrSealed
		}
		if data, err = s.sealer.open(data); err != nil {
			return nil, err
		}
	}

	entries, err := decodeDocument(data)
	if err != nil {
		return nil, fmt.Errorf("aclfile: %s: %w", path, err)
	}
	return domain.NewACLTable(entries), nil
}

func (s *Store) enter(step Step) error {
	if s.beforeStep == nil {
		return nil
	}
	return s.beforeStep(step)
}

// rollback restores the backup as primary when the primary is gone and
// drops any half-written temporary file.
func (s *Store) rollback() {
	primary, backup := s.Path(), s.BackupPath()
	_ = os.Remove(primary + tmpSuffix)

	if _, err := os.Stat(primary); !errors.Is(err, fs.ErrNotExist) {
		return
	}
	if _, err := os.Stat(backup); err != nil {
		return
	}
	if err := os.Rename(backup, primary); err != nil {
		s.logger.Error("acl rollback failed", "error", err)
		return
	}
	s.logger.Warn("acl primary restored from backup", "path", primary)
}

// writeFileSync writes data to a fresh file and fsyncs it. The file is
// closed on every path.
func writeFileSync(path string, data []byte) (err error) {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	if _, err = f.Write(data); err != nil {
		return err
	}
	return f.Sync()
}

func syncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer d.Close()
	return d.Sync()
}
