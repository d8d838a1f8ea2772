package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/stephzylstra/kinetic-sim/internal/core/domain"
)

// ACLRepository persists the complete ACL collection.
type ACLRepository interface {
	// Persist durably replaces the stored collection with entries.
	Persist(entries []*domain.ACL) error

	// Load returns the stored collection, or an empty table if none.
	Load() (*domain.ACLTable, error)
}

// SecurityServiceConfig holds configuration for SecurityService.
type SecurityServiceConfig struct {
	// Enabled turns authorization on. When false every request is
	// allowed and security updates are rejected.
	Enabled bool

	// DefaultACLs are installed and persisted at startup when the
	// repository holds no entries. With none configured the device
	// allows every request until the first security update.
	DefaultACLs []*domain.ACL
}

// DefaultSecurityServiceConfig returns the simulator defaults: security
// on, with the factory identity 1 holding every permission.
func DefaultSecurityServiceConfig() *SecurityServiceConfig {
	return &SecurityServiceConfig{
		Enabled:     true,
		DefaultACLs: []*domain.ACL{DefaultACL(1, []byte("asdfasdf"))},
	}
}

// DefaultACL returns an entry granting every permission to identity,
// signed with HmacSHA1.
func DefaultACL(identity int64, key []byte) *domain.ACL {
	return &domain.ACL{
		Identity:      identity,
		Key:           key,
		HMACAlgorithm: domain.HMACSHA1,
		Scopes:        []domain.Scope{{Permissions: domain.AllPermissions()}},
	}
}

// SecurityService owns the device ACL table. Readers get the current
// snapshot without locking; updates are serialized and become visible
// only after they are persisted.
type SecurityService struct {
	repo   ACLRepository
	cfg    *SecurityServiceConfig
	logger *slog.Logger

	table    atomic.Pointer[domain.ACLTable]
	updateMu sync.Mutex
}

// NewSecurityService creates a SecurityService. Call Init before use.
func NewSecurityService(repo ACLRepository, cfg *SecurityServiceConfig, logger *slog.Logger) *SecurityService {
	if cfg == nil {
		cfg = DefaultSecurityServiceConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SecurityService{
		repo:   repo,
		cfg:    cfg,
		logger: logger,
	}
}

// Init loads the persisted table, installing the configured defaults when
// nothing is stored.
func (s *SecurityService) Init(ctx context.Context) error {
	s.updateMu.Lock()
	defer s.updateMu.Unlock()

	if !s.cfg.Enabled {
		s.table.Store(nil)
		s.logger.Warn("security disabled, all requests are authorized")
		return nil
	}

	table, err := s.repo.Load()
	if err != nil {
		return fmt.Errorf("load acl: %w", err)
	}
	if table.Len() > 0 {
		s.publish(table)
		s.logger.Info("acl loaded", "identities", table.Len())
		return nil
	}

	if len(s.cfg.DefaultACLs) == 0 {
		s.table.Store(nil)
		s.logger.Warn("no acl persisted, requests are authorized until the first security update")
		return nil
	}

	if err := domain.ValidateACLs(s.cfg.DefaultACLs); err != nil {
		return fmt.Errorf("default acl: %w", err)
	}
	next := table.Merge(s.cfg.DefaultACLs)
	if err := s.repo.Persist(next.Entries()); err != nil {
		return fmt.Errorf("persist default acl: %w", err)
	}
	s.publish(next)
	s.logger.Info("default acl installed", "identities", next.Len())
	return nil
}

// publish makes t the current snapshot. A table without entries is stored
// as nil so that open mode looks the same before and after a restart,
// where Init cannot tell a persisted empty table from no table.
func (s *SecurityService) publish(t *domain.ACLTable) {
	if t.Len() == 0 {
		t = nil
	}
	s.table.Store(t)
}

// Enabled reports whether authorization is configured on.
func (s *SecurityService) Enabled() bool {
	return s.cfg.Enabled
}

// Table returns the current snapshot. Nil means every request is allowed.
func (s *SecurityService) Table() *domain.ACLTable {
	return s.table.Load()
}

// Lookup returns the ACL of identity in the current snapshot.
func (s *SecurityService) Lookup(identity int64) (*domain.ACL, bool) {
	return s.table.Load().Lookup(identity)
}

// Authorize checks perm for identity against the current snapshot.
func (s *SecurityService) Authorize(identity int64, perm domain.Permission) error {
	return domain.Authorize(s.table.Load(), identity, perm)
}

// AuthorizeKey checks perm for identity on key against the current snapshot.
func (s *SecurityService) AuthorizeKey(identity int64, perm domain.Permission, key []byte) error {
	return domain.AuthorizeKey(s.table.Load(), identity, perm, key)
}

// ApplySecurityUpdate validates proposed entirely, merges it into the
// current table by identity, persists the full result and then publishes
// it. On any error the current table is returned unchanged.
func (s *SecurityService) ApplySecurityUpdate(ctx context.Context, proposed []*domain.ACL) (*domain.ACLTable, error) {
	s.updateMu.Lock()
	defer s.updateMu.Unlock()

	current := s.table.Load()

	if !s.cfg.Enabled {
		return current, domain.ErrInvalidRequest.WithDetails("security is disabled")
	}
	if err := domain.ValidateACLs(proposed); err != nil {
		s.logger.Warn("security update rejected", "entries", len(proposed), "error", err)
		return current, err
	}
	if err := ctx.Err(); err != nil {
		return current, domain.ErrInternal.WithCause(err)
	}

	next := current.Merge(proposed)
	if err := s.repo.Persist(next.Entries()); err != nil {
		if !errors.Is(err, domain.ErrPersistenceFailed) {
			err = domain.ErrPersistenceFailed.WithCause(err)
		}
		s.logger.Error("security update not persisted", "error", err)
		return current, err
	}

	s.publish(next)
	s.logger.Info("security update applied",
		"entries", len(proposed),
		"identities", next.Len(),
		"version", next.Version())
	return next, nil
}
