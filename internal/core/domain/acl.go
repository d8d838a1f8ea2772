package domain

import (
	"bytes"
	"slices"
	"sort"
)

// Scope grants a set of permissions, optionally restricted to keys that
// carry Value at byte Offset.
type Scope struct {
	Offset      int64
	Value       []byte
	Permissions []Permission
	TLSRequired bool
}

// Allows reports whether the scope grants p.
func (s Scope) Allows(p Permission) bool {
	return slices.Contains(s.Permissions, p)
}

// Matches reports whether key falls under the scope. A scope without a
// value matches every key.
func (s Scope) Matches(key []byte) bool {
	if len(s.Value) == 0 {
		return true
	}
	if s.Offset < 0 || s.Offset > int64(len(key)) {
		return false
	}
	return bytes.HasPrefix(key[s.Offset:], s.Value)
}

func (s Scope) validate() error {
	if s.Offset < 0 {
		return ErrNegativeOffset.WithDetailsf("offset %d", s.Offset)
	}
	if len(s.Permissions) == 0 {
		return ErrEmptyPermissionSet
	}
	for _, p := range s.Permissions {
		if !p.Valid() {
			return ErrUnknownRole.WithDetailsf("permission %d", int32(p))
		}
	}
	return nil
}

// ACL is the access-control entry of one identity.
type ACL struct {
	Identity      int64
	Key           []byte
	HMACAlgorithm HMACAlgorithm
	Scopes        []Scope
	MaxPriority   int32
}

// Validate checks the entry: algorithm first, then every scope in order
// (offset, non-empty permissions, known permissions).
func (a *ACL) Validate() error {
	if !a.HMACAlgorithm.Supported() {
		return ErrUnsupportedAlgorithm.WithDetailsf("identity %d: %s", a.Identity, a.HMACAlgorithm)
	}
	for i, s := range a.Scopes {
		if err := s.validate(); err != nil {
			de := err.(*DomainError)
			if de.Details == "" {
				return de.WithDetailsf("identity %d, scope %d", a.Identity, i)
			}
			return de.WithDetailsf("identity %d, scope %d: %s", a.Identity, i, de.Details)
		}
	}
	return nil
}

// Clone returns a deep copy of the entry.
func (a *ACL) Clone() *ACL {
	if a == nil {
		return nil
	}
	cp := *a
	cp.Key = bytes.Clone(a.Key)
	cp.Scopes = make([]Scope, len(a.Scopes))
	for i, s := range a.Scopes {
		cp.Scopes[i] = Scope{
			Offset:      s.Offset,
			Value:       bytes.Clone(s.Value),
			Permissions: slices.Clone(s.Permissions),
			TLSRequired: s.TLSRequired,
		}
	}
	return &cp
}

// ValidateACLs validates every entry of a proposed update and returns the
// first violation. Nothing is applied when an error is returned.
func ValidateACLs(acls []*ACL) error {
	for i, a := range acls {
		if a == nil {
			return ErrInvalidRequest.WithDetailsf("acl %d is empty", i)
		}
		if err := a.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// ACLTable is an immutable identity to ACL snapshot. A new table is
// derived with Merge; existing tables are never modified.
type ACLTable struct {
	version uint64
	entries map[int64]*ACL
}

// NewACLTable builds a table from entries. Later entries for the same
// identity replace earlier ones.
func NewACLTable(acls []*ACL) *ACLTable {
	t := &ACLTable{entries: make(map[int64]*ACL, len(acls))}
	for _, a := range acls {
		if a == nil {
			continue
		}
		t.entries[a.Identity] = a.Clone()
	}
	return t
}

// Version returns the number of merges that produced this table.
func (t *ACLTable) Version() uint64 {
	if t == nil {
		return 0
	}
	return t.version
}

// Len returns the number of identities.
func (t *ACLTable) Len() int {
	if t == nil {
		return 0
	}
	return len(t.entries)
}

// Lookup returns the ACL of identity. The result must not be modified.
func (t *ACLTable) Lookup(identity int64) (*ACL, bool) {
	if t == nil {
		return nil, false
	}
	a, ok := t.entries[identity]
	return a, ok
}

// Entries returns copies of all entries ordered by identity.
func (t *ACLTable) Entries() []*ACL {
	if t == nil {
		return nil
	}
	out := make([]*ACL, 0, len(t.entries))
	for _, a := range t.entries {
		out = append(out, a.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Identity < out[j].Identity })
	return out
}

// Merge returns a new table holding t's entries with proposed entries
// inserted or replacing existing ones by identity. A nil t merges into
// an empty table.
func (t *ACLTable) Merge(proposed []*ACL) *ACLTable {
	next := &ACLTable{
		version: t.Version() + 1,
		entries: make(map[int64]*ACL, t.Len()+len(proposed)),
	}
	if t != nil {
		for id, a := range t.entries {
			next.entries[id] = a
		}
	}
	for _, a := range proposed {
		if a == nil {
			continue
		}
		next.entries[a.Identity] = a.Clone()
	}
	return next
}

// Authorize decides whether identity holds perm. A nil table means
// security is disabled and every request is allowed.
func Authorize(t *ACLTable, identity int64, perm Permission) error {
	if t == nil {
		return nil
	}
	a, ok := t.Lookup(identity)
	if !ok {
		return ErrNotAuthorized.WithDetailsf("no acl for identity %d", identity)
	}
	for _, s := range a.Scopes {
		if s.Allows(perm) {
			return nil
		}
	}
	return ErrNotAuthorized.WithDetailsf("identity %d lacks %s", identity, perm)
}

// AuthorizeKey is Authorize restricted to scopes that match key.
func AuthorizeKey(t *ACLTable, identity int64, perm Permission, key []byte) error {
	if t == nil {
		return nil
	}
	a, ok := t.Lookup(identity)
	if !ok {
		return ErrNotAuthorized.WithDetailsf("no acl for identity %d", identity)
	}
	for _, s := range a.Scopes {
		if s.Allows(perm) && s.Matches(key) {
			return nil
		}
	}
	return ErrNotAuthorized.WithDetailsf("identity %d lacks %s for key", identity, perm)
}
