package domain

import (
	"fmt"
	"strings"
)

// Permission is a role an ACL scope grants. Values match the Kinetic wire encoding.
type Permission int32

// Known permissions.
const (
	PermissionInvalid  Permission = -1
	PermissionRead     Permission = 0
	PermissionWrite    Permission = 1
	PermissionDelete   Permission = 2
	PermissionRange    Permission = 3
	PermissionSetup    Permission = 4
	PermissionP2POp    Permission = 5
	PermissionGetLog   Permission = 7
	PermissionSecurity Permission = 8
)

var permissionNames = map[Permission]string{
	PermissionRead:     "READ",
	PermissionWrite:    "WRITE",
	PermissionDelete:   "DELETE",
	PermissionRange:    "RANGE",
	PermissionSetup:    "SETUP",
	PermissionP2POp:    "P2POP",
	PermissionGetLog:   "GETLOG",
	PermissionSecurity: "SECURITY",
}

// AllPermissions returns every known permission in wire order.
func AllPermissions() []Permission {
	return []Permission{
		PermissionRead,
		PermissionWrite,
		PermissionDelete,
		PermissionRange,
		PermissionSetup,
		PermissionP2POp,
		PermissionGetLog,
		PermissionSecurity,
	}
}

// Valid reports whether p is one of the known permissions.
func (p Permission) Valid() bool {
	_, ok := permissionNames[p]
	return ok
}

func (p Permission) String() string {
	if name, ok := permissionNames[p]; ok {
		return name
	}
	return fmt.Sprintf("INVALID(%d)", int32(p))
}

// ParsePermission parses a permission name (case-insensitive).
func ParsePermission(s string) (Permission, error) {
	name := strings.ToUpper(strings.TrimSpace(s))
	for p, n := range permissionNames {
		if n == name {
			return p, nil
		}
	}
	return PermissionInvalid, ErrUnknownRole.WithDetailsf("unknown permission %q", s)
}

// MarshalText implements encoding.TextMarshaler.
func (p Permission) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *Permission) UnmarshalText(text []byte) error {
	parsed, err := ParsePermission(string(text))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}
