// Package auth describes who is calling a domain operation.
package auth

import (
	"context"

	"github.com/go-faster/errors"
)

var (
	// ErrUnauthenticated is returned when no principal is attached to a request.
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrForbidden is returned when the principal lacks the role an operation needs.
	ErrForbidden = errors.New("forbidden")
)

// Role is the privilege level of an authenticated user.
type Role string

const (
	RoleCustomer   Role = "customer"
	RoleAdmin      Role = "admin"
	RoleSuperAdmin Role = "superadmin"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleCustomer, RoleAdmin, RoleSuperAdmin:
		return true
	}
	return false
}

// Principal is the authenticated caller of a domain operation. It is
// supplied by the identity provider and trusted as is.
type Principal struct {
	UserID string
	Role   Role
}

// IsAdmin reports whether the principal may perform privileged operations.
func (p Principal) IsAdmin() bool {
	return p.Role == RoleAdmin || p.Role == RoleSuperAdmin
}

// RequireAdmin returns ErrForbidden unless the principal is an admin.
func (p Principal) RequireAdmin() error {
	if p.UserID == "" {
		return ErrUnauthenticated
	}
	if !p.IsAdmin() {
		return ErrForbidden
	}
	return nil
}

type principalKey struct{}

// WithPrincipal returns a copy of ctx carrying p.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// FromContext extracts the principal stored by WithPrincipal.
func FromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok && p.UserID != ""
}
