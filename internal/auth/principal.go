package auth

import (
	"context"
	"strings"
)

// Roles known to the registry.
const (
	RoleAdmin     = "admin"
	RoleDeveloper = "developer"
	RoleNGO       = "ngo"
	RoleDrone     = "drone"
)

// Principal is the authenticated caller of an operation.
type Principal struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
}

// IsAdmin reports whether the caller carries the admin role.
func (p Principal) IsAdmin() bool {
	return strings.EqualFold(p.Role, RoleAdmin)
}

// Anonymous reports whether no identity is attached.
func (p Principal) Anonymous() bool {
	return p.UserID == ""
}

type principalKey struct{}

// WithPrincipal returns a copy of ctx carrying p.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// FromContext returns the principal stored in ctx, if any.
func FromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}
