// Package authz models the authenticated caller of a callable function and
// the capability checks made against it.
package authz

import (
	"context"
	"errors"
)

var ErrInvalidToken = errors.New("authz: invalid token")

type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// Principal is a verified caller: its uid and the claims of its token.
type Principal struct {
	UID    string
	Claims map[string]any
}

// IsAdmin reports whether p may call administrative functions: its token
// carries role "admin" or admin true. A nil principal is never admin.
func IsAdmin(p *Principal) bool {
	if p == nil || p.Claims == nil {
		return false
	}
	if role, ok := p.Claims["role"].(string); ok && role == string(RoleAdmin) {
		return true
	}
	admin, ok := p.Claims["admin"].(bool)
	return ok && admin
}

// ClaimsFor returns the complete custom claim set assigned for role.
func ClaimsFor(role string) map[string]any {
	return map[string]any{
		"role":  role,
		"admin": role == string(RoleAdmin),
	}
}

// Verifier turns a bearer token into a Principal. Implementations return an
// error wrapping ErrInvalidToken when the token is rejected.
type Verifier interface {
	Verify(ctx context.Context, token string) (*Principal, error)
}
