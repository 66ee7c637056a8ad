package shared

import (
	"github.com/google/uuid"

	"github.com/rolodex-app/rolodex/internal/platform/httpx"
)

// Roles a principal can carry. Anything unrecognized is treated as a plain
// user.
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// Principal is the authenticated identity for one request, derived from a
// verified bearer token. It is never persisted.
type Principal struct {
	ID       uuid.UUID
	Username string
	Role     string
}

// IsAdmin reports whether the principal carries the admin role.
func (p *Principal) IsAdmin() bool {
	return p != nil && p.Role == RoleAdmin
}

// RequireAdmin passes only administrators. Pure check, no I/O.
func RequireAdmin(p *Principal) error {
	if p == nil {
		return httpx.ErrUnauthenticated
	}
	if !p.IsAdmin() {
		return httpx.ErrForbidden
	}
	return nil
}

// RequireSelfOrAdmin passes the owner of the target record and
// administrators. Pure check, no I/O.
func RequireSelfOrAdmin(p *Principal, target uuid.UUID) error {
	if p == nil {
		return httpx.ErrUnauthenticated
	}
	if p.IsAdmin() || p.ID == target {
		return nil
	}
	return httpx.ErrForbidden
}
