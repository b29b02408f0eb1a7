package auth

import (
	"context"
	"strings"
)

const (
	RoleAdmin = "admin"
	// RoleService is carried by requests authenticated with the service role key.
	RoleService = "service_role"
)

// Principal is the authenticated caller of one request.
type Principal struct {
	UserID string
	Email  string
	Role   string
}

func (p *Principal) IsAdmin() bool {
	return p != nil && (p.Role == RoleAdmin || p.Role == RoleService)
}

type principalKey struct{}

func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

func FromContext(ctx context.Context) (*Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(*Principal)
	return p, ok && p != nil
}

// BearerToken extracts the token of an "Authorization: Bearer <token>" header.
func BearerToken(header string) string {
	const prefix = "bearer "
	if len(header) < len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(header[len(prefix):])
}
