package auth

import (
	"context"
	"crypto/subtle"
	"strings"
	"time"

	"guarantee-controlplane/pkg/errutil"

	"github.com/go-jose/go-jose/v4"
	"github.com/go-jose/go-jose/v4/jwt"
)

// Claims are the fields read from a Supabase access token.
type Claims struct {
	jwt.Claims
	Email string `json:"email"`
	Role  string `json:"role"`
}

type Verifier interface {
	Verify(ctx context.Context, token string) (*Principal, error)
}

type JWTVerifier struct {
	secret         []byte
	serviceRoleKey string
	issuer         string
	roles          RoleStore
	now            func() time.Time
}

// NewJWTVerifier checks HS256 tokens signed with secret. When supabaseURL is
// set the issuer must be "<supabaseURL>/auth/v1".
func NewJWTVerifier(secret, serviceRoleKey, supabaseURL string, roles RoleStore) *JWTVerifier {
	v := &JWTVerifier{
		secret:         []byte(secret),
		serviceRoleKey: serviceRoleKey,
		roles:          roles,
		now:            time.Now,
	}
	if supabaseURL != "" {
		v.issuer = strings.TrimRight(supabaseURL, "/") + "/auth/v1"
	}
	return v
}

func (v *JWTVerifier) Verify(ctx context.Context, token string) (*Principal, error) {
	if token == "" {
		return nil, errutil.Unauthorized("Authentication required", nil)
	}

	if v.serviceRoleKey != "" && subtle.ConstantTimeCompare([]byte(token), []byte(v.serviceRoleKey)) == 1 {
		return &Principal{UserID: RoleService, Role: RoleService}, nil
	}

	if len(v.secret) == 0 {
		return nil, errutil.Unauthorized("Authentication required", nil)
	}

	parsed, err := jwt.ParseSigned(token, []jose.SignatureAlgorithm{jose.HS256})
	if err != nil {
		return nil, errutil.Unauthorized("Authentication required", err)
	}

	var claims Claims
	if err := parsed.Claims(v.secret, &claims); err != nil {
		return nil, errutil.Unauthorized("Authentication required", err)
	}

	expected := jwt.Expected{Time: v.now()}
	if v.issuer != "" {
		expected.Issuer = v.issuer
	}
	if err := claims.ValidateWithLeeway(expected, time.Minute); err != nil {
		return nil, errutil.Unauthorized("Authentication required", err)
	}

	if claims.Subject == "" {
		return nil, errutil.Unauthorized("Authentication required", nil)
	}

	if claims.Role == RoleService {
		return &Principal{UserID: claims.Subject, Email: claims.Email, Role: RoleService}, nil
	}

	role, err := v.roles.Role(ctx, claims.Subject)
	if err != nil {
		return nil, errutil.Internal("Internal server error", err)
	}

	return &Principal{UserID: claims.Subject, Email: claims.Email, Role: role}, nil
}
