package middleware

import (
	"crypto/subtle"

	"guarantee-controlplane/pkg/auth"
	"guarantee-controlplane/pkg/errutil"

	"github.com/gin-gonic/gin"
)

const principalKey = "principal"

// RequireAdmin authenticates the bearer token and checks the caller's role
// against the access-control policy.
func RequireAdmin(v auth.Verifier, az *auth.Authorizer) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := auth.BearerToken(c.GetHeader("Authorization"))
		if token == "" {
			abort(c, errutil.Unauthorized("Authentication required", nil))
			return
		}

		p, err := v.Verify(c.Request.Context(), token)
		if err != nil {
			abort(c, err)
			return
		}

		ok, err := az.Allow(p, c.Request.URL.Path, c.Request.Method)
		if err != nil {
			abort(c, errutil.Internal("Internal server error", err))
			return
		}
		if !ok {
			abort(c, errutil.Forbidden("Admin access required", nil))
			return
		}

		c.Set(principalKey, p)
		c.Request = c.Request.WithContext(auth.WithPrincipal(c.Request.Context(), p))
		c.Next()
	}
}

// RequireIngestSecret accepts requests whose bearer token equals secret.
// An empty secret rejects everything.
func RequireIngestSecret(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := auth.BearerToken(c.GetHeader("Authorization"))
		if secret == "" || subtle.ConstantTimeCompare([]byte(token), []byte(secret)) != 1 {
			abort(c, errutil.Unauthorized("Unauthorized", nil))
			return
		}
		c.Next()
	}
}

// Principal returns the caller set by RequireAdmin.
func Principal(c *gin.Context) *auth.Principal {
	if v, ok := c.Get(principalKey); ok {
		if p, ok := v.(*auth.Principal); ok {
			return p
		}
	}
	return nil
}

func abort(c *gin.Context, err error) {
	_ = c.Error(err)
	c.Abort()
}
