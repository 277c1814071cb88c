package auth

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

// Revocations remembers token ids ended by logout.
type Revocations interface {
	// Revoke reports false when tokenID was already revoked.
	Revoke(ctx context.Context, tokenID string, ttl time.Duration) (bool, error)
	Revoked(ctx context.Context, tokenID string) (bool, error)
}

const sessionCtxKey = "session"

// BearerToken extracts the token from an Authorization header.
func BearerToken(c *gin.Context) (string, bool) {
	authz := c.GetHeader("Authorization")
	if authz == "" || !strings.HasPrefix(strings.ToLower(authz), "bearer ") {
		return "", false
	}
	return strings.TrimSpace(authz[len("bearer "):]), true
}

// RequireSession enforces a valid, unrevoked access token and puts the
// session on both the gin and request contexts.
func RequireSession(iss *Issuer, rev Revocations) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenStr, ok := BearerToken(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token", "kind": "invalid_credential"})
			return
		}
		claims, err := iss.Parse(tokenStr, KindAccess)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token", "kind": "invalid_credential"})
			return
		}
		if rev != nil {
			revoked, err := rev.Revoked(c.Request.Context(), claims.ID)
			if err == nil && revoked {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "session ended", "kind": "invalid_credential"})
				return
			}
		}
		s := SessionFromClaims(claims)
		c.Set(sessionCtxKey, s)
		c.Request = c.Request.WithContext(WithSession(c.Request.Context(), s))
		c.Next()
	}
}

// RequireAdmin rejects non-admin sessions. It must run after RequireSession.
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !CurrentSession(c).IsAdmin() {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "admin only"})
			return
		}
		c.Next()
	}
}

// CurrentSession returns the session set by RequireSession.
func CurrentSession(c *gin.Context) Session {
	if v, ok := c.Get(sessionCtxKey); ok {
		if s, ok := v.(Session); ok {
			return s
		}
	}
	return Session{}
}
