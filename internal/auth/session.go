package auth

import (
	"context"
	"time"

	"clubhours/internal/model"
)

// Session is the signed-in user. It is created at login, travels in the
// request context, and ends when its tokens are revoked at logout or expire.
type Session struct {
	SNumber string `json:"s_number"`
	Name    string `json:"name"`
	Role    string `json:"role"`
	// LastLogin is the login before this one; the UI shows notifications
	// newer than it.
	LastLogin *time.Time `json:"last_login,omitempty"`
	TokenID   string     `json:"-"`
	ExpiresAt time.Time  `json:"-"`
}

// IsAdmin reports whether the session may use admin operations.
func (s Session) IsAdmin() bool { return s.Role == model.RoleAdmin }

// SessionFromClaims rebuilds a session from a validated token.
func SessionFromClaims(c Claims) Session {
	s := Session{SNumber: c.Subject, Name: c.Name, Role: c.Role, TokenID: c.ID}
	if c.ExpiresAt != nil {
		s.ExpiresAt = c.ExpiresAt.Time
	}
	if c.LastLogin > 0 {
		t := time.Unix(c.LastLogin, 0).UTC()
		s.LastLogin = &t
	}
	return s
}

type sessionKey struct{}

// WithSession stores s in ctx.
func WithSession(ctx context.Context, s Session) context.Context {
	return context.WithValue(ctx, sessionKey{}, s)
}

// FromContext returns the session stored by WithSession.
func FromContext(ctx context.Context) (Session, bool) {
	s, ok := ctx.Value(sessionKey{}).(Session)
	return s, ok
}
