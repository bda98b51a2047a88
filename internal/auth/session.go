// Package auth decodes session tokens into an explicit Session value. The
// session is passed by value through handlers into the service layer rather
// than read from ambient global state, so permission logic stays deterministic
// and unit-testable.
package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/sourcevia/be-entity-workflow/internal/errors"
	"github.com/sourcevia/be-entity-workflow/internal/workflow"
)

// Session identifies the authenticated caller for one request.
type Session struct {
	UserID   string
	UserName string
	Role     workflow.Role
}

type sessionClaims struct {
	Name string `json:"name"`
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// Verifier validates session tokens carried in a cookie or bearer header.
type Verifier struct {
	secret     []byte
	cookieName string
}

// NewVerifier creates a Verifier for HMAC-signed session tokens.
func NewVerifier(secret, cookieName string) *Verifier {
	return &Verifier{secret: []byte(secret), cookieName: cookieName}
}

// FromRequest extracts and verifies the session token from the request.
// The session cookie takes precedence; an Authorization bearer token is the
// fallback for non-browser clients.
func (v *Verifier) FromRequest(r *http.Request) (Session, error) {
	token := ""
	if c, err := r.Cookie(v.cookieName); err == nil {
		token = c.Value
	}
	if token == "" {
		if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
			token = strings.TrimPrefix(h, "Bearer ")
		}
	}
	if token == "" {
		return Session{}, errors.New(errors.ErrCodeUnauthorized, "missing session token")
	}
	return v.Verify(token)
}

// Verify parses and validates a session token.
func (v *Verifier) Verify(token string) (Session, error) {
	claims := &sessionClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New(errors.ErrCodeUnauthorized, "unexpected signing method")
		}
		return v.secret, nil
	})
	if err != nil || !parsed.Valid {
		return Session{}, errors.New(errors.ErrCodeUnauthorized, "invalid session token")
	}
	if claims.Subject == "" {
		return Session{}, errors.New(errors.ErrCodeUnauthorized, "session token missing subject")
	}

	return Session{
		UserID:   claims.Subject,
		UserName: claims.Name,
		Role:     workflow.Role(claims.Role),
	}, nil
}

type contextKey struct{}

// WithSession stores a session on the context for handler-level plumbing.
func WithSession(ctx context.Context, s Session) context.Context {
	return context.WithValue(ctx, contextKey{}, s)
}

// SessionFrom returns the session stored by WithSession.
func SessionFrom(ctx context.Context) (Session, bool) {
	s, ok := ctx.Value(contextKey{}).(Session)
	return s, ok
}

// Middleware verifies the session on every request and stores it on the
// context. Unauthenticated requests are rejected before reaching handlers.
func (v *Verifier) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		session, err := v.FromRequest(r)
		if err != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"detail":"authentication required"}`)) //nolint:errcheck
			return
		}
		next.ServeHTTP(w, r.WithContext(WithSession(r.Context(), session)))
	})
}
