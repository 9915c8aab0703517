// Package middleware provides HTTP middleware for the API server.
package middleware

import (
	"context"
	"net/http"
	"strings"
	"sync"

	"github.com/nimbus-im/nimbus/internal/model"
)

// ContextKey is a type for context keys.
type ContextKey string

const (
	// IdentityKey is the context key for the verified session identity.
	IdentityKey ContextKey = "identity"
	// CorrelationIDKey is the context key for the request correlation id.
	CorrelationIDKey ContextKey = "correlation_id"
	// sessionUserKey carries the recorder the logging layer reads the
	// authenticated user id from after the request completes.
	sessionUserKey ContextKey = "session_user"
)

// sessionUser is filled in by the auth layer, which runs inside the logging
// layer and therefore in a derived context the outer middleware never sees.
type sessionUser struct {
	mu sync.Mutex
	id string
}

func (s *sessionUser) set(id string) {
	s.mu.Lock()
	s.id = id
	s.mu.Unlock()
}

func (s *sessionUser) get() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.id
}

// TokenVerifier turns a bearer token into an identity.
type TokenVerifier interface {
	Verify(token string) (model.Identity, error)
}

// Auth creates session authentication middleware.
func Auth(verifier TokenVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				http.Error(w, `{"error":"missing authorization header"}`, http.StatusUnauthorized)
				return
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
				http.Error(w, `{"error":"invalid authorization header format"}`, http.StatusUnauthorized)
				return
			}

			identity, err := verifier.Verify(parts[1])
			if err != nil {
				http.Error(w, `{"error":"invalid session token"}`, http.StatusUnauthorized)
				return
			}

			if rec, ok := r.Context().Value(sessionUserKey).(*sessionUser); ok {
				rec.set(identity.ID)
			}

			ctx := context.WithValue(r.Context(), IdentityKey, identity)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetIdentity gets the verified identity from context.
func GetIdentity(ctx context.Context) (model.Identity, bool) {
	if v := ctx.Value(IdentityKey); v != nil {
		id, ok := v.(model.Identity)
		return id, ok
	}
	return model.Identity{}, false
}

// GetUserID gets the verified user's id from context.
func GetUserID(ctx context.Context) string {
	if id, ok := GetIdentity(ctx); ok {
		return id.ID
	}
	return ""
}
