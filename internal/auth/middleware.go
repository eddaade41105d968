package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"
)

var errNotInitialized = errors.New("session not initialized")

type contextKey string

const identityKey contextKey = "identity"

// IdentityFrom extracts the authenticated participant identity injected
// by Middleware.
func IdentityFrom(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey).(Identity)
	return id, ok
}

// CredentialValidator checks a store credential string.
type CredentialValidator interface {
	ValidateCredential(tokenString string) (Identity, error)
}

// Middleware guards chat routes: it requires a valid store credential
// and injects the participant identity into the request context.
type Middleware struct {
	validator CredentialValidator
}

func NewMiddleware(v CredentialValidator) *Middleware {
	return &Middleware{validator: v}
}

func (m *Middleware) Handle(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenString := ""

		authHeader := r.Header.Get("Authorization")
		if authHeader != "" {
			parts := strings.Split(authHeader, " ")
			if len(parts) == 2 {
				tokenString = parts[1]
			}
		}

		// Browsers cannot set headers on websocket dials, so the
		// credential may arrive as a query param instead.
		if tokenString == "" {
			tokenString = r.URL.Query().Get("token")
		}

		if tokenString == "" {
			http.Error(w, "missing store credential", http.StatusUnauthorized)
			return
		}

		identity, err := m.validator.ValidateCredential(tokenString)
		if err != nil {
			http.Error(w, "invalid store credential", http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), identityKey, identity)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
