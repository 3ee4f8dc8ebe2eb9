package middleware

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"
)

// ContextKey is a custom type for context keys to avoid collisions
type ContextKey string

// ClientContextKey is the key for storing the caller identity in context
const ClientContextKey ContextKey = "client"

// tokenClient identifies callers that presented the API token
const tokenClient = "token"

// AuthMiddleware guards the local API with an optional static bearer token
type AuthMiddleware struct {
	token string
}

// NewAuthMiddleware creates a new authentication middleware. An empty token
// disables the guard.
func NewAuthMiddleware(token string) *AuthMiddleware {
	return &AuthMiddleware{token: token}
}

// RequireToken rejects API requests that do not carry the configured token
func (m *AuthMiddleware) RequireToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.token == "" {
			next.ServeHTTP(w, r)
			return
		}

		presented, ok := bearerToken(r)
		if !ok || subtle.ConstantTimeCompare([]byte(presented), []byte(m.token)) != 1 {
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("WWW-Authenticate", `Bearer realm="reeldeck"`)
			http.Error(w, `{"error":"unauthorized","message":"missing or invalid API token"}`, http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), ClientContextKey, tokenClient)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// GetClientFromContext retrieves the caller identity from request context
func GetClientFromContext(ctx context.Context) (string, bool) {
	client, ok := ctx.Value(ClientContextKey).(string)
	return client, ok
}
