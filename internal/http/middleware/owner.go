// Package middleware carries the request-scoped identity plumbing. The outer
// session layer terminates authentication and forwards the account id in the
// X-Owner-ID header; everything behind it trusts that header.
package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
)

type contextKey string

const ownerKey contextKey = "owner_id"

// HeaderOwnerID names the trusted identity header.
const HeaderOwnerID = "X-Owner-ID"

// RequireOwner rejects requests without an owner identity and installs the
// id into the request context for handlers.
func RequireOwner(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ownerID := strings.TrimSpace(r.Header.Get(HeaderOwnerID))
		if ownerID == "" {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			_ = json.NewEncoder(w).Encode(map[string]string{
				"error":   "unauthorized",
				"message": "missing owner context",
			})
			return
		}
		next.ServeHTTP(w, r.WithContext(WithOwnerID(r.Context(), ownerID)))
	})
}

// WithOwnerID returns a context carrying the owner id.
func WithOwnerID(ctx context.Context, ownerID string) context.Context {
	return context.WithValue(ctx, ownerKey, ownerID)
}

// OwnerID extracts the owner id installed by RequireOwner, empty when absent.
func OwnerID(ctx context.Context) string {
	id, _ := ctx.Value(ownerKey).(string)
	return id
}
