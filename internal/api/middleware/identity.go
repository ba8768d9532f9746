package middleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"
)

// userIDHeader carries the authenticated user's ID, set by the auth proxy
// in front of this service. Authentication itself happens upstream.
const userIDHeader = "X-User-Id"

// Identity extracts the caller's user ID into the request context. Requests
// without the header (or with a malformed one) pass through anonymously;
// handlers that need a caller use RequireIdentity or UserID.
func Identity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if raw := r.Header.Get(userIDHeader); raw != "" {
			if id, err := uuid.Parse(raw); err == nil {
				r = r.WithContext(context.WithValue(r.Context(), userIDKey, id))
			}
		}
		next.ServeHTTP(w, r)
	})
}

// RequireIdentity rejects requests that carry no valid user ID.
func RequireIdentity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := UserID(r.Context()); !ok {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":"AUTH_REQUIRED","message":"Authentication is required"}`))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// UserID retrieves the authenticated user's ID from context.
func UserID(ctx context.Context) (uuid.UUID, bool) {
	id, ok := ctx.Value(userIDKey).(uuid.UUID)
	return id, ok
}

// OptionalUserID returns a pointer form of UserID, nil for anonymous callers.
func OptionalUserID(ctx context.Context) *uuid.UUID {
	if id, ok := UserID(ctx); ok {
		return &id
	}
	return nil
}
