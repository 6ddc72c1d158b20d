package middleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"
)

// Identity resolves the calling owner from the X-Owner-ID header set by the
// gateway in front of this service and stores it on the request context.
// Requests without a valid owner id are rejected before any handler runs.
func Identity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := r.Header.Get("X-Owner-ID")
		ownerID, err := uuid.Parse(raw)
		if raw == "" || err != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":"unauthorized","message":"missing or invalid owner identity"}`))
			return
		}
		ctx := context.WithValue(r.Context(), ownerIDKey, ownerID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// OwnerIDFromContext returns the authenticated owner id, or uuid.Nil when
// the request bypassed Identity.
func OwnerIDFromContext(ctx context.Context) uuid.UUID {
	if v, ok := ctx.Value(ownerIDKey).(uuid.UUID); ok {
		return v
	}
	return uuid.Nil
}
