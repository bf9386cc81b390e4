package httpapi

import (
	"context"
	"net/http"
)

type contextKey string

const userIDKey contextKey = "user_id"

// AuthMiddleware trusts the X-User-ID header set by the edge gateway
// after JWT validation. An absent header means a guest session; guests
// may use the cart but not check out.
func AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID := r.Header.Get("X-User-ID")
		ctx := context.WithValue(r.Context(), userIDKey, userID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func userIDFromContext(ctx context.Context) string {
	if userID, ok := ctx.Value(userIDKey).(string); ok {
		return userID
	}
	return ""
}
