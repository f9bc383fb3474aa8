package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/dreamtales/dreamtales-api/internal/api"
)

type contextKey string

const userContextKey contextKey = "user"

type Middleware struct {
	jwtSecret string
}

func NewMiddleware(jwtSecret string) *Middleware {
	return &Middleware{jwtSecret: jwtSecret}
}

func (m *Middleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			api.WriteError(w, http.StatusUnauthorized, "unauthorized", "Missing authorization header")
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			api.WriteError(w, http.StatusUnauthorized, "unauthorized", "Invalid authorization header format")
			return
		}

		claims, err := ValidateToken(parts[1], m.jwtSecret)
		if err != nil {
			api.WriteError(w, http.StatusUnauthorized, "unauthorized", "Invalid token")
			return
		}

		ctx := context.WithValue(r.Context(), userContextKey, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func UserFromContext(ctx context.Context) (*Claims, bool) {
	claims, ok := ctx.Value(userContextKey).(*Claims)
	return claims, ok
}
