package httputil

import (
	"context"
	"net/http"
	"strings"
)

// CORSMiddleware lets browsers embed status pages from other origins.
// With "*" in allowedOrigins any origin is accepted and no credentials are
// exposed; otherwise matching origins are echoed back.
func CORSMiddleware(allowedOrigins []string) func(http.Handler) http.Handler {
	originsSet := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		originsSet[o] = true
	}
	wildcard := originsSet["*"]

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")

			switch {
			case origin == "":
			case wildcard:
				w.Header().Set("Access-Control-Allow-Origin", "*")
			case originsSet[origin]:
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Add("Vary", "Origin")
			}
			w.Header().Set("Access-Control-Expose-Headers", "Retry-After")

			if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
				w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
				w.Header().Set("Access-Control-Max-Age", "86400")
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

type contextKey string

// ServiceKey stores the authenticated caller name in the request context.
const ServiceKey contextKey = "service"

// TokenValidator validates service tokens used on internal endpoints.
type TokenValidator interface {
	ValidateToken(ctx context.Context, token string) (service string, err error)
}

// BearerToken extracts the token from an "Authorization: Bearer" header.
func BearerToken(r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", false
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}

// ServiceAuthMiddleware rejects requests without a valid service token.
func ServiceAuthMiddleware(validator TokenValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := BearerToken(r)
			if !ok {
				Error(w, http.StatusUnauthorized, "missing or invalid authorization header")
				return
			}

			service, err := validator.ValidateToken(r.Context(), token)
			if err != nil {
				Error(w, http.StatusUnauthorized, "invalid or expired token")
				return
			}

			ctx := context.WithValue(r.Context(), ServiceKey, service)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetService extracts the authenticated service name from context.
func GetService(ctx context.Context) string {
	if s, ok := ctx.Value(ServiceKey).(string); ok {
		return s
	}
	return ""
}
