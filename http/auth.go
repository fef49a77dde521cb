package httpapi

import (
	"net/http"
	"strings"

	"github.com/go-chi/render"
)

// RequireBearer rejects requests without a well-formed bearer token. When
// apiKey is non-empty the token must match it exactly; otherwise any
// non-empty token passes, which mirrors the platform's loose contract.
func RequireBearer(apiKey string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			token, ok := bearerToken(req.Header.Get("Authorization"))
			if !ok || (apiKey != "" && token != apiKey) {
				render.Status(req, http.StatusUnauthorized)
				render.JSON(w, req, map[string]any{"error": "unauthorized", "detail": "invalid or missing API key"})
				return
			}
			next.ServeHTTP(w, req)
		})
	}
}

func bearerToken(header string) (string, bool) {
	parts := strings.Fields(header)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}
