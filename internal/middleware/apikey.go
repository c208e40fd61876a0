package middleware

import (
	"net/http"

	"golang.org/x/crypto/bcrypt"
)

// publicPaths are exempt from API key checks.
var publicPaths = map[string]bool{
	"/":       true,
	"/health": true,
}

// APIKey returns middleware that compares the X-API-Key header against a
// bcrypt hash of the expected key. An empty hash disables the check, which
// is the default for local and demo deployments.
func APIKey(keyHash string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if keyHash == "" || publicPaths[r.URL.Path] {
				next.ServeHTTP(w, r)
				return
			}

			key := r.Header.Get("X-API-Key")
			if key == "" {
				http.Error(w, `{"error":"api key required"}`, http.StatusUnauthorized)
				return
			}
			if err := bcrypt.CompareHashAndPassword([]byte(keyHash), []byte(key)); err != nil {
				http.Error(w, `{"error":"invalid api key"}`, http.StatusUnauthorized)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
