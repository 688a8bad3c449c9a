package kit

import (
	"crypto/subtle"
	"net/http"
	"strings"
	"sync/atomic"

	"golang.org/x/crypto/bcrypt"
)

const APIKeyHeader = "x-api-key"

// APIKey is the shared secret guarding the catalog routes. It is configured
// either in plain text or as a bcrypt hash; with neither set every request is
// let through.
type APIKey struct {
	plain string
	hash  []byte

	// last presented key that passed the bcrypt check
	verified atomic.Pointer[string]
}

func NewAPIKey(plain, bcryptHash string) *APIKey {
	k := &APIKey{plain: strings.TrimSpace(plain)}
	if h := strings.TrimSpace(bcryptHash); h != "" {
		k.hash = []byte(h)
	}
	return k
}

func (k *APIKey) Enabled() bool {
	return k != nil && (k.plain != "" || len(k.hash) > 0)
}

func (k *APIKey) Check(presented string) bool {
	if !k.Enabled() {
		return true
	}
	if presented == "" {
		return false
	}

	if k.plain != "" {
		return subtle.ConstantTimeCompare([]byte(presented), []byte(k.plain)) == 1
	}

	if v := k.verified.Load(); v != nil && subtle.ConstantTimeCompare([]byte(presented), []byte(*v)) == 1 {
		return true
	}
	if bcrypt.CompareHashAndPassword(k.hash, []byte(presented)) != nil {
		return false
	}
	k.verified.Store(&presented)
	return true
}

func RequireAPIKey(key *APIKey) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !key.Check(r.Header.Get(APIKeyHeader)) {
				WriteError(w, r, http.StatusUnauthorized, "Invalid or missing API key", nil)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func MetricsAuth(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token == "" {
				http.Error(w, "forbidden", http.StatusForbidden)
				return
			}

			authz := r.Header.Get("Authorization")
			if !strings.HasPrefix(authz, "Bearer ") {
				http.Error(w, "forbidden", http.StatusForbidden)
				return
			}
			if subtle.ConstantTimeCompare([]byte(strings.TrimPrefix(authz, "Bearer ")), []byte(token)) != 1 {
				http.Error(w, "forbidden", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
