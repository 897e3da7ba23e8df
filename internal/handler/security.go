package handler

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"net/http"
	"strconv"

	"github.com/int-market-project/international-market/internal/domain/auth"
)

type contextKey string

const customerIDKey contextKey = "customer_id"

// customerHeader carries the authenticated customer identity, set by the
// session layer in front of this service.
const customerHeader = "X-Customer-ID"

// RequireCustomer extracts the customer id from the identity header and
// stores it in the request context, rejecting requests without one.
func RequireCustomer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseInt(r.Header.Get(customerHeader), 10, 64)
		if err != nil || id <= 0 {
			writeError(w, r, http.StatusUnauthorized, "unauthorized")
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), customerIDKey, id)))
	})
}

// customerID returns the authenticated customer id stored by RequireCustomer.
func customerID(r *http.Request) int64 {
	id, _ := r.Context().Value(customerIDKey).(int64)
	return id
}

// SecurityHandler authenticates admin requests via HMAC-SHA256 hashed API
// keys. Only peppered hashes are stored; a leaked table cannot be replayed
// without the pepper.
type SecurityHandler struct {
	apikeys auth.Repository
	pepper  []byte
}

// NewSecurityHandler creates a SecurityHandler with the given API key
// repository and HMAC pepper.
func NewSecurityHandler(apikeys auth.Repository, pepper []byte) *SecurityHandler {
	return &SecurityHandler{
		apikeys: apikeys,
		pepper:  pepper,
	}
}

// RequireAPIKey authenticates the X-API-Key header by computing the
// HMAC-SHA256 of the provided key, looking it up, and performing a
// constant-time comparison to prevent timing attacks.
func (s *SecurityHandler) RequireAPIKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Header.Get("X-API-Key")
		if key == "" {
			writeError(w, r, http.StatusUnauthorized, "unauthorized")
			return
		}

		mac := hmac.New(sha256.New, s.pepper)
		mac.Write([]byte(key))
		hash := mac.Sum(nil)

		info, err := s.apikeys.FindByHash(r.Context(), hex.EncodeToString(hash))
		if err != nil {
			writeError(w, r, http.StatusUnauthorized, "unauthorized")
			return
		}

		// Constant-time comparison guards against timing side-channels even
		// though the lookup already succeeded; the stored hash could differ
		// from what we computed if the repository returns a stale/wrong row.
		stored, err := hex.DecodeString(info.KeyHash)
		if err != nil || subtle.ConstantTimeCompare(hash, stored) != 1 {
			writeError(w, r, http.StatusUnauthorized, "unauthorized")
			return
		}

		next.ServeHTTP(w, r)
	})
}
