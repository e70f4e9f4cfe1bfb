package auth

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"go.uber.org/zap"
)

// AdminKeyAuth returns middleware guarding operator endpoints (active-login
// diagnostics) with a static key sent as "Authorization: Bearer <key>".
// These endpoints sit on the gatekeeper's whitelist, so the key is their
// only protection.
//
// If the key is not configured (empty), every request is rejected.
func AdminKeyAuth(validKey string, logger *zap.Logger) func(http.Handler) http.Handler {
	if validKey == "" {
		logger.Warn("admin key not configured - diagnostics endpoints will reject all requests")
	}
	want := []byte(validKey)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if validKey == "" {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			scheme, key, ok := strings.Cut(r.Header.Get("Authorization"), " ")
			if !ok || !strings.EqualFold(scheme, "Bearer") {
				logger.Debug("admin request rejected: missing or malformed Authorization header",
					zap.String("path", r.URL.Path))
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			if subtle.ConstantTimeCompare([]byte(strings.TrimSpace(key)), want) != 1 {
				logger.Warn("admin request rejected: invalid key",
					zap.String("path", r.URL.Path),
					zap.String("remote_addr", r.RemoteAddr))
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
