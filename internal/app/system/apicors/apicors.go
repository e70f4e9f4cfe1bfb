// Package apicors provides CORS middleware for the bearer-key admin API.
//
// Admin requests carry the key in the Authorization header, never a cookie,
// so credentials stay disallowed and any origin may be permitted.
package apicors

import (
	"net/http"
)

const (
	allowMethods = "GET, OPTIONS"
	allowHeaders = "Authorization, Accept"
)

// Middleware returns CORS middleware for read-only admin endpoints.
//
// With no origins every origin is allowed (Access-Control-Allow-Origin: *).
// Otherwise the request's Origin is echoed back only when listed, and
// omitted (so the browser blocks the response) when not.
//
// Preflight OPTIONS requests are answered here with 204 and never reach the
// key check, since browsers send them without the Authorization header.
//
// Usage in routes.go:
//
//	r.With(apicors.Middleware()).Mount("/api/session/active",
//	    sessionfeature.ActiveRoutes(h, auth.AdminKeyAuth(key, logger)))
func Middleware(allowedOrigins ...string) func(http.Handler) http.Handler {
	originSet := make(map[string]struct{}, len(allowedOrigins))
	for _, o := range allowedOrigins {
		originSet[o] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			if len(originSet) == 0 {
				h.Set("Access-Control-Allow-Origin", "*")
			} else {
				h.Add("Vary", "Origin")
				if origin := r.Header.Get("Origin"); origin != "" {
					if _, ok := originSet[origin]; ok {
						h.Set("Access-Control-Allow-Origin", origin)
					}
				}
			}
			h.Set("Access-Control-Allow-Methods", allowMethods)
			h.Set("Access-Control-Allow-Headers", allowHeaders)
			h.Set("Access-Control-Max-Age", "86400") // 24 hours

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
