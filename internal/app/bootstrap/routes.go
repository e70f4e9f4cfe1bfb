// internal/app/bootstrap/routes.go
package bootstrap

import (
	"errors"
	"net/http"
	"strings"
	"time"

	healthfeature "github.com/dalemusser/strataauth/internal/app/features/health"
	heartbeatfeature "github.com/dalemusser/strataauth/internal/app/features/heartbeat"
	homefeature "github.com/dalemusser/strataauth/internal/app/features/home"
	loginfeature "github.com/dalemusser/strataauth/internal/app/features/login"
	logoutfeature "github.com/dalemusser/strataauth/internal/app/features/logout"
	sessionfeature "github.com/dalemusser/strataauth/internal/app/features/session"
	"github.com/dalemusser/strataauth/internal/app/resources"
	"github.com/dalemusser/strataauth/internal/app/system/apicors"
	"github.com/dalemusser/strataauth/internal/app/system/auth"
	"github.com/dalemusser/waffle/config"
	"github.com/dalemusser/waffle/middleware"
	"github.com/dalemusser/waffle/pantry/templates"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/csrf"
	"go.uber.org/zap"
)

// csrfExempt lists JSON endpoints called from scripts or API clients.
// Browser form posts (login steps, logout) stay protected.
var csrfExempt = []string{
	"/api/session",
	"/api/heartbeat",
}

// BuildHandler constructs the root HTTP handler (router) for this WAFFLE app.
//
// WAFFLE calls this after Startup, so the negotiation engine is built.
//
// Route layout:
//   - /health, /ready, /readyz, /livez: outside the gatekeeper
//   - /assets/*: embedded stylesheet, outside the gatekeeper
//   - /api/session/active: outside the gatekeeper, admin bearer key
//   - everything else: behind the gatekeeper, which decides per request
//     whether the visitor is let through, challenged, or rejected
func BuildHandler(coreCfg *config.CoreConfig, appCfg AppConfig, deps DBDeps, logger *zap.Logger) (http.Handler, error) {
	if stack == nil {
		return nil, errors.New("negotiation engine not initialized; Startup must run first")
	}
	secure := coreCfg.Env == "prod"

	// Boot the template engine once. Startup registered the shared layout;
	// feature sets register themselves via init().
	eng := templates.New(coreCfg.Env == "dev")
	if err := eng.Boot(logger); err != nil {
		logger.Error("template engine boot failed", zap.Error(err))
		return nil, err
	}
	templates.UseEngine(eng, logger)

	r := chi.NewRouter()

	// ─────────────────────────────────────────────────────────────────────────────
	// Global Middleware (applies to ALL routes)
	// ─────────────────────────────────────────────────────────────────────────────

	// Request timeout middleware: prevents requests from hanging indefinitely.
	r.Use(chimw.Timeout(30 * time.Second))

	// CORS middleware: must be early in the chain to handle preflight requests.
	r.Use(middleware.CORSFromConfig(coreCfg))

	// Security headers middleware: adds X-Frame-Options, X-Content-Type-Options, etc.
	r.Use(middleware.SecurityHeadersFromConfig(coreCfg))

	r.Use(csrfMiddleware(appCfg, secure, logger))

	// ─────────────────────────────────────────────────────────────────────────────
	// Routes outside the gatekeeper
	// ─────────────────────────────────────────────────────────────────────────────

	healthHandler := healthfeature.NewHandler(deps.MongoClient, stack.tracker, stack.gatekeeper.Check, logger)
	r.Mount("/health", healthfeature.Routes(healthHandler))
	r.Handle("/assets/*", resources.AssetsHandler("/assets"))
	healthfeature.MountRootEndpoints(r, healthHandler)

	sessionHandler := sessionfeature.NewHandler(stack.tracker, logger)
	if appCfg.AdminAPIKey != "" {
		r.With(apicors.Middleware()).Mount("/api/session/active", sessionfeature.ActiveRoutes(sessionHandler, auth.AdminKeyAuth(appCfg.AdminAPIKey, logger)))
	} else {
		logger.Info("admin_api_key not set; active login listing disabled")
	}

	// ─────────────────────────────────────────────────────────────────────────────
	// Routes behind the gatekeeper
	// ─────────────────────────────────────────────────────────────────────────────

	r.Group(func(r chi.Router) {
		r.Use(stack.gatekeeper.Middleware)

		r.Mount("/login", loginfeature.Routes(loginfeature.NewHandler(appCfg.LoginRedirect, logger)))
		r.Mount("/logout", logoutfeature.Routes(logoutfeature.NewHandler(appCfg.LogoutRedirect, logger)))
		r.Mount("/api/session", sessionfeature.ProbeRoutes(sessionHandler))
		r.Mount("/api/heartbeat", heartbeatfeature.Routes(heartbeatfeature.NewHandler(appCfg.IdleTimeout, appCfg.IdleTimeout/6, logger)))
		r.Mount("/", homefeature.Routes(homefeature.NewHandler("/logout", logger)))
	})

	return r, nil
}

// csrfMiddleware wraps gorilla/csrf with the path exemptions in csrfExempt.
func csrfMiddleware(appCfg AppConfig, secure bool, logger *zap.Logger) func(http.Handler) http.Handler {
	csrfOpts := []csrf.Option{
		csrf.Secure(secure),
		csrf.Path("/"),
		csrf.CookieName("strataauth_csrf"),
		csrf.FieldName("csrf_token"),
		csrf.SameSite(csrf.SameSiteLaxMode),
		csrf.ErrorHandler(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			logger.Warn("CSRF validation failed",
				zap.String("path", req.URL.Path),
				zap.String("method", req.Method),
				zap.String("reason", csrf.FailureReason(req).Error()),
			)
			http.Error(w, "CSRF token invalid or missing", http.StatusForbidden)
		})),
	}
	// In dev mode, trust localhost origins for CSRF validation.
	if !secure {
		csrfOpts = append(csrfOpts, csrf.TrustedOrigins([]string{
			"localhost:8080",
			"localhost:3000",
			"127.0.0.1:8080",
			"127.0.0.1:3000",
		}))
	}
	if appCfg.SessionDomain != "" {
		csrfOpts = append(csrfOpts, csrf.Domain(appCfg.SessionDomain))
	}
	protect := csrf.Protect([]byte(appCfg.CSRFKey), csrfOpts...)

	return func(next http.Handler) http.Handler {
		protected := protect(next)
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if isCSRFExempt(req.URL.Path) {
				next.ServeHTTP(w, req)
				return
			}
			protected.ServeHTTP(w, req)
		})
	}
}

func isCSRFExempt(path string) bool {
	for _, p := range csrfExempt {
		if path == p || strings.HasPrefix(path, p+"/") {
			return true
		}
	}
	return false
}
