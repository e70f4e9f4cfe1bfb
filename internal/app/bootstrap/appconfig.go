// internal/app/bootstrap/appconfig.go
package bootstrap

import "time"

// AppConfig holds service-specific configuration for this WAFFLE app.
//
// These values come from environment variables, configuration files, or
// command-line flags (loaded in LoadConfig). WAFFLE's CoreConfig covers the
// framework-level settings (ports, TLS, logging, CORS, timeouts).
//
// The authentication namespace itself (active scheme, whitelist, scheme
// settings) is not here: it lives in the TOML file at AuthConfigPath and can
// change while the server runs.
type AppConfig struct {
	// MongoDB connection configuration
	MongoURI         string // MongoDB connection string (e.g., mongodb://localhost:27017)
	MongoDatabase    string // Database name within MongoDB
	MongoMaxPoolSize uint64 // Maximum connections in pool (default: 100)
	MongoMinPoolSize uint64 // Minimum connections to keep warm (default: 10)

	// Session management configuration
	SessionKey    string        // Secret key for signing session cookies (must be strong in production)
	SessionName   string        // Cookie name for sessions (default: strataauth-session)
	SessionDomain string        // Cookie domain (blank means current host)
	SessionMaxAge time.Duration // Maximum session cookie lifetime (default: 24h)

	// Authentication negotiation
	AuthConfigPath  string        // TOML file with the [auth] table (blank: basic scheme)
	AuthConfigCache bool          // Cache the parsed file until it changes
	AuthBasePath    string        // Prefix stripped before pattern matching
	LoginRedirect   string        // Target for an authenticated visitor on a login page
	LogoutRedirect  string        // Target after logout
	IdleTimeout     time.Duration // Active logins idle this long expire (0 disables)
	RedisAddr       string        // Shared replay guard for one-time codes (blank: in-process)
	OAuthStateTTL   time.Duration // Lifetime of an OAuth state value

	// Rate limiting configuration
	RateLimitEnabled       bool          // Lock a username out after repeated failures (default: true)
	RateLimitLoginAttempts int           // Max failed attempts before lockout (default: 5)
	RateLimitLoginWindow   time.Duration // Time window for counting failed attempts (default: 15m)
	RateLimitLoginLockout  time.Duration // Lockout duration after exceeding limit (default: 15m)
	ThrottlePerMinute      int           // Sustained attempts per minute per username (0 disables)
	ThrottleBurst          int           // Attempts allowed at once per username

	// CSRF protection configuration
	CSRFKey string // Secret key for CSRF token signing (32 bytes, must be strong in production)

	// AdminAPIKey guards the active-login diagnostics endpoint.
	// Leave empty to leave the endpoint unmounted.
	AdminAPIKey string

	// Negotiation event logging.
	// Values: "all" (MongoDB + zap), "db" (MongoDB only), "log" (zap only), "off" (disabled)
	AuditLogAuth string

	// Admin seeding configuration
	SeedAdminUsername string
	SeedAdminName     string
	SeedAdminPassword string
}
