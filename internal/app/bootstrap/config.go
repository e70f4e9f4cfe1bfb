// internal/app/bootstrap/config.go
package bootstrap

import (
	"fmt"
	"time"

	"github.com/dalemusser/strataauth/internal/app/system/authconfig"
	"github.com/dalemusser/strataauth/internal/app/system/eventlog"
	"github.com/dalemusser/waffle/config"
	wafflemongo "github.com/dalemusser/waffle/pantry/mongo"
	"go.uber.org/zap"
)

// EnvVarPrefix is the prefix for environment variables.
const EnvVarPrefix = "STRATAAUTH"

// appConfigKeys defines the configuration keys for this application.
// These are loaded via WAFFLE's config system with support for:
//   - Config files: mongo_uri, auth_config_path, etc.
//   - Environment variables: STRATAAUTH_MONGO_URI, STRATAAUTH_AUTH_CONFIG_PATH, etc.
//   - Command-line flags: --mongo_uri, --auth_config_path, etc.
var appConfigKeys = []config.AppKey{
	{Name: "mongo_uri", Default: "mongodb://localhost:27017", Desc: "MongoDB connection URI"},
	{Name: "mongo_database", Default: "strataauth", Desc: "MongoDB database name"},
	{Name: "mongo_max_pool_size", Default: 100, Desc: "MongoDB max connection pool size (default: 100)"},
	{Name: "mongo_min_pool_size", Default: 10, Desc: "MongoDB min connection pool size (default: 10)"},
	{Name: "session_key", Default: "dev-only-change-me-please-0123456789ABCDEF", Desc: "Session signing key (must be strong in production)"},
	{Name: "session_name", Default: "strataauth-session", Desc: "Session cookie name"},
	{Name: "session_domain", Default: "", Desc: "Session cookie domain (blank means current host)"},
	{Name: "session_max_age", Default: "24h", Desc: "Session cookie max age (e.g., 24h, 720h, 30m)"},

	// Authentication negotiation
	{Name: "auth_config_path", Default: "", Desc: "Path to the authentication TOML file (blank: basic scheme, no whitelist)"},
	{Name: "auth_config_cache", Default: true, Desc: "Keep the parsed auth config until the file changes (false: re-read per request)"},
	{Name: "auth_base_path", Default: "", Desc: "Prefix the app is served under, stripped before whitelist matching"},
	{Name: "login_redirect", Default: "/", Desc: "Where the login pages send an already authenticated visitor"},
	{Name: "logout_redirect", Default: "/", Desc: "Where logout sends the visitor"},
	{Name: "idle_timeout", Default: "30m", Desc: "Expire active logins idle for this long (0 disables)"},
	{Name: "redis_addr", Default: "", Desc: "Redis address for the shared one-time-code replay guard (blank: in-process)"},
	{Name: "oauth_state_ttl", Default: "10m", Desc: "Lifetime of an OAuth state value"},

	// Rate limiting configuration
	{Name: "rate_limit_enabled", Default: true, Desc: "Enable lockout after repeated failed attempts"},
	{Name: "rate_limit_login_attempts", Default: 5, Desc: "Max failed attempts before lockout"},
	{Name: "rate_limit_login_window", Default: "15m", Desc: "Time window for counting failed attempts"},
	{Name: "rate_limit_login_lockout", Default: "15m", Desc: "Lockout duration after exceeding limit"},
	{Name: "throttle_per_minute", Default: 30, Desc: "Attempts per minute per username before throttling (0 disables)"},
	{Name: "throttle_burst", Default: 10, Desc: "Attempts allowed at once per username"},

	{Name: "csrf_key", Default: "dev-only-csrf-key-please-change-0123456789", Desc: "CSRF token signing key (32+ chars in production)"},

	// Bearer key for the admin diagnostics endpoint
	{Name: "admin_api_key", Default: "", Desc: "Bearer key for /api/session/active (leave empty to disable the endpoint)"},

	// Audit logging settings
	{Name: "audit_log_auth", Default: "all", Desc: "Negotiation event logging: 'all' (db+log), 'db', 'log', or 'off'"},

	// Admin seeding configuration
	{Name: "seed_admin_username", Default: "", Desc: "Username of admin user to create on startup"},
	{Name: "seed_admin_name", Default: "Admin", Desc: "Name of admin user to create on startup"},
	{Name: "seed_admin_password", Default: "", Desc: "Initial password for a newly created admin user"},
}

// LoadConfig loads WAFFLE core config and app-specific config.
//
// WAFFLE's config.LoadWithAppConfig handles:
//   - Loading from .env files
//   - Loading from config.yaml/json/toml files
//   - Reading environment variables (WAFFLE_* for core, STRATAAUTH_* for app)
//   - Parsing command-line flags
//   - Merging with precedence: flags > env > files > defaults
func LoadConfig(logger *zap.Logger) (*config.CoreConfig, AppConfig, error) {
	coreCfg, appValues, err := config.LoadWithAppConfig(logger, EnvVarPrefix, appConfigKeys)
	if err != nil {
		return nil, AppConfig{}, err
	}

	appCfg := AppConfig{
		MongoURI:         appValues.String("mongo_uri"),
		MongoDatabase:    appValues.String("mongo_database"),
		MongoMaxPoolSize: uint64(appValues.Int("mongo_max_pool_size")),
		MongoMinPoolSize: uint64(appValues.Int("mongo_min_pool_size")),
		SessionKey:       appValues.String("session_key"),
		SessionName:      appValues.String("session_name"),
		SessionDomain:    appValues.String("session_domain"),
		SessionMaxAge:    appValues.Duration("session_max_age", 24*time.Hour),

		// Negotiation
		AuthConfigPath:  appValues.String("auth_config_path"),
		AuthConfigCache: appValues.Bool("auth_config_cache"),
		AuthBasePath:    appValues.String("auth_base_path"),
		LoginRedirect:   appValues.String("login_redirect"),
		LogoutRedirect:  appValues.String("logout_redirect"),
		IdleTimeout:     appValues.Duration("idle_timeout", 30*time.Minute),
		RedisAddr:       appValues.String("redis_addr"),
		OAuthStateTTL:   appValues.Duration("oauth_state_ttl", 10*time.Minute),

		// Rate limiting
		RateLimitEnabled:       appValues.Bool("rate_limit_enabled"),
		RateLimitLoginAttempts: appValues.Int("rate_limit_login_attempts"),
		RateLimitLoginWindow:   appValues.Duration("rate_limit_login_window", 15*time.Minute),
		RateLimitLoginLockout:  appValues.Duration("rate_limit_login_lockout", 15*time.Minute),
		ThrottlePerMinute:      appValues.Int("throttle_per_minute"),
		ThrottleBurst:          appValues.Int("throttle_burst"),

		CSRFKey:     appValues.String("csrf_key"),
		AdminAPIKey: appValues.String("admin_api_key"),

		AuditLogAuth: appValues.String("audit_log_auth"),

		SeedAdminUsername: appValues.String("seed_admin_username"),
		SeedAdminName:     appValues.String("seed_admin_name"),
		SeedAdminPassword: appValues.String("seed_admin_password"),
	}

	return coreCfg, appCfg, nil
}

// ValidateConfig performs app-specific config validation.
//
// Besides the Mongo URI, the authentication file is parsed once here so a
// broken file stops startup instead of failing every request.
func ValidateConfig(coreCfg *config.CoreConfig, appCfg AppConfig, logger *zap.Logger) error {
	if err := wafflemongo.ValidateURI(appCfg.MongoURI); err != nil {
		logger.Error("invalid MongoDB URI", zap.Error(err))
		return fmt.Errorf("invalid MongoDB URI: %w", err)
	}

	switch appCfg.AuditLogAuth {
	case eventlog.ModeAll, eventlog.ModeDB, eventlog.ModeLog, eventlog.ModeOff, "":
	default:
		return fmt.Errorf("audit_log_auth: unknown mode %q", appCfg.AuditLogAuth)
	}

	if appCfg.AuthConfigPath != "" {
		snap, err := authconfig.Load(appCfg.AuthConfigPath)
		if err != nil {
			logger.Error("invalid auth config", zap.String("path", appCfg.AuthConfigPath), zap.Error(err))
			return fmt.Errorf("auth config: %w", err)
		}
		logger.Info("auth config loaded",
			zap.String("path", appCfg.AuthConfigPath),
			zap.String("scheme", snap.ActiveSchemeID()),
			zap.Strings("schemes", snap.SchemeIDs()))
	}

	if appCfg.RateLimitEnabled && appCfg.RateLimitLoginAttempts <= 0 {
		return fmt.Errorf("rate_limit_login_attempts must be positive when rate limiting is enabled")
	}

	return nil
}
