// internal/app/bootstrap/engine.go
package bootstrap

import (
	"context"
	"net/http"

	"github.com/dalemusser/strataauth/internal/app/store/audit"
	loginstore "github.com/dalemusser/strataauth/internal/app/store/logins"
	"github.com/dalemusser/strataauth/internal/app/store/oauthstate"
	"github.com/dalemusser/strataauth/internal/app/store/ratelimit"
	"github.com/dalemusser/strataauth/internal/app/store/sessions"
	userstore "github.com/dalemusser/strataauth/internal/app/store/users"
	"github.com/dalemusser/strataauth/internal/app/system/auth"
	"github.com/dalemusser/strataauth/internal/app/system/authconfig"
	"github.com/dalemusser/strataauth/internal/app/system/eventlog"
	"github.com/dalemusser/strataauth/internal/app/system/gatekeeper"
	"github.com/dalemusser/strataauth/internal/app/system/negotiation"
	"github.com/dalemusser/strataauth/internal/app/system/scheme"
	"github.com/dalemusser/strataauth/internal/app/system/timeouts"
	"github.com/dalemusser/strataauth/internal/app/system/userlogin"
	"github.com/dalemusser/waffle/config"
	"go.uber.org/zap"
)

// engine is the negotiation stack shared by Startup, BuildHandler and
// Shutdown.
type engine struct {
	sessions     *auth.SessionManager
	sessionStore *sessions.Store
	tracker      *userlogin.Tracker
	loader       *authconfig.FileLoader
	negotiation  *negotiation.Manager
	gatekeeper   *gatekeeper.Gatekeeper

	stopWatch  context.CancelFunc
	stopReplay func()
}

// newEngine assembles the negotiation stack on top of the connected
// backends. The config file watch runs until close.
func newEngine(coreCfg *config.CoreConfig, appCfg AppConfig, deps DBDeps, logger *zap.Logger) (*engine, error) {
	db := deps.MongoDatabase
	secure := coreCfg.Env == "prod"

	// Transport sessions: signed cookie carries a token, values live in Mongo.
	sessionMgr, err := auth.NewSessionManager(appCfg.SessionKey, appCfg.SessionName, appCfg.SessionDomain, appCfg.SessionMaxAge, secure, logger)
	if err != nil {
		logger.Error("session manager init failed", zap.Error(err))
		return nil, err
	}
	store := sessions.New(db, logger, []byte(appCfg.SessionKey))
	opts := sessionMgr.Options()
	store.Options = &opts
	sessionMgr.UseStore(store)

	events := eventlog.New(audit.New(db), logger, eventlog.Config{Mode: appCfg.AuditLogAuth})
	tracker := userlogin.NewTracker(events)

	loader := authconfig.NewFileLoader(appCfg.AuthConfigPath, appCfg.AuthConfigCache, logger)
	watchCtx, stopWatch := context.WithCancel(context.Background())
	if appCfg.AuthConfigCache {
		if err := loader.Watch(watchCtx); err != nil {
			// Without the watch a changed file is only seen after restart.
			logger.Warn("auth config watch unavailable", zap.Error(err))
		}
	}

	e := &engine{
		sessions:     sessionMgr,
		sessionStore: store,
		tracker:      tracker,
		loader:       loader,
		stopWatch:    stopWatch,
	}

	directory := userstore.NewDirectory(db, logger)
	var replay scheme.ReplayGuard
	if deps.Redis != nil {
		replay = scheme.NewRedisReplay(deps.Redis, "")
	} else {
		mem := scheme.NewMemoryReplay(0)
		replay = mem
		e.stopReplay = mem.Stop
	}

	schemes := scheme.NewManager(loader, nil, scheme.Deps{
		Directory:   directory,
		Logger:      logger,
		Replay:      replay,
		OAuthStates: oauthstate.New(db, appCfg.OAuthStateTTL),
		HTTPClient:  &http.Client{Timeout: timeouts.Outbound()},
	})
	if appCfg.ThrottlePerMinute > 0 {
		schemes.Use(scheme.NewThrottle(float64(appCfg.ThrottlePerMinute), appCfg.ThrottleBurst))
	}
	if appCfg.RateLimitEnabled {
		limits := ratelimit.New(db, appCfg.RateLimitLoginAttempts, appCfg.RateLimitLoginWindow, appCfg.RateLimitLoginLockout)
		schemes.Use(ratelimit.NewGuard(limits, logger))
	}

	e.negotiation = negotiation.NewManager(negotiation.Config{
		Sessions:    sessionMgr,
		Tracker:     tracker,
		Schemes:     schemes,
		Locales:     directory,
		Logger:      logger,
		IdleTimeout: appCfg.IdleTimeout,
	})
	e.gatekeeper = gatekeeper.New(gatekeeper.Config{
		Negotiation: e.negotiation,
		History:     loginstore.New(db),
		Logger:      logger,
		BasePath:    appCfg.AuthBasePath,
	})
	return e, nil
}

func (e *engine) close() {
	if e.stopWatch != nil {
		e.stopWatch()
	}
	if e.stopReplay != nil {
		e.stopReplay()
	}
}
