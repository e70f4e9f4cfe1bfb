// internal/app/bootstrap/startup.go
package bootstrap

import (
	"context"

	"github.com/dalemusser/strataauth/internal/app/resources"
	"github.com/dalemusser/strataauth/internal/app/system/tasks"
	"github.com/dalemusser/strataauth/internal/app/system/timeouts"
	"github.com/dalemusser/waffle/config"
	"go.uber.org/zap"
)

// stack and taskRunner are built once in Startup and used by BuildHandler
// and Shutdown.
var (
	stack      *engine
	taskRunner *tasks.Runner
)

// Startup runs once after DB connections and schema/index setup are complete,
// but before the HTTP handler is built and requests are served.
//
// It assembles the negotiation engine, resolves the configured scheme once
// so a broken configuration stops the process before it serves anything,
// and starts the background jobs.
func Startup(ctx context.Context, coreCfg *config.CoreConfig, appCfg AppConfig, deps DBDeps, logger *zap.Logger) error {
	resources.LoadSharedTemplates()

	if n := timeouts.ConfigureFromEnv(); n > 0 {
		t := timeouts.Current()
		logger.Info("backend timeouts overridden",
			zap.Duration("ping", t.Ping),
			zap.Duration("lookup", t.Lookup),
			zap.Duration("outbound", t.Outbound))
	}

	e, err := newEngine(coreCfg, appCfg, deps, logger)
	if err != nil {
		return err
	}
	if err := e.gatekeeper.Check(ctx); err != nil {
		logger.Error("authentication configuration rejected", zap.Error(err))
		e.close()
		return err
	}
	stack = e

	startTaskRunner(e, appCfg, logger)
	return nil
}

// startTaskRunner initializes and starts the background task runner.
func startTaskRunner(e *engine, appCfg AppConfig, logger *zap.Logger) {
	taskRunner = tasks.New(logger)

	taskRunner.Register(tasks.SessionCleanupJob(e.sessionStore, logger))
	if appCfg.IdleTimeout > 0 {
		taskRunner.Register(tasks.LoginExpiryJob(e.tracker, appCfg.IdleTimeout, logger))
	}

	taskRunner.Start()
}
