// internal/app/system/tasks/jobs.go
package tasks

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// IdleExpirer is satisfied by *userlogin.Tracker.
type IdleExpirer interface {
	ExpireIdle(ctx context.Context, cutoff time.Time) int
}

// SessionPurger is satisfied by *sessions.Store.
type SessionPurger interface {
	DeleteExpired(ctx context.Context) (int64, error)
}

// LoginExpiryJob expires active logins idle for longer than idle. It checks
// every quarter of idle, at most every minute and at least every 5 minutes.
func LoginExpiryJob(logins IdleExpirer, idle time.Duration, logger *zap.Logger) Job {
	interval := min(max(idle/4, time.Minute), 5*time.Minute)
	return Job{
		Name:     "login-expiry",
		Interval: interval,
		Run: func(ctx context.Context) error {
			if n := logins.ExpireIdle(ctx, time.Now().Add(-idle)); n > 0 {
				logger.Info("expired idle logins", zap.Int("count", n), zap.Duration("idle_timeout", idle))
			}
			return ctx.Err()
		},
	}
}

// SessionCleanupJob removes expired transport sessions hourly.
func SessionCleanupJob(sessions SessionPurger, logger *zap.Logger) Job {
	return Job{
		Name:     "session-cleanup",
		Interval: time.Hour,
		Timeout:  time.Minute,
		Run: func(ctx context.Context) error {
			n, err := sessions.DeleteExpired(ctx)
			if err != nil {
				return err
			}
			if n > 0 {
				logger.Info("cleaned up expired sessions", zap.Int64("deleted", n))
			}
			return nil
		},
	}
}
