// internal/app/store/ratelimit/guard.go
package ratelimit

import (
	"context"
	"errors"
	"time"

	"github.com/dalemusser/strataauth/internal/app/system/autherr"
	"github.com/dalemusser/strataauth/internal/app/system/scheme"
	"github.com/dalemusser/strataauth/internal/domain/models"
	"go.uber.org/zap"
)

// Guard enforces the Store's lockout around the global entry point.
// Credentials without a username label are not limited. A backend failure
// lets the attempt through.
type Guard struct {
	store *Store
	log   *zap.Logger
}

var _ scheme.Guard = (*Guard)(nil)

func NewGuard(store *Store, logger *zap.Logger) *Guard {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Guard{store: store, log: logger}
}

func (g *Guard) Allow(ctx context.Context, creds scheme.Credentials) error {
	username := creds.Label()
	if username == "" {
		return nil
	}
	allowed, until, err := g.store.CheckAllowed(ctx, username)
	if err != nil {
		g.log.Error("rate limit check failed", zap.String("username", username), zap.Error(err))
		return nil
	}
	if allowed {
		return nil
	}
	msg := "too many failed attempts"
	if until != nil {
		msg += "; locked until " + until.UTC().Format(time.RFC3339)
	}
	return autherr.New(autherr.ErrIncorrectCredentials, creds.SchemeID(), msg)
}

// Observe counts rejections and clears the count on success. Configuration
// errors are not the user's doing and are not counted.
func (g *Guard) Observe(ctx context.Context, creds scheme.Credentials, _ *models.Principal, err error) {
	username := creds.Label()
	if username == "" {
		return
	}
	switch {
	case err == nil:
		if cerr := g.store.Clear(ctx, username); cerr != nil {
			g.log.Warn("failed to clear rate limit", zap.String("username", username), zap.Error(cerr))
		}
	case errors.Is(err, autherr.ErrIncorrectCredentials), errors.Is(err, autherr.ErrStepIncomplete):
		until, rerr := g.store.RecordFailure(ctx, username)
		if rerr != nil {
			g.log.Error("failed to record failed attempt", zap.String("username", username), zap.Error(rerr))
			return
		}
		if until != nil {
			g.log.Warn("username locked out",
				zap.String("username", username),
				zap.String("scheme_id", creds.SchemeID()),
				zap.Time("locked_until", *until))
		}
	}
}
