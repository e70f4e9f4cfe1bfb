// internal/app/system/scheme/throttle.go
package scheme

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/dalemusser/strataauth/internal/app/system/autherr"
	"github.com/dalemusser/strataauth/internal/domain/models"
	"golang.org/x/time/rate"
)

// Throttle is an in-process Guard that limits how fast attempts for one
// username may arrive, independent of whether they succeed.
type Throttle struct {
	mu       sync.Mutex
	limit    rate.Limit
	burst    int
	idle     time.Duration
	limiters map[string]*throttleEntry
}

type throttleEntry struct {
	lim  *rate.Limiter
	seen time.Time
}

// NewThrottle allows burst attempts at once and perMinute attempts per
// minute after that, per username.
func NewThrottle(perMinute float64, burst int) *Throttle {
	return &Throttle{
		limit:    rate.Limit(perMinute / 60),
		burst:    burst,
		idle:     10 * time.Minute,
		limiters: make(map[string]*throttleEntry),
	}
}

func (t *Throttle) Allow(_ context.Context, creds Credentials) error {
	key := strings.ToLower(strings.TrimSpace(labelOf(creds)))
	if key == "" {
		return nil
	}
	now := time.Now()

	t.mu.Lock()
	e, ok := t.limiters[key]
	if !ok {
		e = &throttleEntry{lim: rate.NewLimiter(t.limit, t.burst)}
		t.limiters[key] = e
	}
	e.seen = now
	allowed := e.lim.AllowN(now, 1)
	t.sweepLocked(now)
	t.mu.Unlock()

	if !allowed {
		return autherr.New(autherr.ErrIncorrectCredentials, "", "too many attempts")
	}
	return nil
}

func (t *Throttle) Observe(context.Context, Credentials, *models.Principal, error) {}

func (t *Throttle) sweepLocked(now time.Time) {
	if len(t.limiters) < 1024 {
		return
	}
	for k, e := range t.limiters {
		if now.Sub(e.seen) > t.idle {
			delete(t.limiters, k)
		}
	}
}
