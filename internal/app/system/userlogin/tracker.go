// internal/app/system/userlogin/tracker.go
package userlogin

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/dalemusser/strataauth/internal/app/system/eventlog"
	"github.com/google/uuid"
)

// Tracker is the process-wide registry of active logins. A record enters it
// on MarkLoginSuccess and leaves it on logout or expiry.
type Tracker struct {
	mu     sync.RWMutex
	active map[string]*Record
	order  []string // login ids in registration order

	log *eventlog.Logger
	now func() time.Time
}

// NewTracker creates an empty tracker whose records log through log
// (which may be nil).
func NewTracker(log *eventlog.Logger) *Tracker {
	return &Tracker{
		active: make(map[string]*Record),
		log:    log,
		now:    time.Now,
	}
}

// NewRecord creates a record wired to this tracker.
func (t *Tracker) NewRecord(sessionID, ip string) *Record {
	r := newRecord(uuid.NewString(), t.now)
	r.sessionID = sessionID
	r.ip = ip
	r.tracker = t
	r.log = t.log
	return r
}

// Attach wires a decoded record back to this tracker. If a record with the
// same login id is registered as active, that live instance is returned so
// every request for the login shares one record.
func (t *Tracker) Attach(r *Record) *Record {
	if r == nil {
		return nil
	}
	t.mu.RLock()
	live, ok := t.active[r.ID()]
	t.mu.RUnlock()
	if ok {
		return live
	}

	r.mu.Lock()
	r.tracker = t
	r.log = t.log
	r.now = t.now
	if r.unvalidated == nil {
		r.unvalidated = make(map[string]Credential)
	}
	r.mu.Unlock()
	return r
}

// RegisterActive adds r to the active-login map. Registering twice is a no-op.
func (t *Tracker) RegisterActive(r *Record) {
	if t == nil || r == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.active[r.ID()]; ok {
		return
	}
	t.active[r.ID()] = r
	t.order = append(t.order, r.ID())
}

// UnregisterActive removes r from the active-login map.
func (t *Tracker) UnregisterActive(r *Record) {
	if t == nil || r == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.active[r.ID()]; !ok {
		return
	}
	delete(t.active, r.ID())
	if i := slices.Index(t.order, r.ID()); i >= 0 {
		t.order = slices.Delete(t.order, i, i+1)
	}
}

// ActiveLogins returns a snapshot of active records in registration order.
// The slice is owned by the caller; changes to it do not affect the tracker.
func (t *Tracker) ActiveLogins() []*Record {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]*Record, 0, len(t.order))
	for _, id := range t.order {
		out = append(out, t.active[id])
	}
	return out
}

// Lookup returns the active record with the given login id.
func (t *Tracker) Lookup(loginID string) (*Record, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	r, ok := t.active[loginID]
	return r, ok
}

// Len returns the number of active logins.
func (t *Tracker) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.active)
}

// ExpireIdle marks every active login idle since before cutoff as expired and
// returns how many were expired.
func (t *Tracker) ExpireIdle(ctx context.Context, cutoff time.Time) int {
	expired := 0
	for _, r := range t.ActiveLogins() {
		if ctx.Err() != nil {
			break
		}
		if r.LastActivity().Before(cutoff) {
			r.MarkExpired(ctx)
			expired++
		}
	}
	return expired
}
