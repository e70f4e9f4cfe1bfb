// internal/app/system/negotiation/manager.go
// Package negotiation binds a login record to one transport round-trip. A
// Session is what interactive schemes see: request parameters and headers,
// session attributes, and an Authenticate that routes through the global
// entry point when appropriate.
package negotiation

// Terminology: Identifiers
//   - LoginID / loginID / login_id: The opaque id of one authentication attempt (a login record)
//   - SessionID / session_id: The transport session token the record is linked to
//   - SchemeID / schemeID: The configured id of a scheme instance

import (
	"context"
	"net/http"
	"time"

	"github.com/dalemusser/strataauth/internal/app/system/auth"
	"github.com/dalemusser/strataauth/internal/app/system/network"
	"github.com/dalemusser/strataauth/internal/app/system/scheme"
	"github.com/dalemusser/strataauth/internal/app/system/userlogin"
	"github.com/dalemusser/strataauth/internal/domain/models"
	"github.com/gorilla/sessions"
	"github.com/microcosm-cc/bluemonday"
	"go.uber.org/zap"
)

// Session value keys.
const (
	recordKey    = "login_record"
	lastErrorKey = "last_error"
	attrPrefix   = "attr:"
)

// DefaultLocaleCookie is the cookie the preferred locale is persisted in.
const DefaultLocaleCookie = "locale"

// LocaleResolver supplies preferred locales. scheme.Directory satisfies it.
type LocaleResolver interface {
	LookupPrincipal(ctx context.Context, username string) (*models.Principal, error)
	DefaultLocale(ctx context.Context, principalID string) (string, error)
}

// Config holds the Manager's collaborators.
type Config struct {
	Sessions *auth.SessionManager
	Tracker  *userlogin.Tracker
	Schemes  *scheme.Manager
	Locales  LocaleResolver // optional
	Logger   *zap.Logger

	// IdleTimeout bounds how long a login restored from a stored session
	// (not live in this process) may have been idle. Zero disables the check.
	IdleTimeout time.Duration

	// LocaleCookie defaults to DefaultLocaleCookie.
	LocaleCookie string
}

// Manager opens negotiation sessions.
type Manager struct {
	sessions     *auth.SessionManager
	tracker      *userlogin.Tracker
	schemes      *scheme.Manager
	locales      LocaleResolver
	log          *zap.Logger
	policy       *bluemonday.Policy
	idleTimeout  time.Duration
	localeCookie string
}

func NewManager(cfg Config) *Manager {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	cookie := cfg.LocaleCookie
	if cookie == "" {
		cookie = DefaultLocaleCookie
	}
	return &Manager{
		sessions:     cfg.Sessions,
		tracker:      cfg.Tracker,
		schemes:      cfg.Schemes,
		locales:      cfg.Locales,
		log:          logger,
		policy:       bluemonday.StrictPolicy(),
		idleTimeout:  cfg.IdleTimeout,
		localeCookie: cookie,
	}
}

// Schemes returns the global authentication entry point.
func (m *Manager) Schemes() *scheme.Manager { return m.schemes }

// Tracker returns the active-login registry.
func (m *Manager) Tracker() *userlogin.Tracker { return m.tracker }

// Open resolves the transport session for r, resolves or creates its login
// record, stamps last activity, and binds the record to the returned
// session's context. Callers must Close the session when the request ends.
func (m *Manager) Open(w http.ResponseWriter, r *http.Request) *Session {
	sess := m.sessions.GetSession(r)
	s := m.attach(r.Context(), sess, network.GetClientIP(r))
	s.w = w
	s.r = r.WithContext(s.ctx)
	return s
}

// FromSession builds a Session around a bare transport session, for work
// that happens outside a request (session lifecycle hooks). Request
// accessors report absent and Save fails with auth.ErrNoTransport.
func (m *Manager) FromSession(ctx context.Context, sess *sessions.Session) *Session {
	return m.attach(ctx, sess, "")
}

func (m *Manager) attach(ctx context.Context, sess *sessions.Session, ip string) *Session {
	token := m.sessions.Token(sess)
	rec := m.resolve(ctx, sess, token, ip)
	sess.Values[recordKey] = rec

	rec.SetSessionID(token)
	if ip != "" {
		if prev := rec.SetIP(ip); prev != "" && !network.SameClient(prev, ip) {
			m.log.Warn("client address changed during login",
				zap.String("login_id", rec.ID()),
				zap.String("previous_ip", prev),
				zap.String("ip", ip),
				zap.String("username", rec.Username()))
		}
	}
	rec.Touch()

	bctx, binding := userlogin.Bind(ctx, rec)
	s := &Session{
		m:       m,
		sess:    sess,
		rec:     rec,
		binding: binding,
	}
	s.ctx = context.WithValue(bctx, sessionKey{}, s)
	return s
}

type sessionKey struct{}

// FromContext returns the Session opened for the request that owns ctx.
func FromContext(ctx context.Context) (*Session, bool) {
	s, ok := ctx.Value(sessionKey{}).(*Session)
	return s, ok
}

// resolve returns the record the session should use. A decoded record that
// is live in the tracker is replaced by the live instance. A record whose
// login has ended is replaced by a fresh one. An authenticated record that
// is not live (restored after a restart, or on another instance) is
// re-registered unless it has been idle too long.
func (m *Manager) resolve(ctx context.Context, sess *sessions.Session, token, ip string) *userlogin.Record {
	rec, _ := sess.Values[recordKey].(*userlogin.Record)
	if rec == nil {
		return m.tracker.NewRecord(token, ip)
	}
	live := m.tracker.Attach(rec)
	if live != rec {
		return live
	}
	if !rec.LogoutAt().IsZero() {
		return m.tracker.NewRecord(token, ip)
	}
	if rec.IsAuthenticated() {
		if m.idleTimeout > 0 && time.Since(rec.LastActivity()) > m.idleTimeout {
			rec.MarkExpired(ctx)
			return m.tracker.NewRecord(token, ip)
		}
		m.tracker.RegisterActive(rec)
	}
	return rec
}

func (m *Manager) sanitize(msg string) string {
	return m.policy.Sanitize(msg)
}
