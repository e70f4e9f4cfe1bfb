// internal/app/system/negotiation/session.go
package negotiation

import (
	"context"
	"maps"
	"net/http"
	"strings"

	"github.com/dalemusser/strataauth/internal/app/system/auth"
	"github.com/dalemusser/strataauth/internal/app/system/autherr"
	"github.com/dalemusser/strataauth/internal/app/system/scheme"
	"github.com/dalemusser/strataauth/internal/app/system/userlogin"
	"github.com/dalemusser/strataauth/internal/domain/models"
	"github.com/gorilla/sessions"
	"go.uber.org/zap"
	"golang.org/x/text/language"
)

// Session is one round-trip's view of a negotiation. It implements
// scheme.Session. A Session is owned by one request and is not safe for
// concurrent use.
type Session struct {
	m       *Manager
	ctx     context.Context
	w       http.ResponseWriter
	r       *http.Request
	sess    *sessions.Session
	rec     *userlogin.Record
	binding *userlogin.Binding
	locale  string
}

var _ scheme.Session = (*Session)(nil)

// Context carries the bound login record.
func (s *Session) Context() context.Context { return s.ctx }

// Request returns the request with the bound context, or nil.
func (s *Session) Request() *http.Request { return s.r }

func (s *Session) Record() *userlogin.Record { return s.rec }

// Transport returns the underlying gorilla session.
func (s *Session) Transport() *sessions.Session { return s.sess }

// ID returns the transport session token.
func (s *Session) ID() string { return s.m.sessions.Token(s.sess) }

/*─────────────────────────────────────────────────────────────────────────────*
| Request pass-through                                                        |
*─────────────────────────────────────────────────────────────────────────────*/

func (s *Session) RequestParam(name string) (string, bool) {
	if s.r == nil {
		return "", false
	}
	if err := s.r.ParseForm(); err != nil {
		s.m.log.Debug("request form could not be parsed", zap.Error(err))
	}
	vs, ok := s.r.Form[name]
	if !ok || len(vs) == 0 {
		return "", false
	}
	return vs[0], true
}

func (s *Session) RequestHeader(name string) (string, bool) {
	if s.r == nil {
		return "", false
	}
	vs := s.r.Header.Values(name)
	if len(vs) == 0 {
		return "", false
	}
	return vs[0], true
}

/*─────────────────────────────────────────────────────────────────────────────*
| Attributes, errors, cookies                                                 |
*─────────────────────────────────────────────────────────────────────────────*/

// Attribute values must be gob-encodable when the store persists sessions.
func (s *Session) Attribute(key string) (any, bool) {
	v, ok := s.sess.Values[attrPrefix+key]
	return v, ok
}

func (s *Session) SetAttribute(key string, value any) {
	if value == nil {
		delete(s.sess.Values, attrPrefix+key)
		return
	}
	s.sess.Values[attrPrefix+key] = value
}

// LastError returns the reason stashed by the last failed authentication.
func (s *Session) LastError() string {
	v, _ := s.sess.Values[lastErrorKey].(string)
	return v
}

// SetLastError stashes a user-displayable message. Markup is stripped.
func (s *Session) SetLastError(msg string) {
	msg = strings.TrimSpace(s.m.sanitize(msg))
	if msg == "" {
		delete(s.sess.Values, lastErrorKey)
		return
	}
	s.sess.Values[lastErrorKey] = msg
}

func (s *Session) ClearLastError() {
	delete(s.sess.Values, lastErrorKey)
}

// Cookie returns a request cookie's value.
func (s *Session) Cookie(name string) (string, bool) {
	if s.r == nil {
		return "", false
	}
	c, err := s.r.Cookie(name)
	if err != nil {
		return "", false
	}
	return c.Value, true
}

// SetCookie adds a cookie to the response. Without a response it is a no-op.
func (s *Session) SetCookie(c *http.Cookie) {
	if s.w != nil {
		http.SetCookie(s.w, c)
	}
}

/*─────────────────────────────────────────────────────────────────────────────*
| Authentication                                                              |
*─────────────────────────────────────────────────────────────────────────────*/

// Authenticate runs is with its hooks. The check always passes through the
// scheme manager's guards; when is is the configured top-level scheme it
// goes through the global entry point. Any failure stashes an opaque reason
// and returns the original error.
func (s *Session) Authenticate(is scheme.Interactive, creds scheme.Credentials) (*models.Principal, error) {
	is.BeforeAuthentication(s)

	p, err := s.check(is, creds)
	if err != nil {
		s.SetLastError(autherr.Reason(err))
		s.m.log.Debug("authentication failed",
			zap.String("login_id", s.rec.ID()),
			zap.String("scheme_id", is.ID()),
			zap.String("kind", autherr.KindName(err)))
		is.AfterAuthenticationFailure(s, err)
		return nil, err
	}
	s.ClearLastError()
	is.AfterAuthenticationSuccess(s)
	return p, nil
}

func (s *Session) check(is scheme.Interactive, creds scheme.Credentials) (*models.Principal, error) {
	schemes := s.m.schemes
	activeID, err := schemes.ActiveID(s.ctx)
	if err != nil {
		return nil, err
	}
	if is.ID() == activeID {
		return schemes.Authenticate(s.ctx, creds)
	}
	return schemes.Guarded(s.ctx, is, creds)
}

// RegenerateSession moves the negotiation to a new transport session: the
// current values are copied, the old session is destroyed, and a fresh one
// with a new token is saved. The record is re-pointed and rebound.
func (s *Session) RegenerateSession() error {
	if s.w == nil || s.r == nil {
		return auth.ErrNoTransport
	}
	old := s.sess
	values := maps.Clone(old.Values)

	if err := s.m.sessions.Destroy(s.w, s.r, old); err != nil {
		s.m.log.Warn("failed to destroy pre-login session",
			zap.String("login_id", s.rec.ID()), zap.Error(err))
	}

	fresh := s.m.sessions.Fresh()
	maps.Copy(fresh.Values, values)
	token, err := s.m.sessions.Rotate(fresh)
	if err != nil {
		return err
	}
	fresh.Values[recordKey] = s.rec
	if err := fresh.Save(s.r, s.w); err != nil {
		return err
	}

	s.sess = fresh
	s.rec.SetSessionID(token)
	s.binding.Rebind(s.rec)
	s.m.log.Debug("session regenerated", zap.String("login_id", s.rec.ID()))
	return nil
}

// RefreshDefaultLocale resolves the preferred locale of the principal or
// candidate user and persists it in a cookie. With no one to ask, it falls
// back to the locale persisted earlier. It returns the locale in effect, or
// "" when none is known.
func (s *Session) RefreshDefaultLocale() string {
	if loc := s.resolveLocale(); loc != "" {
		s.locale = loc
		s.SetCookie(&http.Cookie{
			Name:     s.m.localeCookie,
			Value:    loc,
			Path:     "/",
			MaxAge:   365 * 24 * 60 * 60,
			HttpOnly: true,
			SameSite: http.SameSiteLaxMode,
		})
		return loc
	}
	if v, ok := s.Cookie(s.m.localeCookie); ok {
		s.locale = normalizeLocale(v)
	}
	return s.locale
}

// Locale returns the locale set by the last RefreshDefaultLocale.
func (s *Session) Locale() string { return s.locale }

func (s *Session) resolveLocale() string {
	p := s.rec.Principal()
	if p == nil && s.m.locales != nil {
		if username := s.rec.Username(); username != "" {
			p, _ = s.m.locales.LookupPrincipal(s.ctx, username)
		}
	}
	if p == nil {
		return ""
	}
	if loc := normalizeLocale(p.Locale); loc != "" {
		return loc
	}
	if s.m.locales == nil {
		return ""
	}
	loc, err := s.m.locales.DefaultLocale(s.ctx, p.ID)
	if err != nil {
		s.m.log.Debug("default locale lookup failed", zap.String("principal_id", p.ID), zap.Error(err))
		return ""
	}
	return normalizeLocale(loc)
}

func normalizeLocale(v string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return ""
	}
	tag, err := language.Parse(v)
	if err != nil || tag == language.Und {
		return ""
	}
	return tag.String()
}

/*─────────────────────────────────────────────────────────────────────────────*
| Lifecycle                                                                   |
*─────────────────────────────────────────────────────────────────────────────*/

// Save persists the transport session, record included.
func (s *Session) Save() error {
	if s.w == nil || s.r == nil {
		return auth.ErrNoTransport
	}
	s.sess.Values[recordKey] = s.rec
	return s.sess.Save(s.r, s.w)
}

// Invalidate destroys the transport session and drops the record from the
// active-login registry. Record events (logout, expiry) are the caller's.
func (s *Session) Invalidate() error {
	s.m.tracker.UnregisterActive(s.rec)
	if s.w == nil || s.r == nil {
		delete(s.sess.Values, recordKey)
		return nil
	}
	return s.m.sessions.Destroy(s.w, s.r, s.sess)
}

// Close unbinds the record from the session's context.
func (s *Session) Close() {
	s.binding.Unbind()
}
