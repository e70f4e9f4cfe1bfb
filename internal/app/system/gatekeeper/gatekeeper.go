// internal/app/system/gatekeeper/gatekeeper.go
// Package gatekeeper runs the negotiation decision on every request: pass
// authenticated visitors through, try credentials when a request carries
// them, and otherwise send the visitor to the active scheme's challenge.
package gatekeeper

// Terminology: Identifiers
//   - LoginID / loginID / login_id: The opaque id of one authentication attempt (a login record)
//   - SchemeID / schemeID: The configured id of a scheme instance

import (
	"context"
	"net/http"
	"net/url"
	"sync"

	"github.com/dalemusser/strataauth/internal/app/system/authconfig"
	"github.com/dalemusser/strataauth/internal/app/system/autherr"
	"github.com/dalemusser/strataauth/internal/app/system/negotiation"
	"github.com/dalemusser/strataauth/internal/app/system/scheme"
	"github.com/dalemusser/strataauth/internal/app/system/userlogin"
	"go.uber.org/zap"
)

// ChallengeHeader carries the challenge URL on probe and 401 responses.
const ChallengeHeader = "Location"

// Request parameters naming where to go after a successful login.
const (
	ParamRedirect = "redirect"
	ParamReferer  = "refererURL"
)

// History records completed logins. loginstore.Store satisfies it.
type History interface {
	CreateFrom(ctx context.Context, rec *userlogin.Record) error
}

// Config holds the Gatekeeper's collaborators.
type Config struct {
	Negotiation *negotiation.Manager
	History     History // optional
	Logger      *zap.Logger

	// BasePath is the prefix the application is served under, if any.
	// Patterns are matched against paths with and without it.
	BasePath string
}

// Gatekeeper is HTTP middleware guarding everything mounted behind it.
type Gatekeeper struct {
	nm       *negotiation.Manager
	history  History
	log      *zap.Logger
	basePath string

	inertOnce sync.Once
}

func New(cfg Config) *Gatekeeper {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gatekeeper{
		nm:       cfg.Negotiation,
		history:  cfg.History,
		log:      logger,
		basePath: cfg.BasePath,
	}
}

// Check resolves the active scheme the way a request would. It returns the
// configuration error a request would get, and warns when the gatekeeper
// will be inert.
func (g *Gatekeeper) Check(ctx context.Context) error {
	snap, err := g.nm.Schemes().Snapshot(ctx)
	if err != nil {
		return err
	}
	active, err := g.nm.Schemes().Active(ctx)
	if err != nil {
		return err
	}
	if _, ok := active.Interactive(); !ok {
		if snap.FailClosed() {
			return notInteractive(active.ID())
		}
		g.warnInert(active.ID())
	}
	return nil
}

// Middleware opens the negotiation session for each request and decides
// whether the request proceeds. The login record is unbound when the
// request ends, on every path.
func (g *Gatekeeper) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s := g.nm.Open(w, r)
		defer s.Close()

		if g.negotiate(w, s) {
			return
		}
		if err := s.Save(); err != nil {
			g.log.Warn("failed to save negotiation session",
				zap.String("login_id", s.Record().ID()), zap.Error(err))
		}
		next.ServeHTTP(w, s.Request())
	})
}

// negotiate reports whether it has produced the response.
func (g *Gatekeeper) negotiate(w http.ResponseWriter, s *negotiation.Session) bool {
	rec := s.Record()
	if rec.IsAuthenticated() {
		return false
	}

	ctx := s.Context()
	r := s.Request()
	schemes := g.nm.Schemes()

	snap, err := schemes.Snapshot(ctx)
	if err != nil {
		g.serverError(w, s, err)
		return true
	}
	active, err := schemes.Active(ctx)
	if err != nil {
		g.serverError(w, s, err)
		return true
	}
	is, ok := active.Interactive()
	if !ok {
		if snap.FailClosed() {
			g.serverError(w, s, notInteractive(active.ID()))
			return true
		}
		g.warnInert(active.ID())
		g.log.Debug("gatekeeper inert for request",
			zap.String("scheme_id", active.ID()), zap.String("path", r.URL.Path))
		return false
	}

	creds, err := is.Credentials(s)
	if err != nil {
		if autherr.IsFatal(err) {
			g.serverError(w, s, err)
			return true
		}
		g.log.Debug("credentials could not be read",
			zap.String("login_id", rec.ID()), zap.String("scheme_id", is.ID()), zap.Error(err))
		return g.fail(w, s, snap, is.ChallengeURL(s))
	}
	if creds != nil {
		return g.login(w, s, snap, is, creds)
	}

	challenge := is.ChallengeURL(s)
	paths := requestPaths(r, g.basePath)
	if matchAny(snap.ProbePatterns(), paths) {
		if challenge != "" {
			w.Header().Set(ChallengeHeader, challenge)
		}
		return false
	}
	if matchAny(snap.Whitelist(), paths) || g.isChallenge(challenge, paths) {
		return false
	}
	return g.fail(w, s, snap, challenge)
}

// login verifies creds. On success the session is regenerated, the locale
// refreshed, and the visitor redirected when the request named a target.
func (g *Gatekeeper) login(w http.ResponseWriter, s *negotiation.Session, snap *authconfig.Snapshot, is scheme.Interactive, creds scheme.Credentials) bool {
	ctx := s.Context()
	rec := s.Record()

	p, err := s.Authenticate(is, creds)
	if err != nil {
		if autherr.IsFatal(err) {
			g.serverError(w, s, err)
			return true
		}
		rec.MarkLoginFailure(ctx)
		return g.fail(w, s, snap, is.ChallengeURL(s))
	}

	rec.MarkLoginSuccess(ctx)
	if err := s.RegenerateSession(); err != nil {
		g.serverError(w, s, err)
		return true
	}
	s.RefreshDefaultLocale()

	if g.history != nil {
		if err := g.history.CreateFrom(ctx, rec); err != nil {
			g.log.Warn("failed to record login history",
				zap.String("login_id", rec.ID()), zap.Error(err))
		}
	}
	g.log.Info("login succeeded",
		zap.String("login_id", rec.ID()),
		zap.String("principal_id", p.ID),
		zap.String("scheme_id", is.ID()),
		zap.String("ip", rec.IP()))

	if target, ok := g.redirectTarget(s); ok {
		http.Redirect(w, s.Request(), target, http.StatusSeeOther)
		return true
	}
	return false
}

// redirectTarget prefers the redirect parameter over refererURL. Targets
// that leave the site are ignored.
func (g *Gatekeeper) redirectTarget(s *negotiation.Session) (string, bool) {
	for _, name := range []string{ParamRedirect, ParamReferer} {
		v, ok := s.RequestParam(name)
		if !ok || v == "" {
			continue
		}
		if target, ok := localTarget(v); ok {
			return target, true
		}
		g.log.Warn("ignoring off-site redirect target",
			zap.String("login_id", s.Record().ID()), zap.String("param", name), zap.String("target", v))
	}
	return "", false
}

// fail answers a request that must not proceed. Paths on the non-redirect
// list get 401 with the challenge in a header; everything else is
// redirected to the challenge. With no challenge to offer, 401.
func (g *Gatekeeper) fail(w http.ResponseWriter, s *negotiation.Session, snap *authconfig.Snapshot, challenge string) bool {
	if err := s.Save(); err != nil {
		g.log.Warn("failed to save negotiation session",
			zap.String("login_id", s.Record().ID()), zap.Error(err))
	}
	r := s.Request()
	if challenge == "" || matchAny(snap.NonRedirect(), requestPaths(r, g.basePath)) {
		if challenge != "" {
			w.Header().Set(ChallengeHeader, challenge)
		}
		w.WriteHeader(http.StatusUnauthorized)
		return true
	}
	http.Redirect(w, r, challenge, http.StatusSeeOther)
	return true
}

// isChallenge reports whether the request is for the challenge page itself.
func (g *Gatekeeper) isChallenge(challenge string, paths []string) bool {
	if challenge == "" {
		return false
	}
	u, err := url.Parse(challenge)
	if err != nil || u.Host != "" || u.Path == "" {
		return false
	}
	for _, p := range paths {
		if matchPattern(u.Path, p) {
			return true
		}
	}
	return false
}

func (g *Gatekeeper) serverError(w http.ResponseWriter, s *negotiation.Session, err error) {
	g.log.Error("authentication unavailable",
		zap.String("login_id", s.Record().ID()),
		zap.String("path", s.Request().URL.Path),
		zap.String("kind", autherr.KindName(err)),
		zap.Error(err))
	http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
}

func (g *Gatekeeper) warnInert(schemeID string) {
	g.inertOnce.Do(func() {
		g.log.Warn("top-level scheme is not interactive; requests pass through unauthenticated",
			zap.String("scheme_id", schemeID))
	})
}

func notInteractive(schemeID string) error {
	return autherr.New(autherr.ErrConfiguration, schemeID, "top-level scheme is not interactive")
}
