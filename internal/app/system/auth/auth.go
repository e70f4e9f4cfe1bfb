// internal/app/system/auth/auth.go
// Package auth owns the transport session: the gorilla store, its cookie
// options, and the session token that identifies a session to the login
// record independent of the backing store.
package auth

// Terminology: Identifiers
//   - Token / token: The session token stored in the session values; the session id seen by login records
//   - LoginID / loginID / login_id: The opaque id of one authentication attempt

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/securecookie"
	"github.com/gorilla/sessions"
	"go.uber.org/zap"
)

// Session error classification for logging and monitoring.
type sessionErrorType int

const (
	sessionErrUnknown   sessionErrorType = iota
	sessionErrExpired                    // timestamp expired - normal
	sessionErrTampered                   // MAC invalid - potential attack
	sessionErrCorrupted                  // decode/decrypt failed - corruption or key rotation
	sessionErrBackend                    // store/backend failure
)

/*─────────────────────────────────────────────────────────────────────────────*
| Session constants                                                           |
*─────────────────────────────────────────────────────────────────────────────*/

const sessionTokenKey = "session_token"

/*─────────────────────────────────────────────────────────────────────────────*
| SessionManager - injectable session management                              |
*─────────────────────────────────────────────────────────────────────────────*/

// SessionManager encapsulates the session store and its cookie options.
// Use NewSessionManager to create an instance.
type SessionManager struct {
	store   sessions.Store
	options sessions.Options
	logger  *zap.Logger
	name    string
}

// NewSessionManager creates a cookie-backed SessionManager.
//
// Parameters:
//   - sessionKey: signing key for cookies (must be ≥32 chars in production)
//   - name: session cookie name (defaults to "strataauth-session" if empty)
//   - domain: cookie domain (empty means current host)
//   - maxAge: session cookie lifetime (e.g., 24*time.Hour)
//   - secure: if true, cookies are Secure (for HTTPS production)
//   - logger: zap logger for session error logging
//
// Returns an error if sessionKey is empty or too weak for production mode.
// Call UseStore to move session values server-side.
func NewSessionManager(sessionKey, name, domain string, maxAge time.Duration, secure bool, logger *zap.Logger) (*SessionManager, error) {
	if sessionKey == "" {
		return nil, &SessionConfigError{Message: "session key is empty; provide ≥32 random chars"}
	}

	isWeak := len(sessionKey) < 32 || isDefaultKey(sessionKey)
	if secure {
		if isWeak {
			return nil, &SessionConfigError{
				Message: "session key is too weak for production; provide ≥32 random chars (not the default dev key)",
			}
		}
	} else if isWeak {
		logger.Warn("session key is weak; 32+ random chars required in production",
			zap.Int("length", len(sessionKey)),
			zap.Bool("is_default", isDefaultKey(sessionKey)))
	}

	if name == "" {
		name = "strataauth-session"
	}

	opts := sessions.Options{
		Domain:   domain,
		Path:     "/",
		MaxAge:   int(maxAge.Seconds()),
		Secure:   secure,
		HttpOnly: true,
		// Lax allows top-level navigations back from a challenge page or an
		// OAuth provider while blocking cross-site POSTs.
		SameSite: http.SameSiteLaxMode,
	}
	store := sessions.NewCookieStore([]byte(sessionKey))
	store.Options = &opts

	logger.Info("session manager initialized",
		zap.Bool("secure", secure),
		zap.String("name", name),
		zap.String("domain", domain))

	return &SessionManager{
		store:   store,
		options: opts,
		logger:  logger,
		name:    name,
	}, nil
}

// SessionConfigError is returned when session configuration is invalid.
type SessionConfigError struct {
	Message string
}

func (e *SessionConfigError) Error() string {
	return e.Message
}

// UseStore replaces the backing store. The manager's cookie options are
// applied to sessions it creates; the store's own options apply to sessions
// it loads, so callers should configure both alike (see Options).
func (sm *SessionManager) UseStore(store sessions.Store) {
	sm.store = store
}

// Options returns a copy of the cookie options.
func (sm *SessionManager) Options() sessions.Options {
	return sm.options
}

// SessionName returns the configured session cookie name.
func (sm *SessionManager) SessionName() string {
	return sm.name
}

// Store returns the underlying session store.
func (sm *SessionManager) Store() sessions.Store {
	return sm.store
}

// GetSession retrieves the session for the request. It never returns nil:
// when the stored session cannot be read the error is classified and logged
// and a fresh session is returned in its place.
func (sm *SessionManager) GetSession(r *http.Request) *sessions.Session {
	sess, err := sm.store.Get(r, sm.name)
	if err != nil {
		sm.logSessionError(r, err)
	}
	if sess == nil {
		sess = sm.Fresh()
	}
	return sess
}

// Fresh returns a new, unsaved session that does not inherit anything from
// the request, not even a store id. Saving it issues a new id.
func (sm *SessionManager) Fresh() *sessions.Session {
	sess := sessions.NewSession(sm.store, sm.name)
	opts := sm.options
	sess.Options = &opts
	sess.IsNew = true
	return sess
}

// Token returns the session token, issuing one if the session has none.
func (sm *SessionManager) Token(sess *sessions.Session) string {
	if tok, ok := sess.Values[sessionTokenKey].(string); ok && tok != "" {
		return tok
	}
	tok, err := GenerateSessionToken()
	if err != nil {
		sm.logger.Error("failed to generate session token", zap.Error(err))
		return ""
	}
	sess.Values[sessionTokenKey] = tok
	return tok
}

// Rotate replaces the session token with a new one and returns it.
func (sm *SessionManager) Rotate(sess *sessions.Session) (string, error) {
	tok, err := GenerateSessionToken()
	if err != nil {
		return "", err
	}
	sess.Values[sessionTokenKey] = tok
	return tok, nil
}

// Destroy expires the session in the store and the browser.
func (sm *SessionManager) Destroy(w http.ResponseWriter, r *http.Request, sess *sessions.Session) error {
	if w == nil || r == nil {
		return ErrNoTransport
	}
	sess.Options.MaxAge = -1
	return sess.Save(r, w)
}

// ErrNoTransport is returned when a session operation needs a request and
// response writer and none is available.
var ErrNoTransport = errors.New("session has no request or response")

// GenerateSessionToken generates a random URL-safe token.
func GenerateSessionToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(b), nil
}

/*─────────────────────────────────────────────────────────────────────────────*
| Helpers                                                                     |
*─────────────────────────────────────────────────────────────────────────────*/

func (sm *SessionManager) logSessionError(r *http.Request, err error) {
	errType, errCategory := classifySessionError(err)
	switch errType {
	case sessionErrExpired:
		sm.logger.Debug("session expired, starting fresh session",
			zap.String("category", errCategory),
			zap.String("path", r.URL.Path))
	case sessionErrTampered:
		sm.logger.Warn("session MAC validation failed (possible tampering)",
			zap.String("category", errCategory),
			zap.String("path", r.URL.Path),
			zap.String("remote_addr", r.RemoteAddr),
			zap.String("user_agent", r.UserAgent()))
	case sessionErrCorrupted:
		sm.logger.Info("session decode failed, starting fresh session",
			zap.String("category", errCategory),
			zap.String("path", r.URL.Path))
	case sessionErrBackend:
		sm.logger.Error("session store error, starting fresh session",
			zap.Error(err),
			zap.String("path", r.URL.Path))
	default:
		sm.logger.Warn("session error, starting fresh session",
			zap.Error(err),
			zap.String("category", errCategory),
			zap.String("path", r.URL.Path))
	}
}

// isDefaultKey checks if the session key appears to be a default/placeholder value.
func isDefaultKey(key string) bool {
	lower := strings.ToLower(key)
	patterns := []string{
		"dev-only",
		"change-me",
		"placeholder",
		"default",
		"example",
		"insecure",
		"test-key",
		"secret123",
		"password",
	}
	for _, p := range patterns {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}

// classifySessionError categorizes a session/cookie error for appropriate logging.
func classifySessionError(err error) (sessionErrorType, string) {
	if err == nil {
		return sessionErrUnknown, "none"
	}

	errStr := strings.ToLower(err.Error())

	var scErr securecookie.Error
	if errors.As(err, &scErr) {
		if !scErr.IsDecode() {
			return sessionErrBackend, "backend"
		}

		switch {
		case strings.Contains(errStr, "expired timestamp"):
			return sessionErrExpired, "expired"
		case strings.Contains(errStr, "mac") || strings.Contains(errStr, "hash"):
			return sessionErrTampered, "mac_invalid"
		case strings.Contains(errStr, "decrypt"):
			return sessionErrCorrupted, "decrypt_failed"
		case strings.Contains(errStr, "base64") || strings.Contains(errStr, "decode"):
			return sessionErrCorrupted, "decode_failed"
		default:
			return sessionErrCorrupted, "decode_other"
		}
	}

	return sessionErrBackend, "unknown"
}
