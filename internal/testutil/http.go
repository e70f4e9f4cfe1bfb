package testutil

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/dalemusser/strataauth/internal/app/system/auth"
	"github.com/dalemusser/strataauth/internal/app/system/authconfig"
	"github.com/dalemusser/strataauth/internal/app/system/eventlog"
	"github.com/dalemusser/strataauth/internal/app/system/negotiation"
	"github.com/dalemusser/strataauth/internal/app/system/scheme"
	"github.com/dalemusser/strataauth/internal/app/system/userlogin"
	"github.com/dalemusser/strataauth/internal/domain/models"
	"github.com/gorilla/sessions"
	"go.uber.org/zap"
)

// SessionKey signs test session cookies.
const SessionKey = "0123456789abcdef0123456789abcdef"

// NewNegotiation returns a negotiation Manager over a filesystem session
// store in t.TempDir(), with the basic scheme active and events logged to
// logger only. dir may be nil when no test logs in through a scheme.
func NewNegotiation(t *testing.T, dir scheme.Directory, logger *zap.Logger) *negotiation.Manager {
	t.Helper()
	if logger == nil {
		logger = zap.NewNop()
	}
	sm, err := auth.NewSessionManager(SessionKey, "sid", "", time.Hour, false, logger)
	if err != nil {
		t.Fatalf("failed to create session manager: %v", err)
	}
	sm.UseStore(sessions.NewFilesystemStore(t.TempDir(), []byte(SessionKey)))

	tracker := userlogin.NewTracker(eventlog.New(nil, logger, eventlog.Config{Mode: eventlog.ModeLog}))
	schemes := scheme.NewManager(
		authconfig.NewStatic(authconfig.NewSnapshot(map[string]string{"auth.scheme": "basic"})),
		nil, scheme.Deps{Directory: dir, Logger: logger})

	return negotiation.NewManager(negotiation.Config{
		Sessions: sm,
		Tracker:  tracker,
		Schemes:  schemes,
		Logger:   logger,
	})
}

// Login opens a negotiation session for r and marks its record logged in
// as p through schemeID. The caller must Close the session.
func Login(t *testing.T, m *negotiation.Manager, w http.ResponseWriter, r *http.Request, schemeID string, p *models.Principal) *negotiation.Session {
	t.Helper()
	s := m.Open(w, r)
	rec := s.Record()
	if err := rec.RecordCredentialSuccess(s.Context(), schemeID, p); err != nil {
		t.Fatalf("RecordCredentialSuccess() error = %v", err)
	}
	rec.SetUsername(p.Name)
	rec.MarkLoginSuccess(s.Context())
	return s
}

// Jar carries cookies from recorded responses into later requests. A
// cookie expired by a response is dropped.
type Jar map[string]*http.Cookie

// Keep records the cookies set by rec.
func (j Jar) Keep(rec *httptest.ResponseRecorder) {
	for _, c := range rec.Result().Cookies() {
		if c.MaxAge < 0 {
			delete(j, c.Name)
			continue
		}
		j[c.Name] = c
	}
}

// Apply adds the jar's cookies to r and returns it.
func (j Jar) Apply(r *http.Request) *http.Request {
	for _, c := range j {
		r.AddCookie(&http.Cookie{Name: c.Name, Value: c.Value})
	}
	return r
}

// PostForm builds a form POST to target.
func PostForm(target string, form url.Values) *http.Request {
	r := httptest.NewRequest(http.MethodPost, target, strings.NewReader(form.Encode()))
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return r
}
