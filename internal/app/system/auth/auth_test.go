package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/sessions"
	"go.uber.org/zap"
)

const testKey = "this-is-a-32-character-long-key!"

func TestNewSessionManager(t *testing.T) {
	logger := zap.NewNop()

	tests := []struct {
		name       string
		sessionKey string
		secure     bool
		wantErr    bool
	}{
		{"valid key dev mode", testKey, false, false},
		{"valid key prod mode", testKey, true, false},
		{"empty key", "", false, true},
		{"weak key dev mode", "short", false, false}, // Warning but allowed in dev
		{"weak key prod mode", "short", true, true},
		{"default key prod mode", "dev-only-session-key-not-for-production", true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sm, err := NewSessionManager(tt.sessionKey, "test-session", "", time.Hour, tt.secure, logger)
			if tt.wantErr {
				if err == nil {
					t.Error("NewSessionManager() expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Errorf("NewSessionManager() error = %v", err)
			}
			if sm == nil {
				t.Error("NewSessionManager() returned nil")
			}
		})
	}
}

func TestSessionManager_SessionName(t *testing.T) {
	logger := zap.NewNop()

	sm, _ := NewSessionManager(testKey, "", "", time.Hour, false, logger)
	if sm.SessionName() != "strataauth-session" {
		t.Errorf("SessionName() = %q, want %q", sm.SessionName(), "strataauth-session")
	}

	sm2, _ := NewSessionManager(testKey, "custom-session", "", time.Hour, false, logger)
	if sm2.SessionName() != "custom-session" {
		t.Errorf("SessionName() = %q, want %q", sm2.SessionName(), "custom-session")
	}
}

func TestSessionManager_Options(t *testing.T) {
	sm, _ := NewSessionManager(testKey, "", "example.org", 2*time.Hour, true, zap.NewNop())
	opts := sm.Options()
	if opts.MaxAge != 7200 || !opts.Secure || !opts.HttpOnly || opts.Domain != "example.org" {
		t.Errorf("Options() = %+v", opts)
	}
	if opts.SameSite != http.SameSiteLaxMode {
		t.Errorf("SameSite = %v, want Lax", opts.SameSite)
	}

	// Callers get a copy.
	opts.MaxAge = 1
	if sm.Options().MaxAge != 7200 {
		t.Error("Options() must return a copy")
	}
}

func TestSessionManager_GetSession(t *testing.T) {
	sm, _ := NewSessionManager(testKey, "", "", time.Hour, false, zap.NewNop())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if sess := sm.GetSession(req); sess == nil {
		t.Error("GetSession() returned nil session")
	}

	// A cookie signed with another key still yields a usable session.
	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: sm.SessionName(), Value: "garbage"})
	sess := sm.GetSession(req)
	if sess == nil || len(sess.Values) != 0 {
		t.Errorf("GetSession() with bad cookie = %v", sess)
	}
}

func TestSessionManager_Token(t *testing.T) {
	sm, _ := NewSessionManager(testKey, "", "", time.Hour, false, zap.NewNop())
	sess := sm.Fresh()

	tok := sm.Token(sess)
	if tok == "" {
		t.Fatal("Token() returned empty")
	}
	if again := sm.Token(sess); again != tok {
		t.Errorf("Token() should be stable, got %q then %q", tok, again)
	}

	rotated, err := sm.Rotate(sess)
	if err != nil {
		t.Fatal(err)
	}
	if rotated == tok || sm.Token(sess) != rotated {
		t.Errorf("Rotate() = %q, previous %q", rotated, tok)
	}
}

func TestSessionManager_UseStore(t *testing.T) {
	sm, _ := NewSessionManager(testKey, "sid", "", time.Hour, false, zap.NewNop())
	fs := sessions.NewFilesystemStore(t.TempDir(), []byte(testKey))
	sm.UseStore(fs)
	if sm.Store() != fs {
		t.Fatal("UseStore() did not replace the store")
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	sess := sm.Fresh()
	sess.Values["k"] = "v"
	rec := httptest.NewRecorder()
	if err := sess.Save(req, rec); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if sess.ID == "" {
		t.Error("filesystem store should assign an id")
	}

	next := httptest.NewRequest(http.MethodGet, "/", nil)
	for _, c := range rec.Result().Cookies() {
		next.AddCookie(c)
	}
	loaded := sm.GetSession(next)
	if loaded.Values["k"] != "v" || loaded.ID != sess.ID {
		t.Errorf("loaded %q %v", loaded.ID, loaded.Values)
	}

	if err := sm.Destroy(nil, nil, loaded); err != ErrNoTransport {
		t.Errorf("Destroy() without transport = %v", err)
	}
	if err := sm.Destroy(httptest.NewRecorder(), next, loaded); err != nil {
		t.Errorf("Destroy() error = %v", err)
	}
}

func TestIsDefaultKey(t *testing.T) {
	tests := []struct {
		key  string
		want bool
	}{
		{"dev-only-key", true},
		{"change-me-please", true},
		{"placeholder-key", true},
		{"default-session-key", true},
		{"example-key-here", true},
		{"insecure-dev-key", true},
		{"test-key-123", true},
		{"secret123", true},
		{"password123", true},
		{"xK8nP2mQ9rT5vW7yB3cF6hJ0lN4sU1wZ", false},
		{"secure-random-key-that-is-long-enough", false},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			if got := isDefaultKey(tt.key); got != tt.want {
				t.Errorf("isDefaultKey(%q) = %v, want %v", tt.key, got, tt.want)
			}
		})
	}
}

func TestClassifySessionError_Types(t *testing.T) {
	if errType, _ := classifySessionError(nil); errType != sessionErrUnknown {
		t.Errorf("classifySessionError(nil) type = %v, want %v", errType, sessionErrUnknown)
	}

	tests := []struct {
		name     string
		errMsg   string
		wantType sessionErrorType
	}{
		{"expired", "expired timestamp", sessionErrExpired},
		{"mac invalid", "mac validation failed", sessionErrTampered},
		{"hash invalid", "hash mismatch", sessionErrTampered},
		{"decrypt failed", "decrypt error", sessionErrCorrupted},
		{"base64 error", "base64 decode failed", sessionErrCorrupted},
		{"decode error", "decode failed", sessionErrCorrupted},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := mockSecureCookieError{msg: tt.errMsg, isDecode: true}
			if errType, _ := classifySessionError(err); errType != tt.wantType {
				t.Errorf("classifySessionError() type = %v, want %v", errType, tt.wantType)
			}
		})
	}
}

func TestClassifySessionError_Backend(t *testing.T) {
	err := mockSecureCookieError{msg: "backend error", isDecode: false}
	errType, category := classifySessionError(err)
	if errType != sessionErrBackend {
		t.Errorf("classifySessionError() type = %v, want %v", errType, sessionErrBackend)
	}
	if category != "backend" {
		t.Errorf("classifySessionError() category = %q, want %q", category, "backend")
	}
}

// mockSecureCookieError implements securecookie.Error for testing
type mockSecureCookieError struct {
	msg      string
	isDecode bool
}

func (e mockSecureCookieError) Error() string    { return e.msg }
func (e mockSecureCookieError) IsDecode() bool   { return e.isDecode }
func (e mockSecureCookieError) IsUsage() bool    { return false }
func (e mockSecureCookieError) IsInternal() bool { return false }
func (e mockSecureCookieError) Cause() error     { return nil }

func TestAdminKeyAuth(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNoContent) })

	tests := []struct {
		name   string
		key    string
		header string
		want   int
	}{
		{"valid", "s3cret", "Bearer s3cret", http.StatusNoContent},
		{"scheme case-insensitive", "s3cret", "bearer s3cret", http.StatusNoContent},
		{"wrong key", "s3cret", "Bearer nope", http.StatusUnauthorized},
		{"missing header", "s3cret", "", http.StatusUnauthorized},
		{"basic scheme", "s3cret", "Basic s3cret", http.StatusUnauthorized},
		{"unconfigured", "", "Bearer ", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := AdminKeyAuth(tt.key, zap.NewNop())(ok)
			req := httptest.NewRequest(http.MethodGet, "/api/session/active", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}
