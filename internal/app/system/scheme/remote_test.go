package scheme

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/dalemusser/strataauth/internal/app/system/autherr"
	"github.com/dalemusser/strataauth/internal/app/system/userlogin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/redis/go-redis/v9"
)

const bearerSecret = "0123456789abcdef0123456789abcdef"

func signToken(t *testing.T, secret string, claims jwt.RegisteredClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func TestBearer(t *testing.T) {
	m := newTestManager(t, newFakeDirectory(), map[string]string{
		"auth.schemes.api.type":     "bearer",
		"auth.schemes.api.secret":   bearerSecret,
		"auth.schemes.api.issuer":   "strataauth-test",
		"auth.schemes.api.audience": "api",
	})
	b := mustScheme[*Bearer](t, m, "api")

	valid := jwt.RegisteredClaims{
		Subject:   "ada",
		Issuer:    "strataauth-test",
		Audience:  jwt.ClaimStrings{"api"},
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}
	expired := valid
	expired.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Hour))
	wrongIssuer := valid
	wrongIssuer.Issuer = "someone-else"
	unknownUser := valid
	unknownUser.Subject = "mallory"

	tests := []struct {
		name    string
		header  string
		wantErr bool
	}{
		{"valid", "Bearer " + signToken(t, bearerSecret, valid), false},
		{"expired", "Bearer " + signToken(t, bearerSecret, expired), true},
		{"wrong issuer", "Bearer " + signToken(t, bearerSecret, wrongIssuer), true},
		{"wrong key", "Bearer " + signToken(t, strings.Repeat("x", 32), valid), true},
		{"unknown user", "Bearer " + signToken(t, bearerSecret, unknownUser), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sess := newFakeSession(userlogin.NewRecord(), nil)
			sess.headers["Authorization"] = tt.header
			creds, err := b.Credentials(sess)
			if err != nil || creds == nil {
				t.Fatalf("Credentials() = %v, %v", creds, err)
			}
			p, err := b.Authenticate(sess.ctx, creds)
			if tt.wantErr {
				if !errors.Is(err, autherr.ErrIncorrectCredentials) {
					t.Errorf("error = %v, want IncorrectCredentials", err)
				}
				return
			}
			if err != nil || p.ID != "p-ada" {
				t.Errorf("Authenticate() = %v, %v", p, err)
			}
		})
	}

	for _, h := range []string{"", "Basic abc", "Bearer   "} {
		sess := newFakeSession(userlogin.NewRecord(), nil)
		if h != "" {
			sess.headers["Authorization"] = h
		}
		if creds, _ := b.Credentials(sess); creds != nil {
			t.Errorf("header %q should yield no credentials", h)
		}
	}
}

func newProvider(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		if r.Form.Get("code") != "good-code" {
			http.Error(w, `{"error":"invalid_grant"}`, http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"access_token": "at-1", "token_type": "Bearer", "expires_in": 3600})
	})
	mux.HandleFunc("/userinfo", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer at-1" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"email": "ada", "name": "Ada"})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestOAuth2(t *testing.T) {
	srv := newProvider(t)
	m := newTestManager(t, newFakeDirectory(), map[string]string{
		"auth.schemes.sso.type":          "oauth2",
		"auth.schemes.sso.provider":      "custom",
		"auth.schemes.sso.client_id":     "client",
		"auth.schemes.sso.client_secret": "secret",
		"auth.schemes.sso.redirect_url":  "https://app.example/login/sso",
		"auth.schemes.sso.auth_url":      srv.URL + "/auth",
		"auth.schemes.sso.token_url":     srv.URL + "/token",
		"auth.schemes.sso.userinfo_url":  srv.URL + "/userinfo",
	})
	o := mustScheme[*OAuth2](t, m, "sso")

	rec := userlogin.NewRecord()
	sess := newFakeSession(rec, nil)
	challenge := o.ChallengeURL(sess)
	u, err := url.Parse(challenge)
	if err != nil || !strings.HasPrefix(challenge, srv.URL+"/auth") {
		t.Fatalf("ChallengeURL() = %q", challenge)
	}
	state := u.Query().Get("state")
	if state == "" || u.Query().Get("client_id") != "client" {
		t.Fatalf("challenge query = %v", u.Query())
	}

	if creds, _ := o.Credentials(sess); creds != nil {
		t.Error("no code means no credentials")
	}

	cb := sess.next(map[string]string{"code": "good-code", "state": state})
	creds, err := o.Credentials(cb)
	if err != nil || creds == nil {
		t.Fatalf("Credentials() = %v, %v", creds, err)
	}
	p, err := o.Authenticate(cb.ctx, creds)
	if err != nil || p.ID != "p-ada" {
		t.Fatalf("Authenticate() = %v, %v", p, err)
	}

	// State is single use.
	again := sess.next(map[string]string{"code": "good-code", "state": state})
	creds, _ = o.Credentials(again)
	if _, err := o.Authenticate(again.ctx, creds); !errors.Is(err, autherr.ErrIncorrectCredentials) {
		t.Errorf("reused state error = %v", err)
	}

	// State issued to one login cannot complete another.
	state2 := mustState(t, o.ChallengeURL(sess))
	other := newFakeSession(userlogin.NewRecord(), map[string]string{"code": "good-code", "state": state2})
	creds, _ = o.Credentials(other)
	if _, err := o.Authenticate(other.ctx, creds); !errors.Is(err, autherr.ErrIncorrectCredentials) {
		t.Errorf("foreign state error = %v", err)
	}

	// Bad code.
	state3 := mustState(t, o.ChallengeURL(sess))
	bad := sess.next(map[string]string{"code": "bad-code", "state": state3})
	creds, _ = o.Credentials(bad)
	if _, err := o.Authenticate(bad.ctx, creds); !errors.Is(err, autherr.ErrIncorrectCredentials) {
		t.Errorf("bad code error = %v", err)
	}
}

func mustState(t *testing.T, challenge string) string {
	t.Helper()
	u, err := url.Parse(challenge)
	if err != nil {
		t.Fatal(err)
	}
	return u.Query().Get("state")
}

func TestMemoryReplay(t *testing.T) {
	r := NewMemoryReplay(time.Hour)
	defer r.Stop()
	ctx := context.Background()
	now := time.Now()

	if seen, _ := r.Seen(ctx, "a", now, now.Add(time.Minute)); seen {
		t.Error("first use should not be seen")
	}
	if seen, _ := r.Seen(ctx, "a", now, now.Add(time.Minute)); !seen {
		t.Error("second use should be seen")
	}
	if seen, _ := r.Seen(ctx, "b", now, now.Add(-time.Second)); seen {
		t.Error("new id should not be seen")
	}
	if seen, _ := r.Seen(ctx, "b", now, now.Add(time.Minute)); seen {
		t.Error("expired entry should be treated as unseen")
	}

	r.purge(now.Add(2 * time.Minute))
	r.mu.Lock()
	n := len(r.seen)
	r.mu.Unlock()
	if n != 0 {
		t.Errorf("purge left %d entries", n)
	}
	r.Stop()
}

func TestMemoryReplay_CallerClock(t *testing.T) {
	r := NewMemoryReplay(time.Hour)
	defer r.Stop()
	ctx := context.Background()

	// A clock far from wall time must still be honored for both checks.
	tests := []struct {
		name string
		now  time.Time
	}{
		{"past", time.Date(2001, 1, 1, 0, 0, 0, 0, time.UTC)},
		{"future", time.Date(2099, 1, 1, 0, 0, 0, 0, time.UTC)},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			id := "code-" + tc.name
			exp := tc.now.Add(90 * time.Second)
			if seen, _ := r.Seen(ctx, id, tc.now, exp); seen {
				t.Fatal("first use should not be seen")
			}
			if seen, _ := r.Seen(ctx, id, tc.now.Add(time.Minute), exp); !seen {
				t.Error("reuse inside the window should be seen")
			}
			if seen, _ := r.Seen(ctx, id, exp.Add(time.Second), exp.Add(time.Minute)); seen {
				t.Error("reuse after the window should be unseen")
			}
		})
	}
}

func TestRedisReplay(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	defer mr.Close()
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	r := NewRedisReplay(rdb, "")
	ctx := context.Background()
	now := time.Date(2001, 1, 1, 0, 0, 0, 0, time.UTC)
	exp := now.Add(time.Minute)

	if seen, err := r.Seen(ctx, "code-1", now, exp); err != nil || seen {
		t.Fatalf("first Seen() = %v, %v", seen, err)
	}
	if seen, err := r.Seen(ctx, "code-1", now, exp); err != nil || !seen {
		t.Fatalf("second Seen() = %v, %v", seen, err)
	}

	mr.FastForward(2 * time.Minute)
	if seen, _ := r.Seen(ctx, "code-1", now, exp); seen {
		t.Error("entry should expire with its TTL")
	}
}

func TestThrottle(t *testing.T) {
	th := NewThrottle(0.0001, 2)
	ctx := context.Background()
	creds := &PasswordCredentials{Scheme: "basic", Username: "Ada"}

	for i := 0; i < 2; i++ {
		if err := th.Allow(ctx, creds); err != nil {
			t.Fatalf("attempt %d refused: %v", i, err)
		}
	}
	if err := th.Allow(ctx, &PasswordCredentials{Scheme: "basic", Username: "ada"}); !errors.Is(err, autherr.ErrIncorrectCredentials) {
		t.Errorf("third attempt error = %v, want refusal", err)
	}
	if err := th.Allow(ctx, &PasswordCredentials{Scheme: "basic", Username: "bob"}); err != nil {
		t.Errorf("other users are unaffected: %v", err)
	}
	if err := th.Allow(ctx, &OAuthCredentials{Scheme: "sso"}); err != nil {
		t.Errorf("unlabeled credentials are not throttled: %v", err)
	}
}
