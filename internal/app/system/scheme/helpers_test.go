package scheme

import (
	"context"
	"strings"
	"testing"

	"github.com/dalemusser/strataauth/internal/app/system/authconfig"
	"github.com/dalemusser/strataauth/internal/app/system/autherr"
	"github.com/dalemusser/strataauth/internal/app/system/userlogin"
	"github.com/dalemusser/strataauth/internal/domain/models"
	"go.uber.org/zap"
)

type fakeUser struct {
	principal *models.Principal
	password  string
	question  string
	answer    string
	totp      string
	locale    string
}

// fakeDirectory is an in-memory Directory keyed by username.
type fakeDirectory struct {
	users map[string]*fakeUser

	// answerAs, when set, is returned from VerifySecretAnswer instead of the
	// user's own principal.
	answerAs *models.Principal
}

func newFakeDirectory() *fakeDirectory {
	return &fakeDirectory{users: map[string]*fakeUser{
		"ada": {
			principal: &models.Principal{ID: "p-ada", Name: "ada", DisplayName: "Ada Lovelace"},
			password:  "correct horse",
			question:  "First pet?",
			answer:    "Whiskers",
			totp:      "JBSWY3DPEHPK3PXP",
			locale:    "en-GB",
		},
		"bob": {
			principal: &models.Principal{ID: "p-bob", Name: "bob"},
			password:  "hunter2!",
		},
	}}
}

func (d *fakeDirectory) byID(id string) *fakeUser {
	for _, u := range d.users {
		if u.principal.ID == id {
			return u
		}
	}
	return nil
}

func (d *fakeDirectory) LookupPrincipal(_ context.Context, username string) (*models.Principal, error) {
	u, ok := d.users[strings.ToLower(username)]
	if !ok {
		return nil, autherr.ErrIncorrectCredentials
	}
	return u.principal, nil
}

func (d *fakeDirectory) VerifyPassword(_ context.Context, username, password string) (*models.Principal, error) {
	u, ok := d.users[strings.ToLower(username)]
	if !ok || u.password != password {
		return nil, autherr.ErrIncorrectCredentials
	}
	return u.principal, nil
}

func (d *fakeDirectory) SecretQuestion(_ context.Context, principalID string) (string, error) {
	u := d.byID(principalID)
	if u == nil || u.question == "" {
		return "", autherr.ErrIncorrectCredentials
	}
	return u.question, nil
}

func (d *fakeDirectory) VerifySecretAnswer(_ context.Context, principalID, answer string) (*models.Principal, error) {
	u := d.byID(principalID)
	if u == nil || !strings.EqualFold(u.answer, strings.TrimSpace(answer)) {
		return nil, autherr.ErrIncorrectCredentials
	}
	if d.answerAs != nil {
		return d.answerAs, nil
	}
	return u.principal, nil
}

func (d *fakeDirectory) TOTPSecret(_ context.Context, principalID string) (string, error) {
	u := d.byID(principalID)
	if u == nil {
		return "", autherr.ErrIncorrectCredentials
	}
	return u.totp, nil
}

func (d *fakeDirectory) DefaultLocale(_ context.Context, principalID string) (string, error) {
	u := d.byID(principalID)
	if u == nil {
		return "", nil
	}
	return u.locale, nil
}

// fakeSession is an in-memory Session for one request.
type fakeSession struct {
	ctx     context.Context
	rec     *userlogin.Record
	params  map[string]string
	headers map[string]string
	attrs   map[string]any

	mgr      *Manager
	failures []error
	hooks    []string
}

func newFakeSession(rec *userlogin.Record, params map[string]string) *fakeSession {
	ctx, _ := userlogin.Bind(context.Background(), rec)
	return &fakeSession{ctx: ctx, rec: rec, params: params, headers: map[string]string{}, attrs: map[string]any{}}
}

// next starts a new request on the same record.
func (s *fakeSession) next(params map[string]string) *fakeSession {
	n := newFakeSession(s.rec, params)
	n.attrs = s.attrs
	n.mgr = s.mgr
	return n
}

func (s *fakeSession) Context() context.Context  { return s.ctx }
func (s *fakeSession) Record() *userlogin.Record { return s.rec }

func (s *fakeSession) RequestParam(name string) (string, bool) {
	v, ok := s.params[name]
	return v, ok
}

func (s *fakeSession) RequestHeader(name string) (string, bool) {
	v, ok := s.headers[name]
	return v, ok
}

func (s *fakeSession) Attribute(key string) (any, bool) {
	v, ok := s.attrs[key]
	return v, ok
}

func (s *fakeSession) SetAttribute(key string, v any) { s.attrs[key] = v }

func (s *fakeSession) Authenticate(is Interactive, creds Credentials) (*models.Principal, error) {
	s.hooks = append(s.hooks, "before:"+is.ID())
	var (
		p   *models.Principal
		err error
	)
	activeID := ""
	if s.mgr != nil {
		activeID, _ = s.mgr.ActiveID(s.ctx)
	}
	switch {
	case s.mgr != nil && is.ID() == activeID:
		p, err = s.mgr.Authenticate(s.ctx, creds)
	case s.mgr != nil:
		p, err = s.mgr.Guarded(s.ctx, is, creds)
	default:
		p, err = is.Authenticate(s.ctx, creds)
	}
	if err != nil {
		s.failures = append(s.failures, err)
		s.hooks = append(s.hooks, "failure:"+is.ID())
		is.AfterAuthenticationFailure(s, err)
		return nil, err
	}
	s.hooks = append(s.hooks, "success:"+is.ID())
	is.AfterAuthenticationSuccess(s)
	return p, nil
}

func newTestManager(t *testing.T, dir Directory, flat map[string]string) *Manager {
	t.Helper()
	loader := authconfig.NewStatic(authconfig.NewSnapshot(flat))
	return NewManager(loader, DefaultRegistry(), Deps{Directory: dir, Logger: zap.NewNop()})
}

func mustScheme[T Scheme](t *testing.T, m *Manager, id string) T {
	t.Helper()
	s, err := m.Scheme(context.Background(), id)
	if err != nil {
		t.Fatalf("Scheme(%q) error = %v", id, err)
	}
	typed, ok := s.(T)
	if !ok {
		t.Fatalf("Scheme(%q) is %T", id, s)
	}
	return typed
}

func newStaticLoader(flat map[string]string) authconfig.Loader {
	return authconfig.NewStatic(authconfig.NewSnapshot(flat))
}
