// internal/app/system/scheme/oauth2.go
package scheme

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/dalemusser/strataauth/internal/app/system/authconfig"
	"github.com/dalemusser/strataauth/internal/app/system/autherr"
	"github.com/dalemusser/strataauth/internal/app/system/userlogin"
	"github.com/dalemusser/strataauth/internal/domain/models"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

const googleUserInfoURL = "https://www.googleapis.com/oauth2/v2/userinfo"

// OAuth2 signs users in through an OAuth2 provider's authorization code flow.
// The challenge URL is the provider's consent page; the provider sends the
// client back with code and state parameters, which become credentials. The
// provider's userinfo email (or another claim) names the local user.
//
// Config keys: provider ("google" or "custom"), client_id, client_secret,
// redirect_url, scopes, auth_url and token_url (custom only), userinfo_url,
// username_claim (default "email").
type OAuth2 struct {
	Base
	dir    Directory
	log    *zap.Logger
	states StateStore
	client *http.Client

	conf          *oauth2.Config
	userInfoURL   string
	usernameClaim string
}

func NewOAuth2(d Deps) *OAuth2 {
	states := d.OAuthStates
	if states == nil {
		states = NewMemoryStateStore(10 * time.Minute)
	}
	return &OAuth2{dir: d.Directory, log: d.logger(), states: states, client: d.HTTPClient}
}

func (o *OAuth2) Configure(id string, cfg authconfig.Values) error {
	if err := o.configureBase(id, cfg, ""); err != nil {
		return err
	}
	conf := &oauth2.Config{
		ClientID:     cfg.String("client_id", ""),
		ClientSecret: cfg.String("client_secret", ""),
		RedirectURL:  cfg.String("redirect_url", ""),
		Scopes:       cfg.List("scopes"),
	}
	if conf.ClientID == "" || conf.RedirectURL == "" {
		return errors.New("client_id and redirect_url are required")
	}

	switch provider := cfg.String("provider", "google"); provider {
	case "google":
		conf.Endpoint = google.Endpoint
		o.userInfoURL = cfg.String("userinfo_url", googleUserInfoURL)
		if len(conf.Scopes) == 0 {
			conf.Scopes = []string{"openid", "email", "profile"}
		}
	case "custom":
		conf.Endpoint = oauth2.Endpoint{
			AuthURL:  cfg.String("auth_url", ""),
			TokenURL: cfg.String("token_url", ""),
		}
		o.userInfoURL = cfg.String("userinfo_url", "")
		if conf.Endpoint.AuthURL == "" || conf.Endpoint.TokenURL == "" || o.userInfoURL == "" {
			return errors.New("custom provider requires auth_url, token_url and userinfo_url")
		}
	default:
		return fmt.Errorf("unknown oauth2 provider %q", provider)
	}
	o.usernameClaim = cfg.String("username_claim", "email")
	o.conf = conf
	return nil
}

// ChallengeURL issues a state bound to the login record and returns the
// provider's consent URL.
func (o *OAuth2) ChallengeURL(sess Session) string {
	if o.challengeURL != "" {
		return o.challengeURL
	}
	rec := sess.Record()
	if rec == nil {
		return ""
	}
	state, err := newState()
	if err != nil {
		o.log.Error("failed to generate oauth state", zap.Error(err))
		return ""
	}
	if err := o.states.Create(sess.Context(), state, rec.ID()); err != nil {
		o.log.Error("failed to store oauth state", zap.String("scheme_id", o.ID()), zap.Error(err))
		return ""
	}
	return o.conf.AuthCodeURL(state)
}

func (o *OAuth2) Credentials(sess Session) (Credentials, error) {
	code, ok := sess.RequestParam("code")
	if !ok || code == "" {
		return nil, nil
	}
	state, ok := sess.RequestParam("state")
	if !ok || state == "" {
		return nil, nil
	}
	return &OAuthCredentials{Scheme: o.ID(), Code: code, State: state}, nil
}

func (o *OAuth2) Authenticate(ctx context.Context, creds Credentials) (*models.Principal, error) {
	return Verify(ctx, o.ID(), creds, o.verify)
}

func (o *OAuth2) verify(ctx context.Context, creds Credentials) (*models.Principal, error) {
	c, ok := creds.(*OAuthCredentials)
	if !ok || c.Scheme != o.ID() {
		return nil, wrongType(o.ID(), creds)
	}
	loginID := ""
	if rec := userlogin.Current(ctx); rec != nil {
		loginID = rec.ID()
	}
	if !o.states.Verify(ctx, c.State, loginID) {
		o.log.Warn("invalid oauth state", zap.String("scheme_id", o.ID()), zap.String("login_id", loginID))
		return nil, autherr.New(autherr.ErrIncorrectCredentials, o.ID(), "invalid state")
	}

	if o.client != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, o.client)
	}
	tok, err := o.conf.Exchange(ctx, c.Code)
	if err != nil {
		o.log.Warn("oauth code exchange failed", zap.String("scheme_id", o.ID()), zap.Error(err))
		return nil, autherr.Wrap(autherr.ErrIncorrectCredentials, o.ID(), err)
	}
	username, err := o.userInfo(ctx, tok)
	if err != nil {
		o.log.Warn("oauth userinfo failed", zap.String("scheme_id", o.ID()), zap.Error(err))
		return nil, autherr.Wrap(autherr.ErrIncorrectCredentials, o.ID(), err)
	}
	if rec := userlogin.Current(ctx); rec != nil {
		rec.SetUsername(username)
	}
	p, err := o.dir.LookupPrincipal(ctx, username)
	if err != nil {
		return nil, incorrect(o.ID(), err)
	}
	return p, nil
}

func (o *OAuth2) userInfo(ctx context.Context, tok *oauth2.Token) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.userInfoURL, nil)
	if err != nil {
		return "", err
	}
	resp, err := o.conf.Client(ctx, tok).Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("userinfo status %d", resp.StatusCode)
	}

	var info map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return "", err
	}
	username, _ := info[o.usernameClaim].(string)
	if username = strings.TrimSpace(username); username == "" {
		return "", fmt.Errorf("userinfo has no %q", o.usernameClaim)
	}
	return username, nil
}

func newState() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(b), nil
}

// MemoryStateStore keeps OAuth states in process. Used when no persistent
// store is wired.
type MemoryStateStore struct {
	mu     sync.Mutex
	ttl    time.Duration
	states map[string]memState
}

type memState struct {
	loginID string
	expires time.Time
}

func NewMemoryStateStore(ttl time.Duration) *MemoryStateStore {
	return &MemoryStateStore{ttl: ttl, states: make(map[string]memState)}
}

func (m *MemoryStateStore) Create(_ context.Context, state, loginID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	for k, v := range m.states {
		if now.After(v.expires) {
			delete(m.states, k)
		}
	}
	m.states[state] = memState{loginID: loginID, expires: now.Add(m.ttl)}
	return nil
}

// Verify consumes state. It succeeds once, and only for the login id the
// state was issued to.
func (m *MemoryStateStore) Verify(_ context.Context, state, loginID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.states[state]
	if !ok {
		return false
	}
	delete(m.states, state)
	return s.loginID == loginID && time.Now().Before(s.expires)
}
