// internal/app/system/scheme/token.go
package scheme

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dalemusser/strataauth/internal/app/system/authconfig"
	"github.com/dalemusser/strataauth/internal/app/system/autherr"
	"github.com/dalemusser/strataauth/internal/app/system/userlogin"
	"github.com/dalemusser/strataauth/internal/domain/models"
	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
	"go.uber.org/zap"
)

// Token modes.
const (
	TokenModeTOTP    = "totp"
	TokenModeLiteral = "literal"
)

// Token verifies a single token parameter. In totp mode the code is checked
// against the principal's TOTP secret and can be used once; in literal mode
// it is compared case-insensitively against a configured value, which is
// only useful for demos and tests.
//
// The principal is the record's candidate when one exists, otherwise the
// user named by username_param.
//
// Config keys: mode, literal, token_param (default "token"), username_param
// (default "username"), period (default 30), skew (default 1),
// challenge_url (default "/login/token").
type Token struct {
	Base
	dir    Directory
	log    *zap.Logger
	replay ReplayGuard
	now    func() time.Time

	mode       string
	literal    string
	tokenParam string
	userParam  string
	period     uint
	skew       uint
}

func NewToken(d Deps) *Token {
	return &Token{dir: d.Directory, log: d.logger(), replay: d.Replay, now: d.now}
}

func (t *Token) Configure(id string, cfg authconfig.Values) error {
	if err := t.configureBase(id, cfg, "/login/token"); err != nil {
		return err
	}
	t.mode = strings.ToLower(cfg.String("mode", TokenModeTOTP))
	t.literal = cfg.String("literal", "")
	t.tokenParam = cfg.String("token_param", "token")
	t.userParam = cfg.String("username_param", "username")
	t.period = uint(max(cfg.Int("period", 30), 1))
	t.skew = uint(max(cfg.Int("skew", 1), 0))

	switch t.mode {
	case TokenModeTOTP:
	case TokenModeLiteral:
		if t.literal == "" {
			return errors.New("literal mode requires a literal")
		}
	default:
		return fmt.Errorf("unknown token mode %q", t.mode)
	}
	return nil
}

func (t *Token) Credentials(sess Session) (Credentials, error) {
	token, ok := sess.RequestParam(t.tokenParam)
	token = strings.TrimSpace(token)
	if !ok || token == "" {
		return nil, nil
	}
	username := ""
	if rec := sess.Record(); rec != nil {
		if p := rec.Principal(); p != nil {
			username = p.Name
		}
	}
	if username == "" {
		if u, ok := sess.RequestParam(t.userParam); ok {
			username = strings.TrimSpace(u)
		}
		if rec := sess.Record(); rec != nil && username != "" {
			rec.SetUsername(username)
		}
	}
	return &TokenCredentials{Scheme: t.ID(), Username: username, Token: token}, nil
}

func (t *Token) Authenticate(ctx context.Context, creds Credentials) (*models.Principal, error) {
	return Verify(ctx, t.ID(), creds, t.verify)
}

func (t *Token) verify(ctx context.Context, creds Credentials) (*models.Principal, error) {
	c, ok := creds.(*TokenCredentials)
	if !ok || c.Scheme != t.ID() {
		return nil, wrongType(t.ID(), creds)
	}

	p, err := t.principal(ctx, c)
	if err != nil {
		return nil, err
	}

	switch t.mode {
	case TokenModeLiteral:
		if !strings.EqualFold(c.Token, t.literal) {
			return nil, autherr.New(autherr.ErrIncorrectCredentials, t.ID(), "token mismatch")
		}
		return p, nil
	default:
		return t.verifyTOTP(ctx, p, c.Token)
	}
}

// principal resolves who the token is for.
func (t *Token) principal(ctx context.Context, c *TokenCredentials) (*models.Principal, error) {
	if rec := userlogin.Current(ctx); rec != nil {
		if p := rec.Principal(); p != nil {
			return p, nil
		}
	}
	if c.Username == "" {
		return nil, autherr.New(autherr.ErrIncorrectCredentials, t.ID(), "no candidate for token")
	}
	p, err := t.dir.LookupPrincipal(ctx, c.Username)
	if err != nil {
		return nil, incorrect(t.ID(), err)
	}
	return p, nil
}

func (t *Token) verifyTOTP(ctx context.Context, p *models.Principal, code string) (*models.Principal, error) {
	secret, err := t.dir.TOTPSecret(ctx, p.ID)
	if err != nil || secret == "" {
		return nil, autherr.New(autherr.ErrIncorrectCredentials, t.ID(), "no totp secret enrolled")
	}

	now := t.now()
	valid, err := totp.ValidateCustom(code, secret, now, totp.ValidateOpts{
		Period:    t.period,
		Skew:      t.skew,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	if err != nil || !valid {
		return nil, autherr.New(autherr.ErrIncorrectCredentials, t.ID(), "totp code rejected")
	}

	if t.replay != nil {
		window := time.Duration(t.period*(2*t.skew+1)) * time.Second
		seen, err := t.replay.Seen(ctx, t.ID()+":"+p.ID+":"+code, now, now.Add(window))
		if err != nil {
			t.log.Error("replay guard unavailable", zap.String("scheme_id", t.ID()), zap.Error(err))
			return nil, autherr.Wrap(autherr.ErrIncorrectCredentials, t.ID(), err)
		}
		if seen {
			t.log.Warn("totp code replayed", zap.String("scheme_id", t.ID()), zap.String("principal_id", p.ID))
			return nil, autherr.New(autherr.ErrIncorrectCredentials, t.ID(), "totp code already used")
		}
	}
	return p, nil
}
