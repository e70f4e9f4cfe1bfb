// internal/app/system/scheme/bearer.go
package scheme

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/dalemusser/strataauth/internal/app/system/authconfig"
	"github.com/dalemusser/strataauth/internal/app/system/autherr"
	"github.com/dalemusser/strataauth/internal/domain/models"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

// Bearer accepts an HMAC-signed JWT in a request header, for API clients.
// The subject claim names the local user.
//
// Config keys: secret (required), header (default "Authorization"),
// algorithms (default "HS256"), issuer, audience, leeway (duration).
type Bearer struct {
	Base
	dir Directory
	log *zap.Logger
	now func() time.Time

	secret []byte
	header string
	opts   []jwt.ParserOption
}

func NewBearer(d Deps) *Bearer {
	return &Bearer{dir: d.Directory, log: d.logger(), now: d.now}
}

func (b *Bearer) Configure(id string, cfg authconfig.Values) error {
	if err := b.configureBase(id, cfg, ""); err != nil {
		return err
	}
	secret := cfg.String("secret", "")
	if len(secret) < 32 {
		return errors.New("secret must be at least 32 bytes")
	}
	b.secret = []byte(secret)
	b.header = cfg.String("header", "Authorization")

	algs := cfg.List("algorithms")
	if len(algs) == 0 {
		algs = []string{"HS256"}
	}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods(algs),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(b.now),
	}
	if leeway := cfg.Duration("leeway", 0); leeway > 0 {
		opts = append(opts, jwt.WithLeeway(leeway))
	}
	if iss := cfg.String("issuer", ""); iss != "" {
		opts = append(opts, jwt.WithIssuer(iss))
	}
	if aud := cfg.String("audience", ""); aud != "" {
		opts = append(opts, jwt.WithAudience(aud))
	}
	b.opts = opts
	return nil
}

func (b *Bearer) Credentials(sess Session) (Credentials, error) {
	v, ok := sess.RequestHeader(b.header)
	if !ok {
		return nil, nil
	}
	scheme, token, found := strings.Cut(strings.TrimSpace(v), " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return nil, nil
	}
	if token = strings.TrimSpace(token); token == "" {
		return nil, nil
	}
	return &BearerCredentials{Scheme: b.ID(), Token: token}, nil
}

func (b *Bearer) Authenticate(ctx context.Context, creds Credentials) (*models.Principal, error) {
	return Verify(ctx, b.ID(), creds, b.verify)
}

func (b *Bearer) verify(ctx context.Context, creds Credentials) (*models.Principal, error) {
	c, ok := creds.(*BearerCredentials)
	if !ok || c.Scheme != b.ID() {
		return nil, wrongType(b.ID(), creds)
	}

	claims := &jwt.RegisteredClaims{}
	tok, err := jwt.ParseWithClaims(c.Token, claims, func(*jwt.Token) (any, error) {
		return b.secret, nil
	}, b.opts...)
	if err != nil || !tok.Valid {
		b.log.Debug("bearer token rejected", zap.String("scheme_id", b.ID()), zap.Error(err))
		return nil, autherr.Wrap(autherr.ErrIncorrectCredentials, b.ID(), err)
	}
	if claims.Subject == "" {
		return nil, autherr.New(autherr.ErrIncorrectCredentials, b.ID(), "token has no subject")
	}
	p, err := b.dir.LookupPrincipal(ctx, claims.Subject)
	if err != nil {
		return nil, incorrect(b.ID(), err)
	}
	return p, nil
}
