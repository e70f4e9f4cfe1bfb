// internal/app/system/scheme/basic.go
package scheme

import (
	"context"
	"strings"

	"github.com/dalemusser/strataauth/internal/app/system/authconfig"
	"github.com/dalemusser/strataauth/internal/domain/models"
	"go.uber.org/zap"
)

// Basic verifies a username and password against the directory.
//
// Config keys: username_param (default "username"), password_param
// (default "password"), challenge_url (default "/login").
type Basic struct {
	Base
	dir       Directory
	log       *zap.Logger
	userParam string
	passParam string
}

func NewBasic(d Deps) *Basic {
	return &Basic{dir: d.Directory, log: d.logger()}
}

func (b *Basic) Configure(id string, cfg authconfig.Values) error {
	if err := b.configureBase(id, cfg, "/login"); err != nil {
		return err
	}
	b.userParam = cfg.String("username_param", "username")
	b.passParam = cfg.String("password_param", "password")
	return nil
}

// Credentials returns credentials only when both parameters are present and
// non-blank. The username is stashed on the record either way it turns out.
func (b *Basic) Credentials(sess Session) (Credentials, error) {
	username, ok := sess.RequestParam(b.userParam)
	username = strings.TrimSpace(username)
	if !ok || username == "" {
		return nil, nil
	}
	password, ok := sess.RequestParam(b.passParam)
	if !ok || strings.TrimSpace(password) == "" {
		return nil, nil
	}
	if rec := sess.Record(); rec != nil {
		rec.SetUsername(username)
	}
	return &PasswordCredentials{Scheme: b.ID(), Username: username, Password: password}, nil
}

func (b *Basic) Authenticate(ctx context.Context, creds Credentials) (*models.Principal, error) {
	return Verify(ctx, b.ID(), creds, b.verify)
}

func (b *Basic) verify(ctx context.Context, creds Credentials) (*models.Principal, error) {
	c, ok := creds.(*PasswordCredentials)
	if !ok || c.Scheme != b.ID() {
		return nil, wrongType(b.ID(), creds)
	}
	p, err := b.dir.VerifyPassword(ctx, c.Username, c.Password)
	if err != nil {
		b.log.Debug("password rejected", zap.String("scheme_id", b.ID()), zap.String("username", c.Username), zap.Error(err))
		return nil, incorrect(b.ID(), err)
	}
	return p, nil
}
