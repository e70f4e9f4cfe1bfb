package testutil

import (
	"context"
	"strings"

	"github.com/dalemusser/strataauth/internal/app/system/autherr"
	"github.com/dalemusser/strataauth/internal/app/system/scheme"
	"github.com/dalemusser/strataauth/internal/domain/models"
)

// Directory is an in-memory scheme.Directory keyed by lowercase username.
type Directory struct {
	Principals map[string]*models.Principal
	Passwords  map[string]string
}

var _ scheme.Directory = (*Directory)(nil)

// NewDirectory returns a Directory holding ada (password "correct horse",
// locale en-GB).
func NewDirectory() *Directory {
	return &Directory{
		Principals: map[string]*models.Principal{
			"ada": {ID: "p-ada", Name: "ada", DisplayName: "Ada Lovelace", Locale: "en-GB"},
		},
		Passwords: map[string]string{"ada": "correct horse"},
	}
}

func (d *Directory) LookupPrincipal(_ context.Context, username string) (*models.Principal, error) {
	if p, ok := d.Principals[strings.ToLower(strings.TrimSpace(username))]; ok {
		return p, nil
	}
	return nil, autherr.ErrIncorrectCredentials
}

func (d *Directory) VerifyPassword(ctx context.Context, username, password string) (*models.Principal, error) {
	p, err := d.LookupPrincipal(ctx, username)
	if err != nil || d.Passwords[p.Name] != password {
		return nil, autherr.ErrIncorrectCredentials
	}
	return p, nil
}

func (d *Directory) SecretQuestion(context.Context, string) (string, error) {
	return "", autherr.ErrIncorrectCredentials
}

func (d *Directory) VerifySecretAnswer(context.Context, string, string) (*models.Principal, error) {
	return nil, autherr.ErrIncorrectCredentials
}

func (d *Directory) TOTPSecret(context.Context, string) (string, error) {
	return "", autherr.ErrIncorrectCredentials
}

func (d *Directory) DefaultLocale(_ context.Context, principalID string) (string, error) {
	for _, p := range d.Principals {
		if p.ID == principalID {
			return p.Locale, nil
		}
	}
	return "", autherr.ErrIncorrectCredentials
}
