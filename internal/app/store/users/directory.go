// internal/app/store/users/directory.go
package userstore

// Terminology: User Identifiers
//   - UserID / userID / user_id: The MongoDB ObjectID (_id) that uniquely identifies a user record
//   - Username / username: The human-readable string users type to log in
//   - PrincipalID / principal_id: UserID as hex, once verified

import (
	"context"
	"errors"
	"fmt"

	"github.com/dalemusser/strataauth/internal/app/system/autherr"
	"github.com/dalemusser/strataauth/internal/app/system/authutil"
	"github.com/dalemusser/strataauth/internal/app/system/scheme"
	"github.com/dalemusser/strataauth/internal/app/system/timeouts"
	"github.com/dalemusser/strataauth/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

// Directory implements scheme.Directory on the users collection. A missing,
// disabled, or secretless user is reported as incorrect credentials, so
// callers cannot tell an unknown user from a wrong secret.
type Directory struct {
	store  *Store
	logger *zap.Logger
}

var _ scheme.Directory = (*Directory)(nil)

// NewDirectory creates a Directory that queries the given database.
func NewDirectory(db *mongo.Database, logger *zap.Logger) *Directory {
	return &Directory{store: New(db), logger: logger}
}

func (d *Directory) LookupPrincipal(ctx context.Context, username string) (*models.Principal, error) {
	u, err := d.byUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	return u.Principal(), nil
}

// VerifyPassword compares against a throwaway hash when the user is unknown
// so both paths cost one bcrypt comparison.
func (d *Directory) VerifyPassword(ctx context.Context, username, password string) (*models.Principal, error) {
	u, err := d.byUsername(ctx, username)
	if err != nil {
		if errors.Is(err, autherr.ErrIncorrectCredentials) {
			authutil.CheckPassword(password, authutil.DummyHash())
		}
		return nil, err
	}
	if u.PasswordHash == nil || !authutil.CheckPassword(password, *u.PasswordHash) {
		return nil, autherr.ErrIncorrectCredentials
	}
	return u.Principal(), nil
}

func (d *Directory) SecretQuestion(ctx context.Context, principalID string) (string, error) {
	u, err := d.byID(ctx, principalID)
	if err != nil {
		return "", err
	}
	if u.SecretQuestion == nil || *u.SecretQuestion == "" {
		return "", autherr.ErrIncorrectCredentials
	}
	return *u.SecretQuestion, nil
}

// VerifySecretAnswer compares answers after authutil.NormalizeAnswer.
func (d *Directory) VerifySecretAnswer(ctx context.Context, principalID, answer string) (*models.Principal, error) {
	u, err := d.byID(ctx, principalID)
	if err != nil {
		return nil, err
	}
	if u.SecretAnswerHash == nil || !authutil.CheckPassword(authutil.NormalizeAnswer(answer), *u.SecretAnswerHash) {
		return nil, autherr.ErrIncorrectCredentials
	}
	return u.Principal(), nil
}

func (d *Directory) TOTPSecret(ctx context.Context, principalID string) (string, error) {
	u, err := d.byID(ctx, principalID)
	if err != nil {
		return "", err
	}
	if u.TOTPSecret == nil || *u.TOTPSecret == "" {
		return "", autherr.ErrIncorrectCredentials
	}
	return *u.TOTPSecret, nil
}

// DefaultLocale returns "" when the user has no preference.
func (d *Directory) DefaultLocale(ctx context.Context, principalID string) (string, error) {
	u, err := d.byID(ctx, principalID)
	if err != nil {
		return "", err
	}
	return u.Locale, nil
}

func (d *Directory) byUsername(ctx context.Context, username string) (*models.User, error) {
	ctx, cancel := context.WithTimeout(ctx, timeouts.Lookup())
	defer cancel()
	u, err := d.store.GetByUsername(ctx, username)
	return d.usable(u, err, zap.String("username", username))
}

func (d *Directory) byID(ctx context.Context, principalID string) (*models.User, error) {
	oid, err := primitive.ObjectIDFromHex(principalID)
	if err != nil {
		return nil, autherr.ErrIncorrectCredentials
	}
	ctx, cancel := context.WithTimeout(ctx, timeouts.Lookup())
	defer cancel()
	u, err := d.store.GetByID(ctx, oid)
	return d.usable(u, err, zap.String("principal_id", principalID))
}

func (d *Directory) usable(u *models.User, err error, who zap.Field) (*models.User, error) {
	switch {
	case errors.Is(err, mongo.ErrNoDocuments):
		return nil, autherr.ErrIncorrectCredentials
	case err != nil:
		d.logger.Error("user directory lookup failed", who, zap.Error(err))
		return nil, fmt.Errorf("user directory: %w", err)
	case !u.Active():
		d.logger.Debug("disabled user rejected", who)
		return nil, autherr.ErrIncorrectCredentials
	}
	return u, nil
}
