// internal/app/system/seeding/seeding.go
package seeding

// Terminology: Identifiers
//   - UserID / user_id: The MongoDB ObjectID (_id) of a directory entry
//   - Username / username: The string a visitor types at the password prompt

import (
	"context"
	"errors"

	userstore "github.com/dalemusser/strataauth/internal/app/store/users"
	"github.com/dalemusser/strataauth/internal/domain/models"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

// Admin describes the administrator account seeded at startup.
type Admin struct {
	Username string
	FullName string
	Password string // only used when the account is created
}

// SeedAdmin makes sure an admin account exists for a.Username.
//
// An existing user is promoted to admin if needed; its password is left
// alone. A missing user is created with a.Password, so with an empty
// password the account exists but cannot pass the basic scheme.
func SeedAdmin(ctx context.Context, db *mongo.Database, a Admin, logger *zap.Logger) error {
	if a.Username == "" {
		return nil
	}
	store := userstore.New(db)

	existing, err := store.GetByUsername(ctx, a.Username)
	switch {
	case err == nil:
		if existing.Role == models.RoleAdmin {
			logger.Debug("admin user already configured", zap.String("username", existing.Username))
			return nil
		}
		if err := store.SetRole(ctx, existing.ID, models.RoleAdmin); err != nil {
			return err
		}
		logger.Info("promoted existing user to admin",
			zap.String("username", existing.Username),
			zap.String("user_id", existing.ID.Hex()),
			zap.String("previous_role", existing.Role))
		return nil
	case !errors.Is(err, mongo.ErrNoDocuments):
		return err
	}

	name := a.FullName
	if name == "" {
		name = "Admin"
	}
	u, err := store.Create(ctx, userstore.CreateInput{
		Username: a.Username,
		FullName: name,
		Password: a.Password,
		Role:     models.RoleAdmin,
	})
	if err != nil {
		return err
	}
	if a.Password == "" {
		logger.Warn("created admin user without a password", zap.String("username", u.Username))
	}
	logger.Info("created admin user",
		zap.String("username", u.Username),
		zap.String("user_id", u.ID.Hex()))
	return nil
}
