// internal/app/store/users/userstore.go
package userstore

// Terminology: User Identifiers
//   - UserID / userID / user_id: The MongoDB ObjectID (_id) that uniquely identifies a user record
//   - Username / username: The human-readable string users type to log in

import (
	"context"
	"errors"
	"time"

	"github.com/dalemusser/strataauth/internal/app/system/authutil"
	"github.com/dalemusser/strataauth/internal/app/system/inputval"
	"github.com/dalemusser/strataauth/internal/app/system/normalize"
	"github.com/dalemusser/strataauth/internal/domain/models"
	wafflemongo "github.com/dalemusser/waffle/pantry/mongo"
	"github.com/dalemusser/waffle/pantry/text"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type Store struct {
	c *mongo.Collection
}

func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection("users")}
}

var (
	// ErrDuplicateUsername is returned when attempting to create a user with a username that already exists.
	ErrDuplicateUsername = errors.New("a user with this username already exists")
	errBadRole           = errors.New("invalid role")
	errBadStatus         = errors.New(`status must be "active"|"disabled"`)
	errNoUsername        = errors.New("username is required")
)

// EnsureIndexes creates the unique folded-username index.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	_, err := s.c.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "username_ci", Value: 1}},
		Options: options.Index().SetUnique(true).SetName("uniq_users_username_ci"),
	})
	return err
}

// GetByID loads a user by ObjectID.
func (s *Store) GetByID(ctx context.Context, id primitive.ObjectID) (*models.User, error) {
	var u models.User
	if err := s.c.FindOne(ctx, bson.M{"_id": id}).Decode(&u); err != nil {
		return nil, err
	}
	return &u, nil
}

// GetByUsername looks up a user by case/diacritic-insensitive username.
// Returns mongo.ErrNoDocuments if not found.
func (s *Store) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	var u models.User
	folded := text.Fold(normalize.Username(username))
	if err := s.c.FindOne(ctx, bson.M{"username_ci": folded}).Decode(&u); err != nil {
		return nil, err
	}
	return &u, nil
}

// CreateInput holds the fields for creating a new user. Secrets are given
// in plain text and stored as bcrypt hashes.
type CreateInput struct {
	Username        string `validate:"required,max=100" label:"Username"`
	FullName        string `validate:"max=200" label:"Full name"`
	Password        string
	Role            string
	Locale          string `validate:"locale" label:"Locale"`
	SecondaryFactor string `validate:"schemeid" label:"Secondary factor"`
	SecretQuestion  string
	SecretAnswer    string
	TOTPSecret      string
}

// Create inserts a new user after normalizing & validating fields.
func (s *Store) Create(ctx context.Context, in CreateInput) (models.User, error) {
	username := normalize.Username(in.Username)
	if username == "" {
		return models.User{}, errNoUsername
	}
	in.Username = username
	in.Role = normalize.Role(in.Role)
	in.SecondaryFactor = normalize.SchemeID(in.SecondaryFactor)
	if err := inputval.Validate(in).Err(); err != nil {
		return models.User{}, err
	}
	u := models.User{
		ID:              primitive.NewObjectID(),
		Username:        username,
		UsernameCI:      text.Fold(username),
		FullName:        normalize.Name(in.FullName),
		Role:            normalize.Role(in.Role),
		Locale:          in.Locale,
		SecondaryFactor: normalize.SchemeID(in.SecondaryFactor),
		Status:          models.StatusActive,
	}
	if u.Role == "" {
		u.Role = models.RoleUser
	}
	if !models.IsValidRole(u.Role) {
		return models.User{}, errBadRole
	}

	if in.Password != "" {
		hash, err := authutil.HashPassword(in.Password)
		if err != nil {
			return models.User{}, err
		}
		u.PasswordHash = &hash
	}
	if in.SecretQuestion != "" {
		q := normalize.Name(in.SecretQuestion)
		u.SecretQuestion = &q
	}
	if in.SecretAnswer != "" {
		hash, err := authutil.HashPassword(authutil.NormalizeAnswer(in.SecretAnswer))
		if err != nil {
			return models.User{}, err
		}
		u.SecretAnswerHash = &hash
	}
	if in.TOTPSecret != "" {
		secret := in.TOTPSecret
		u.TOTPSecret = &secret
	}

	now := time.Now()
	u.CreatedAt = now
	u.UpdatedAt = now

	if _, err := s.c.InsertOne(ctx, u); err != nil {
		if wafflemongo.IsDup(err) {
			return models.User{}, ErrDuplicateUsername
		}
		return models.User{}, err
	}
	return u, nil
}

// SetStatus enables or disables a user.
func (s *Store) SetStatus(ctx context.Context, id primitive.ObjectID, st string) error {
	st = normalize.Status(st)
	if !models.IsValidStatus(st) {
		return errBadStatus
	}
	return s.set(ctx, id, bson.M{"status": st})
}

// SetRole changes a user's role.
func (s *Store) SetRole(ctx context.Context, id primitive.ObjectID, role string) error {
	role = normalize.Role(role)
	if !models.IsValidRole(role) {
		return errBadRole
	}
	return s.set(ctx, id, bson.M{"role": role})
}

// UpdatePassword replaces a user's password hash.
func (s *Store) UpdatePassword(ctx context.Context, id primitive.ObjectID, passwordHash string) error {
	return s.set(ctx, id, bson.M{"password_hash": passwordHash})
}

// SetSecondaryFactor names the scheme that must follow the primary factor.
// An empty id removes the requirement.
func (s *Store) SetSecondaryFactor(ctx context.Context, id primitive.ObjectID, schemeID string) error {
	schemeID = normalize.SchemeID(schemeID)
	if schemeID == "" {
		_, err := s.c.UpdateOne(ctx, bson.M{"_id": id}, bson.M{
			"$unset": bson.M{"secondary_factor": ""},
			"$set":   bson.M{"updated_at": time.Now()},
		})
		return err
	}
	return s.set(ctx, id, bson.M{"secondary_factor": schemeID})
}

// SetLocale updates a user's preferred locale.
func (s *Store) SetLocale(ctx context.Context, id primitive.ObjectID, locale string) error {
	return s.set(ctx, id, bson.M{"locale": locale})
}

func (s *Store) set(ctx context.Context, id primitive.ObjectID, fields bson.M) error {
	fields["updated_at"] = time.Now()
	res, err := s.c.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": fields})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return mongo.ErrNoDocuments
	}
	return nil
}

// Delete deletes a user by ID.
// Returns the number of documents deleted (0 or 1).
func (s *Store) Delete(ctx context.Context, id primitive.ObjectID) (int64, error) {
	res, err := s.c.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}

// Count returns the number of users matching the given filter.
func (s *Store) Count(ctx context.Context, filter bson.M) (int64, error) {
	return s.c.CountDocuments(ctx, filter)
}
