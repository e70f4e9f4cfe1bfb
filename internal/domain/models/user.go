// internal/domain/models/user.go
package models

// Terminology: Identifiers
//   - UserID / userID / user_id: The MongoDB ObjectID (_id) that uniquely identifies a user record
//   - Username / username: The human-readable string users type to log in
//   - PrincipalID / principal_id: UserID rendered as hex once the user is verified

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// User is a directory entry that schemes verify against.
//
// Secret fields (password, secret answer, TOTP seed) never appear in JSON.
// SecondaryFactor names the configured scheme that must be satisfied after
// the primary factor; empty means the primary factor alone is enough.
type User struct {
	ID         primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Username   string             `bson:"username" json:"username"`       // as entered (lowercase)
	UsernameCI string             `bson:"username_ci" json:"username_ci"` // folded for matching
	FullName   string             `bson:"full_name" json:"full_name"`

	PasswordHash *string `bson:"password_hash,omitempty" json:"-"`

	SecondaryFactor  string  `bson:"secondary_factor,omitempty" json:"secondary_factor,omitempty"`
	SecretQuestion   *string `bson:"secret_question,omitempty" json:"-"`
	SecretAnswerHash *string `bson:"secret_answer_hash,omitempty" json:"-"`
	TOTPSecret       *string `bson:"totp_secret,omitempty" json:"-"`

	Locale string `bson:"locale,omitempty" json:"locale,omitempty"`
	Role   string `bson:"role" json:"role"`
	Status string `bson:"status,omitempty" json:"status,omitempty"` // active, disabled

	CreatedAt time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
}

// User roles
const (
	RoleAdmin = "admin"
	RoleUser  = "user"
)

// User statuses
const (
	StatusActive   = "active"
	StatusDisabled = "disabled"
)

// IsValidRole checks if a role is valid.
func IsValidRole(role string) bool {
	return role == RoleAdmin || role == RoleUser
}

// IsValidStatus checks if a status is valid.
func IsValidStatus(status string) bool {
	return status == StatusActive || status == StatusDisabled
}

// Active reports whether the user may sign in. An empty status counts as active.
func (u *User) Active() bool {
	return u.Status == "" || u.Status == StatusActive
}

// Principal converts the directory entry into the identity handed to schemes.
func (u *User) Principal() *Principal {
	props := map[string]string{PropertyRole: u.Role}
	if u.SecondaryFactor != "" {
		props[PropertySecondaryFactor] = u.SecondaryFactor
	}
	return &Principal{
		ID:          u.ID.Hex(),
		Name:        u.Username,
		DisplayName: u.FullName,
		Locale:      u.Locale,
		Properties:  props,
	}
}
