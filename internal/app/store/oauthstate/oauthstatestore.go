// internal/app/store/oauthstate/oauthstatestore.go
package oauthstate

// Terminology: Identifiers
//   - State / state: The random value sent to the provider and echoed back on the callback
//   - LoginID / loginID / login_id: The login record the state was issued to

import (
	"context"
	"time"

	"github.com/dalemusser/strataauth/internal/app/system/scheme"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// State is one issued OAuth state.
type State struct {
	ID        primitive.ObjectID `bson:"_id,omitempty"`
	State     string             `bson:"state"`
	LoginID   string             `bson:"login_id"`
	ExpiresAt time.Time          `bson:"expires_at"`
	CreatedAt time.Time          `bson:"created_at"`
}

// Store keeps OAuth states in the oauth_states collection so a callback can
// land on any instance.
type Store struct {
	c   *mongo.Collection
	ttl time.Duration
	now func() time.Time
}

var _ scheme.StateStore = (*Store)(nil)

// New creates a state store whose states live for ttl (10 minutes if zero).
func New(db *mongo.Database, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &Store{c: db.Collection("oauth_states"), ttl: ttl, now: time.Now}
}

// EnsureIndexes creates the unique state index and the expiry TTL index.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	_, err := s.c.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "state", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("uniq_oauth_state"),
		},
		{
			Keys:    bson.D{{Key: "expires_at", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(0).SetName("idx_oauth_state_ttl"),
		},
	})
	return err
}

// Create stores state for loginID.
func (s *Store) Create(ctx context.Context, state, loginID string) error {
	now := s.now()
	_, err := s.c.InsertOne(ctx, State{
		ID:        primitive.NewObjectID(),
		State:     state,
		LoginID:   loginID,
		ExpiresAt: now.Add(s.ttl),
		CreatedAt: now,
	})
	return err
}

// Verify consumes state. It succeeds once, only before expiry, and only for
// the login id the state was issued to. A mismatched login still consumes
// the state.
func (s *Store) Verify(ctx context.Context, state, loginID string) bool {
	var doc State
	err := s.c.FindOneAndDelete(ctx, bson.M{
		"state":      state,
		"expires_at": bson.M{"$gt": s.now()},
	}).Decode(&doc)
	if err != nil {
		return false
	}
	return doc.LoginID == loginID
}
