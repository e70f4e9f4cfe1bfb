// internal/app/store/logins/loginstore.go
package loginstore

// Terminology: Identifiers
//   - PrincipalID / principal_id: The verified user's id (user _id as hex)
//   - LoginID / loginID / login_id: The opaque id of the negotiation record that completed

import (
	"context"
	"time"

	"github.com/dalemusser/strataauth/internal/app/store/storeutil"
	"github.com/dalemusser/strataauth/internal/app/system/userlogin"
	"github.com/dalemusser/strataauth/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Store keeps one row per completed login.
type Store struct {
	c *mongo.Collection
}

func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection("login_history")}
}

// EnsureIndexes creates indexes for efficient querying.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		// Per-principal recent logins (latest-first)
		{
			Keys:    bson.D{{Key: "principal_id", Value: 1}, {Key: "created_at", Value: -1}},
			Options: options.Index().SetName("idx_logins_principal_created"),
		},
		// Site-wide recent logins (latest-first)
		{
			Keys:    bson.D{{Key: "created_at", Value: -1}},
			Options: options.Index().SetName("idx_logins_created"),
		},
		// One row per negotiation record
		{
			Keys:    bson.D{{Key: "login_id", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("idx_logins_login_id"),
		},
	}
	_, err := s.c.Indexes().CreateMany(ctx, indexes)
	return err
}

// Create inserts a row. If CreatedAt is zero, it's set to time.Now().UTC().
func (s *Store) Create(ctx context.Context, h models.LoginHistory) error {
	if h.CreatedAt.IsZero() {
		h.CreatedAt = time.Now().UTC()
	}
	_, err := s.c.InsertOne(ctx, h)
	return err
}

// CreateFrom builds a row from a record that has just completed login.
func (s *Store) CreateFrom(ctx context.Context, rec *userlogin.Record) error {
	h := models.LoginHistory{
		LoginID:   rec.ID(),
		Username:  rec.Username(),
		IP:        rec.IP(),
		Schemes:   rec.ValidatedSchemeIDs(),
		CreatedAt: rec.LoginAt(),
	}
	if p := rec.Principal(); p != nil {
		h.PrincipalID = p.ID
	}
	return s.Create(ctx, h)
}

// GetByPrincipal retrieves the most recent logins for a principal.
func (s *Store) GetByPrincipal(ctx context.Context, principalID string, limit int64) ([]models.LoginHistory, error) {
	return s.PageByPrincipal(ctx, principalID, limit, 1)
}

// PageByPrincipal retrieves one 1-based page of a principal's logins,
// latest first.
func (s *Store) PageByPrincipal(ctx context.Context, principalID string, limit, page int64) ([]models.LoginHistory, error) {
	return s.find(ctx, bson.M{"principal_id": principalID}, storeutil.NewestFirst(limit, page))
}

// GetByTimeRange retrieves logins within a time range, latest first.
func (s *Store) GetByTimeRange(ctx context.Context, start, end time.Time) ([]models.LoginHistory, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	filter := bson.M{
		"created_at": bson.M{
			"$gte": start,
			"$lte": end,
		},
	}
	return s.find(ctx, filter, opts)
}

func (s *Store) find(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]models.LoginHistory, error) {
	cur, err := s.c.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var rows []models.LoginHistory
	if err := cur.All(ctx, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}
