// internal/app/store/audit/store.go
package audit

// Terminology: Identifiers
//   - LoginID / loginID / login_id: The opaque id of one authentication attempt (a login record)
//   - Username / username: The human-readable string users type to log in
//   - PrincipalID / principal_id: The verified user's id (user _id as hex)

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Event is one persisted negotiation event.
type Event struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"-"`
	CreatedAt time.Time          `bson:"created_at" json:"created_at"`

	EventType string `bson:"event_type" json:"event_type"` // AUTH_SUCCEEDED, LOGIN_FAILED, ...

	// Context
	LoginID     string `bson:"login_id" json:"login_id"`
	SessionID   string `bson:"session_id,omitempty" json:"session_id,omitempty"`
	IP          string `bson:"ip,omitempty" json:"ip,omitempty"`
	Username    string `bson:"username,omitempty" json:"username,omitempty"`
	PrincipalID string `bson:"principal_id,omitempty" json:"principal_id,omitempty"`
	SchemeID    string `bson:"scheme_id,omitempty" json:"scheme_id,omitempty"`

	// Outcome
	Success       bool   `bson:"success" json:"success"`
	FailureReason string `bson:"failure_reason,omitempty" json:"failure_reason,omitempty"`
}

// QueryFilter defines filters for querying events.
type QueryFilter struct {
	LoginID     string
	PrincipalID string
	EventType   string
	StartTime   *time.Time
	EndTime     *time.Time
	Limit       int64
	Offset      int64
}

// Store manages negotiation event records.
type Store struct {
	c *mongo.Collection
}

// New creates a new audit Store.
func New(db *mongo.Database) *Store {
	return &Store{c: db.Collection("auth_events")}
}

// EnsureIndexes creates indexes for efficient querying.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "login_id", Value: 1}, {Key: "created_at", Value: 1}},
			Options: options.Index().SetName("idx_auth_events_login"),
		},
		{
			Keys:    bson.D{{Key: "principal_id", Value: 1}, {Key: "created_at", Value: -1}},
			Options: options.Index().SetName("idx_auth_events_principal"),
		},
		{
			Keys:    bson.D{{Key: "event_type", Value: 1}, {Key: "created_at", Value: -1}},
			Options: options.Index().SetName("idx_auth_events_type"),
		},
	}
	_, err := s.c.Indexes().CreateMany(ctx, indexes)
	return err
}

// Log records an event.
func (s *Store) Log(ctx context.Context, event Event) error {
	if event.ID.IsZero() {
		event.ID = primitive.NewObjectID()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}
	_, err := s.c.InsertOne(ctx, event)
	return err
}

func (f QueryFilter) toBSON() bson.M {
	query := bson.M{}
	if f.LoginID != "" {
		query["login_id"] = f.LoginID
	}
	if f.PrincipalID != "" {
		query["principal_id"] = f.PrincipalID
	}
	if f.EventType != "" {
		query["event_type"] = f.EventType
	}
	if f.StartTime != nil || f.EndTime != nil {
		timeQuery := bson.M{}
		if f.StartTime != nil {
			timeQuery["$gte"] = *f.StartTime
		}
		if f.EndTime != nil {
			timeQuery["$lte"] = *f.EndTime
		}
		query["created_at"] = timeQuery
	}
	return query
}

// Query retrieves events matching the filter.
// Events for a single login come back oldest-first so they read as a trail;
// every other query is newest-first.
func (s *Store) Query(ctx context.Context, filter QueryFilter) ([]Event, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	order := -1
	if filter.LoginID != "" {
		order = 1
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: order}}).
		SetLimit(limit).
		SetSkip(filter.Offset)

	cur, err := s.c.Find(ctx, filter.toBSON(), opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var events []Event
	if err := cur.All(ctx, &events); err != nil {
		return nil, err
	}
	return events, nil
}

// Count returns the number of events matching the filter.
func (s *Store) Count(ctx context.Context, filter QueryFilter) (int64, error) {
	return s.c.CountDocuments(ctx, filter.toBSON())
}
