// internal/app/system/indexes/indexes.go
package indexes

// Terminology: Identifiers
//   - LoginID / loginID / login_id: The opaque id of one login record
//   - PrincipalID / principal_id: The verified user's id (user _id as hex)

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

// collectionSet is the desired index set for one collection. Names and
// options must stay identical to each store's EnsureIndexes, which may run
// against the same database.
type collectionSet struct {
	name    string
	indexes []mongo.IndexModel
}

func desired() []collectionSet {
	return []collectionSet{
		{"users", []mongo.IndexModel{
			{
				Keys:    bson.D{{Key: "username_ci", Value: 1}},
				Options: options.Index().SetUnique(true).SetName("uniq_users_username_ci"),
			},
		}},
		{"sessions", []mongo.IndexModel{
			{
				Keys:    bson.D{{Key: "expires_at", Value: 1}},
				Options: options.Index().SetExpireAfterSeconds(0).SetName("idx_session_ttl"),
			},
		}},
		{"login_history", []mongo.IndexModel{
			{
				Keys:    bson.D{{Key: "principal_id", Value: 1}, {Key: "created_at", Value: -1}},
				Options: options.Index().SetName("idx_logins_principal_created"),
			},
			{
				Keys:    bson.D{{Key: "created_at", Value: -1}},
				Options: options.Index().SetName("idx_logins_created"),
			},
			{
				Keys:    bson.D{{Key: "login_id", Value: 1}},
				Options: options.Index().SetUnique(true).SetName("idx_logins_login_id"),
			},
		}},
		{"auth_events", []mongo.IndexModel{
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
		}},
		{"rate_limits", []mongo.IndexModel{
			{
				Keys:    bson.D{{Key: "last_attempt", Value: 1}},
				Options: options.Index().SetExpireAfterSeconds(86400).SetName("idx_ratelimit_ttl"),
			},
		}},
		{"oauth_states", []mongo.IndexModel{
			{
				Keys:    bson.D{{Key: "state", Value: 1}},
				Options: options.Index().SetUnique(true).SetName("uniq_oauth_state"),
			},
			{
				Keys:    bson.D{{Key: "expires_at", Value: 1}},
				Options: options.Index().SetExpireAfterSeconds(0).SetName("idx_oauth_state_ttl"),
			},
		}},
	}
}

/*
EnsureAll is called at startup. Every set is attempted; problems are
aggregated so all of them are visible and startup can fail fast.
*/
func EnsureAll(ctx context.Context, db *mongo.Database) error {
	var problems []string
	for _, set := range desired() {
		if err := ensureIndexSet(ctx, db.Collection(set.name), set.indexes); err != nil {
			problems = append(problems, set.name+": "+err.Error())
		}
	}
	if len(problems) > 0 {
		return errors.New(strings.Join(problems, "; "))
	}
	return nil
}

/* -------------------------------------------------------------------------- */
/* Reconcile a set of desired indexes for one collection                      */
/* -------------------------------------------------------------------------- */

type existingIndex struct {
	Name   string `bson:"name"`
	Key    bson.D `bson:"key"`
	Unique *bool  `bson:"unique,omitempty"`
}

func keySig(keys bson.D) string {
	parts := make([]string, 0, len(keys))
	for _, kv := range keys {
		parts = append(parts, fmt.Sprintf("%s:%v", kv.Key, kv.Value))
	}
	return strings.Join(parts, ", ")
}

func isUnique(b *bool) bool { return b != nil && *b }

func isDuplicateKeyErr(err error) bool {
	if err == nil {
		return false
	}
	if mongo.IsDuplicateKeyError(err) {
		return true
	}
	return strings.Contains(err.Error(), "E11000")
}

func listIndexes(ctx context.Context, coll *mongo.Collection) map[string]existingIndex {
	existing := map[string]existingIndex{}
	cur, err := coll.Indexes().List(ctx)
	if err != nil {
		return existing
	}
	defer cur.Close(ctx)
	for cur.Next(ctx) {
		var idx existingIndex
		if err := cur.Decode(&idx); err != nil {
			zap.L().Warn("failed to decode existing index",
				zap.String("collection", coll.Name()), zap.Error(err))
			continue
		}
		existing[keySig(idx.Key)] = idx
	}
	return existing
}

// ensureIndexSet creates each desired index. An index with the same keys and
// uniqueness is reused whatever its name; one whose uniqueness differs is
// dropped and recreated.
func ensureIndexSet(ctx context.Context, coll *mongo.Collection, models []mongo.IndexModel) error {
	var errs []string
	existing := listIndexes(ctx, coll)

	for _, m := range models {
		var name string
		var unique *bool
		if m.Options != nil {
			if m.Options.Name != nil {
				name = *m.Options.Name
			}
			unique = m.Options.Unique
		}
		sig := keySig(m.Keys.(bson.D))
		start := time.Now()

		if ex, ok := existing[sig]; ok {
			if isUnique(unique) == isUnique(ex.Unique) {
				zap.L().Debug("reusing existing index",
					zap.String("collection", coll.Name()),
					zap.String("name", ex.Name),
					zap.String("keys", sig))
				continue
			}
			if _, err := coll.Indexes().DropOne(ctx, ex.Name); err != nil {
				errs = append(errs, fmt.Sprintf("%s(%s): drop failed: %v", coll.Name(), name, err))
				continue
			}
			zap.L().Info("dropped index for recreation",
				zap.String("collection", coll.Name()),
				zap.String("name", ex.Name),
				zap.String("keys", sig))
		}

		created, err := coll.Indexes().CreateOne(ctx, m)
		if err != nil {
			if isDuplicateKeyErr(err) && isUnique(unique) {
				errs = append(errs, fmt.Sprintf("%s(%s): cannot create unique index (duplicates present)", coll.Name(), name))
			} else {
				errs = append(errs, fmt.Sprintf("%s(%s): %v", coll.Name(), name, err))
			}
			continue
		}
		zap.L().Info("index ensured",
			zap.String("collection", coll.Name()),
			zap.String("name", created),
			zap.String("keys", sig),
			zap.Bool("unique", isUnique(unique)),
			zap.String("took", time.Since(start).String()))
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}
