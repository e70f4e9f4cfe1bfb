// internal/app/store/ratelimit/store.go
package ratelimit

// Terminology: Identifiers
//   - Username / username: The human-readable string users type to log in (the lockout subject)

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Attempt tracks failed verifications for one username.
type Attempt struct {
	Username     string     `bson:"_id"`           // normalized (lowercase)
	AttemptCount int        `bson:"attempt_count"` // failures in the current window
	WindowStart  time.Time  `bson:"window_start"`
	LockedUntil  *time.Time `bson:"locked_until,omitempty"`
	LastAttempt  time.Time  `bson:"last_attempt"` // drives TTL cleanup
}

// Locked reports whether the attempt is locked at now.
func (a *Attempt) Locked(now time.Time) bool {
	return a.LockedUntil != nil && now.Before(*a.LockedUntil)
}

// Store counts failures per username in a sliding window and locks the
// username out once the window's budget is spent.
type Store struct {
	c       *mongo.Collection
	max     int
	window  time.Duration
	lockout time.Duration
	now     func() time.Time
}

// New creates a Store allowing maxAttempts failures per window before a
// lockout of the given length.
func New(db *mongo.Database, maxAttempts int, window, lockout time.Duration) *Store {
	return &Store{
		c:       db.Collection("rate_limits"),
		max:     max(1, maxAttempts),
		window:  window,
		lockout: lockout,
		now:     time.Now,
	}
}

// EnsureIndexes creates the TTL index that drops idle records after a day.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	_, err := s.c.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "last_attempt", Value: 1}},
		Options: options.Index().SetExpireAfterSeconds(86400).SetName("idx_ratelimit_ttl"),
	})
	return err
}

func normalizeUsername(username string) string {
	return strings.ToLower(strings.TrimSpace(username))
}

// CheckAllowed reports whether username may attempt verification, and when
// a lockout ends if not. A missing record allows.
func (s *Store) CheckAllowed(ctx context.Context, username string) (allowed bool, lockedUntil *time.Time, err error) {
	a, err := s.Get(ctx, username)
	if err != nil || a == nil {
		return true, nil, err
	}
	now := s.now()
	if a.Locked(now) {
		return false, a.LockedUntil, nil
	}
	if now.Sub(a.WindowStart) > s.window {
		return true, nil, nil
	}
	return a.AttemptCount < s.max, nil, nil
}

// RecordFailure counts one failure and locks the username when the window's
// budget is spent. An expired window starts over at one.
func (s *Store) RecordFailure(ctx context.Context, username string) (lockedUntil *time.Time, err error) {
	username = normalizeUsername(username)
	now := s.now()

	a, err := s.Get(ctx, username)
	if err != nil {
		return nil, err
	}
	if a == nil || now.Sub(a.WindowStart) > s.window || (a.LockedUntil != nil && !a.Locked(now)) {
		a = &Attempt{Username: username, WindowStart: now}
	}
	a.AttemptCount++
	a.LastAttempt = now
	if a.AttemptCount >= s.max {
		until := now.Add(s.lockout)
		a.LockedUntil = &until
	}

	_, err = s.c.ReplaceOne(ctx, bson.M{"_id": username}, a, options.Replace().SetUpsert(true))
	if err != nil {
		return nil, err
	}
	return a.LockedUntil, nil
}

// Clear drops the record for username, after a successful verification.
func (s *Store) Clear(ctx context.Context, username string) error {
	_, err := s.c.DeleteOne(ctx, bson.M{"_id": normalizeUsername(username)})
	return err
}

// Get returns the record for username, or nil when there is none.
func (s *Store) Get(ctx context.Context, username string) (*Attempt, error) {
	var a Attempt
	err := s.c.FindOne(ctx, bson.M{"_id": normalizeUsername(username)}).Decode(&a)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}
