// internal/app/store/sessions/store.go
package sessions

// Terminology: Identifiers
//   - Token / token: The session id carried (signed) in the client's cookie
//   - LoginID / loginID / login_id: The opaque id of the login record the session holds

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/securecookie"
	gsessions "github.com/gorilla/sessions"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

// Session is one stored transport session. Values are kept encoded with the
// store's codecs, so the document never holds a readable login record.
type Session struct {
	Token     string    `bson:"_id"`
	Name      string    `bson:"name"`
	Data      string    `bson:"data"`
	IPAddress string    `bson:"ip_address,omitempty"`
	UserAgent string    `bson:"user_agent,omitempty"`
	ExpiresAt time.Time `bson:"expires_at"`
	CreatedAt time.Time `bson:"created_at"`
	UpdatedAt time.Time `bson:"updated_at"`
}

// Store is a gorilla sessions.Store backed by MongoDB. The cookie carries
// only the signed token; values live server-side so a session can be
// invalidated by deleting its document.
type Store struct {
	c       *mongo.Collection
	codecs  []securecookie.Codec
	Options *gsessions.Options
	log     *zap.Logger
	timeout time.Duration
}

// New creates a Store. keyPairs are passed to securecookie.CodecsFromPairs
// the same way gorilla's own stores take them.
func New(db *mongo.Database, logger *zap.Logger, keyPairs ...[]byte) *Store {
	codecs := securecookie.CodecsFromPairs(keyPairs...)
	for _, c := range codecs {
		// Stored data is not bound by the browser's cookie size limit.
		if sc, ok := c.(*securecookie.SecureCookie); ok {
			sc.MaxLength(0)
		}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		c:      db.Collection("sessions"),
		codecs: codecs,
		Options: &gsessions.Options{
			Path:     "/",
			MaxAge:   86400 * 30,
			HttpOnly: true,
			SameSite: http.SameSiteLaxMode,
		},
		log:     logger,
		timeout: 5 * time.Second,
	}
}

// EnsureIndexes creates the TTL index that lets MongoDB drop expired sessions.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	_, err := s.c.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "expires_at", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(0).SetName("idx_session_ttl"),
		},
	})
	return err
}

// Get returns the session cached in the request registry, loading it on
// first use.
func (s *Store) Get(r *http.Request, name string) (*gsessions.Session, error) {
	return gsessions.GetRegistry(r).Get(s, name)
}

// New returns the session named by the request cookie, or a fresh one. A
// cookie whose document is gone (expired, invalidated) yields a fresh
// session with no error; a cookie that fails to decode yields a fresh
// session and the securecookie error.
func (s *Store) New(r *http.Request, name string) (*gsessions.Session, error) {
	session := gsessions.NewSession(s, name)
	opts := *s.Options
	session.Options = &opts
	session.IsNew = true

	c, err := r.Cookie(name)
	if err != nil {
		return session, nil
	}
	var token string
	if err := securecookie.DecodeMulti(name, c.Value, &token, s.codecs...); err != nil {
		return session, err
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.timeout)
	defer cancel()
	doc, err := s.load(ctx, token)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return session, nil
	}
	if err != nil {
		return session, err
	}
	if err := securecookie.DecodeMulti(name, doc.Data, &session.Values, s.codecs...); err != nil {
		return session, err
	}
	session.ID = token
	session.IsNew = false
	return session, nil
}

// Save writes the session document and the cookie. MaxAge < 0 deletes both.
func (s *Store) Save(r *http.Request, w http.ResponseWriter, session *gsessions.Session) error {
	ctx, cancel := context.WithTimeout(r.Context(), s.timeout)
	defer cancel()

	if session.Options.MaxAge < 0 {
		if session.ID != "" {
			if err := s.Delete(ctx, session.ID); err != nil {
				return err
			}
		}
		http.SetCookie(w, gsessions.NewCookie(session.Name(), "", session.Options))
		return nil
	}

	if session.ID == "" {
		session.ID = uuid.NewString()
	}
	data, err := securecookie.EncodeMulti(session.Name(), session.Values, s.codecs...)
	if err != nil {
		return err
	}
	if err := s.upsert(ctx, session, data, r); err != nil {
		return err
	}

	encoded, err := securecookie.EncodeMulti(session.Name(), session.ID, s.codecs...)
	if err != nil {
		return err
	}
	http.SetCookie(w, gsessions.NewCookie(session.Name(), encoded, session.Options))
	return nil
}

func (s *Store) load(ctx context.Context, token string) (*Session, error) {
	var doc Session
	err := s.c.FindOne(ctx, bson.M{
		"_id":        token,
		"expires_at": bson.M{"$gt": time.Now()},
	}).Decode(&doc)
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

func (s *Store) upsert(ctx context.Context, session *gsessions.Session, data string, r *http.Request) error {
	now := time.Now().UTC()
	maxAge := session.Options.MaxAge
	if maxAge == 0 {
		// Browser-session cookie; keep the document for a day.
		maxAge = 86400
	}
	set := bson.M{
		"name":       session.Name(),
		"data":       data,
		"expires_at": now.Add(time.Duration(maxAge) * time.Second),
		"updated_at": now,
	}
	if ua := r.UserAgent(); ua != "" {
		set["user_agent"] = ua
	}
	_, err := s.c.UpdateOne(ctx,
		bson.M{"_id": session.ID},
		bson.M{"$set": set, "$setOnInsert": bson.M{"created_at": now}},
		options.Update().SetUpsert(true),
	)
	return err
}

// Delete removes a session by token.
func (s *Store) Delete(ctx context.Context, token string) error {
	_, err := s.c.DeleteOne(ctx, bson.M{"_id": token})
	return err
}

// UpdateIP records the client address last seen on a session.
func (s *Store) UpdateIP(ctx context.Context, token, ip string) error {
	_, err := s.c.UpdateOne(ctx, bson.M{"_id": token}, bson.M{"$set": bson.M{
		"ip_address": ip,
		"updated_at": time.Now().UTC(),
	}})
	return err
}

// DeleteExpired removes sessions whose expiry has passed. The TTL index does
// this eventually; the cleanup job calls it to keep counts exact.
func (s *Store) DeleteExpired(ctx context.Context) (int64, error) {
	res, err := s.c.DeleteMany(ctx, bson.M{"expires_at": bson.M{"$lte": time.Now().UTC()}})
	if err != nil {
		return 0, err
	}
	if res.DeletedCount > 0 {
		s.log.Debug("expired sessions removed", zap.Int64("count", res.DeletedCount))
	}
	return res.DeletedCount, nil
}

// CountActive counts sessions that have not expired.
func (s *Store) CountActive(ctx context.Context) (int64, error) {
	return s.c.CountDocuments(ctx, bson.M{"expires_at": bson.M{"$gt": time.Now().UTC()}})
}
