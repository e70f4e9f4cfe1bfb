// internal/app/system/scheme/scheme.go
// Package scheme defines pluggable verification methods and the global
// authentication entry point that runs the configured one.
//
// A Scheme verifies credentials and returns a principal. An Interactive
// scheme can also pull credentials out of a request and name the URL where
// a client should go to supply them. Every concrete Authenticate funnels
// through Verify, which keeps the current login record's ledger and event
// trail in step with the outcome.
package scheme

// Terminology: Identifiers
//   - LoginID / loginID / login_id: The opaque id of one authentication attempt (a login record)
//   - Username / username: The human-readable string users type to log in
//   - PrincipalID / principal_id: The verified user's id (user _id as hex)
//   - SchemeID / schemeID: The configured id of a scheme instance (not its type)

import (
	"context"
	"errors"

	"github.com/dalemusser/strataauth/internal/app/system/authconfig"
	"github.com/dalemusser/strataauth/internal/app/system/autherr"
	"github.com/dalemusser/strataauth/internal/app/system/userlogin"
	"github.com/dalemusser/strataauth/internal/domain/models"
)

// Credentials is a scheme-specific value awaiting verification.
type Credentials = userlogin.Credential

// Scheme is the base capability set.
type Scheme interface {
	ID() string
	Configure(id string, cfg authconfig.Values) error
	Authenticate(ctx context.Context, creds Credentials) (*models.Principal, error)
}

// Interactive schemes negotiate with a client across requests.
type Interactive interface {
	Scheme

	// Credentials extracts credentials from the session's request. It
	// returns nil, nil when none are present; an error means the scheme
	// cannot operate at all.
	Credentials(sess Session) (Credentials, error)

	// ChallengeURL is where the client should go to supply the next
	// credential, or "" when there is none.
	ChallengeURL(sess Session) string

	BeforeAuthentication(sess Session)
	AfterAuthenticationSuccess(sess Session)
	AfterAuthenticationFailure(sess Session, err error)
}

// Session is the view of one transport round-trip that interactive schemes
// work against. negotiation.Session implements it.
type Session interface {
	Context() context.Context
	Record() *userlogin.Record

	// RequestParam and RequestHeader report false when there is no request
	// or the value is absent. They never fail.
	RequestParam(name string) (string, bool)
	RequestHeader(name string) (string, bool)

	Attribute(key string) (any, bool)
	SetAttribute(key string, value any)

	// Authenticate runs s through its hooks and, when s is the configured
	// top-level scheme, through the global entry point.
	Authenticate(s Interactive, creds Credentials) (*models.Principal, error)
}

// VerifyFunc is the scheme-specific part of Authenticate.
type VerifyFunc func(ctx context.Context, creds Credentials) (*models.Principal, error)

// Verify runs fn against creds and records the outcome on the current login
// record: the credential enters the ledger, then leaves it as either a
// validated scheme or a failure. A principal that conflicts with the one
// already established resets the record's progress. The error from fn, or
// the conflict, is returned unchanged.
//
// With no current record the verification still runs; nothing is recorded.
func Verify(ctx context.Context, schemeID string, creds Credentials, fn VerifyFunc) (*models.Principal, error) {
	rec := userlogin.Current(ctx)
	if rec != nil && creds != nil && creds.SchemeID() == schemeID {
		rec.AddUnvalidatedCredential(creds)
	}

	p, err := fn(ctx, creds)
	if err != nil {
		if rec != nil {
			rec.RecordCredentialFailure(ctx, schemeID)
		}
		return nil, err
	}

	if rec != nil {
		if err := rec.RecordCredentialSuccess(ctx, schemeID, p); err != nil {
			rec.Reset(ctx)
			return nil, err
		}
	} else if p == nil {
		return nil, autherr.New(autherr.ErrIdentityConflict, schemeID, "no principal resolved")
	}
	return p, nil
}

// Base carries the id and challenge URL every interactive scheme has, and
// no-op hooks. Embed it and call configureBase from Configure.
type Base struct {
	id           string
	challengeURL string
}

func (b *Base) ID() string { return b.id }

func (b *Base) configureBase(id string, cfg authconfig.Values, defaultChallenge string) error {
	if id == "" {
		return errors.New("scheme id is required")
	}
	b.id = id
	b.challengeURL = cfg.String("challenge_url", defaultChallenge)
	return nil
}

func (b *Base) ChallengeURL(Session) string { return b.challengeURL }

func (b *Base) BeforeAuthentication(Session) {}

func (b *Base) AfterAuthenticationSuccess(Session) {}

func (b *Base) AfterAuthenticationFailure(Session, error) {}

// incorrect normalizes a verification error: authentication kinds pass
// through, anything else (a backend failure) becomes IncorrectCredentials so
// the client is re-prompted rather than shown a server error.
func incorrect(schemeID string, err error) error {
	var ae *autherr.Error
	if errors.As(err, &ae) {
		return err
	}
	for _, kind := range []error{
		autherr.ErrIncorrectCredentials, autherr.ErrInvalidCredentialType,
		autherr.ErrStepIncomplete, autherr.ErrIdentityConflict, autherr.ErrConfiguration,
	} {
		if errors.Is(err, kind) {
			return autherr.Wrap(kind, schemeID, err)
		}
	}
	return autherr.Wrap(autherr.ErrIncorrectCredentials, schemeID, err)
}

func wrongType(schemeID string, creds Credentials) error {
	return autherr.New(autherr.ErrInvalidCredentialType, schemeID, typeName(creds))
}
