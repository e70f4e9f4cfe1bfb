// internal/app/system/scheme/twofactor.go
package scheme

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dalemusser/strataauth/internal/app/system/authconfig"
	"github.com/dalemusser/strataauth/internal/app/system/autherr"
	"github.com/dalemusser/strataauth/internal/app/system/userlogin"
	"github.com/dalemusser/strataauth/internal/domain/models"
	"go.uber.org/zap"
)

// TwoFactor composes a primary scheme with an optional, per-principal
// secondary scheme.
//
//	no primary ─► primary pending ─► primary validated ─┬─► complete (no secondary for principal)
//	                                                    └─► secondary pending ─► complete
//
// Each Credentials call obtains and verifies whichever factor is pending,
// swallowing rejections so the client can be re-prompted. Only when every
// required factor is validated does it return a CompositeCredentials.
//
// Config keys:
//
//	primary             scheme id of the first factor (required)
//	secondary_property  principal property naming the second factor (default "secondary_factor")
//	secondary.<value>   maps a property value to a scheme id (default: the value itself)
//	challenge_url       used once every factor is validated (default: the primary's)
type TwoFactor struct {
	Base
	lookup func(ctx context.Context, id string) (Scheme, error)
	log    *zap.Logger

	primaryID    string
	propertyKey  string
	secondaryMap authconfig.Values
}

func NewTwoFactor(d Deps) *TwoFactor {
	return &TwoFactor{lookup: d.Lookup, log: d.logger()}
}

func (t *TwoFactor) Configure(id string, cfg authconfig.Values) error {
	if err := t.configureBase(id, cfg, ""); err != nil {
		return err
	}
	t.primaryID = cfg.String("primary", "")
	if t.primaryID == "" {
		return errors.New("primary scheme is required")
	}
	if t.primaryID == id {
		return errors.New("primary scheme cannot be the composite itself")
	}
	t.propertyKey = cfg.String("secondary_property", models.PropertySecondaryFactor)
	t.secondaryMap = cfg.Sub("secondary")
	return nil
}

// PrimaryID returns the configured primary scheme id.
func (t *TwoFactor) PrimaryID() string { return t.primaryID }

func (t *TwoFactor) factor(ctx context.Context, id string) (Interactive, error) {
	if t.lookup == nil {
		return nil, autherr.New(autherr.ErrConfiguration, t.ID(), "no scheme lookup configured")
	}
	s, err := t.lookup(ctx, id)
	if err != nil {
		return nil, err
	}
	is, ok := s.(Interactive)
	if !ok {
		return nil, autherr.New(autherr.ErrConfiguration, t.ID(), fmt.Sprintf("factor %q is not interactive", id))
	}
	return is, nil
}

// SecondaryFor returns the second factor configured for p, or nil when p
// needs none.
func (t *TwoFactor) SecondaryFor(ctx context.Context, p *models.Principal) (Interactive, error) {
	value := strings.TrimSpace(p.Property(t.propertyKey))
	if value == "" {
		return nil, nil
	}
	id := t.secondaryMap.String(strings.ToLower(value), t.secondaryMap.String(value, strings.ToLower(value)))
	if id == t.ID() || id == t.primaryID {
		return nil, autherr.New(autherr.ErrConfiguration, t.ID(), fmt.Sprintf("secondary factor %q is invalid", id))
	}
	return t.factor(ctx, id)
}

func (t *TwoFactor) Credentials(sess Session) (Credentials, error) {
	ctx := sess.Context()
	rec := sess.Record()
	if rec == nil {
		return nil, nil
	}

	primary, err := t.factor(ctx, t.primaryID)
	if err != nil {
		return nil, err
	}
	if !rec.HasValidated(primary.ID()) {
		if err := t.obtainAndVerify(sess, primary); err != nil {
			return nil, err
		}
		if !rec.HasValidated(primary.ID()) {
			return nil, nil
		}
	}

	factors := []string{primary.ID()}
	secondary, err := t.SecondaryFor(ctx, rec.Principal())
	if err != nil {
		return nil, err
	}
	if secondary != nil {
		if !rec.HasValidated(secondary.ID()) {
			if err := t.obtainAndVerify(sess, secondary); err != nil {
				return nil, err
			}
			if !rec.HasValidated(secondary.ID()) {
				return nil, nil
			}
		}
		factors = append(factors, secondary.ID())
	}

	return &CompositeCredentials{Scheme: t.ID(), Username: rec.Username(), Factors: factors}, nil
}

// obtainAndVerify asks s for credentials and verifies them through the
// session. Rejections are already on the record's trail and are swallowed;
// only configuration errors come back.
func (t *TwoFactor) obtainAndVerify(sess Session, s Interactive) error {
	creds, err := s.Credentials(sess)
	if err != nil {
		return err
	}
	if creds == nil {
		return nil
	}
	if _, err := sess.Authenticate(s, creds); err != nil {
		if autherr.IsFatal(err) {
			return err
		}
		t.log.Debug("factor rejected",
			zap.String("scheme_id", t.ID()),
			zap.String("factor", s.ID()),
			zap.String("kind", autherr.KindName(err)))
	}
	return nil
}

// ChallengeURL points at whichever factor is pending.
func (t *TwoFactor) ChallengeURL(sess Session) string {
	ctx := sess.Context()
	primary, err := t.factor(ctx, t.primaryID)
	if err != nil {
		t.log.Warn("cannot resolve primary factor", zap.String("scheme_id", t.ID()), zap.Error(err))
		return t.challengeURL
	}
	rec := sess.Record()
	if rec == nil || !rec.HasValidated(primary.ID()) {
		return primary.ChallengeURL(sess)
	}
	secondary, err := t.SecondaryFor(ctx, rec.Principal())
	if err != nil {
		t.log.Warn("cannot resolve secondary factor", zap.String("scheme_id", t.ID()), zap.Error(err))
		return primary.ChallengeURL(sess)
	}
	if secondary != nil && !rec.HasValidated(secondary.ID()) {
		return secondary.ChallengeURL(sess)
	}
	if t.challengeURL != "" {
		return t.challengeURL
	}
	return primary.ChallengeURL(sess)
}

func (t *TwoFactor) Authenticate(ctx context.Context, creds Credentials) (*models.Principal, error) {
	return Verify(ctx, t.ID(), creds, t.verify)
}

// verify re-checks the record instead of trusting the composite credential,
// so a composite replayed outside Credentials cannot skip a factor.
func (t *TwoFactor) verify(ctx context.Context, creds Credentials) (*models.Principal, error) {
	if c, ok := creds.(*CompositeCredentials); !ok || c.Scheme != t.ID() {
		return nil, wrongType(t.ID(), creds)
	}
	rec := userlogin.Current(ctx)
	if rec == nil {
		return nil, autherr.New(autherr.ErrStepIncomplete, t.ID(), "no login in progress")
	}
	if !rec.HasValidated(t.primaryID) {
		return nil, autherr.New(autherr.ErrStepIncomplete, t.ID(), "primary factor not validated")
	}
	p := rec.Principal()
	if p == nil {
		return nil, autherr.New(autherr.ErrStepIncomplete, t.ID(), "no candidate principal")
	}
	secondary, err := t.SecondaryFor(ctx, p)
	if err != nil {
		return nil, err
	}
	if secondary != nil && !rec.HasValidated(secondary.ID()) {
		return nil, autherr.New(autherr.ErrStepIncomplete, t.ID(), "secondary factor not validated")
	}
	return p, nil
}
