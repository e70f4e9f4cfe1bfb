// internal/app/system/scheme/delegating.go
package scheme

import (
	"context"

	"github.com/dalemusser/strataauth/internal/app/system/authconfig"
	"github.com/dalemusser/strataauth/internal/domain/models"
)

// Delegating stands in for whatever top-level scheme is configured, so
// callers depend on one stable entry point. Manager.Active builds it.
type Delegating struct {
	target Scheme
}

func NewDelegating(target Scheme) *Delegating {
	return &Delegating{target: target}
}

func (d *Delegating) ID() string { return d.target.ID() }

// Configure is a no-op; the target is configured by the Manager.
func (d *Delegating) Configure(string, authconfig.Values) error { return nil }

func (d *Delegating) Authenticate(ctx context.Context, creds Credentials) (*models.Principal, error) {
	return d.target.Authenticate(ctx, creds)
}

// Target returns the wrapped scheme.
func (d *Delegating) Target() Scheme { return d.target }

// Interactive unwraps the target when it supports the interactive
// capability set.
func (d *Delegating) Interactive() (Interactive, bool) {
	is, ok := d.target.(Interactive)
	return is, ok
}
