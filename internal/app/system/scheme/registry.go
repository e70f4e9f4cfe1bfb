// internal/app/system/scheme/registry.go
package scheme

import (
	"context"
	"maps"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/dalemusser/strataauth/internal/domain/models"
	"go.uber.org/zap"
)

// Scheme type names understood by DefaultRegistry.
const (
	TypeBasic          = "basic"
	TypeSecretQuestion = "secretquestion"
	TypeToken          = "token"
	TypeTwoFactor      = "twofactor"
	TypeOAuth2         = "oauth2"
	TypeBearer         = "bearer"
)

// DefaultSchemeID is used when no top-level scheme is configured.
const DefaultSchemeID = TypeBasic

// Directory is the user directory the schemes verify against. Lookups that
// find nothing return an error of kind autherr.ErrIncorrectCredentials, so a
// missing user is indistinguishable from a wrong secret.
type Directory interface {
	LookupPrincipal(ctx context.Context, username string) (*models.Principal, error)
	VerifyPassword(ctx context.Context, username, password string) (*models.Principal, error)
	SecretQuestion(ctx context.Context, principalID string) (string, error)
	VerifySecretAnswer(ctx context.Context, principalID, answer string) (*models.Principal, error)
	TOTPSecret(ctx context.Context, principalID string) (string, error)
	DefaultLocale(ctx context.Context, principalID string) (string, error)
}

// StateStore issues and consumes OAuth state values bound to a login id.
type StateStore interface {
	Create(ctx context.Context, state, loginID string) error
	Verify(ctx context.Context, state, loginID string) bool
}

// Deps is what a factory may hand to the scheme it builds.
type Deps struct {
	Directory   Directory
	Logger      *zap.Logger
	Replay      ReplayGuard
	OAuthStates StateStore
	HTTPClient  *http.Client
	Now         func() time.Time

	// Lookup resolves another configured scheme by id. Composite schemes use
	// it to reach their factors. Manager fills it in.
	Lookup func(ctx context.Context, id string) (Scheme, error)
}

func (d Deps) logger() *zap.Logger {
	if d.Logger == nil {
		return zap.NewNop()
	}
	return d.Logger
}

func (d Deps) now() time.Time {
	if d.Now == nil {
		return time.Now()
	}
	return d.Now()
}

// Factory builds an unconfigured scheme.
type Factory func(Deps) Scheme

// Registry maps scheme type names to factories. It is populated at startup
// and read on every configuration change.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register adds or replaces the factory for typ.
func (r *Registry) Register(typ string, f Factory) {
	r.mu.Lock()
	r.factories[typ] = f
	r.mu.Unlock()
}

func (r *Registry) Lookup(typ string) (Factory, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.factories[typ]
	return f, ok
}

// Types returns the registered type names, sorted.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Sorted(maps.Keys(r.factories))
}

// DefaultRegistry returns a registry holding every built-in scheme type.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(TypeBasic, func(d Deps) Scheme { return NewBasic(d) })
	r.Register(TypeSecretQuestion, func(d Deps) Scheme { return NewSecretQuestion(d) })
	r.Register(TypeToken, func(d Deps) Scheme { return NewToken(d) })
	r.Register(TypeTwoFactor, func(d Deps) Scheme { return NewTwoFactor(d) })
	r.Register(TypeOAuth2, func(d Deps) Scheme { return NewOAuth2(d) })
	r.Register(TypeBearer, func(d Deps) Scheme { return NewBearer(d) })
	return r
}
