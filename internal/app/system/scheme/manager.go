// internal/app/system/scheme/manager.go
package scheme

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/dalemusser/strataauth/internal/app/system/authconfig"
	"github.com/dalemusser/strataauth/internal/app/system/autherr"
	"github.com/dalemusser/strataauth/internal/app/system/userlogin"
	"github.com/dalemusser/strataauth/internal/domain/models"
	"go.uber.org/zap"
)

// Guard is a cross-cutting hook on the global entry point. Allow runs before
// the active scheme and may veto the attempt; Observe runs after it.
type Guard interface {
	Allow(ctx context.Context, creds Credentials) error
	Observe(ctx context.Context, creds Credentials, p *models.Principal, err error)
}

// Manager is the global authentication entry point. It builds schemes from
// the configuration snapshot in effect and caches them until the snapshot
// changes.
type Manager struct {
	loader   authconfig.Loader
	registry *Registry
	deps     Deps
	log      *zap.Logger

	guardsMu sync.RWMutex
	guards   []Guard

	mu    sync.Mutex
	snap  *authconfig.Snapshot
	cache map[string]Scheme
}

// NewManager creates a Manager. deps.Lookup is overwritten so composite
// schemes resolve their factors through this manager.
func NewManager(loader authconfig.Loader, registry *Registry, deps Deps) *Manager {
	if registry == nil {
		registry = DefaultRegistry()
	}
	m := &Manager{
		loader:   loader,
		registry: registry,
		log:      deps.logger(),
	}
	deps.Lookup = m.Scheme
	m.deps = deps
	return m
}

// Use registers a guard. Guards run in registration order.
func (m *Manager) Use(g Guard) {
	m.guardsMu.Lock()
	m.guards = append(m.guards, g)
	m.guardsMu.Unlock()
}

// Snapshot returns the configuration in effect.
func (m *Manager) Snapshot(ctx context.Context) (*authconfig.Snapshot, error) {
	snap, err := m.loader.Snapshot(ctx)
	if err != nil {
		if errors.Is(err, autherr.ErrConfiguration) {
			return nil, err
		}
		return nil, autherr.Wrap(autherr.ErrConfiguration, "", err)
	}
	return snap, nil
}

// Scheme returns the configured scheme with the given id. An id with no
// type of its own is accepted when it names a registered type, so
// "basic" works without any configuration.
func (m *Manager) Scheme(ctx context.Context, id string) (Scheme, error) {
	snap, err := m.Snapshot(ctx)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if snap != m.snap {
		m.snap = snap
		m.cache = make(map[string]Scheme)
	}
	if s, ok := m.cache[id]; ok {
		return s, nil
	}

	typ := snap.SchemeType(id)
	if typ == "" {
		typ = id
	}
	factory, ok := m.registry.Lookup(typ)
	if !ok {
		return nil, autherr.New(autherr.ErrConfiguration, id, fmt.Sprintf("unknown scheme type %q", typ))
	}
	s := factory(m.deps)
	if err := s.Configure(id, snap.SchemeConfig(id)); err != nil {
		m.log.Error("scheme configuration failed", zap.String("scheme_id", id), zap.String("type", typ), zap.Error(err))
		if errors.Is(err, autherr.ErrConfiguration) {
			return nil, err
		}
		return nil, autherr.Wrap(autherr.ErrConfiguration, id, err)
	}
	m.cache[id] = s
	m.log.Debug("scheme configured", zap.String("scheme_id", id), zap.String("type", typ))
	return s, nil
}

// ActiveID returns the top-level scheme id, DefaultSchemeID when unset.
func (m *Manager) ActiveID(ctx context.Context) (string, error) {
	snap, err := m.Snapshot(ctx)
	if err != nil {
		return "", err
	}
	if id := snap.ActiveSchemeID(); id != "" {
		return id, nil
	}
	return DefaultSchemeID, nil
}

// Active returns the top-level scheme behind a Delegating wrapper.
func (m *Manager) Active(ctx context.Context) (*Delegating, error) {
	id, err := m.ActiveID(ctx)
	if err != nil {
		return nil, err
	}
	s, err := m.Scheme(ctx, id)
	if err != nil {
		return nil, err
	}
	return NewDelegating(s), nil
}

// Authenticate runs the active scheme between the guards.
func (m *Manager) Authenticate(ctx context.Context, creds Credentials) (*models.Principal, error) {
	active, err := m.Active(ctx)
	if err != nil {
		return nil, err
	}
	return m.Guarded(ctx, active, creds)
}

// Guarded runs s between the guards. Every credential check, including each
// factor of a composite, goes through here. A guard veto is recorded on the
// current login record as a failure of s.
func (m *Manager) Guarded(ctx context.Context, s Scheme, creds Credentials) (*models.Principal, error) {
	m.guardsMu.RLock()
	guards := append([]Guard(nil), m.guards...)
	m.guardsMu.RUnlock()

	for _, g := range guards {
		if err := g.Allow(ctx, creds); err != nil {
			if rec := userlogin.Current(ctx); rec != nil {
				rec.RecordCredentialFailure(ctx, s.ID())
			}
			m.log.Warn("authentication attempt refused",
				zap.String("scheme_id", s.ID()),
				zap.String("username", labelOf(creds)),
				zap.Error(err))
			return nil, err
		}
	}

	p, err := s.Authenticate(ctx, creds)
	for _, g := range guards {
		g.Observe(ctx, creds, p, err)
	}
	return p, err
}

func labelOf(creds Credentials) string {
	if creds == nil {
		return ""
	}
	return creds.Label()
}
