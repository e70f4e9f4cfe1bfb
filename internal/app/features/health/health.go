// internal/app/features/health/health.go
package health

import (
	"context"
	"net/http"

	"github.com/dalemusser/strataauth/internal/app/system/jsonutil"
	"github.com/dalemusser/strataauth/internal/app/system/timeouts"
	"github.com/go-chi/chi/v5"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.uber.org/zap"
)

// Pinger is satisfied by *mongo.Client.
type Pinger interface {
	Ping(ctx context.Context, rp *readpref.ReadPref) error
}

// Counter reports how many logins are live in this process.
type Counter interface {
	Len() int
}

// Handler provides health check endpoints.
type Handler struct {
	db     Pinger
	logins Counter
	check  func(context.Context) error
	logger *zap.Logger
}

// NewHandler creates a health Handler. logins and authCheck may be nil;
// authCheck reports whether the authentication configuration resolves.
func NewHandler(db Pinger, logins Counter, authCheck func(context.Context) error, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{db: db, logins: logins, check: authCheck, logger: logger}
}

// Response is the full health report.
type Response struct {
	Status       string            `json:"status"`
	Services     map[string]string `json:"services,omitempty"`
	ActiveLogins *int              `json:"active_logins,omitempty"`
}

// Routes returns /health (full check), /health/ready and /health/live.
func Routes(h *Handler) http.Handler {
	r := chi.NewRouter()
	r.Get("/", h.Check)
	r.Get("/ready", h.Ready)
	r.Get("/live", h.Live)
	return r
}

// MountRootEndpoints adds the Kubernetes probe aliases on the root router.
func MountRootEndpoints(r chi.Router, h *Handler) {
	r.Get("/ready", h.Ready)
	r.Get("/readyz", h.Ready)
	r.Get("/livez", h.Live)
}

// Check pings MongoDB, resolves the authentication configuration and
// reports the live login count. Any failed service degrades the report.
func (h *Handler) Check(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Ping())
	defer cancel()

	resp := Response{Status: "ok", Services: map[string]string{}}

	if err := h.db.Ping(ctx, readpref.Primary()); err != nil {
		resp.Status = "degraded"
		resp.Services["mongodb"] = "unavailable"
		h.logger.Warn("health check: mongodb ping failed", zap.Error(err))
	} else {
		resp.Services["mongodb"] = "ok"
	}

	if h.check != nil {
		if err := h.check(ctx); err != nil {
			// The reason stays in the log.
			resp.Status = "degraded"
			resp.Services["auth_config"] = "error"
			h.logger.Warn("health check: authentication configuration", zap.Error(err))
		} else {
			resp.Services["auth_config"] = "ok"
		}
	}

	if h.logins != nil {
		n := h.logins.Len()
		resp.ActiveLogins = &n
	}

	status := http.StatusOK
	if resp.Status != "ok" {
		status = http.StatusServiceUnavailable
	}
	jsonutil.JSON(w, status, resp)
}

// Ready reports whether MongoDB is reachable.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Ping())
	defer cancel()

	if err := h.db.Ping(ctx, readpref.Primary()); err != nil {
		h.logger.Warn("readiness check failed", zap.Error(err))
		jsonutil.JSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not ready"})
		return
	}
	jsonutil.OK(w, map[string]string{"status": "ready"})
}

// Live always answers while the process serves.
func (h *Handler) Live(w http.ResponseWriter, r *http.Request) {
	jsonutil.OK(w, map[string]string{"status": "alive"})
}
