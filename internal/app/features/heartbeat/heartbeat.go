// internal/app/features/heartbeat/heartbeat.go
package heartbeat

import (
	"net/http"
	"time"

	"github.com/dalemusser/strataauth/internal/app/system/jsonutil"
	"github.com/dalemusser/strataauth/internal/app/system/negotiation"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// Handler keeps a login alive from client-side code and reports how long it
// has left. Opening the negotiation session already stamps last activity,
// so the request itself is the keep-alive.
type Handler struct {
	idle    time.Duration
	warning time.Duration
	log     *zap.Logger
}

// NewHandler creates a heartbeat handler. idle is the login idle timeout
// (0: logins never idle out); warning is the window before expiry in which
// the response sets idle_warning.
func NewHandler(idle, warning time.Duration, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{idle: idle, warning: warning, log: logger}
}

// Routes mounts POST /. It must sit behind the gatekeeper.
func Routes(h *Handler) http.Handler {
	r := chi.NewRouter()
	r.Post("/", h.ServeHeartbeat)
	return r
}

type heartbeatResponse struct {
	Authenticated    bool       `json:"authenticated"`
	ExpiresAt        *time.Time `json:"expires_at,omitempty"`
	SecondsRemaining int        `json:"seconds_remaining,omitempty"`
	IdleWarning      bool       `json:"idle_warning,omitempty"`
}

// ServeHeartbeat handles POST /api/heartbeat.
func (h *Handler) ServeHeartbeat(w http.ResponseWriter, r *http.Request) {
	s, ok := negotiation.FromContext(r.Context())
	if !ok {
		h.log.Error("heartbeat reached without a negotiation session")
		jsonutil.Error(w, http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError))
		return
	}
	rec := s.Record()
	if !rec.IsAuthenticated() {
		// Only reachable when the path is whitelisted.
		jsonutil.OK(w, heartbeatResponse{})
		return
	}

	resp := heartbeatResponse{Authenticated: true}
	if h.idle > 0 {
		expires := rec.LastActivity().Add(h.idle).UTC()
		remaining := time.Until(expires)
		resp.ExpiresAt = &expires
		resp.SecondsRemaining = max(int(remaining.Seconds()), 0)
		resp.IdleWarning = remaining <= h.warning
	}

	h.log.Debug("heartbeat", zap.String("login_id", rec.ID()))
	jsonutil.OK(w, resp)
}
