// internal/app/features/logout/logout.go
package logout

import (
	"net/http"

	"github.com/dalemusser/strataauth/internal/app/system/negotiation"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// Handler ends logins.
type Handler struct {
	after  string
	logger *zap.Logger
}

// NewHandler creates a logout Handler that sends the visitor to after ("/"
// if empty) once the login has ended.
func NewHandler(after string, logger *zap.Logger) *Handler {
	if after == "" {
		after = "/"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{after: after, logger: logger}
}

// Routes mounts logout. It must sit behind the gatekeeper, so only an
// authenticated login reaches it.
func Routes(h *Handler) http.Handler {
	r := chi.NewRouter()
	r.Post("/", h.handleLogout)
	r.Get("/", h.handleLogout) // simple logout links
	return r
}

// handleLogout destroys the transport session and records the outcome on
// the login record.
func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	s, ok := negotiation.FromContext(r.Context())
	if !ok {
		h.logger.Error("logout reached without a negotiation session")
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	ctx := s.Context()
	rec := s.Record()

	if !rec.IsAuthenticated() {
		http.Redirect(w, r, h.after, http.StatusSeeOther)
		return
	}

	if err := s.Invalidate(); err != nil {
		rec.MarkLogoutFailure(ctx)
		h.logger.Error("logout failed",
			zap.String("login_id", rec.ID()),
			zap.String("username", rec.Username()),
			zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	rec.MarkLogoutSuccess(ctx)
	h.logger.Info("logout succeeded",
		zap.String("login_id", rec.ID()),
		zap.String("username", rec.Username()))

	http.Redirect(w, r, h.after, http.StatusSeeOther)
}
