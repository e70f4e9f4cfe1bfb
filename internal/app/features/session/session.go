// internal/app/features/session/session.go
package session

// Terminology: Identifiers
//   - LoginID / loginID / login_id: The opaque id of one login record
//   - SessionID / session_id: The transport session token; never shown to the client it belongs to

import (
	"net/http"
	"strconv"

	"github.com/dalemusser/strataauth/internal/app/system/gatekeeper"
	"github.com/dalemusser/strataauth/internal/app/system/jsonutil"
	"github.com/dalemusser/strataauth/internal/app/system/negotiation"
	"github.com/dalemusser/strataauth/internal/app/system/userlogin"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// Registry is the active-login view the diagnostics listing reads.
type Registry interface {
	ActiveLogins() []*userlogin.Record
}

// Handler serves the identity probe and the active-login listing.
type Handler struct {
	logins Registry
	logger *zap.Logger
}

func NewHandler(logins Registry, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{logins: logins, logger: logger}
}

// ProbeResponse is what GET /api/session returns.
type ProbeResponse struct {
	Authenticated bool               `json:"authenticated"`
	ChallengeURL  string             `json:"challenge_url,omitempty"`
	LastError     string             `json:"last_error,omitempty"`
	Locale        string             `json:"locale,omitempty"`
	Login         *userlogin.Summary `json:"login"`
}

// ActiveResponse is what GET /api/session/active returns.
type ActiveResponse struct {
	Count  int                 `json:"count"`
	Logins []userlogin.Summary `json:"logins"`
}

// ProbeRoutes mounts the probe. It must sit behind the gatekeeper, which
// lets unauthenticated probes through with the challenge in the Location
// header.
func ProbeRoutes(h *Handler) http.Handler {
	r := chi.NewRouter()
	r.Get("/", h.Probe)
	return r
}

// ActiveRoutes mounts the listing behind guard (the admin key check).
func ActiveRoutes(h *Handler, guard func(http.Handler) http.Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(guard)
	r.Get("/", h.Active)
	return r
}

// Probe reports the caller's own negotiation state.
func (h *Handler) Probe(w http.ResponseWriter, r *http.Request) {
	s, ok := negotiation.FromContext(r.Context())
	if !ok {
		h.logger.Error("session probe reached without a negotiation session")
		jsonutil.Error(w, http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError))
		return
	}
	rec := s.Record()
	sum := rec.Summary()
	sum.SessionID = ""

	jsonutil.OK(w, ProbeResponse{
		Authenticated: rec.IsAuthenticated(),
		ChallengeURL:  w.Header().Get(gatekeeper.ChallengeHeader),
		LastError:     s.LastError(),
		Locale:        s.Locale(),
		Login:         &sum,
	})
}

// Active lists the active logins in registration order. ?limit=n keeps the
// first n.
func (h *Handler) Active(w http.ResponseWriter, r *http.Request) {
	recs := h.logins.ActiveLogins()
	resp := ActiveResponse{Count: len(recs), Logins: make([]userlogin.Summary, 0, len(recs))}

	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			jsonutil.BadRequest(w, "limit must be a non-negative integer")
			return
		}
		recs = recs[:min(n, len(recs))]
	}
	for _, rec := range recs {
		resp.Logins = append(resp.Logins, rec.Summary())
	}
	jsonutil.OK(w, resp)
}
