// internal/app/features/home/home.go
package home

import (
	"html/template"
	"net/http"
	"time"

	"github.com/dalemusser/strataauth/internal/app/system/negotiation"
	"github.com/dalemusser/waffle/pantry/templates"
	"github.com/go-chi/chi/v5"
	"github.com/gorilla/csrf"
	"go.uber.org/zap"
)

// Handler provides the landing page an authenticated visitor arrives at.
type Handler struct {
	logoutURL string
	logger    *zap.Logger
}

// NewHandler creates a new home Handler. logoutURL is where the sign-out
// form posts ("/logout" if empty).
func NewHandler(logoutURL string, logger *zap.Logger) *Handler {
	if logoutURL == "" {
		logoutURL = "/logout"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{logoutURL: logoutURL, logger: logger}
}

// HomeVM is the view model for the home page.
type HomeVM struct {
	Title     string
	Lang      string
	Name      string
	Schemes   []string
	LoginAt   time.Time
	LogoutURL string
	CSRFField template.HTML
}

// Routes returns a chi.Router with home routes mounted. It must sit behind
// the gatekeeper.
func Routes(h *Handler) http.Handler {
	r := chi.NewRouter()
	r.Get("/", h.Index)
	return r
}

// Index renders the home page.
func (h *Handler) Index(w http.ResponseWriter, r *http.Request) {
	s, ok := negotiation.FromContext(r.Context())
	if !ok || !s.Record().IsAuthenticated() {
		// The gatekeeper lets an anonymous visitor through only when "/" is
		// whitelisted; there is nobody to greet.
		h.logger.Debug("home page requested without an authenticated login", zap.String("path", r.URL.Path))
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}
	rec := s.Record()

	vm := HomeVM{
		Title:     "Home",
		Lang:      s.Locale(),
		Name:      rec.Username(),
		Schemes:   rec.ValidatedSchemeIDs(),
		LoginAt:   rec.LoginAt(),
		LogoutURL: h.logoutURL,
		CSRFField: csrf.TemplateField(r),
	}
	if p := rec.Principal(); p != nil && p.DisplayName != "" {
		vm.Name = p.DisplayName
	}
	if vm.Lang == "" {
		vm.Lang = "en"
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	templates.Render(w, r, "home/index", vm)
}
