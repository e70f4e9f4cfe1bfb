// internal/app/features/login/login.go
package login

// Terminology: Steps
//   - password: the challenge page of a username/password scheme
//   - secret-question: the challenge page of the secret question factor
//   - token: the challenge page of the one-time code scheme
//
// The pages only render forms. Credentials posted back are verified by the
// gatekeeper before the handler runs; the handler sees the outcome on the
// login record and in the stashed last error.

import (
	"html/template"
	"net/http"

	"github.com/dalemusser/strataauth/internal/app/system/gatekeeper"
	"github.com/dalemusser/strataauth/internal/app/system/negotiation"
	"github.com/dalemusser/strataauth/internal/app/system/scheme"
	"github.com/dalemusser/waffle/pantry/query"
	"github.com/dalemusser/waffle/pantry/templates"
	"github.com/dalemusser/waffle/pantry/urlutil"
	"github.com/go-chi/chi/v5"
	"github.com/gorilla/csrf"
	"go.uber.org/zap"
)

// Step names.
const (
	StepPassword       = "password"
	StepSecretQuestion = "secret-question"
	StepToken          = "token"
)

// Handler serves the challenge pages.
type Handler struct {
	after  string
	logger *zap.Logger
}

// NewHandler creates a login Handler. Authenticated visitors are sent to
// after ("/" if empty).
func NewHandler(after string, logger *zap.Logger) *Handler {
	if after == "" {
		after = "/"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{after: after, logger: logger}
}

// Routes mounts the pages at the default challenge URLs of the built-in
// schemes, relative to the mount point ("/login").
func Routes(h *Handler) http.Handler {
	r := chi.NewRouter()
	r.Get("/", h.page(StepPassword))
	r.Post("/", h.page(StepPassword))
	r.Get("/secret-question", h.page(StepSecretQuestion))
	r.Post("/secret-question", h.page(StepSecretQuestion))
	r.Get("/token", h.page(StepToken))
	r.Post("/token", h.page(StepToken))
	return r
}

type pageVM struct {
	Step      string
	Title     string
	Lang      string
	Action    string
	Error     string
	Username  string
	Question  string
	CSRFField template.HTML
}

func (h *Handler) page(step string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, ok := negotiation.FromContext(r.Context())
		if !ok {
			h.logger.Error("login page reached without a negotiation session", zap.String("path", r.URL.Path))
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			return
		}
		rec := s.Record()
		if rec.IsAuthenticated() {
			// Same parameter the gatekeeper honors on a fresh login.
			target := urlutil.SafeReturn(query.Get(r, gatekeeper.ParamRedirect), "", h.after)
			http.Redirect(w, r, target, http.StatusSeeOther)
			return
		}

		vm := pageVM{
			Step:      step,
			Title:     "Sign in",
			Lang:      s.Locale(),
			Action:    r.URL.RequestURI(),
			Error:     s.LastError(),
			Username:  rec.Username(),
			CSRFField: csrf.TemplateField(r),
		}
		if vm.Lang == "" {
			vm.Lang = "en"
		}
		if v, ok := s.Attribute(scheme.AttrSecretQuestion); ok {
			vm.Question, _ = v.(string)
		}

		// The error is shown once.
		if vm.Error != "" {
			s.ClearLastError()
			if err := s.Save(); err != nil {
				h.logger.Warn("failed to save session", zap.String("login_id", rec.ID()), zap.Error(err))
			}
		}

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Header().Set("Cache-Control", "no-store")
		templates.Render(w, r, "login/page", vm)
	}
}
