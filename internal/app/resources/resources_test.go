package resources

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/dalemusser/waffle/pantry/templates"
)

func TestAssetsHandler(t *testing.T) {
	h := AssetsHandler("/assets")

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/assets/css/auth.css", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Header().Get("Content-Type"), "text/css") {
		t.Errorf("Content-Type = %q", rec.Header().Get("Content-Type"))
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/assets/css/missing.css", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("missing asset status = %d, want 404", rec.Code)
	}
}

func TestLoadSharedTemplates(t *testing.T) {
	LoadSharedTemplates()
	LoadSharedTemplates()

	n := 0
	for _, s := range templates.All() {
		if s.Name == "shared" {
			n++
		}
	}
	if n != 1 {
		t.Errorf("shared sets registered = %d, want 1", n)
	}
}
