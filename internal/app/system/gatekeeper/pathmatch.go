// internal/app/system/gatekeeper/pathmatch.go
package gatekeeper

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
)

// matchPattern reports whether path matches one configured pattern.
// Matching is case-insensitive and both sides are trimmed. A leading "*"
// matches by suffix, a trailing "*" by prefix, both by substring, and a
// lone "*" matches everything.
func matchPattern(pattern, path string) bool {
	pattern = strings.ToLower(strings.TrimSpace(pattern))
	path = strings.ToLower(strings.TrimSpace(path))
	if pattern == "" {
		return false
	}
	if pattern == "*" {
		return true
	}
	lead := strings.HasPrefix(pattern, "*")
	trail := strings.HasSuffix(pattern, "*")
	core := strings.Trim(pattern, "*")
	switch {
	case lead && trail:
		return strings.Contains(path, core)
	case lead:
		return strings.HasSuffix(path, core)
	case trail:
		return strings.HasPrefix(path, core)
	default:
		return path == core
	}
}

// matchAny reports whether any pattern matches any of the paths.
func matchAny(patterns, paths []string) bool {
	for _, p := range patterns {
		for _, path := range paths {
			if matchPattern(p, path) {
				return true
			}
		}
	}
	return false
}

// requestPaths returns the forms of the request path patterns are checked
// against: the full path, the path relative to basePath, and the path the
// router resolved (which omits any mount prefix). Duplicates are dropped.
func requestPaths(r *http.Request, basePath string) []string {
	full := r.URL.Path
	paths := []string{full}
	add := func(p string) {
		if p == "" {
			return
		}
		for _, have := range paths {
			if have == p {
				return
			}
		}
		paths = append(paths, p)
	}

	if bp := strings.TrimRight(basePath, "/"); bp != "" && strings.HasPrefix(full, bp) {
		rel := strings.TrimPrefix(full, bp)
		if rel == "" {
			rel = "/"
		}
		add(rel)
	}
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		add(rctx.RoutePath)
	}
	return paths
}

// localTarget accepts only same-origin absolute paths.
func localTarget(v string) (string, bool) {
	v = strings.TrimSpace(v)
	if v == "" || !strings.HasPrefix(v, "/") || strings.HasPrefix(v, "//") || strings.HasPrefix(v, "/\\") {
		return "", false
	}
	return v, true
}
