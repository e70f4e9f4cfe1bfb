// internal/app/system/authconfig/values.go
// Package authconfig is the authentication configuration surface: a flat,
// immutable key space under the "auth" namespace, loaded from a TOML file
// and handed to schemes one sub-namespace at a time.
package authconfig

import (
	"maps"
	"slices"
	"strconv"
	"strings"
	"time"
)

// Values is an immutable key/value bag. The zero value is empty and usable.
type Values struct {
	m map[string]string
}

// FromMap copies m into a Values.
func FromMap(m map[string]string) Values {
	return Values{m: maps.Clone(m)}
}

// Has reports whether key is present, even with an empty value.
func (v Values) Has(key string) bool {
	_, ok := v.m[key]
	return ok
}

// String returns the trimmed value for key, or def when missing or blank.
func (v Values) String(key, def string) string {
	s, ok := v.m[key]
	if !ok {
		return def
	}
	if s = strings.TrimSpace(s); s == "" {
		return def
	}
	return s
}

// Bool parses key with strconv.ParseBool, returning def when missing or invalid.
func (v Values) Bool(key string, def bool) bool {
	b, err := strconv.ParseBool(v.String(key, ""))
	if err != nil {
		return def
	}
	return b
}

func (v Values) Int(key string, def int) int {
	n, err := strconv.Atoi(v.String(key, ""))
	if err != nil {
		return def
	}
	return n
}

func (v Values) Duration(key string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(v.String(key, ""))
	if err != nil {
		return def
	}
	return d
}

// List splits a comma-separated value, trimming tokens and dropping blanks.
func (v Values) List(key string) []string {
	var out []string
	for _, tok := range strings.Split(v.m[key], ",") {
		if tok = strings.TrimSpace(tok); tok != "" {
			out = append(out, tok)
		}
	}
	return out
}

// Sub returns the values whose keys start with prefix + ".", with that
// prefix removed.
func (v Values) Sub(prefix string) Values {
	prefix = strings.TrimSuffix(prefix, ".") + "."
	out := make(map[string]string)
	for k, val := range v.m {
		if rest, ok := strings.CutPrefix(k, prefix); ok && rest != "" {
			out[rest] = val
		}
	}
	return Values{m: out}
}

// Keys returns all keys, sorted.
func (v Values) Keys() []string {
	return slices.Sorted(maps.Keys(v.m))
}

func (v Values) Len() int { return len(v.m) }

// Map returns a copy of the underlying map.
func (v Values) Map() map[string]string {
	return maps.Clone(v.m)
}
