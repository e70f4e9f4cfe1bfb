// internal/app/system/authconfig/snapshot.go
package authconfig

import (
	"fmt"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Namespace is the fixed prefix of every authentication key.
const Namespace = "auth"

// Recognized keys, relative to Namespace.
const (
	KeyScheme      = "scheme"      // active top-level scheme id
	KeyWhitelist   = "whitelist"   // paths exempt from negotiation
	KeyNonRedirect = "nonredirect" // paths answered with 401 + Location instead of a redirect
	KeyProbe       = "probe"       // identity probe paths
	KeyFailClosed  = "fail_closed" // reject instead of pass through when misconfigured

	schemesPrefix = "schemes"
)

// DefaultProbePattern matches the identity probe endpoint.
const DefaultProbePattern = "*/api/session"

// Snapshot is one immutable view of the authentication configuration.
// Schemes are configured from a snapshot; a new snapshot means new schemes.
type Snapshot struct {
	values   Values
	loadedAt time.Time
}

// NewSnapshot builds a snapshot from flat keys. Keys may carry the "auth."
// prefix or not; keys outside the namespace are ignored when any key
// carries it.
func NewSnapshot(flat map[string]string) *Snapshot {
	ns := Namespace + "."
	scoped := false
	for k := range flat {
		if strings.HasPrefix(k, ns) {
			scoped = true
			break
		}
	}
	v := FromMap(flat)
	if scoped {
		v = v.Sub(Namespace)
	}
	return &Snapshot{values: v, loadedAt: time.Now().UTC()}
}

// Parse decodes a TOML document and flattens its [auth] table. Nested
// tables become dotted keys; arrays become comma-separated values.
func Parse(data []byte) (*Snapshot, error) {
	var doc map[string]any
	if _, err := toml.Decode(string(data), &doc); err != nil {
		return nil, fmt.Errorf("parse auth config: %w", err)
	}
	flat := make(map[string]string)
	if auth, ok := doc[Namespace].(map[string]any); ok {
		flatten("", auth, flat)
	}
	return &Snapshot{values: Values{m: flat}, loadedAt: time.Now().UTC()}, nil
}

// Load reads and parses the TOML file at path. An empty path yields an
// empty snapshot, which means "basic scheme, no exemptions".
func Load(path string) (*Snapshot, error) {
	if path == "" {
		return NewSnapshot(nil), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read auth config %s: %w", path, err)
	}
	return Parse(data)
}

func flatten(prefix string, in map[string]any, out map[string]string) {
	for k, v := range in {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		switch val := v.(type) {
		case map[string]any:
			flatten(key, val, out)
		case []any:
			parts := make([]string, 0, len(val))
			for _, item := range val {
				parts = append(parts, fmt.Sprint(item))
			}
			out[key] = strings.Join(parts, ",")
		case time.Time:
			out[key] = val.Format(time.RFC3339)
		default:
			out[key] = fmt.Sprint(val)
		}
	}
}

// Values returns every key in the namespace, without the "auth." prefix.
func (s *Snapshot) Values() Values { return s.values }

// LoadedAt is when the snapshot was produced.
func (s *Snapshot) LoadedAt() time.Time { return s.loadedAt }

// ActiveSchemeID returns the configured top-level scheme id, or "".
func (s *Snapshot) ActiveSchemeID() string {
	return s.values.String(KeyScheme, "")
}

func (s *Snapshot) Whitelist() []string   { return s.values.List(KeyWhitelist) }
func (s *Snapshot) NonRedirect() []string { return s.values.List(KeyNonRedirect) }

// ProbePatterns returns the identity probe patterns, defaulting to
// DefaultProbePattern when none are configured.
func (s *Snapshot) ProbePatterns() []string {
	if p := s.values.List(KeyProbe); len(p) > 0 {
		return p
	}
	return []string{DefaultProbePattern}
}

// FailClosed reports whether a non-interactive top-level scheme should
// reject requests instead of letting them through.
func (s *Snapshot) FailClosed() bool {
	return s.values.Bool(KeyFailClosed, false)
}

// SchemeIDs returns the ids that have a sub-namespace under auth.schemes.
func (s *Snapshot) SchemeIDs() []string {
	var ids []string
	for _, k := range s.values.Sub(schemesPrefix).Keys() {
		id, _, _ := strings.Cut(k, ".")
		if !slices.Contains(ids, id) {
			ids = append(ids, id)
		}
	}
	return ids
}

// SchemeConfig returns the auth.schemes.<id> sub-namespace.
func (s *Snapshot) SchemeConfig(id string) Values {
	return s.values.Sub(schemesPrefix + "." + id)
}

// SchemeType returns the configured type of scheme id, or "".
func (s *Snapshot) SchemeType(id string) string {
	return s.SchemeConfig(id).String("type", "")
}
