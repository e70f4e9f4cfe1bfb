// internal/domain/models/principal.go
package models

// Principal is the verified identity handed back by a successful scheme.
//
// ID is the stable identifier (the user record's _id as hex). Name is what
// the user typed to identify themselves. Properties carries per-principal
// settings consulted during negotiation, such as the secondary factor.
type Principal struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	DisplayName string            `json:"display_name,omitempty"`
	Locale      string            `json:"locale,omitempty"`
	Properties  map[string]string `json:"properties,omitempty"`
}

// Principal property keys.
const (
	PropertySecondaryFactor = "secondary_factor"
	PropertyRole            = "role"
)

// Equal reports whether p and o refer to the same identity.
// Two nil principals are equal; a nil and a non-nil principal are not.
func (p *Principal) Equal(o *Principal) bool {
	if p == nil || o == nil {
		return p == o
	}
	return p.ID == o.ID
}

// Property returns the named property or "".
func (p *Principal) Property(key string) string {
	if p == nil || p.Properties == nil {
		return ""
	}
	return p.Properties[key]
}

// Label is the best human-readable name: display name, then login name.
func (p *Principal) Label() string {
	if p == nil {
		return ""
	}
	if p.DisplayName != "" {
		return p.DisplayName
	}
	return p.Name
}
