// internal/app/system/userlogin/codec.go
package userlogin

import (
	"bytes"
	"encoding/gob"
	"maps"
	"slices"
	"time"

	"github.com/dalemusser/strataauth/internal/domain/models"
)

func init() {
	// Lets a *Record live in gorilla session values, which are gob encoded.
	gob.Register(&Record{})
}

// Summary is a point-in-time, read-only view of a record.
type Summary struct {
	LoginID      string            `json:"login_id"`
	SessionID    string            `json:"session_id,omitempty"`
	IP           string            `json:"ip,omitempty"`
	Username     string            `json:"username,omitempty"`
	Principal    *models.Principal `json:"principal,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
	LoginAt      time.Time         `json:"login_at,omitzero"`
	LogoutAt     time.Time         `json:"logout_at,omitzero"`
	LastActivity time.Time         `json:"last_activity"`
	Validated    []string          `json:"validated"`
	Pending      []string          `json:"pending"`
	Events       []Event           `json:"events"`
}

// Summary returns a consistent snapshot of the record.
func (r *Record) Summary() Summary {
	r.mu.Lock()
	defer r.mu.Unlock()

	pending := slices.Sorted(maps.Keys(r.unvalidated))
	username := r.username
	if r.principal != nil && r.principal.Name != "" {
		username = r.principal.Name
	}
	return Summary{
		LoginID:      r.id,
		SessionID:    r.sessionID,
		IP:           r.ip,
		Username:     username,
		Principal:    r.principal,
		CreatedAt:    r.createdAt,
		LoginAt:      r.loginAt,
		LogoutAt:     r.logoutAt,
		LastActivity: r.lastActivity,
		Validated:    slices.Clone(r.validated),
		Pending:      pending,
		Events:       slices.Clone(r.events),
	}
}

// wireRecord is the gob form of a Record.
type wireRecord struct {
	ID           string
	CreatedAt    time.Time
	LoginAt      time.Time
	LogoutAt     time.Time
	LastActivity time.Time
	SessionID    string
	IP           string
	Principal    *models.Principal
	Username     string
	Unvalidated  map[string]Credential
	Validated    []string
	Events       []Event
}

// GobEncode implements gob.GobEncoder. Credential values must have been
// registered with gob.Register by the package that defines them.
func (r *Record) GobEncode() ([]byte, error) {
	r.mu.Lock()
	w := wireRecord{
		ID:           r.id,
		CreatedAt:    r.createdAt,
		LoginAt:      r.loginAt,
		LogoutAt:     r.logoutAt,
		LastActivity: r.lastActivity,
		SessionID:    r.sessionID,
		IP:           r.ip,
		Principal:    r.principal,
		Username:     r.username,
		Unvalidated:  maps.Clone(r.unvalidated),
		Validated:    slices.Clone(r.validated),
		Events:       slices.Clone(r.events),
	}
	r.mu.Unlock()

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(w); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// GobDecode implements gob.GobDecoder. The decoded record is detached: it
// has no tracker or event log until passed through Tracker.Attach.
func (r *Record) GobDecode(data []byte) error {
	var w wireRecord
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&w); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.id = w.ID
	r.createdAt = w.CreatedAt
	r.loginAt = w.LoginAt
	r.logoutAt = w.LogoutAt
	r.lastActivity = w.LastActivity
	r.sessionID = w.SessionID
	r.ip = w.IP
	r.principal = w.Principal
	r.username = w.Username
	r.unvalidated = w.Unvalidated
	if r.unvalidated == nil {
		r.unvalidated = make(map[string]Credential)
	}
	r.validated = w.Validated
	r.events = w.Events
	return nil
}
