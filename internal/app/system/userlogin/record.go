// internal/app/system/userlogin/record.go
// Package userlogin holds the per-attempt negotiation state (Record), the
// process-wide registry of active logins (Tracker), and the per-request
// binding of the record being negotiated (Binding).
package userlogin

// Terminology: Identifiers
//   - LoginID / loginID / login_id: The opaque id of one authentication attempt (a Record)
//   - Username / username: The human-readable string users type to log in
//   - PrincipalID / principal_id: The verified user's id (user _id as hex)

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/dalemusser/strataauth/internal/app/system/autherr"
	"github.com/dalemusser/strataauth/internal/app/system/eventlog"
	"github.com/dalemusser/strataauth/internal/domain/models"
	"github.com/google/uuid"
)

// Event names appended to a record's trail.
const (
	EventAuthSucceeded    = "AUTH_SUCCEEDED"
	EventAuthFailed       = "AUTH_FAILED"
	EventLoginSucceeded   = "LOGIN_SUCCEEDED"
	EventLoginFailed      = "LOGIN_FAILED"
	EventLogoutSucceeded  = "LOGOUT_SUCCEEDED"
	EventLogoutFailed     = "LOGOUT_FAILED"
	EventLoginExpired     = "LOGIN_EXPIRED"
	EventCredentialsReset = "CREDENTIALS_RESET"

	// eventIdentityConflict is logged but never appended: a conflicting
	// success leaves the record exactly as it was.
	eventIdentityConflict = "IDENTITY_CONFLICT"
)

// Credential is a scheme-specific value awaiting verification.
// Implementations must be registered with encoding/gob so a Record holding
// them can travel inside a transport session, and must keep secrets out of
// any String or log representation.
type Credential interface {
	SchemeID() string
	Label() string // client-identifying label, e.g. the username
}

// Event is one entry of a record's trail.
type Event struct {
	Name string    `json:"name"`
	At   time.Time `json:"at"`
}

// Record is the state of one authentication attempt. All methods are safe
// for concurrent use.
type Record struct {
	mu sync.Mutex

	id           string
	createdAt    time.Time
	loginAt      time.Time
	logoutAt     time.Time
	lastActivity time.Time

	sessionID string
	ip        string

	principal *models.Principal
	username  string

	unvalidated map[string]Credential
	validated   []string // insertion ordered, no duplicates
	events      []Event

	// Not serialized; wired by Tracker.NewRecord and Tracker.Attach.
	tracker *Tracker
	log     *eventlog.Logger
	now     func() time.Time
}

func newRecord(id string, now func() time.Time) *Record {
	if now == nil {
		now = time.Now
	}
	t := now().UTC()
	return &Record{
		id:           id,
		createdAt:    t,
		lastActivity: t,
		unvalidated:  make(map[string]Credential),
		now:          now,
	}
}

// NewRecord returns a detached record with a fresh login id. Records created
// this way emit no events and are not registered anywhere until attached to
// a Tracker; use Tracker.NewRecord in request handling.
func NewRecord() *Record {
	return newRecord(uuid.NewString(), nil)
}

/*─────────────────────────────────────────────────────────────────────────────*
| Read-only accessors                                                         |
*─────────────────────────────────────────────────────────────────────────────*/

// ID returns the login id.
func (r *Record) ID() string { return r.id }

func (r *Record) CreatedAt() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.createdAt
}

func (r *Record) LoginAt() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.loginAt
}

func (r *Record) LogoutAt() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.logoutAt
}

func (r *Record) LastActivity() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastActivity
}

func (r *Record) SessionID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sessionID
}

func (r *Record) IP() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ip
}

// Principal returns the verified (or candidate) principal, or nil.
// The returned value must be treated as read-only.
func (r *Record) Principal() *models.Principal {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.principal
}

// Username returns the best available username: the principal's login name
// when known, otherwise whatever was stashed from submitted credentials.
func (r *Record) Username() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.principal != nil && r.principal.Name != "" {
		return r.principal.Name
	}
	return r.username
}

// IsAuthenticated reports whether the attempt has completed a full login
// that has not since ended.
func (r *Record) IsAuthenticated() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.principal != nil && !r.loginAt.IsZero() && r.logoutAt.IsZero()
}

// HasValidated reports whether schemeID is in the validated set.
func (r *Record) HasValidated(schemeID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Contains(r.validated, schemeID)
}

// ValidatedSchemeIDs returns a copy of the validated set in validation order.
func (r *Record) ValidatedSchemeIDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.validated)
}

// UnvalidatedSchemeIDs returns the scheme ids with credentials awaiting
// verification, sorted.
func (r *Record) UnvalidatedSchemeIDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, 0, len(r.unvalidated))
	for id := range r.unvalidated {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// UnvalidatedCredential returns the credential awaiting verification for
// schemeID, or nil.
func (r *Record) UnvalidatedCredential(schemeID string) Credential {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.unvalidated[schemeID]
}

// ContainsEvent reports whether the trail holds an event with the given name.
func (r *Record) ContainsEvent(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.containsEventLocked(name)
}

func (r *Record) containsEventLocked(name string) bool {
	for _, e := range r.events {
		if e.Name == name {
			return true
		}
	}
	return false
}

// Events returns a copy of the trail.
func (r *Record) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.events)
}

/*─────────────────────────────────────────────────────────────────────────────*
| Linkage                                                                     |
*─────────────────────────────────────────────────────────────────────────────*/

// SetSessionID re-points the record at a transport session.
func (r *Record) SetSessionID(id string) {
	r.mu.Lock()
	r.sessionID = id
	r.mu.Unlock()
}

// SetIP records the client address and returns the previous one.
func (r *Record) SetIP(ip string) (previous string) {
	r.mu.Lock()
	previous, r.ip = r.ip, ip
	r.mu.Unlock()
	return previous
}

// SetUsername stashes the username a client claimed before any principal
// is known. It does not affect the principal.
func (r *Record) SetUsername(username string) {
	r.mu.Lock()
	r.username = username
	r.mu.Unlock()
}

// Touch stamps the last-activity time.
func (r *Record) Touch() {
	r.mu.Lock()
	r.lastActivity = r.clock()
	r.mu.Unlock()
}

func (r *Record) clock() time.Time {
	if r.now == nil {
		return time.Now().UTC()
	}
	return r.now().UTC()
}

/*─────────────────────────────────────────────────────────────────────────────*
| Credential ledger                                                           |
*─────────────────────────────────────────────────────────────────────────────*/

// AddUnvalidatedCredential places cred in the ledger, replacing any earlier
// credential for the same scheme.
func (r *Record) AddUnvalidatedCredential(cred Credential) {
	if cred == nil {
		return
	}
	r.mu.Lock()
	r.unvalidated[cred.SchemeID()] = cred
	r.mu.Unlock()
}

// RemoveUnvalidatedCredential drops the credential awaiting verification
// for schemeID, if any.
func (r *Record) RemoveUnvalidatedCredential(schemeID string) {
	r.mu.Lock()
	delete(r.unvalidated, schemeID)
	r.mu.Unlock()
}

// RecordCredentialFailure drops the unvalidated credential for schemeID,
// clears the principal when nothing has been validated yet, and appends
// AUTH_FAILED.
func (r *Record) RecordCredentialFailure(ctx context.Context, schemeID string) {
	r.mu.Lock()
	delete(r.unvalidated, schemeID)
	if len(r.validated) == 0 {
		r.principal = nil
	}
	entry := r.appendLocked(EventAuthFailed, schemeID, false)
	r.mu.Unlock()

	r.log.Log(ctx, entry)
}

// RecordCredentialSuccess marks schemeID validated for principal.
//
// It fails with autherr.ErrIdentityConflict, leaving the record untouched,
// when principal is nil or differs from the principal already established
// by an earlier factor.
func (r *Record) RecordCredentialSuccess(ctx context.Context, schemeID string, principal *models.Principal) error {
	r.mu.Lock()
	if principal == nil || (r.principal != nil && !r.principal.Equal(principal)) {
		entry := r.entryLocked(eventIdentityConflict, schemeID, false)
		r.mu.Unlock()
		entry.Reason = "identity_conflict"
		r.log.Log(ctx, entry)
		if principal == nil {
			return autherr.New(autherr.ErrIdentityConflict, schemeID, "no principal resolved")
		}
		return autherr.New(autherr.ErrIdentityConflict, schemeID, "factor resolved to a different principal")
	}

	r.principal = principal
	if !slices.Contains(r.validated, schemeID) {
		r.validated = append(r.validated, schemeID)
	}
	delete(r.unvalidated, schemeID)
	entry := r.appendLocked(EventAuthSucceeded, schemeID, true)
	r.mu.Unlock()

	r.log.Log(ctx, entry)
	return nil
}

// ResetCredential removes schemeID from the validated set. Removing the last
// validated scheme before LOGIN_SUCCEEDED clears the principal.
func (r *Record) ResetCredential(ctx context.Context, schemeID string) {
	r.mu.Lock()
	idx := slices.Index(r.validated, schemeID)
	if idx < 0 {
		r.mu.Unlock()
		return
	}
	r.validated = slices.Delete(r.validated, idx, idx+1)
	if len(r.validated) == 0 && !r.containsEventLocked(EventLoginSucceeded) {
		r.principal = nil
	}
	entry := r.appendLocked(EventCredentialsReset, schemeID, true)
	r.mu.Unlock()

	r.log.Log(ctx, entry)
}

// Reset clears all negotiation progress: validated set, ledger, and
// principal. The login id and trail are kept.
func (r *Record) Reset(ctx context.Context) {
	r.mu.Lock()
	r.validated = nil
	clear(r.unvalidated)
	r.principal = nil
	entry := r.appendLocked(EventCredentialsReset, "", true)
	r.mu.Unlock()

	r.log.Log(ctx, entry)
}

/*─────────────────────────────────────────────────────────────────────────────*
| Lifecycle                                                                   |
*─────────────────────────────────────────────────────────────────────────────*/

// MarkLoginSuccess stamps the login time (first time only), appends
// LOGIN_SUCCEEDED, and registers the record as an active login.
func (r *Record) MarkLoginSuccess(ctx context.Context) {
	r.mu.Lock()
	if r.loginAt.IsZero() {
		r.loginAt = r.clock()
	}
	r.logoutAt = time.Time{}
	entry := r.appendLocked(EventLoginSucceeded, "", true)
	tracker := r.tracker
	r.mu.Unlock()

	tracker.RegisterActive(r)
	r.log.Log(ctx, entry)
}

// MarkLoginFailure appends LOGIN_FAILED and makes sure the record is not
// listed as active.
func (r *Record) MarkLoginFailure(ctx context.Context) {
	r.mu.Lock()
	entry := r.appendLocked(EventLoginFailed, "", false)
	tracker := r.tracker
	r.mu.Unlock()

	tracker.UnregisterActive(r)
	r.log.Log(ctx, entry)
}

// MarkLogoutSuccess stamps the logout time, appends LOGOUT_SUCCEEDED, and
// unregisters the record.
func (r *Record) MarkLogoutSuccess(ctx context.Context) {
	r.mu.Lock()
	r.logoutAt = r.clock()
	entry := r.appendLocked(EventLogoutSucceeded, "", true)
	tracker := r.tracker
	r.mu.Unlock()

	tracker.UnregisterActive(r)
	r.log.Log(ctx, entry)
}

// MarkLogoutFailure appends LOGOUT_FAILED. The record stays registered.
func (r *Record) MarkLogoutFailure(ctx context.Context) {
	r.mu.Lock()
	entry := r.appendLocked(EventLogoutFailed, "", false)
	r.mu.Unlock()

	r.log.Log(ctx, entry)
}

// MarkExpired stamps the logout time if unset, appends LOGIN_EXPIRED, and
// unregisters the record.
func (r *Record) MarkExpired(ctx context.Context) {
	r.mu.Lock()
	if r.logoutAt.IsZero() {
		r.logoutAt = r.clock()
	}
	entry := r.appendLocked(EventLoginExpired, "", true)
	tracker := r.tracker
	r.mu.Unlock()

	tracker.UnregisterActive(r)
	r.log.Log(ctx, entry)
}

// appendLocked adds an event to the trail and returns the matching log entry.
// r.mu must be held.
func (r *Record) appendLocked(name, schemeID string, success bool) eventlog.Entry {
	entry := r.entryLocked(name, schemeID, success)
	r.events = append(r.events, Event{Name: name, At: entry.At})
	return entry
}

// entryLocked snapshots the record's context into a log entry.
// r.mu must be held.
func (r *Record) entryLocked(name, schemeID string, success bool) eventlog.Entry {
	username := r.username
	principalID := ""
	if r.principal != nil {
		principalID = r.principal.ID
		if label := r.principal.Label(); label != "" {
			username = label
		}
	}
	return eventlog.Entry{
		Event:       name,
		LoginID:     r.id,
		SessionID:   r.sessionID,
		IP:          r.ip,
		Username:    username,
		PrincipalID: principalID,
		SchemeID:    schemeID,
		Success:     success,
		At:          r.clock(),
	}
}
