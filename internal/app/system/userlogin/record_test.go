package userlogin

import (
	"context"
	"encoding/gob"
	"errors"
	"slices"
	"sync"
	"testing"

	"github.com/dalemusser/strataauth/internal/app/system/autherr"
	"github.com/dalemusser/strataauth/internal/app/system/eventlog"
	"github.com/dalemusser/strataauth/internal/domain/models"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type testCredential struct {
	Scheme   string
	Username string
	Secret   string
}

func (c *testCredential) SchemeID() string { return c.Scheme }
func (c *testCredential) Label() string    { return c.Username }

func init() {
	gob.Register(&testCredential{})
}

var (
	ada = &models.Principal{ID: "p-ada", Name: "ada", DisplayName: "Ada Lovelace"}
	bob = &models.Principal{ID: "p-bob", Name: "bob"}
)

func newTestTracker() (*Tracker, *observer.ObservedLogs) {
	core, logs := observer.New(zapcore.DebugLevel)
	return NewTracker(eventlog.New(nil, zap.New(core), eventlog.Config{Mode: eventlog.ModeLog})), logs
}

func eventNames(r *Record) []string {
	var names []string
	for _, e := range r.Events() {
		names = append(names, e.Name)
	}
	return names
}

func TestRecord_NewHasUniqueID(t *testing.T) {
	tr, _ := newTestTracker()
	a := tr.NewRecord("s1", "10.0.0.1")
	b := tr.NewRecord("s1", "10.0.0.1")
	if a.ID() == "" || a.ID() == b.ID() {
		t.Fatalf("expected distinct non-empty ids, got %q and %q", a.ID(), b.ID())
	}
	if a.SessionID() != "s1" || a.IP() != "10.0.0.1" {
		t.Errorf("linkage not set: session=%q ip=%q", a.SessionID(), a.IP())
	}
	if a.CreatedAt().IsZero() || a.LastActivity().IsZero() {
		t.Error("timestamps should be set on creation")
	}
	if a.IsAuthenticated() {
		t.Error("new record must not be authenticated")
	}
}

func TestRecord_RecordCredentialSuccess(t *testing.T) {
	ctx := context.Background()
	tr, _ := newTestTracker()
	r := tr.NewRecord("s1", "")
	r.AddUnvalidatedCredential(&testCredential{Scheme: "basic", Username: "ada"})

	if err := r.RecordCredentialSuccess(ctx, "basic", ada); err != nil {
		t.Fatalf("RecordCredentialSuccess() error = %v", err)
	}
	if !r.Principal().Equal(ada) {
		t.Errorf("principal = %+v, want ada", r.Principal())
	}
	if !r.HasValidated("basic") {
		t.Error("basic should be validated")
	}
	if r.UnvalidatedCredential("basic") != nil {
		t.Error("validated credential must leave the ledger")
	}
	if !r.ContainsEvent(EventAuthSucceeded) {
		t.Error("expected AUTH_SUCCEEDED")
	}

	// Same principal again, second factor.
	if err := r.RecordCredentialSuccess(ctx, "secretquestion", ada); err != nil {
		t.Fatalf("second factor error = %v", err)
	}
	if got := r.ValidatedSchemeIDs(); !slices.Equal(got, []string{"basic", "secretquestion"}) {
		t.Errorf("validated = %v", got)
	}

	// Repeating a validated scheme does not duplicate it.
	if err := r.RecordCredentialSuccess(ctx, "basic", ada); err != nil {
		t.Fatalf("repeat error = %v", err)
	}
	if got := r.ValidatedSchemeIDs(); len(got) != 2 {
		t.Errorf("validated = %v, want two entries", got)
	}
}

func TestRecord_IdentityConflictIsAtomic(t *testing.T) {
	ctx := context.Background()
	tr, logs := newTestTracker()
	r := tr.NewRecord("s1", "")

	if err := r.RecordCredentialSuccess(ctx, "basic", ada); err != nil {
		t.Fatal(err)
	}
	r.AddUnvalidatedCredential(&testCredential{Scheme: "token", Username: "ada"})
	before := r.Summary()

	err := r.RecordCredentialSuccess(ctx, "basic", bob)
	if !errors.Is(err, autherr.ErrIdentityConflict) {
		t.Fatalf("error = %v, want ErrIdentityConflict", err)
	}

	after := r.Summary()
	if !after.Principal.Equal(before.Principal) {
		t.Errorf("principal changed: %+v", after.Principal)
	}
	if !slices.Equal(after.Validated, before.Validated) {
		t.Errorf("validated changed: %v -> %v", before.Validated, after.Validated)
	}
	if !slices.Equal(after.Pending, before.Pending) {
		t.Errorf("ledger changed: %v -> %v", before.Pending, after.Pending)
	}
	if len(after.Events) != len(before.Events) {
		t.Errorf("trail changed: %d -> %d events", len(before.Events), len(after.Events))
	}
	if logs.FilterField(zap.String("event", eventIdentityConflict)).Len() != 1 {
		t.Error("conflict should still be logged")
	}
}

func TestRecord_NilPrincipalIsConflict(t *testing.T) {
	r := NewRecord()
	err := r.RecordCredentialSuccess(context.Background(), "basic", nil)
	if !errors.Is(err, autherr.ErrIdentityConflict) {
		t.Fatalf("error = %v, want ErrIdentityConflict", err)
	}
	if r.HasValidated("basic") || r.Principal() != nil {
		t.Error("state must be unchanged")
	}
}

func TestRecord_RecordCredentialFailure(t *testing.T) {
	ctx := context.Background()

	t.Run("clears candidate when nothing validated", func(t *testing.T) {
		tr, _ := newTestTracker()
		r := tr.NewRecord("s1", "")
		r.AddUnvalidatedCredential(&testCredential{Scheme: "basic", Username: "ada"})

		r.RecordCredentialFailure(ctx, "basic")

		if r.UnvalidatedCredential("basic") != nil {
			t.Error("rejected credential must leave the ledger")
		}
		if r.Principal() != nil {
			t.Error("principal should be cleared")
		}
		if !r.ContainsEvent(EventAuthFailed) {
			t.Error("expected AUTH_FAILED")
		}
	})

	t.Run("keeps principal when a factor is validated", func(t *testing.T) {
		tr, _ := newTestTracker()
		r := tr.NewRecord("s1", "")
		_ = r.RecordCredentialSuccess(ctx, "basic", ada)
		r.AddUnvalidatedCredential(&testCredential{Scheme: "secretquestion", Username: "ada"})

		r.RecordCredentialFailure(ctx, "secretquestion")

		if !r.Principal().Equal(ada) {
			t.Error("principal should survive a secondary failure")
		}
		if got := r.ValidatedSchemeIDs(); !slices.Equal(got, []string{"basic"}) {
			t.Errorf("validated = %v, want [basic]", got)
		}
		if got := r.UnvalidatedSchemeIDs(); len(got) != 0 {
			t.Errorf("ledger = %v, want empty", got)
		}
	})
}

func TestRecord_ResetCredential(t *testing.T) {
	ctx := context.Background()

	t.Run("last factor before login clears principal", func(t *testing.T) {
		r := NewRecord()
		_ = r.RecordCredentialSuccess(ctx, "basic", ada)
		r.ResetCredential(ctx, "basic")
		if r.HasValidated("basic") {
			t.Error("basic should be removed")
		}
		if r.Principal() != nil {
			t.Error("principal should be cleared")
		}
	})

	t.Run("after login principal is kept", func(t *testing.T) {
		tr, _ := newTestTracker()
		r := tr.NewRecord("s1", "")
		_ = r.RecordCredentialSuccess(ctx, "basic", ada)
		r.MarkLoginSuccess(ctx)
		r.ResetCredential(ctx, "basic")
		if !r.Principal().Equal(ada) {
			t.Error("principal should be kept after LOGIN_SUCCEEDED")
		}
	})

	t.Run("unknown scheme is a no-op", func(t *testing.T) {
		r := NewRecord()
		_ = r.RecordCredentialSuccess(ctx, "basic", ada)
		n := len(r.Events())
		r.ResetCredential(ctx, "token")
		if len(r.Events()) != n || !r.HasValidated("basic") {
			t.Error("reset of an unvalidated scheme must not change state")
		}
	})
}

func TestRecord_Reset(t *testing.T) {
	ctx := context.Background()
	r := NewRecord()
	_ = r.RecordCredentialSuccess(ctx, "basic", ada)
	r.AddUnvalidatedCredential(&testCredential{Scheme: "token"})
	id := r.ID()

	r.Reset(ctx)

	if r.Principal() != nil || len(r.ValidatedSchemeIDs()) != 0 || len(r.UnvalidatedSchemeIDs()) != 0 {
		t.Errorf("reset left state behind: %+v", r.Summary())
	}
	if r.ID() != id {
		t.Error("login id must survive a reset")
	}
	if !r.ContainsEvent(EventCredentialsReset) {
		t.Error("expected CREDENTIALS_RESET")
	}
}

func TestRecord_ValidatedOnlyGrowsThroughSuccess(t *testing.T) {
	ctx := context.Background()
	r := NewRecord()
	_ = r.RecordCredentialSuccess(ctx, "basic", ada)

	// None of these may shrink or grow the validated set.
	r.RecordCredentialFailure(ctx, "token")
	r.AddUnvalidatedCredential(&testCredential{Scheme: "token"})
	r.RemoveUnvalidatedCredential("token")
	_ = r.RecordCredentialSuccess(ctx, "token", bob)
	r.Touch()
	r.SetIP("10.0.0.9")

	if got := r.ValidatedSchemeIDs(); !slices.Equal(got, []string{"basic"}) {
		t.Errorf("validated = %v, want [basic]", got)
	}
}

func TestRecord_LoginLifecycle(t *testing.T) {
	ctx := context.Background()
	tr, _ := newTestTracker()
	r := tr.NewRecord("s1", "10.0.0.1")

	_ = r.RecordCredentialSuccess(ctx, "basic", ada)
	r.MarkLoginSuccess(ctx)
	if !r.IsAuthenticated() {
		t.Fatal("expected authenticated after login")
	}
	first := r.LoginAt()
	r.MarkLoginSuccess(ctx)
	if !r.LoginAt().Equal(first) {
		t.Error("login time must be set only once")
	}
	if _, ok := tr.Lookup(r.ID()); !ok {
		t.Error("record should be active after login")
	}
	if tr.Len() != 1 {
		t.Errorf("Len() = %d, want 1", tr.Len())
	}

	r.MarkLogoutFailure(ctx)
	if _, ok := tr.Lookup(r.ID()); !ok {
		t.Error("failed logout keeps the login active")
	}

	r.MarkLogoutSuccess(ctx)
	if r.IsAuthenticated() {
		t.Error("record should not be authenticated after logout")
	}
	if r.LogoutAt().IsZero() {
		t.Error("logout time should be set")
	}
	if _, ok := tr.Lookup(r.ID()); ok {
		t.Error("record should be removed from active logins")
	}

	want := []string{EventAuthSucceeded, EventLoginSucceeded, EventLoginSucceeded, EventLogoutFailed, EventLogoutSucceeded}
	if got := eventNames(r); !slices.Equal(got, want) {
		t.Errorf("trail = %v, want %v", got, want)
	}
}

func TestRecord_MarkLoginFailureAndExpired(t *testing.T) {
	ctx := context.Background()
	tr, _ := newTestTracker()

	failed := tr.NewRecord("s1", "")
	failed.MarkLoginFailure(ctx)
	if !failed.ContainsEvent(EventLoginFailed) || tr.Len() != 0 {
		t.Error("login failure should be recorded and not registered")
	}

	r := tr.NewRecord("s2", "")
	_ = r.RecordCredentialSuccess(ctx, "basic", ada)
	r.MarkLoginSuccess(ctx)
	r.MarkExpired(ctx)
	if !r.ContainsEvent(EventLoginExpired) {
		t.Error("expected LOGIN_EXPIRED")
	}
	if tr.Len() != 0 {
		t.Error("expired record should be unregistered")
	}
	if r.IsAuthenticated() {
		t.Error("expired record should not be authenticated")
	}
}

func TestRecord_EventContext(t *testing.T) {
	ctx := context.Background()
	tr, logs := newTestTracker()
	r := tr.NewRecord("sess-1", "10.1.1.1")
	r.SetUsername("ada")

	r.RecordCredentialFailure(ctx, "basic")
	_ = r.RecordCredentialSuccess(ctx, "basic", ada)

	entries := logs.All()
	if len(entries) != 2 {
		t.Fatalf("got %d log entries, want 2", len(entries))
	}
	failed := entries[0].ContextMap()
	if failed["username"] != "ada" || failed["scheme_id"] != "basic" || failed["session_id"] != "sess-1" ||
		failed["ip"] != "10.1.1.1" || failed["login_id"] != r.ID() {
		t.Errorf("failure entry context = %v", failed)
	}
	if _, ok := failed["principal_id"]; ok {
		t.Error("no principal is known at failure time")
	}
	ok := entries[1].ContextMap()
	if ok["username"] != "Ada Lovelace" || ok["principal_id"] != "p-ada" {
		t.Errorf("success entry should prefer principal display name: %v", ok)
	}
}

func TestRecord_Username(t *testing.T) {
	r := NewRecord()
	r.SetUsername("typed-name")
	if r.Username() != "typed-name" {
		t.Errorf("Username() = %q", r.Username())
	}
	_ = r.RecordCredentialSuccess(context.Background(), "basic", ada)
	if r.Username() != "ada" {
		t.Errorf("Username() = %q, want principal name", r.Username())
	}
}

func TestRecord_ConcurrentMutation(t *testing.T) {
	ctx := context.Background()
	tr, _ := newTestTracker()
	r := tr.NewRecord("s1", "")

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(3)
		go func() {
			defer wg.Done()
			r.AddUnvalidatedCredential(&testCredential{Scheme: "token"})
			r.RecordCredentialFailure(ctx, "token")
		}()
		go func() {
			defer wg.Done()
			_ = r.RecordCredentialSuccess(ctx, "basic", ada)
		}()
		go func() {
			defer wg.Done()
			r.Touch()
			_ = r.Summary()
		}()
	}
	wg.Wait()

	if got := r.ValidatedSchemeIDs(); !slices.Equal(got, []string{"basic"}) {
		t.Errorf("validated = %v, want [basic]", got)
	}
	if !r.Principal().Equal(ada) {
		t.Error("principal should be ada")
	}
	if n := len(r.Events()); n != 100 {
		t.Errorf("trail has %d events, want 100", n)
	}
}
