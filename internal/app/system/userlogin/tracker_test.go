package userlogin

import (
	"context"
	"testing"
	"time"
)

func TestTracker_ActiveLoginsSnapshot(t *testing.T) {
	ctx := context.Background()
	tr, _ := newTestTracker()

	a := tr.NewRecord("s1", "")
	b := tr.NewRecord("s2", "")
	_ = a.RecordCredentialSuccess(ctx, "basic", ada)
	_ = b.RecordCredentialSuccess(ctx, "basic", bob)
	a.MarkLoginSuccess(ctx)
	b.MarkLoginSuccess(ctx)

	snap := tr.ActiveLogins()
	if len(snap) != 2 || snap[0] != a || snap[1] != b {
		t.Fatalf("snapshot = %v, want [a b] in registration order", snap)
	}

	snap[0] = nil
	if got := tr.ActiveLogins(); len(got) != 2 || got[0] != a {
		t.Error("mutating the snapshot must not affect the tracker")
	}

	a.MarkLogoutSuccess(ctx)
	if got := tr.ActiveLogins(); len(got) != 1 || got[0] != b {
		t.Errorf("after logout snapshot = %v, want [b]", got)
	}
}

func TestTracker_RegisterIsIdempotent(t *testing.T) {
	tr, _ := newTestTracker()
	r := tr.NewRecord("s1", "")
	tr.RegisterActive(r)
	tr.RegisterActive(r)
	if tr.Len() != 1 || len(tr.ActiveLogins()) != 1 {
		t.Errorf("Len() = %d, want 1", tr.Len())
	}
	tr.UnregisterActive(r)
	tr.UnregisterActive(r)
	if tr.Len() != 0 {
		t.Errorf("Len() = %d, want 0", tr.Len())
	}
}

func TestTracker_NilSafe(t *testing.T) {
	var tr *Tracker
	tr.RegisterActive(NewRecord())
	tr.UnregisterActive(NewRecord())

	// Detached records log nothing and register nowhere.
	r := NewRecord()
	_ = r.RecordCredentialSuccess(context.Background(), "basic", ada)
	r.MarkLoginSuccess(context.Background())
	if !r.IsAuthenticated() {
		t.Error("detached record should still track its own state")
	}
}

func TestTracker_AttachReturnsLiveInstance(t *testing.T) {
	ctx := context.Background()
	tr, _ := newTestTracker()
	live := tr.NewRecord("s1", "")
	_ = live.RecordCredentialSuccess(ctx, "basic", ada)
	live.MarkLoginSuccess(ctx)

	clone := decodeRecord(t, encodeRecord(t, live))
	if got := tr.Attach(clone); got != live {
		t.Error("Attach should return the registered live record")
	}

	other := decodeRecord(t, encodeRecord(t, tr.NewRecord("s2", "")))
	if got := tr.Attach(other); got != other {
		t.Error("Attach of an inactive record should return it")
	}
	if tr.Attach(nil) != nil {
		t.Error("Attach(nil) should be nil")
	}
}

func TestTracker_ExpireIdle(t *testing.T) {
	ctx := context.Background()
	tr, _ := newTestTracker()

	clock := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	tr.now = func() time.Time { return clock }

	stale := tr.NewRecord("s1", "")
	_ = stale.RecordCredentialSuccess(ctx, "basic", ada)
	stale.MarkLoginSuccess(ctx)

	clock = clock.Add(time.Hour)
	fresh := tr.NewRecord("s2", "")
	_ = fresh.RecordCredentialSuccess(ctx, "basic", bob)
	fresh.MarkLoginSuccess(ctx)

	n := tr.ExpireIdle(ctx, clock.Add(-30*time.Minute))
	if n != 1 {
		t.Fatalf("ExpireIdle() = %d, want 1", n)
	}
	if !stale.ContainsEvent(EventLoginExpired) {
		t.Error("stale login should be expired")
	}
	if fresh.ContainsEvent(EventLoginExpired) {
		t.Error("fresh login should not be expired")
	}
	if got := tr.ActiveLogins(); len(got) != 1 || got[0] != fresh {
		t.Errorf("active = %v, want [fresh]", got)
	}
}
