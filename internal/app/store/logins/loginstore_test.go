package loginstore

import (
	"context"
	"slices"
	"testing"
	"time"

	"github.com/dalemusser/strataauth/internal/app/system/userlogin"
	"github.com/dalemusser/strataauth/internal/domain/models"
	"github.com/dalemusser/strataauth/internal/testutil"
)

func TestStore_EnsureIndexes(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	if err := store.EnsureIndexes(ctx); err != nil {
		t.Fatalf("EnsureIndexes() error = %v", err)
	}

	// Should be idempotent
	if err := store.EnsureIndexes(ctx); err != nil {
		t.Fatalf("EnsureIndexes() second call error = %v", err)
	}
}

func TestStore_Create(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	h := models.LoginHistory{
		PrincipalID: "p-1",
		LoginID:     "login-1",
		Username:    "ada",
		IP:          "192.168.1.1",
		Schemes:     []string{"basic"},
	}
	if err := store.Create(ctx, h); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	rows, err := store.GetByPrincipal(ctx, "p-1", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 1 {
		t.Fatalf("Expected 1 row, got %d", len(rows))
	}
	got := rows[0]
	if got.LoginID != "login-1" || got.IP != h.IP || !slices.Equal(got.Schemes, h.Schemes) {
		t.Errorf("row = %+v", got)
	}
	if got.CreatedAt.IsZero() {
		t.Error("CreatedAt should be auto-set when zero")
	}

	// One row per login id.
	if err := store.Create(ctx, h); err == nil {
		t.Error("duplicate login id should be rejected")
	}
}

func TestStore_CreateFrom(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	tr := userlogin.NewTracker(nil)
	rec := tr.NewRecord("sess-1", "10.1.2.3")
	bctx, b := userlogin.Bind(context.Background(), rec)
	defer b.Unbind()
	p := &models.Principal{ID: "p-ada", Name: "ada"}
	if err := rec.RecordCredentialSuccess(bctx, "basic", p); err != nil {
		t.Fatal(err)
	}
	rec.MarkLoginSuccess(bctx)

	if err := store.CreateFrom(ctx, rec); err != nil {
		t.Fatalf("CreateFrom() error = %v", err)
	}
	rows, _ := store.GetByPrincipal(ctx, "p-ada", 10)
	if len(rows) != 1 {
		t.Fatalf("Expected 1 row, got %d", len(rows))
	}
	got := rows[0]
	if got.LoginID != rec.ID() || got.Username != "ada" || got.IP != "10.1.2.3" {
		t.Errorf("row = %+v", got)
	}
	if !slices.Equal(got.Schemes, []string{"basic"}) {
		t.Errorf("Schemes = %v", got.Schemes)
	}
}

func TestStore_GetByPrincipal(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	base := time.Now().UTC().Add(-time.Hour)
	for i, id := range []string{"a", "b", "c"} {
		_ = store.Create(ctx, models.LoginHistory{
			PrincipalID: "p-1",
			LoginID:     id,
			CreatedAt:   base.Add(time.Duration(i) * time.Minute),
		})
	}
	_ = store.Create(ctx, models.LoginHistory{PrincipalID: "p-2", LoginID: "other"})

	rows, err := store.GetByPrincipal(ctx, "p-1", 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 2 {
		t.Fatalf("Expected 2 rows, got %d", len(rows))
	}
	if rows[0].LoginID != "c" || rows[1].LoginID != "b" {
		t.Errorf("order = %s, %s; want latest first", rows[0].LoginID, rows[1].LoginID)
	}

	empty, err := store.GetByPrincipal(ctx, "nobody", 10)
	if err != nil || len(empty) != 0 {
		t.Errorf("GetByPrincipal(nobody) = %v, %v", empty, err)
	}

	second, err := store.PageByPrincipal(ctx, "p-1", 2, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(second) != 1 || second[0].LoginID != "a" {
		t.Errorf("page 2 = %+v, want only the oldest login", second)
	}
}

func TestStore_GetByTimeRange(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	now := time.Now().UTC()
	_ = store.Create(ctx, models.LoginHistory{LoginID: "old", CreatedAt: now.Add(-48 * time.Hour)})
	_ = store.Create(ctx, models.LoginHistory{LoginID: "recent", CreatedAt: now.Add(-time.Hour)})

	rows, err := store.GetByTimeRange(ctx, now.Add(-24*time.Hour), now)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 1 || rows[0].LoginID != "recent" {
		t.Errorf("rows = %+v", rows)
	}
}
