package userstore

import (
	"errors"
	"os"
	"testing"

	"github.com/dalemusser/strataauth/internal/app/system/autherr"
	"github.com/dalemusser/strataauth/internal/app/system/authutil"
	"github.com/dalemusser/strataauth/internal/domain/models"
	"github.com/dalemusser/strataauth/internal/testutil"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

func TestMain(m *testing.M) {
	authutil.SetCost(bcrypt.MinCost)
	os.Exit(m.Run())
}

func TestStore_Create(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	created, err := store.Create(ctx, CreateInput{
		Username:        "  Ada ",
		FullName:        "Ada Lovelace",
		Password:        "correct horse",
		SecondaryFactor: "SecretQuestion",
		SecretQuestion:  "First pet?",
		SecretAnswer:    "Rose",
	})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	if created.ID.IsZero() {
		t.Error("Create() did not assign ID")
	}
	if created.CreatedAt.IsZero() || created.UpdatedAt.IsZero() {
		t.Error("Create() did not set timestamps")
	}
	if created.Username != "ada" || created.UsernameCI == "" {
		t.Errorf("username = %q / %q", created.Username, created.UsernameCI)
	}
	if created.Role != models.RoleUser || created.Status != models.StatusActive {
		t.Errorf("role/status = %q/%q, want defaults", created.Role, created.Status)
	}
	if created.SecondaryFactor != "secretquestion" {
		t.Errorf("SecondaryFactor = %q", created.SecondaryFactor)
	}
	if created.PasswordHash == nil || *created.PasswordHash == "correct horse" {
		t.Error("password should be stored hashed")
	}
	if created.SecretAnswerHash == nil || *created.SecretAnswerHash == "Rose" {
		t.Error("secret answer should be stored hashed")
	}
}

func TestStore_Create_Invalid(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	if _, err := store.Create(ctx, CreateInput{Username: "ada", Role: "wizard"}); err == nil {
		t.Error("Create() with invalid role should return error")
	}
	if _, err := store.Create(ctx, CreateInput{Username: "   "}); err == nil {
		t.Error("Create() without username should return error")
	}
	if _, err := store.Create(ctx, CreateInput{Username: "ada", Locale: "not a locale"}); err == nil {
		t.Error("Create() with invalid locale should return error")
	}
	if _, err := store.Create(ctx, CreateInput{Username: "ada", SecondaryFactor: "two factor"}); err == nil {
		t.Error("Create() with invalid secondary factor should return error")
	}
}

func TestStore_Create_DuplicateUsername(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	if _, err := store.Create(ctx, CreateInput{Username: "ada"}); err != nil {
		t.Fatalf("Create() first user error = %v", err)
	}
	if _, err := store.Create(ctx, CreateInput{Username: "ADA"}); err != ErrDuplicateUsername {
		t.Errorf("Create() duplicate error = %v, want %v", err, ErrDuplicateUsername)
	}
}

func TestStore_GetByUsername(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	created, _ := store.Create(ctx, CreateInput{Username: "ada"})

	found, err := store.GetByUsername(ctx, " ADA ")
	if err != nil {
		t.Fatalf("GetByUsername() error = %v", err)
	}
	if found.ID != created.ID {
		t.Errorf("found %s, want %s", found.ID.Hex(), created.ID.Hex())
	}

	if _, err := store.GetByUsername(ctx, "nobody"); err != mongo.ErrNoDocuments {
		t.Errorf("GetByUsername(nobody) error = %v, want ErrNoDocuments", err)
	}
}

func TestStore_Updates(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	u, _ := store.Create(ctx, CreateInput{Username: "ada", SecondaryFactor: "token"})

	if err := store.SetStatus(ctx, u.ID, "Disabled"); err != nil {
		t.Fatalf("SetStatus() error = %v", err)
	}
	if err := store.SetStatus(ctx, u.ID, "frozen"); err == nil {
		t.Error("SetStatus() should reject unknown status")
	}
	if err := store.SetSecondaryFactor(ctx, u.ID, ""); err != nil {
		t.Fatalf("SetSecondaryFactor() error = %v", err)
	}
	if err := store.SetLocale(ctx, u.ID, "fr-CA"); err != nil {
		t.Fatalf("SetLocale() error = %v", err)
	}

	got, _ := store.GetByID(ctx, u.ID)
	if got.Active() {
		t.Error("user should be disabled")
	}
	if got.SecondaryFactor != "" {
		t.Errorf("SecondaryFactor = %q, want cleared", got.SecondaryFactor)
	}
	if got.Locale != "fr-CA" {
		t.Errorf("Locale = %q", got.Locale)
	}

	if err := store.SetLocale(ctx, primitive.NewObjectID(), "en"); err != mongo.ErrNoDocuments {
		t.Errorf("update of missing user error = %v, want ErrNoDocuments", err)
	}

	n, err := store.Delete(ctx, u.ID)
	if err != nil || n != 1 {
		t.Errorf("Delete() = %d, %v", n, err)
	}
}

func seedDirectory(t *testing.T) (*Directory, models.User) {
	t.Helper()
	db := testutil.SetupTestDB(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	store := New(db)
	ada, err := store.Create(ctx, CreateInput{
		Username:       "ada",
		FullName:       "Ada Lovelace",
		Password:       "correct horse",
		Locale:         "en-GB",
		SecretQuestion: "First pet?",
		SecretAnswer:   "Rose  Tyler",
		TOTPSecret:     "JBSWY3DPEHPK3PXP",
	})
	if err != nil {
		t.Fatal(err)
	}
	off, _ := store.Create(ctx, CreateInput{Username: "off", Password: "correct horse"})
	if err := store.SetStatus(ctx, off.ID, models.StatusDisabled); err != nil {
		t.Fatal(err)
	}
	_, _ = store.Create(ctx, CreateInput{Username: "bare"})
	return NewDirectory(db, zap.NewNop()), ada
}

func TestDirectory_VerifyPassword(t *testing.T) {
	dir, ada := seedDirectory(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	p, err := dir.VerifyPassword(ctx, "ADA", "correct horse")
	if err != nil {
		t.Fatalf("VerifyPassword() error = %v", err)
	}
	if p.ID != ada.ID.Hex() || p.DisplayName != "Ada Lovelace" {
		t.Errorf("principal = %+v", p)
	}

	tests := []struct {
		name, username, password string
	}{
		{"wrong password", "ada", "wrong"},
		{"unknown user", "nobody", "correct horse"},
		{"disabled user", "off", "correct horse"},
		{"no password set", "bare", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := dir.VerifyPassword(ctx, tt.username, tt.password)
			if !errors.Is(err, autherr.ErrIncorrectCredentials) {
				t.Errorf("error = %v, want ErrIncorrectCredentials", err)
			}
		})
	}
}

func TestDirectory_LookupAndLocale(t *testing.T) {
	dir, ada := seedDirectory(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	p, err := dir.LookupPrincipal(ctx, "Ada")
	if err != nil || p.ID != ada.ID.Hex() {
		t.Fatalf("LookupPrincipal() = %v, %v", p, err)
	}
	if _, err := dir.LookupPrincipal(ctx, "off"); !errors.Is(err, autherr.ErrIncorrectCredentials) {
		t.Errorf("disabled lookup error = %v", err)
	}

	loc, err := dir.DefaultLocale(ctx, ada.ID.Hex())
	if err != nil || loc != "en-GB" {
		t.Errorf("DefaultLocale() = %q, %v", loc, err)
	}
	if _, err := dir.DefaultLocale(ctx, "not-an-id"); !errors.Is(err, autherr.ErrIncorrectCredentials) {
		t.Errorf("bad id error = %v", err)
	}
}

func TestDirectory_SecretQuestion(t *testing.T) {
	dir, ada := seedDirectory(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()
	id := ada.ID.Hex()

	q, err := dir.SecretQuestion(ctx, id)
	if err != nil || q != "First pet?" {
		t.Fatalf("SecretQuestion() = %q, %v", q, err)
	}

	if _, err := dir.VerifySecretAnswer(ctx, id, "  rose tyler"); err != nil {
		t.Errorf("normalized answer rejected: %v", err)
	}
	if _, err := dir.VerifySecretAnswer(ctx, id, "martha"); !errors.Is(err, autherr.ErrIncorrectCredentials) {
		t.Errorf("wrong answer error = %v", err)
	}
	if _, err := dir.VerifySecretAnswer(ctx, primitive.NewObjectID().Hex(), "rose tyler"); !errors.Is(err, autherr.ErrIncorrectCredentials) {
		t.Errorf("unknown user error = %v", err)
	}

	secret, err := dir.TOTPSecret(ctx, id)
	if err != nil || secret != "JBSWY3DPEHPK3PXP" {
		t.Errorf("TOTPSecret() = %q, %v", secret, err)
	}
}
