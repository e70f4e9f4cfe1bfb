package models

import (
	"testing"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

func TestUser_Principal(t *testing.T) {
	id := primitive.NewObjectID()
	u := User{
		ID:              id,
		Username:        "ada",
		FullName:        "Ada Lovelace",
		SecondaryFactor: "secretquestion",
		Locale:          "en-GB",
		Role:            RoleUser,
	}

	p := u.Principal()
	if p.ID != id.Hex() {
		t.Errorf("ID = %q, want %q", p.ID, id.Hex())
	}
	if p.Name != "ada" || p.DisplayName != "Ada Lovelace" || p.Locale != "en-GB" {
		t.Errorf("unexpected principal %+v", p)
	}
	if p.Property(PropertySecondaryFactor) != "secretquestion" {
		t.Errorf("secondary factor not carried: %+v", p.Properties)
	}
	if p.Property(PropertyRole) != RoleUser {
		t.Errorf("role not carried: %+v", p.Properties)
	}

	u.SecondaryFactor = ""
	if _, ok := u.Principal().Properties[PropertySecondaryFactor]; ok {
		t.Error("empty secondary factor should be omitted")
	}
}

func TestUser_Active(t *testing.T) {
	tests := []struct {
		status string
		want   bool
	}{
		{"", true},
		{StatusActive, true},
		{StatusDisabled, false},
	}
	for _, tt := range tests {
		u := User{Status: tt.status}
		if got := u.Active(); got != tt.want {
			t.Errorf("Active() with status %q = %v, want %v", tt.status, got, tt.want)
		}
	}
}

func TestIsValidRole(t *testing.T) {
	if !IsValidRole(RoleAdmin) || !IsValidRole(RoleUser) {
		t.Error("expected built-in roles to be valid")
	}
	if IsValidRole("superuser") {
		t.Error("unexpected role accepted")
	}
}
