package session

import (
	"testing"

	"github.com/golang-jwt/jwt/v5"
)

func TestUserFromClaims(t *testing.T) {
	claims := &Claims{
		Username:  "ramen_lover",
		AvatarURL: "https://cdn.example.com/a.png",
		Role:      "admin",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject: "user-123",
		},
	}

	u := UserFromClaims(claims)
	if u.ID != "user-123" {
		t.Errorf("ID = %q, want user-123", u.ID)
	}
	if u.Username != "ramen_lover" {
		t.Errorf("Username = %q", u.Username)
	}
	if u.AvatarURL != "https://cdn.example.com/a.png" {
		t.Errorf("AvatarURL = %q", u.AvatarURL)
	}
	if u.Role != "admin" {
		t.Errorf("Role = %q, want admin", u.Role)
	}
}

func TestUserFromClaimsDefaultsRole(t *testing.T) {
	u := UserFromClaims(&Claims{
		Username:         "newbie",
		RegisteredClaims: jwt.RegisteredClaims{Subject: "user-9"},
	})
	if u.Role != DefaultRole {
		t.Errorf("Role = %q, want %q", u.Role, DefaultRole)
	}
}

func TestSessionUserNil(t *testing.T) {
	var s *Session
	if s.User() != nil {
		t.Error("nil session should resolve to nil user")
	}
	if (&Session{}).User() != nil {
		t.Error("session without claims should resolve to nil user")
	}
}
