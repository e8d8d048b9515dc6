package auth

import (
	"testing"
	"time"

	"livesession-backend/internal/model"
)

func TestTokenRoundTrip(t *testing.T) {
	m := NewJWTManager("test-secret", time.Hour)

	token, err := m.GenerateAccessToken("alice", "Alice", model.RoleParticipant)
	if err != nil {
		t.Fatal(err)
	}

	claims, err := m.ValidateAccessToken(token)
	if err != nil {
		t.Fatal(err)
	}
	if claims.Identity != "alice" || claims.DisplayName != "Alice" || claims.Role != model.RoleParticipant {
		t.Fatalf("claims mismatch: %+v", claims)
	}
}

func TestExpiredToken(t *testing.T) {
	m := NewJWTManager("test-secret", -time.Minute)

	token, err := m.GenerateAccessToken("alice", "Alice", model.RoleParticipant)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := m.ValidateAccessToken(token); err != ErrExpiredToken {
		t.Fatalf("expected ErrExpiredToken, got %v", err)
	}
}

func TestWrongSecretRejected(t *testing.T) {
	m1 := NewJWTManager("secret-one", time.Hour)
	m2 := NewJWTManager("secret-two", time.Hour)

	token, err := m1.GenerateAccessToken("alice", "Alice", model.RoleModerator)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := m2.ValidateAccessToken(token); err != ErrInvalidToken {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestUnknownRoleRejected(t *testing.T) {
	m := NewJWTManager("test-secret", time.Hour)

	token, err := m.GenerateAccessToken("alice", "Alice", model.Role("SUPERUSER"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := m.ValidateAccessToken(token); err != ErrInvalidToken {
		t.Fatalf("expected ErrInvalidToken for unknown role, got %v", err)
	}
}
