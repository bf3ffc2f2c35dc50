package auth

import (
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
)

func TestVerifier_RoundTrip(t *testing.T) {
	v := NewVerifier("secret", time.Hour)
	userID := uuid.New()

	token, err := v.GenerateToken(userID)
	if err != nil {
		t.Fatal(err)
	}
	claims, err := v.ValidateToken(token)
	if err != nil {
		t.Fatal(err)
	}
	if claims.UserID != userID {
		t.Errorf("expected %s, got %s", userID, claims.UserID)
	}
}

func TestVerifier_Rejects(t *testing.T) {
	v := NewVerifier("secret", time.Hour)
	other := NewVerifier("other", time.Hour)
	expired := NewVerifier("secret", -time.Minute)

	token, _ := other.GenerateToken(uuid.New())
	if _, err := v.ValidateToken(token); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("wrong key: expected ErrInvalidToken, got %v", err)
	}

	token, _ = expired.GenerateToken(uuid.New())
	if _, err := v.ValidateToken(token); !errors.Is(err, ErrExpiredToken) {
		t.Errorf("expired: expected ErrExpiredToken, got %v", err)
	}

	if _, err := v.ValidateToken("not-a-token"); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("garbage: expected ErrInvalidToken, got %v", err)
	}
}
