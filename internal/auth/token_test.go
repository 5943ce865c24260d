package auth

import (
	"testing"

	"github.com/golang-jwt/jwt/v5"
)

func signedToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	s, err := tok.SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return s
}

func TestUserKeyPrefersIDClaim(t *testing.T) {
	token := signedToken(t, jwt.MapClaims{"id": "user-42", "sub": "other"})
	key, err := UserKey(token)
	if err != nil {
		t.Fatalf("user key: %v", err)
	}
	if key != "user-42" {
		t.Fatalf("expected user-42, got %s", key)
	}
}

func TestUserKeyFallsBackToSub(t *testing.T) {
	token := signedToken(t, jwt.MapClaims{"sub": "student-7"})
	key, err := UserKey(token)
	if err != nil {
		t.Fatalf("user key: %v", err)
	}
	if key != "student-7" {
		t.Fatalf("expected student-7, got %s", key)
	}
}

func TestUserKeyNumericID(t *testing.T) {
	token := signedToken(t, jwt.MapClaims{"id": float64(1234)})
	key, err := UserKey(token)
	if err != nil {
		t.Fatalf("user key: %v", err)
	}
	if key != "1234" {
		t.Fatalf("expected 1234, got %s", key)
	}
}

func TestUserKeyRejectsGarbage(t *testing.T) {
	if _, err := UserKey(""); err == nil {
		t.Fatalf("expected error for empty token")
	}
	if _, err := UserKey("not-a-jwt"); err == nil {
		t.Fatalf("expected error for malformed token")
	}
}
