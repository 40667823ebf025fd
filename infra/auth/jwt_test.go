package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/CrestNiraj12/rantfeed/domain"
)

func TestJWTVerifier_AcceptsSignedToken(t *testing.T) {
	v, err := NewJWTVerifier("secret")
	if err != nil {
		t.Fatalf("new verifier: %v", err)
	}
	token, err := Sign("secret", Identity{UserID: "u1", DisplayName: "Alice"}, time.Hour)
	if err != nil {
		t.Fatalf("sign failed: %v", err)
	}

	id, err := v.Verify(token)
	if err != nil {
		t.Fatalf("verify failed: %v", err)
	}
	if id.UserID != "u1" || id.DisplayName != "Alice" {
		t.Fatalf("unexpected identity: %+v", id)
	}
}

func TestJWTVerifier_Rejects(t *testing.T) {
	v, _ := NewJWTVerifier("secret")

	wrongKey, _ := Sign("other", Identity{UserID: "u1"}, time.Hour)
	expired, _ := Sign("secret", Identity{UserID: "u1"}, -time.Hour)
	noSubject, _ := Sign("secret", Identity{}, time.Hour)
	hs512, _ := jwt.NewWithClaims(jwt.SigningMethodHS512, jwt.MapClaims{"sub": "u1"}).SignedString([]byte("secret"))
	unsigned, _ := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{"sub": "u1"}).SignedString(jwt.UnsafeAllowNoneSignatureType)

	tests := map[string]string{
		"wrong key":  wrongKey,
		"expired":    expired,
		"no subject": noSubject,
		"hs512":      hs512,
		"alg none":   unsigned,
		"garbage":    "not-a-token",
	}
	for name, token := range tests {
		if _, err := v.Verify(token); !errors.Is(err, domain.ErrUnauthorized) {
			t.Fatalf("%s: expected ErrUnauthorized, got %v", name, err)
		}
	}
}

func TestNewJWTVerifier_RequiresSecret(t *testing.T) {
	if _, err := NewJWTVerifier(""); err == nil {
		t.Fatalf("expected error for empty secret")
	}
}
