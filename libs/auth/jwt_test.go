package auth

import (
	"encoding/base64"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt"
)

func testClaims(now time.Time, ttl time.Duration) Claims {
	return Claims{
		SessionID: "sess-1",
		StandardClaims: jwt.StandardClaims{
			Subject:   "user-1",
			IssuedAt:  now.Unix(),
			ExpiresAt: now.Add(ttl).Unix(),
		},
	}
}

func TestHS256RoundTrip(t *testing.T) {
	now := time.Now()
	claims := testClaims(now, time.Hour)
	secret := "test-secret"

	token, err := SignHS256(claims, secret)
	if err != nil {
		t.Fatalf("SignHS256 failed: %v", err)
	}
	parsed, err := ParseAndVerifyHS256(token, secret, now)
	if err != nil {
		t.Fatalf("ParseAndVerifyHS256 failed: %v", err)
	}
	if parsed.Subject != claims.Subject || parsed.SessionID != claims.SessionID {
		t.Fatalf("claims mismatch: got %+v", parsed)
	}
	if _, err := ParseAndVerifyHS256(token, "wrong-secret", now); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken with wrong secret, got %v", err)
	}
}

func TestHS256Expired(t *testing.T) {
	now := time.Now()
	token, err := SignHS256(testClaims(now, time.Minute), "s")
	if err != nil {
		t.Fatalf("SignHS256 failed: %v", err)
	}
	if _, err := ParseAndVerifyHS256(token, "s", now.Add(2*time.Minute)); !errors.Is(err, ErrExpiredToken) {
		t.Fatalf("expected ErrExpiredToken, got %v", err)
	}
}

func TestRejectsUnsignedToken(t *testing.T) {
	now := time.Now()
	token, err := SignHS256(testClaims(now, time.Hour), "s")
	if err != nil {
		t.Fatalf("SignHS256 failed: %v", err)
	}
	parts := strings.Split(token, ".")
	noneHeader := base64.RawURLEncoding.EncodeToString([]byte(`{"alg":"none","typ":"JWT"}`))
	forged := noneHeader + "." + parts[1] + "."
	if _, err := ParseAndVerifyHS256(forged, "s", now); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for alg=none, got %v", err)
	}
	if _, err := ParseAndVerifyHS256("garbage", "s", now); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for garbage, got %v", err)
	}
}
