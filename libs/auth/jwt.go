package auth

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token expired")
)

// Claims scopes a token to one user (Subject) and one chat session.
type Claims struct {
	SessionID string `json:"sid"`
	jwt.StandardClaims
}

func SignHS256(claims Claims, secret string) (string, error) {
	if secret == "" {
		return "", errors.New("signing secret is empty")
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

// ParseAndVerifyHS256 checks the signature and algorithm, then expiry against now.
// Expiry is checked here rather than by the jwt package so callers can inject a clock.
func ParseAndVerifyHS256(token, secret string, now time.Time) (*Claims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrInvalidToken
	}

	parser := &jwt.Parser{
		ValidMethods:         []string{jwt.SigningMethodHS256.Alg()},
		SkipClaimsValidation: true,
	}
	var claims Claims
	parsed, err := parser.ParseWithClaims(token, &claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return []byte(secret), nil
	})
	if err != nil || !parsed.Valid {
		return nil, ErrInvalidToken
	}
	if claims.Subject == "" || claims.SessionID == "" || claims.ExpiresAt == 0 {
		return nil, ErrInvalidToken
	}
	if now.Unix() >= claims.ExpiresAt {
		return nil, ErrExpiredToken
	}
	return &claims, nil
}
