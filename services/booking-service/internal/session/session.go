package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt"
	"github.com/google/uuid"
	"github.com/md-rashed-zaman/chatbook/libs/auth"
)

var (
	ErrExpired  = errors.New("session expired")
	ErrInvalid  = errors.New("invalid session token")
	ErrNotFound = errors.New("session not found")
)

type Session struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

type Store interface {
	Save(ctx context.Context, s Session) error
	Get(ctx context.Context, id string) (Session, error)
	Delete(ctx context.Context, id string) error
}

// Manager issues capability tokens bound to one session and one user.
// Tokens are never refreshed; an expired session needs a new Issue.
type Manager struct {
	store  Store
	secret string
	ttl    time.Duration
	now    func() time.Time
}

func NewManager(store Store, secret string, ttl time.Duration, now func() time.Time) (*Manager, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("session secret is required")
	}
	if ttl <= 0 {
		return nil, errors.New("session ttl must be positive")
	}
	if now == nil {
		now = time.Now
	}
	return &Manager{store: store, secret: secret, ttl: ttl, now: now}, nil
}

func (m *Manager) Issue(ctx context.Context, userID string) (string, Session, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return "", Session{}, errors.New("user id is required")
	}
	now := m.now().UTC().Truncate(time.Second)
	s := Session{
		ID:        uuid.NewString(),
		UserID:    userID,
		CreatedAt: now,
		ExpiresAt: now.Add(m.ttl),
	}
	token, err := auth.SignHS256(auth.Claims{
		SessionID: s.ID,
		StandardClaims: jwt.StandardClaims{
			Subject:   userID,
			IssuedAt:  now.Unix(),
			ExpiresAt: s.ExpiresAt.Unix(),
		},
	}, m.secret)
	if err != nil {
		return "", Session{}, err
	}
	if err := m.store.Save(ctx, s); err != nil {
		return "", Session{}, fmt.Errorf("save session: %w", err)
	}
	return token, s, nil
}

// Validate checks the token signature and expiry, then that the session it
// names still exists and belongs to the token's subject.
func (m *Manager) Validate(ctx context.Context, token string) (Session, error) {
	now := m.now()
	claims, err := auth.ParseAndVerifyHS256(token, m.secret, now)
	switch {
	case errors.Is(err, auth.ErrExpiredToken):
		return Session{}, ErrExpired
	case err != nil:
		return Session{}, ErrInvalid
	}

	s, err := m.store.Get(ctx, claims.SessionID)
	if errors.Is(err, ErrNotFound) {
		return Session{}, ErrInvalid
	}
	if err != nil {
		return Session{}, err
	}
	if s.UserID != claims.Subject {
		return Session{}, ErrInvalid
	}
	if !now.Before(s.ExpiresAt) {
		return Session{}, ErrExpired
	}
	return s, nil
}

// End discards the session. Tokens naming it stop validating immediately.
func (m *Manager) End(ctx context.Context, sessionID string) error {
	return m.store.Delete(ctx, sessionID)
}
