package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newManager(t *testing.T) (*Manager, *fakeClock) {
	t.Helper()
	clock := &fakeClock{now: time.Date(2024, 3, 15, 9, 0, 0, 0, time.UTC)}
	m, err := NewManager(NewMemoryStore(clock.Now), "test-secret", 30*time.Minute, clock.Now)
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	return m, clock
}

func TestIssueAndValidate(t *testing.T) {
	ctx := context.Background()
	m, _ := newManager(t)

	token, issued, err := m.Issue(ctx, "alice")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if issued.ExpiresAt.Sub(issued.CreatedAt) != 30*time.Minute {
		t.Fatalf("unexpected ttl %s", issued.ExpiresAt.Sub(issued.CreatedAt))
	}

	s, err := m.Validate(ctx, token)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if s.ID != issued.ID || s.UserID != "alice" {
		t.Fatalf("unexpected session %+v", s)
	}
}

func TestValidateExpired(t *testing.T) {
	ctx := context.Background()
	m, clock := newManager(t)

	token, _, _ := m.Issue(ctx, "alice")
	clock.Advance(30 * time.Minute)
	if _, err := m.Validate(ctx, token); !errors.Is(err, ErrExpired) {
		t.Fatalf("expected expired, got %v", err)
	}
}

func TestValidateInvalid(t *testing.T) {
	ctx := context.Background()
	m, clock := newManager(t)

	if _, err := m.Validate(ctx, "not-a-token"); !errors.Is(err, ErrInvalid) {
		t.Fatalf("expected invalid, got %v", err)
	}

	other, err := NewManager(NewMemoryStore(clock.Now), "other-secret", time.Minute, clock.Now)
	if err != nil {
		t.Fatalf("manager: %v", err)
	}
	foreign, _, _ := other.Issue(ctx, "alice")
	if _, err := m.Validate(ctx, foreign); !errors.Is(err, ErrInvalid) {
		t.Fatalf("expected invalid for foreign signature, got %v", err)
	}
}

func TestEndRevokesToken(t *testing.T) {
	ctx := context.Background()
	m, _ := newManager(t)

	token, s, _ := m.Issue(ctx, "alice")
	if err := m.End(ctx, s.ID); err != nil {
		t.Fatalf("end: %v", err)
	}
	if _, err := m.Validate(ctx, token); !errors.Is(err, ErrInvalid) {
		t.Fatalf("expected invalid after end, got %v", err)
	}
}

func TestNewManagerRequiresSecret(t *testing.T) {
	if _, err := NewManager(NewMemoryStore(nil), " ", time.Minute, nil); err == nil {
		t.Fatal("expected error without secret")
	}
}
