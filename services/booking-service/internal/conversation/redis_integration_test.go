//go:build integration

package conversation

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/md-rashed-zaman/chatbook/libs/redisx"
	"github.com/md-rashed-zaman/chatbook/services/booking-service/internal/llm"
	"github.com/redis/go-redis/v9"
)

// Run with: CHATBOOK_TEST_REDIS_ADDR=localhost:6379 go test -tags integration ./...
func openTestRedis(t *testing.T) *redis.Client {
	t.Helper()
	addr := os.Getenv("CHATBOOK_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("CHATBOOK_TEST_REDIS_ADDR not set")
	}
	rdb, err := redisx.Open(context.Background(), redisx.Options{Addr: addr})
	if err != nil {
		t.Fatalf("redis: %v", err)
	}
	t.Cleanup(func() { _ = rdb.Close() })
	return rdb
}

func TestRedisLeaserSingleWriter(t *testing.T) {
	l := NewRedisLeaser(openTestRedis(t))
	ctx := context.Background()
	sid := uuid.NewString()

	release, err := l.Acquire(ctx, sid, time.Minute)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if _, err := l.Acquire(ctx, sid, time.Minute); !errors.Is(err, ErrSessionBusy) {
		t.Fatalf("expected busy, got %v", err)
	}
	if err := release(ctx); err != nil {
		t.Fatalf("release: %v", err)
	}

	again, err := l.Acquire(ctx, sid, time.Minute)
	if err != nil {
		t.Fatalf("reacquire: %v", err)
	}
	if err := release(ctx); err != nil {
		t.Fatalf("stale release: %v", err)
	}
	if _, err := l.Acquire(ctx, sid, time.Minute); !errors.Is(err, ErrSessionBusy) {
		t.Fatalf("stale release dropped the new lease: %v", err)
	}
	_ = again(ctx)
}

func TestRedisLeaseExpires(t *testing.T) {
	l := NewRedisLeaser(openTestRedis(t))
	ctx := context.Background()
	sid := uuid.NewString()

	if _, err := l.Acquire(ctx, sid, 100*time.Millisecond); err != nil {
		t.Fatalf("acquire: %v", err)
	}
	time.Sleep(250 * time.Millisecond)
	release, err := l.Acquire(ctx, sid, time.Minute)
	if err != nil {
		t.Fatalf("expected expired lease to be reacquirable: %v", err)
	}
	_ = release(ctx)
}

func TestRedisHistoryWindowAndDelete(t *testing.T) {
	h := NewRedisHistory(openTestRedis(t), 3, time.Minute)
	ctx := context.Background()
	sid := uuid.NewString()
	t.Cleanup(func() { _ = h.Delete(ctx, sid) })

	if err := h.Append(ctx, sid,
		llm.Message{Role: llm.RoleUser, Content: "1"},
		llm.Message{Role: llm.RoleAssistant, Content: "a"},
	); err != nil {
		t.Fatalf("append: %v", err)
	}
	got, err := h.Load(ctx, sid)
	if err != nil || len(got) != 2 || got[0].Content != "1" {
		t.Fatalf("unexpected history %+v %v", got, err)
	}

	if err := h.Append(ctx, sid,
		llm.Message{Role: llm.RoleUser, Content: "2"},
		llm.Message{Role: llm.RoleAssistant, ToolCall: &llm.ToolCall{Name: "list_appointments", Args: map[string]any{}}},
	); err != nil {
		t.Fatalf("append: %v", err)
	}
	got, _ = h.Load(ctx, sid)
	if len(got) != 2 || got[0].Content != "2" || got[1].ToolCall == nil {
		t.Fatalf("window should start at the latest user message, got %+v", got)
	}

	if err := h.Delete(ctx, sid); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if got, _ := h.Load(ctx, sid); len(got) != 0 {
		t.Fatalf("expected empty history after delete, got %+v", got)
	}
}
