package conversation

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/md-rashed-zaman/chatbook/services/booking-service/internal/llm"
	"github.com/redis/go-redis/v9"
)

// HistoryStore is the append-only, bounded message log of each session.
type HistoryStore interface {
	Load(ctx context.Context, sessionID string) ([]llm.Message, error)
	Append(ctx context.Context, sessionID string, msgs ...llm.Message) error
	Delete(ctx context.Context, sessionID string) error
}

// RedisHistory stores one list per session, trimmed to the retention window
// and expiring after ttl of inactivity.
type RedisHistory struct {
	rdb    *redis.Client
	window int
	ttl    time.Duration
}

func NewRedisHistory(rdb *redis.Client, window int, ttl time.Duration) *RedisHistory {
	return &RedisHistory{rdb: rdb, window: window, ttl: ttl}
}

func historyKey(sessionID string) string { return "chat:history:" + sessionID }

func (h *RedisHistory) Load(ctx context.Context, sessionID string) ([]llm.Message, error) {
	raw, err := h.rdb.LRange(ctx, historyKey(sessionID), int64(-h.window), -1).Result()
	if err != nil {
		return nil, err
	}
	msgs := make([]llm.Message, 0, len(raw))
	for _, r := range raw {
		var m llm.Message
		if err := json.Unmarshal([]byte(r), &m); err != nil {
			return nil, fmt.Errorf("decode history: %w", err)
		}
		msgs = append(msgs, m)
	}
	return llm.Window(msgs, h.window), nil
}

func (h *RedisHistory) Append(ctx context.Context, sessionID string, msgs ...llm.Message) error {
	if len(msgs) == 0 {
		return nil
	}
	values := make([]any, 0, len(msgs))
	for _, m := range msgs {
		b, err := json.Marshal(m)
		if err != nil {
			return err
		}
		values = append(values, b)
	}
	key := historyKey(sessionID)
	_, err := h.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.RPush(ctx, key, values...)
		pipe.LTrim(ctx, key, int64(-h.window), -1)
		pipe.Expire(ctx, key, h.ttl)
		return nil
	})
	return err
}

func (h *RedisHistory) Delete(ctx context.Context, sessionID string) error {
	return h.rdb.Del(ctx, historyKey(sessionID)).Err()
}

type MemoryHistory struct {
	mu     sync.Mutex
	window int
	logs   map[string][]llm.Message
}

func NewMemoryHistory(window int) *MemoryHistory {
	return &MemoryHistory{window: window, logs: map[string][]llm.Message{}}
}

func (h *MemoryHistory) Load(_ context.Context, sessionID string) ([]llm.Message, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return llm.Window(append([]llm.Message(nil), h.logs[sessionID]...), h.window), nil
}

func (h *MemoryHistory) Append(_ context.Context, sessionID string, msgs ...llm.Message) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	log := append(h.logs[sessionID], msgs...)
	if len(log) > h.window {
		log = append([]llm.Message(nil), log[len(log)-h.window:]...)
	}
	h.logs[sessionID] = log
	return nil
}

func (h *MemoryHistory) Delete(_ context.Context, sessionID string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.logs, sessionID)
	return nil
}
