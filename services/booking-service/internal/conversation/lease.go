package conversation

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var ErrSessionBusy = errors.New("session is handling another message")

// Leaser grants one writer per session at a time. Release must only drop the
// lease it was handed, never a later holder's.
type Leaser interface {
	Acquire(ctx context.Context, sessionID string, ttl time.Duration) (release func(context.Context) error, err error)
}

type RedisLeaser struct {
	rdb *redis.Client
}

func NewRedisLeaser(rdb *redis.Client) *RedisLeaser {
	return &RedisLeaser{rdb: rdb}
}

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`)

func (l *RedisLeaser) Acquire(ctx context.Context, sessionID string, ttl time.Duration) (func(context.Context) error, error) {
	key := "chat:lease:" + sessionID
	token := uuid.NewString()
	ok, err := l.rdb.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrSessionBusy
	}
	return func(ctx context.Context) error {
		return releaseScript.Run(ctx, l.rdb, []string{key}, token).Err()
	}, nil
}

type MemoryLeaser struct {
	mu     sync.Mutex
	leases map[string]memoryLease
	now    func() time.Time
}

type memoryLease struct {
	token   string
	expires time.Time
}

func NewMemoryLeaser() *MemoryLeaser {
	return &MemoryLeaser{leases: map[string]memoryLease{}, now: time.Now}
}

func (l *MemoryLeaser) Acquire(_ context.Context, sessionID string, ttl time.Duration) (func(context.Context) error, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	if cur, ok := l.leases[sessionID]; ok && now.Before(cur.expires) {
		return nil, ErrSessionBusy
	}
	token := uuid.NewString()
	l.leases[sessionID] = memoryLease{token: token, expires: now.Add(ttl)}
	return func(context.Context) error {
		l.mu.Lock()
		defer l.mu.Unlock()
		if cur, ok := l.leases[sessionID]; ok && cur.token == token {
			delete(l.leases, sessionID)
		}
		return nil
	}, nil
}
