package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Locker is the per-sender mutual exclusion the engine holds while it processes
// one inbound message. At most one handler per sender may hold the lock; a
// second message arriving while the sender is busy gets a wait notice and is
// dropped. The TTL is a lease: a handler that hangs past it loses the lock
// instead of wedging the sender forever. Acquire returns a token identifying
// the acquisition; Release only drops the lease while that token still owns
// it, so a handler that outlived its lease cannot delete a successor's lock.
type Locker interface {
	Acquire(ctx context.Context, sender string, ttl time.Duration) (string, bool, error)
	Release(ctx context.Context, sender, token string) error
}

// releaseScript deletes the lease only when the caller's token still owns it.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker implements Locker with a SET NX lease per sender.
type RedisLocker struct {
	client *redis.Client
	prefix string
}

// NewRedisLocker creates a redis-backed locker.
func NewRedisLocker(client *redis.Client) *RedisLocker {
	return &RedisLocker{client: client, prefix: "sender-lock:"}
}

func (l *RedisLocker) key(sender string) string {
	return l.prefix + sender
}

// Acquire takes the sender's lease. It returns false without error when the
// sender is already busy.
func (l *RedisLocker) Acquire(ctx context.Context, sender string, ttl time.Duration) (string, bool, error) {
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, l.key(sender), token, ttl).Result()
	if err != nil {
		return "", false, fmt.Errorf("engine: acquire sender lock: %w", err)
	}
	if !ok {
		return "", false, nil
	}
	return token, true, nil
}

// Release drops the sender's lease if token still owns it. A lease that
// expired and was reacquired by a later handler is left untouched.
func (l *RedisLocker) Release(ctx context.Context, sender, token string) error {
	if err := releaseScript.Run(ctx, l.client, []string{l.key(sender)}, token).Err(); err != nil {
		return fmt.Errorf("engine: release sender lock: %w", err)
	}
	return nil
}

type lease struct {
	token  string
	expiry time.Time
}

// MapLocker is an in-process Locker used in development and tests. Leases
// expire lazily on the next Acquire for the same sender.
type MapLocker struct {
	mu    sync.Mutex
	busy  map[string]lease
	clock func() time.Time
}

// NewMapLocker creates an in-memory locker.
func NewMapLocker() *MapLocker {
	return &MapLocker{busy: make(map[string]lease), clock: time.Now}
}

// Acquire takes the sender's in-process lease.
func (l *MapLocker) Acquire(_ context.Context, sender string, ttl time.Duration) (string, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.clock()
	if held, ok := l.busy[sender]; ok && now.Before(held.expiry) {
		return "", false, nil
	}
	token := uuid.NewString()
	l.busy[sender] = lease{token: token, expiry: now.Add(ttl)}
	return token, true, nil
}

// Release drops the sender's in-process lease if token still owns it.
func (l *MapLocker) Release(_ context.Context, sender, token string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if held, ok := l.busy[sender]; ok && held.token == token {
		delete(l.busy, sender)
	}
	return nil
}
