package lock

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrNotAcquired indicates another holder already owns the lock.
var ErrNotAcquired = errors.New("lock not acquired")

// ErrNotHeld indicates the lock expired or belongs to someone else.
var ErrNotHeld = errors.New("lock not held")

// Manager hands out short-lived mutual-exclusion locks backed by Redis
// SETNX. Used to guarantee at most one active grading run per submission.
type Manager struct {
	client *redis.Client
}

// NewManager constructs a lock manager over the given Redis client.
func NewManager(client *redis.Client) *Manager {
	return &Manager{client: client}
}

// Lock is a single acquired lock. Release only succeeds for the holder.
type Lock struct {
	client *redis.Client
	key    string
	token  string
}

// Acquire attempts to take the lock. Returns ErrNotAcquired when the key
// is already held; the TTL bounds how long a crashed holder can block
// other runs.
func (m *Manager) Acquire(ctx context.Context, key string, ttl time.Duration) (*Lock, error) {
	token := uuid.NewString()
	ok, err := m.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotAcquired
	}
	return &Lock{client: m.client, key: key, token: token}, nil
}

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
else
	return 0
end
`)

// Release frees the lock if this instance still holds it.
func (l *Lock) Release(ctx context.Context) error {
	result, err := releaseScript.Run(ctx, l.client, []string{l.key}, l.token).Int()
	if err != nil {
		return err
	}
	if result == 0 {
		return ErrNotHeld
	}
	return nil
}

// IsHeld reports whether this instance still owns the lock.
func (l *Lock) IsHeld(ctx context.Context) (bool, error) {
	value, err := l.client.Get(ctx, l.key).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return value == l.token, nil
}
