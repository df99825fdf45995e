package lock

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Compare-and-delete so an expired lock re-acquired by another consumer is left alone.
var unlock = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

// RedisLocker holds message keys with SET NX PX. The value is a per-acquisition
// token, so Release never deletes a key that expired and was taken by another
// consumer.
type RedisLocker struct {
	client *redis.Client
	tokens *owned[string]
}

func NewRedisLocker(client *redis.Client) *RedisLocker {
	return &RedisLocker{client: client, tokens: newOwned[string]()}
}

// Acquire sets key for ttl unless another holder has it.
func (l *RedisLocker) Acquire(ctx context.Context, key string, ttl time.Duration) error {
	return observe("redis", l.acquire(ctx, key, ttl))
}

func (l *RedisLocker) acquire(ctx context.Context, key string, ttl time.Duration) error {
	if l.tokens.holds(key) {
		return ErrAlreadyHeld
	}

	var raw [16]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return fmt.Errorf("generate lock token: %w", err)
	}
	token := hex.EncodeToString(raw[:])

	set, err := l.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return fmt.Errorf("redis setnx %s: %w", key, err)
	}
	if !set {
		return ErrNotAcquired
	}

	l.tokens.put(key, token)
	return nil
}

// Release deletes key if it still carries this process's token.
func (l *RedisLocker) Release(ctx context.Context, key string) error {
	token, ok := l.tokens.take(key)
	if !ok {
		return nil
	}
	if err := unlock.Run(ctx, l.client, []string{key}, token).Err(); err != nil {
		return fmt.Errorf("redis release %s: %w", key, err)
	}
	return nil
}
