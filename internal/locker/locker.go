// Package locker serializes webhook processing per external identity using
// a Redis lock. The user store's atomic upsert is the real correctness
// guarantee; the lock only narrows the window in which racing deliveries
// for the same identity interleave, so it is deliberately advisory.
package locker

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	keyPrefix    = "usersync:lock:"
	lockTTL      = 10 * time.Second
	acquireLimit = time.Second
	pollInterval = 25 * time.Millisecond
)

// Only the holder's token may delete the key, so a lock that expired and
// was re-acquired by another delivery is never released by the first.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

type Locker struct {
	client *redis.Client
	logger *slog.Logger
}

func New(client *redis.Client, logger *slog.Logger) *Locker {
	return &Locker{client: client, logger: logger}
}

// Acquire takes the lock for the given external identity, polling briefly
// while it is contended, and returns a release function. When Redis is
// unreachable or the lock stays contended past the acquire limit the caller
// proceeds without it, relying on the store's own atomicity.
func (l *Locker) Acquire(ctx context.Context, identity string) func() {
	key := keyPrefix + identity
	token := uuid.New().String()
	deadline := time.Now().Add(acquireLimit)

	for {
		ok, err := l.client.SetNX(ctx, key, token, lockTTL).Result()
		if err != nil {
			l.logger.Warn("identity lock unavailable, proceeding unlocked",
				slog.String("identity", identity),
				slog.Any("error", err),
			)
			return func() {}
		}
		if ok {
			return func() {
				if err := releaseScript.Run(context.WithoutCancel(ctx), l.client, []string{key}, token).Err(); err != nil && err != redis.Nil {
					l.logger.Warn("failed to release identity lock",
						slog.String("identity", identity),
						slog.Any("error", err),
					)
				}
			}
		}
		if time.Now().After(deadline) || ctx.Err() != nil {
			l.logger.Warn("identity lock contended past acquire limit, proceeding unlocked",
				slog.String("identity", identity),
			)
			return func() {}
		}
		time.Sleep(pollInterval)
	}
}
