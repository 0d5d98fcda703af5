package lock

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rileyhilliard/agentdeploy/internal/errors"
)

// releaseScript deletes the key only if it still holds our value, so a
// lease that expired and was retaken is never freed by its old holder.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
else
	return 0
end
`)

// Redis is a Manager backed by SET NX PX. The value is the holder's
// LockInfo JSON, so contention errors can name the holder.
type Redis struct {
	client redis.UniversalClient
	cfg    Config
}

// NewRedis creates a Redis-backed lease manager.
func NewRedis(client redis.UniversalClient, cfg Config) *Redis {
	return &Redis{client: client, cfg: cfg.withDefaults()}
}

// Ping checks the Redis server is reachable.
func (m *Redis) Ping(ctx context.Context) error {
	if err := m.client.Ping(ctx).Err(); err != nil {
		return errors.WrapWithCode(err, errors.ErrLock,
			"Can't reach the Redis lease backend",
			"Check lease.redis_addr in .agentdeploy.yaml")
	}
	return nil
}

// Acquire implements Manager.
func (m *Redis) Acquire(ctx context.Context, key string, info *LockInfo) (*Lease, error) {
	info = prepareInfo(info)
	value, err := info.Marshal()
	if err != nil {
		return nil, errors.WrapWithCode(err, errors.ErrLock, "Failed to serialize lease info", "")
	}
	redisKey := m.cfg.Prefix + key
	deadline := time.Now().Add(m.cfg.Wait)

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		ok, err := m.client.SetNX(ctx, redisKey, value, m.cfg.TTL).Result()
		if err != nil {
			return nil, errors.WrapWithCode(err, errors.ErrLock,
				fmt.Sprintf("Redis error acquiring the lease on %s", key),
				"Check the Redis server is reachable")
		}
		if ok {
			return &Lease{Key: key, Info: info, release: func() error {
				// Release must work even when the caller's context is gone.
				rctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				return releaseScript.Run(rctx, m.client, []string{redisKey}, string(value)).Err()
			}}, nil
		}

		if time.Now().After(deadline) {
			return nil, lockedError(key, m.holder(ctx, redisKey))
		}
		select {
		case <-ctx.Done():
			return nil, errors.WrapWithCode(ctx.Err(), errors.ErrLock,
				"Gave up waiting for the deployment lease on "+key, "")
		case <-ticker.C:
		}
	}
}

// holder reads the current value of redisKey, or nil if it can't.
func (m *Redis) holder(ctx context.Context, redisKey string) *LockInfo {
	data, err := m.client.Get(ctx, redisKey).Bytes()
	if err != nil {
		return nil
	}
	info, err := ParseLockInfo(data)
	if err != nil {
		return nil
	}
	return info
}
