package throttle

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "notatapp:throttle:"

// RedisThrottle shares the fixed window across service instances
type RedisThrottle struct {
	client redis.UniversalClient
	cfg    Config
}

// NewRedisThrottle creates a throttle backed by Redis counters
func NewRedisThrottle(client redis.UniversalClient, cfg Config) *RedisThrottle {
	return &RedisThrottle{client: client, cfg: cfg.WithDefaults()}
}

func (t *RedisThrottle) Allow(ctx context.Context, key string) (bool, error) {
	count, err := t.incrementWithTTL(ctx, keyPrefix+key)
	if err != nil {
		return false, err
	}
	return count <= int64(t.cfg.Limit), nil
}

// incrementWithTTL counts the hit and starts the window in one MULTI block.
// EXPIRE NX leaves a running window untouched.
func (t *RedisThrottle) incrementWithTTL(ctx context.Context, key string) (int64, error) {
	var incr *redis.IntCmd
	_, err := t.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, key)
		pipe.ExpireNX(ctx, key, t.cfg.Window)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("throttle incr: %w", err)
	}
	return incr.Val(), nil
}
