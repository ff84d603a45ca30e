package cluster

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultGateKey is the Redis key used by NewRedisGate when key is empty.
const DefaultGateKey = "taskwise:gate:backlog-sample"

// RedisGate is a Gate shared by every process using the same Redis key.
// The key expires after the interval, reopening the gate.
type RedisGate struct {
	client   redis.Cmdable
	key      string
	interval time.Duration
	holder   string
}

// NewRedisGate creates a cross-process gate. The caller owns the Redis
// client lifecycle.
func NewRedisGate(client redis.Cmdable, key string, interval time.Duration) *RedisGate {
	if key == "" {
		key = DefaultGateKey
	}
	host, _ := os.Hostname()
	return &RedisGate{
		client:   client,
		key:      key,
		interval: interval,
		holder:   host + ":" + strconv.Itoa(os.Getpid()),
	}
}

// Allow implements Gate.
func (g *RedisGate) Allow(ctx context.Context) (bool, error) {
	if g.interval <= 0 {
		return true, nil
	}
	ok, err := g.client.SetNX(ctx, g.key, g.holder, g.interval).Result()
	if err != nil {
		return false, fmt.Errorf("taskwise/redis: gate %s: %w", g.key, err)
	}
	return ok, nil
}
