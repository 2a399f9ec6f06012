// Package ratelimit throttles inbound client events per connection.
package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	redis "github.com/redis/go-redis/v9"
)

type Limiter interface {
	// Allow reports whether one more event for key fits in the current window.
	// A non-nil error means the backend failed and the event was let through.
	Allow(ctx context.Context, key string) (bool, error)
}

// Nop allows everything. Used when no Redis is configured.
type Nop struct{}

func (Nop) Allow(context.Context, string) (bool, error) { return true, nil }

// Redis is a fixed-window limiter built on INCR/EXPIRE.
// Keys look like rl:<window_seconds>:<key>.
type Redis struct {
	client      *redis.Client
	maxRequests int
	window      time.Duration
}

func NewRedis(client *redis.Client, maxRequests int, window time.Duration) *Redis {
	return &Redis{client: client, maxRequests: maxRequests, window: window}
}

func (l *Redis) Allow(ctx context.Context, key string) (bool, error) {
	k := "rl:" + strconv.FormatInt(int64(l.window.Seconds()), 10) + ":" + key

	val, err := l.client.Incr(ctx, k).Result()
	if err != nil {
		// fail-open so a Redis outage never blocks play
		return true, fmt.Errorf("incr %s: %w", k, err)
	}
	if val == 1 {
		// first hit in this window, start the clock
		if err := l.client.Expire(ctx, k, l.window).Err(); err != nil {
			return true, fmt.Errorf("expire %s: %w", k, err)
		}
	}
	return val <= int64(l.maxRequests), nil
}

// Connect dials Redis and pings it once.
func Connect(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis at %s: %w", addr, err)
	}
	return client, nil
}
