// Package redislimiter is a fixed-window rate limiter shared across
// instances through Redis.
package redislimiter

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// Limit allows Limit hits per Window.
type Limit struct {
	Limit  int
	Window time.Duration
}

const DefaultBucket = "default"

type Limiter struct {
	rdb     redis.UniversalClient
	limits  map[string]Limit
	prefix  string
	timeout time.Duration
}

func New(rdb redis.UniversalClient, limits map[string]Limit) *Limiter {
	cp := make(map[string]Limit, len(limits))
	for k, v := range limits {
		cp[k] = v
	}
	return &Limiter{rdb: rdb, limits: cp, prefix: "rl:", timeout: 250 * time.Millisecond}
}

// WithPrefix changes the key prefix (default "rl:").
func (l *Limiter) WithPrefix(prefix string) *Limiter { l.prefix = prefix; return l }

func (l *Limiter) limitFor(bucket string) (Limit, bool) {
	if lim, ok := l.limits[bucket]; ok {
		return lim, true
	}
	lim, ok := l.limits[DefaultBucket]
	return lim, ok
}

// AllowNamed increments key's counter and reports whether it is within
// bucket's limit. The window starts at the first hit.
func (l *Limiter) AllowNamed(bucket, key string) (bool, error) {
	lim, ok := l.limitFor(bucket)
	if !ok || lim.Limit <= 0 || lim.Window <= 0 {
		return true, nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), l.timeout)
	defer cancel()

	k := l.prefix + key
	var incr *redis.IntCmd
	var ttl *redis.DurationCmd
	if _, err := l.rdb.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, k)
		ttl = pipe.PTTL(ctx, k)
		return nil
	}); err != nil {
		return false, err
	}
	// -1 means the key has no expiry yet (first hit, or a lost PEXPIRE).
	if ttl.Val() < 0 {
		if err := l.rdb.PExpire(ctx, k, lim.Window).Err(); err != nil {
			return false, err
		}
	}
	return incr.Val() <= int64(lim.Limit), nil
}
