package rate

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Config holds throttle tuning. MaxAttempts failures are allowed per Window; the
// next check fails until the window expires.
type Config struct {
	Prefix      string
	MaxAttempts int
	Window      time.Duration
	// PerIP also counts failures by client address.
	PerIP bool
}

func DefaultConfig() Config {
	return Config{Prefix: "gs:", MaxAttempts: 5, Window: 15 * time.Minute, PerIP: true}
}

// Limiter throttles failed logins per email and optionally per IP.
type Limiter struct {
	redis  redis.UniversalClient
	config Config
}

func New(client redis.UniversalClient, cfg Config) *Limiter {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultConfig().MaxAttempts
	}
	if cfg.Window <= 0 {
		cfg.Window = DefaultConfig().Window
	}
	return &Limiter{redis: client, config: cfg}
}

// Check returns ErrRateLimited when email or ip has spent its budget.
func (l *Limiter) Check(ctx context.Context, email, ip string) error {
	for _, key := range l.keys(email, ip) {
		count, err := l.redis.Get(ctx, key).Int64()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
		if count >= int64(l.config.MaxAttempts) {
			return ErrRateLimited
		}
	}
	return nil
}

// Fail records a failed attempt and reports ErrRateLimited when it spent the budget.
func (l *Limiter) Fail(ctx context.Context, email, ip string) error {
	var limited bool
	for _, key := range l.keys(email, ip) {
		count, err := l.redis.Incr(ctx, key).Result()
		if err != nil {
			return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
		if count == 1 {
			if err := l.redis.Expire(ctx, key, l.config.Window).Err(); err != nil {
				return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
			}
		}
		if count >= int64(l.config.MaxAttempts) {
			limited = true
		}
	}
	if limited {
		return ErrRateLimited
	}
	return nil
}

// Reset clears the per-email counter after a successful login. The IP counter is
// left alone so one good account cannot launder a sprayed address.
func (l *Limiter) Reset(ctx context.Context, email string) error {
	if err := l.redis.Del(ctx, l.userKey(email)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// RetryAfter returns how long until email's window expires, or zero.
func (l *Limiter) RetryAfter(ctx context.Context, email string) time.Duration {
	ttl, err := l.redis.TTL(ctx, l.userKey(email)).Result()
	if err != nil || ttl < 0 {
		return 0
	}
	return ttl
}

func (l *Limiter) keys(email, ip string) []string {
	keys := []string{l.userKey(email)}
	if l.config.PerIP && ip != "" {
		keys = append(keys, l.config.Prefix+"login:ip:"+ip)
	}
	return keys
}

func (l *Limiter) userKey(email string) string {
	return l.config.Prefix + "login:u:" + strings.ToLower(strings.TrimSpace(email))
}
