package rate

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Config holds limiter tuning parameters. A zero MaxPerAccount disables the
// account window; a zero MaxPerIP disables the IP window.
type Config struct {
	MaxPerAccount int
	MaxPerIP      int
	Window        time.Duration
}

// Limiter enforces per-account and per-IP register budgets.
type Limiter struct {
	redis  redis.UniversalClient
	prefix string
	config Config
}

// New creates a [Limiter] backed by the given Redis client. Keys live under
// prefix so they share the registry's keyspace.
func New(redisClient redis.UniversalClient, prefix string, cfg Config) *Limiter {
	if cfg.Window <= 0 {
		cfg.Window = time.Minute
	}
	return &Limiter{
		redis:  redisClient,
		prefix: prefix,
		config: cfg,
	}
}

// AllowRegister counts one register attempt for accountID and ip. When a
// budget is spent it returns [ErrRateLimited] and the time until the window
// resets.
func (l *Limiter) AllowRegister(ctx context.Context, accountID, ip string) (time.Duration, error) {
	if l.config.MaxPerAccount > 0 {
		if wait, err := l.hit(ctx, l.accountKey(accountID), l.config.MaxPerAccount); err != nil {
			return wait, err
		}
	}
	if l.config.MaxPerIP > 0 && ip != "" {
		if wait, err := l.hit(ctx, l.ipKey(ip), l.config.MaxPerIP); err != nil {
			return wait, err
		}
	}
	return 0, nil
}

// windowHitScript counts one hit and returns {count, pttl}. The TTL is set
// in the same script as the increment, so a window key never outlives its
// window; a key found without a TTL is given one.
const windowHitScript = `
local count = redis.call("INCR", KEYS[1])
local ttl = redis.call("PTTL", KEYS[1])
if ttl < 0 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
  ttl = tonumber(ARGV[1])
end
return {count, ttl}
`

var windowHitLua = redis.NewScript(windowHitScript)

func (l *Limiter) hit(ctx context.Context, key string, budget int) (time.Duration, error) {
	count, ttl, err := l.incrementWithTTL(ctx, key, l.config.Window)
	if err != nil {
		return 0, err
	}
	if count <= int64(budget) {
		return 0, nil
	}
	if ttl <= 0 {
		ttl = l.config.Window
	}
	return ttl, ErrRateLimited
}

func (l *Limiter) incrementWithTTL(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	res, err := windowHitLua.Run(ctx, l.redis, []string{key}, window.Milliseconds()).Int64Slice()
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if len(res) != 2 {
		return 0, 0, fmt.Errorf("%w: unexpected window reply %v", ErrRedisUnavailable, res)
	}
	return res[0], time.Duration(res[1]) * time.Millisecond, nil
}

func (l *Limiter) accountKey(accountID string) string {
	return l.prefix + ":rl:a:" + accountID
}

func (l *Limiter) ipKey(ip string) string {
	return l.prefix + ":rl:i:" + ip
}
