package cache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/pushkal/server/internal/analysis/model"
	logx "github.com/pushkal/server/pkg/logger"
)

// incrWindow increments the counter and sets the window expiry only when the
// post-increment value is 1, atomically.
var incrWindow = redis.NewScript(`
local current = redis.call("INCR", KEYS[1])
if current == 1 then
	redis.call("EXPIRE", KEYS[1], ARGV[1])
end
return current
`)

func rateLimitKey(identifier string) string {
	return "ratelimit:" + identifier
}

// CheckRateLimit counts one request for identifier in a fixed window and
// reports whether it is within limit and how many requests remain.
func (c *Cache) CheckRateLimit(ctx context.Context, identifier string, limit int, window time.Duration) (bool, int) {
	if !c.Connected() {
		return true, limit
	}
	secs := int64(window / time.Second)
	if secs < 1 {
		secs = 1
	}
	current, err := incrWindow.Run(ctx, c.rdb, []string{rateLimitKey(identifier)}, secs).Int()
	if err != nil {
		logx.Warn().Err(err).Str("identifier", identifier).Msg("rate limit check failed")
		return true, limit
	}
	return current <= limit, max(0, limit-current)
}

type RateLimitInfo struct {
	Requests int           `json:"requests"`
	TTL      time.Duration `json:"ttl"`
}

// GetRateLimitInfo reports the current window's count and remaining TTL.
func (c *Cache) GetRateLimitInfo(ctx context.Context, identifier string) RateLimitInfo {
	if !c.Connected() {
		return RateLimitInfo{}
	}
	key := rateLimitKey(identifier)
	n, err := c.rdb.Get(ctx, key).Int()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			logx.Warn().Err(err).Str("identifier", identifier).Msg("rate limit info failed")
		}
		return RateLimitInfo{}
	}
	ttl, err := c.rdb.TTL(ctx, key).Result()
	if err != nil || ttl < 0 {
		ttl = 0
	}
	return RateLimitInfo{Requests: n, TTL: ttl}
}

var _ model.RateLimiter = (*Cache)(nil)
