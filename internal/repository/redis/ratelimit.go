package redisrepo

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// rateScript keeps one sorted set of hit timestamps per caller and trims it
// to the window before counting. It returns {allowed, hits, retry_ms}.
//
//	KEYS[1]  limiter key
//	ARGV[1]  now in ms
//	ARGV[2]  window in ms
//	ARGV[3]  limit
//	ARGV[4]  unique hit id
var rateScript = redis.NewScript(`
local now, window, limit = tonumber(ARGV[1]), tonumber(ARGV[2]), tonumber(ARGV[3])

redis.call('ZREMRANGEBYSCORE', KEYS[1], '-inf', now - window)
redis.call('ZADD', KEYS[1], now, ARGV[4])
redis.call('PEXPIRE', KEYS[1], window)

local hits = redis.call('ZCARD', KEYS[1])
if hits <= limit then
  return {1, hits, 0}
end

local oldest = redis.call('ZRANGE', KEYS[1], 0, 0, 'WITHSCORES')
local retry = window
if oldest[2] then
  retry = math.max(0, tonumber(oldest[2]) + window - now)
end
return {0, hits, retry}
`)

// SlidingWindowLimiter allows at most limit hits per window for each caller
// within a scope such as "bookings". A nil limiter allows everything.
type SlidingWindowLimiter struct {
	rdb    *redis.Client
	scope  string
	limit  int
	window time.Duration
	now    func() time.Time
}

func NewSlidingWindowLimiter(
	rdb *redis.Client,
	scope string,
	limit int,
	window time.Duration,
) *SlidingWindowLimiter {
	return &SlidingWindowLimiter{
		rdb:    rdb,
		scope:  scope,
		limit:  limit,
		window: window,
		now:    time.Now,
	}
}

// Allow records a hit for caller and reports whether it is within the limit.
// When it is not, retryAfter says how long until the oldest hit leaves the
// window.
func (l *SlidingWindowLimiter) Allow(ctx context.Context, caller string) (allowed bool, hits int64, retryAfter time.Duration, err error) {
	const op = "redisrepo.SlidingWindowLimiter.Allow"

	if l == nil || l.limit <= 0 {
		return true, 0, 0, nil
	}

	id, err := hitID()
	if err != nil {
		return false, 0, 0, fmt.Errorf("%s:%w", op, err)
	}

	res, err := rateScript.Run(ctx, l.rdb,
		[]string{KeyRateLimit(l.scope, caller)},
		l.now().UnixMilli(), l.window.Milliseconds(), l.limit, id,
	).Int64Slice()
	if err != nil {
		return false, 0, 0, fmt.Errorf("%s:%w", op, err)
	}
	if len(res) != 3 {
		return false, 0, 0, fmt.Errorf("%s: unexpected script reply %v", op, res)
	}

	return res[0] == 1, res[1], time.Duration(res[2]) * time.Millisecond, nil
}

func hitID() (string, error) {
	b := make([]byte, 12)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
