package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/iliyamo/studyroom-reservation/internal/config"
)

// bucketScript takes one token from the bucket at KEYS[1] after adding
// the whole refill steps elapsed since the last refill.  The hash holds
// the token count (n) and the time of the last credited step (at).
// Returns {allowed, tokens left, ms until the next step when denied}.
var bucketScript = redis.NewScript(`
local now, cap, step, every, ttl = tonumber(ARGV[1]), tonumber(ARGV[2]), tonumber(ARGV[3]), tonumber(ARGV[4]), tonumber(ARGV[5])
local n = tonumber(redis.call('HGET', KEYS[1], 'n'))
local at = tonumber(redis.call('HGET', KEYS[1], 'at'))
if not n or not at then
  n, at = cap, now
end
local steps = 0
if every > 0 and now > at then
  steps = math.floor((now - at) / every)
end
if steps > 0 then
  n = math.min(cap, n + steps * step)
  at = at + steps * every
end
local ok, wait = 0, 0
if n >= 1 then
  ok, n = 1, n - 1
else
  wait = math.max(0, every - (now - at))
end
redis.call('HSET', KEYS[1], 'n', n, 'at', at)
redis.call('PEXPIRE', KEYS[1], ttl)
return {ok, n, wait}
`)

// decision is the outcome of one bucket take.
type decision struct {
	allowed    bool
	remaining  int64
	retryAfter time.Duration
}

type tokenBucket struct {
	cfg    config.RateLimitConfig
	rdb    *redis.Client
	logger *zap.Logger
}

func (b *tokenBucket) take(ctx context.Context, key string) (decision, error) {
	vals, err := bucketScript.Run(ctx, b.rdb, []string{key},
		time.Now().UnixMilli(),
		b.cfg.Capacity,
		b.cfg.RefillTokens,
		b.cfg.RefillInterval.Milliseconds(),
		b.cfg.TTL.Milliseconds(),
	).Int64Slice()
	if err != nil {
		return decision{}, err
	}
	if len(vals) != 3 {
		return decision{}, fmt.Errorf("rate limit script returned %d values", len(vals))
	}
	return decision{
		allowed:    vals[0] == 1,
		remaining:  vals[1],
		retryAfter: time.Duration(vals[2]) * time.Millisecond,
	}, nil
}

// NewTokenBucket limits requests per key with a Redis token bucket.  With
// rate limiting disabled or no Redis client it is a pass-through.  Redis
// failures never block a request.
func NewTokenBucket(cfg config.RateLimitConfig, rdb *redis.Client, logger *zap.Logger) echo.MiddlewareFunc {
	if !cfg.Enabled || rdb == nil {
		return passThrough
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	b := &tokenBucket{cfg: cfg, rdb: rdb, logger: logger}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			key := buildRateKey(cfg, c)
			d, err := b.take(c.Request().Context(), key)
			if err != nil {
				logger.Warn("rate limit check failed", zap.String("key", key), zap.Error(err))
				return next(c)
			}

			h := c.Response().Header()
			h.Set("X-RateLimit-Limit", strconv.Itoa(cfg.Capacity))
			h.Set("X-RateLimit-Remaining", strconv.FormatInt(d.remaining, 10))
			if cfg.Debug {
				h.Set("X-RateLimit-Key", key)
			}
			if d.allowed {
				return next(c)
			}

			secs := int(math.Ceil(d.retryAfter.Seconds()))
			h.Set("Retry-After", strconv.Itoa(secs))
			logger.Debug("rate limited", zap.String("key", key), zap.Duration("retry_after", d.retryAfter))
			return c.JSON(http.StatusTooManyRequests, echo.Map{
				"error":      "rate limit exceeded",
				"kind":       "RATE_LIMITED",
				"retryAfter": secs,
			})
		}
	}
}

func passThrough(next echo.HandlerFunc) echo.HandlerFunc { return next }

// buildRateKey joins the configured key parts under the prefix.  The
// strategy lists parts separated by underscores, e.g. "ip_route"; unknown
// parts are ignored and an empty result falls back to ip_route.
func buildRateKey(cfg config.RateLimitConfig, c echo.Context) string {
	parts := []string{cfg.Prefix}
	add := func(strategy string) {
		for _, p := range strings.Split(strings.ToLower(strategy), "_") {
			switch p {
			case "ip":
				ip := c.RealIP()
				if ip == "" {
					ip = "unknown"
				}
				parts = append(parts, "ip", ip)
			case "user":
				parts = append(parts, "user", requestUsername(c))
			case "route":
				parts = append(parts, "route", c.Request().Method+" "+c.Path())
			}
		}
	}
	add(cfg.KeyStrategy)
	if len(parts) == 1 {
		add("ip_route")
	}
	return strings.Join(parts, ":")
}

const maxPeekBytes = 64 << 10

// requestUsername reads the username field of a JSON body without
// consuming it.  Bodies that are large or not JSON count as anon.
func requestUsername(c echo.Context) string {
	req := c.Request()
	if req.Body == nil || req.ContentLength > maxPeekBytes {
		return "anon"
	}
	raw, err := io.ReadAll(io.LimitReader(req.Body, maxPeekBytes+1))
	req.Body = io.NopCloser(io.MultiReader(bytes.NewReader(raw), req.Body))
	if err != nil || len(raw) > maxPeekBytes {
		return "anon"
	}
	var body struct {
		Username string `json:"username"`
	}
	if json.Unmarshal(raw, &body) != nil {
		return "anon"
	}
	if u := strings.ToLower(strings.TrimSpace(body.Username)); u != "" {
		return u
	}
	return "anon"
}
