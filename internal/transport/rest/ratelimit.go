package rest

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
)

type RateLimitConfig struct {
	Enabled bool
	Limit   int
	Window  time.Duration
	Prefix  string
}

// Counter increments the hit count for key in the current window and returns
// the new count.
type Counter interface {
	Incr(ctx context.Context, key string, window time.Duration) (int64, error)
}

type RedisCounter struct {
	rdb *redis.Client
}

func NewRedisCounter(rdb *redis.Client) *RedisCounter {
	return &RedisCounter{rdb: rdb}
}

func (r *RedisCounter) Incr(ctx context.Context, key string, window time.Duration) (int64, error) {
	var incr *redis.IntCmd
	_, err := r.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		incr = p.Incr(ctx, key)
		p.Expire(ctx, key, window)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return incr.Val(), nil
}

// RateLimit is a fixed-window limiter keyed by caller and route. With no
// counter, or when the counter fails, requests pass through.
func RateLimit(cfg RateLimitConfig, counter Counter, log *slog.Logger) echo.MiddlewareFunc {
	if !cfg.Enabled || counter == nil || cfg.Limit <= 0 || cfg.Window <= 0 {
		return passThrough
	}
	if log == nil {
		log = slog.Default()
	}
	prefix := cfg.Prefix
	if prefix == "" {
		prefix = "roombooking:rl"
	}
	now := time.Now

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			t := now()
			slot := t.UnixNano() / int64(cfg.Window)
			key := fmt.Sprintf("%s:%s:%s %s:%d", prefix, callerKey(c), c.Request().Method, c.Path(), slot)

			n, err := counter.Incr(c.Request().Context(), key, cfg.Window)
			if err != nil {
				log.Warn("rate limit unavailable", slog.Any("err", err))
				return next(c)
			}

			remaining := int64(cfg.Limit) - n
			if remaining < 0 {
				remaining = 0
			}
			h := c.Response().Header()
			h.Set("X-RateLimit-Limit", strconv.Itoa(cfg.Limit))
			h.Set("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))

			if n > int64(cfg.Limit) {
				windowEnd := time.Unix(0, (slot+1)*int64(cfg.Window))
				retry := int(windowEnd.Sub(t).Seconds()) + 1
				h.Set("Retry-After", strconv.Itoa(retry))
				return c.JSON(http.StatusTooManyRequests, echo.Map{"error": "rate limit exceeded"})
			}
			return next(c)
		}
	}
}

func callerKey(c echo.Context) string {
	if who := identityFrom(c); !who.IsZero() {
		return "user:" + who.UserID
	}
	return "ip:" + c.RealIP()
}
