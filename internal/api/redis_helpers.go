package api

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

type redisRateCounter interface {
	Incr(ctx context.Context, key string) *redis.IntCmd
	Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd
}

func incrWithTTL(ctx context.Context, client redisRateCounter, key string, ttl time.Duration) (int64, error) {
	count, err := client.Incr(ctx, key).Result()
	if err != nil {
		return 0, err
	}
	if count == 1 {
		_ = client.Expire(ctx, key, ttl).Err()
	}
	return count, nil
}

// RenderLimiter 按学校限制每分钟的渲染次数（固定窗口计数）。
// Redis 不可用时放行请求，只记录告警。
type RenderLimiter struct {
	client    redisRateCounter
	perMinute int
	now       func() time.Time
}

// NewRenderLimiter 创建限流器；client 为 nil 或 perMinute <= 0 时不限流。
func NewRenderLimiter(client redisRateCounter, perMinute int) *RenderLimiter {
	return &RenderLimiter{client: client, perMinute: perMinute, now: time.Now}
}

// Allow 记录一次渲染请求并返回是否放行。
func (l *RenderLimiter) Allow(ctx context.Context, schoolID uint, logger *slog.Logger) bool {
	if l == nil || l.client == nil || l.perMinute <= 0 {
		return true
	}
	key := fmt.Sprintf("render_rate:%d:%s", schoolID, l.now().UTC().Format("200601021504"))
	count, err := incrWithTTL(ctx, l.client, key, 2*time.Minute)
	if err != nil {
		logger.Warn("render rate limiter unavailable", slog.String("error", err.Error()))
		return true
	}
	return count <= int64(l.perMinute)
}
