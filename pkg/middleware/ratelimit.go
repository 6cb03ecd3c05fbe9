package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/wyfcoding/pricingrisk/pkg/logger"
	"github.com/wyfcoding/pricingrisk/pkg/ratelimit"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"
)

// GinRateLimit 按客户端 IP 限流，限流器故障时放行
func GinRateLimit(limiter ratelimit.RateLimiter, limit ratelimit.Limit) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := fmt.Sprintf("ratelimit:http:%s", c.ClientIP())
		res, err := limiter.Allow(c.Request.Context(), key, limit)
		if err != nil {
			logger.Warn(c.Request.Context(), "rate limiter unavailable", "error", err)
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(limit.Burst))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
		c.Header("X-RateLimit-Reset", strconv.FormatInt(int64(res.ResetAfter/time.Second), 10))

		if !res.Allowed {
			c.Header("Retry-After", strconv.FormatInt(int64(res.RetryAfter/time.Second)+1, 10))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"code":        "RATE_LIMITED",
				"message":     "too many requests",
				"retry_after": res.RetryAfter.String(),
			})
			return
		}
		c.Next()
	}
}

// GRPCRateLimit 按对端地址限流
func GRPCRateLimit(limiter ratelimit.RateLimiter, limit ratelimit.Limit) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		addr := "unknown"
		if p, ok := peer.FromContext(ctx); ok && p.Addr != nil {
			addr = p.Addr.String()
		}
		res, err := limiter.Allow(ctx, "ratelimit:grpc:"+addr, limit)
		if err == nil && !res.Allowed {
			return nil, status.Error(codes.ResourceExhausted, "rate limit exceeded")
		}
		return handler(ctx, req)
	}
}
