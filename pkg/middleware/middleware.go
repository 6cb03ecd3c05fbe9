// Package middleware 提供 Gin 与 gRPC 的通用中间件（日志、trace、panic recover、指标、限流）
package middleware

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/wyfcoding/pricingrisk/pkg/logger"
	"github.com/wyfcoding/pricingrisk/pkg/metrics"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

const (
	// TraceHeader 链路 ID 请求头
	TraceHeader = "X-Trace-ID"
	// RequestIDHeader 响应中回写的请求 ID
	RequestIDHeader = "X-Request-ID"
	// RequestIDKey gin.Context 中的请求 ID
	RequestIDKey = "request_id"
)

// withTrace 注入 trace/span ID，入参 traceID 为空时生成新的
func withTrace(ctx context.Context, traceID string) (context.Context, string) {
	if traceID == "" {
		traceID = uuid.NewString()
	}
	ctx = logger.ContextWithTraceID(ctx, traceID)
	ctx = logger.ContextWithSpanID(ctx, uuid.NewString())
	return ctx, traceID
}

// GinLogging Gin 日志中间件
func GinLogging() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := uuid.NewString()
		ctx, traceID := withTrace(c.Request.Context(), c.GetHeader(TraceHeader))
		c.Request = c.Request.WithContext(ctx)
		c.Set(RequestIDKey, requestID)
		c.Header(RequestIDHeader, requestID)
		c.Header(TraceHeader, traceID)

		start := time.Now()
		c.Next()

		args := []any{
			"request_id", requestID,
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status_code", c.Writer.Status(),
			"response_size", c.Writer.Size(),
			"client_ip", c.ClientIP(),
			"duration", time.Since(start),
		}
		if c.Writer.Status() >= http.StatusInternalServerError {
			logger.Error(ctx, "HTTP request failed", args...)
			return
		}
		logger.Info(ctx, "HTTP request completed", args...)
	}
}

// GinRecovery Gin panic 恢复中间件
func GinRecovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				requestID, _ := c.Get(RequestIDKey)
				logger.Error(c.Request.Context(), "HTTP request panicked",
					"request_id", requestID,
					"panic", err,
				)
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
					"code":       "INTERNAL",
					"message":    "internal server error",
					"request_id": requestID,
				})
			}
		}()
		c.Next()
	}
}

// GinCORS Gin CORS 中间件
func GinCORS() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, accept, origin, Cache-Control, X-Requested-With, X-Trace-ID")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// GinMetrics 记录 HTTP 请求数与耗时，路径使用路由模板避免高基数
func GinMetrics(m *metrics.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		m.RecordHTTPRequest(c.Request.Method, path, c.Writer.Status(), time.Since(start).Seconds())
	}
}

// GRPCLogging gRPC 日志拦截器
func GRPCLogging() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		ctx, _ = withTrace(ctx, traceIDFromMetadata(ctx))
		start := time.Now()

		resp, err := handler(ctx, req)

		if err != nil {
			st, _ := status.FromError(err)
			logger.Error(ctx, "gRPC request failed",
				"method", info.FullMethod,
				"error_code", st.Code().String(),
				"error_message", st.Message(),
				"duration", time.Since(start),
			)
		} else {
			logger.Debug(ctx, "gRPC request completed",
				"method", info.FullMethod,
				"duration", time.Since(start),
			)
		}
		return resp, err
	}
}

// GRPCRecovery gRPC panic 恢复拦截器
func GRPCRecovery() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (resp any, err error) {
		defer func() {
			if r := recover(); r != nil {
				logger.Error(ctx, "gRPC request panicked",
					"method", info.FullMethod,
					"panic", r,
				)
				err = status.Error(codes.Internal, "internal server error")
			}
		}()
		return handler(ctx, req)
	}
}

// GRPCMetrics 记录 gRPC 请求数与耗时
func GRPCMetrics(m *metrics.Metrics) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		m.RecordGRPCRequest(info.FullMethod, status.Code(err).String(), time.Since(start).Seconds())
		return resp, err
	}
}

// traceIDFromMetadata 从 incoming metadata 提取 trace ID
func traceIDFromMetadata(ctx context.Context) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	if vals := md.Get("x-trace-id"); len(vals) > 0 {
		return vals[0]
	}
	return ""
}
