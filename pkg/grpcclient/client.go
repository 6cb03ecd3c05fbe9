// Package grpcclient 提供 gRPC 客户端工厂，支持超时、重试与 trace 注入
package grpcclient

import (
	"context"
	"time"

	"github.com/wyfcoding/pricingrisk/pkg/logger"
	"google.golang.org/grpc"
	"google.golang.org/grpc/backoff"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// ClientConfig gRPC 客户端配置
type ClientConfig struct {
	// 目标地址
	Target string
	// 连接超时（秒）
	ConnTimeout int
	// 请求超时（秒）
	RequestTimeout int
	// 最大重试次数
	MaxRetries int
	// 重试延迟（毫秒）
	RetryDelay int
}

// NewClient 创建 gRPC 客户端连接，连接在首次调用时建立
func NewClient(cfg ClientConfig, extra ...grpc.DialOption) (*grpc.ClientConn, error) {
	opts := []grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithUnaryInterceptor(UnaryClientInterceptor(cfg)),
	}
	if cfg.ConnTimeout > 0 {
		opts = append(opts, grpc.WithConnectParams(grpc.ConnectParams{
			Backoff:           backoff.DefaultConfig,
			MinConnectTimeout: time.Duration(cfg.ConnTimeout) * time.Second,
		}))
	}
	opts = append(opts, extra...)

	conn, err := grpc.NewClient(cfg.Target, opts...)
	if err != nil {
		logger.Error(context.Background(), "Failed to create gRPC client", "target", cfg.Target, "error", err)
		return nil, err
	}
	return conn, nil
}

// UnaryClientInterceptor 一元 RPC 拦截器：请求超时、trace 透传、可重试错误重试
func UnaryClientInterceptor(cfg ClientConfig) grpc.UnaryClientInterceptor {
	return func(ctx context.Context, method string, req, reply any, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
		if cfg.RequestTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, time.Duration(cfg.RequestTimeout)*time.Second)
			defer cancel()
		}
		if traceID := logger.TraceID(ctx); traceID != "" {
			ctx = metadata.AppendToOutgoingContext(ctx, "x-trace-id", traceID)
		}

		start := time.Now()
		var lastErr error
		for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
			err := invoker(ctx, method, req, reply, cc, opts...)
			if err == nil {
				logger.Debug(ctx, "gRPC request succeeded", "method", method, "duration", time.Since(start))
				return nil
			}
			lastErr = err
			if !shouldRetry(status.Code(err)) || attempt >= cfg.MaxRetries {
				break
			}
			select {
			case <-time.After(time.Duration(cfg.RetryDelay) * time.Millisecond):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		logger.Warn(ctx, "gRPC request failed",
			"method", method,
			"duration", time.Since(start),
			"error", lastErr,
		)
		return lastErr
	}
}

// CheckHealth 调用标准健康检查，返回服务状态
func CheckHealth(ctx context.Context, conn grpc.ClientConnInterface, service string) (healthpb.HealthCheckResponse_ServingStatus, error) {
	resp, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{Service: service})
	if err != nil {
		return healthpb.HealthCheckResponse_UNKNOWN, err
	}
	return resp.Status, nil
}

// shouldRetry 判断是否应该重试
func shouldRetry(code codes.Code) bool {
	switch code {
	case codes.Unavailable, codes.ResourceExhausted:
		return true
	default:
		return false
	}
}
