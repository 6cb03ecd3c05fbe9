// Package grpc 定价服务的 gRPC 入口，提供健康检查与反射
package grpc

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/wyfcoding/pricingrisk/pkg/logger"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/reflection"
)

// ServiceName 健康检查中登记的服务名
const ServiceName = "pricingrisk.PricingEngine"

// Config gRPC 服务配置
type Config struct {
	Addr                 string
	MaxConcurrentStreams uint32
	IdleTimeout          time.Duration
}

// Server gRPC 服务
type Server struct {
	cfg    Config
	srv    *grpc.Server
	health *health.Server
}

// NewServer 创建服务，拦截器按顺序执行；启动前健康状态为 NOT_SERVING
func NewServer(cfg Config, interceptors ...grpc.UnaryServerInterceptor) *Server {
	opts := []grpc.ServerOption{grpc.ChainUnaryInterceptor(interceptors...)}
	if cfg.MaxConcurrentStreams > 0 {
		opts = append(opts, grpc.MaxConcurrentStreams(cfg.MaxConcurrentStreams))
	}
	if cfg.IdleTimeout > 0 {
		opts = append(opts, grpc.KeepaliveParams(keepalive.ServerParameters{MaxConnectionIdle: cfg.IdleTimeout}))
	}

	srv := grpc.NewServer(opts...)
	hs := health.NewServer()
	healthpb.RegisterHealthServer(srv, hs)
	reflection.Register(srv)

	s := &Server{cfg: cfg, srv: srv, health: hs}
	s.SetServing(false)
	return s
}

// GRPC 底层服务，用于注册其它服务
func (s *Server) GRPC() *grpc.Server {
	return s.srv
}

// SetServing 更新健康状态
func (s *Server) SetServing(serving bool) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		status = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus("", status)
	s.health.SetServingStatus(ServiceName, status)
}

// Serve 在给定监听上提供服务，直到 ctx 结束后优雅停止
func (s *Server) Serve(ctx context.Context, lis net.Listener) error {
	errCh := make(chan error, 1)
	go func() {
		s.SetServing(true)
		errCh <- s.srv.Serve(lis)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, grpc.ErrServerStopped) {
			return nil
		}
		return err
	case <-ctx.Done():
		s.Stop()
		return nil
	}
}

// ListenAndServe 监听 cfg.Addr 并提供服务
func (s *Server) ListenAndServe(ctx context.Context) error {
	lis, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return err
	}
	logger.Info(ctx, "gRPC server starting", "addr", s.cfg.Addr)
	return s.Serve(ctx, lis)
}

// Stop 标记不可用并优雅停止
func (s *Server) Stop() {
	s.health.Shutdown()
	s.srv.GracefulStop()
}
