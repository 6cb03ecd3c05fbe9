// Package metrics 提供 Prometheus 指标：HTTP/gRPC 请求与定价业务指标
package metrics

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/wyfcoding/pricingrisk/pkg/logger"
)

const namespace = "pricingrisk"

// Metrics 指标集合
type Metrics struct {
	// HTTP 请求计数
	HTTPRequestsTotal *prometheus.CounterVec
	// HTTP 请求耗时
	HTTPRequestDuration *prometheus.HistogramVec

	// gRPC 请求计数
	GRPCRequestsTotal *prometheus.CounterVec
	// gRPC 请求耗时
	GRPCRequestDuration *prometheus.HistogramVec

	// 定价请求计数，按方法与结果
	PricingRequestsTotal *prometheus.CounterVec
	// 定价耗时
	PricingDuration *prometheus.HistogramVec
	// 已模拟的蒙特卡洛样本数
	MCPathsTotal prometheus.Counter
	// 隐含波动率校准次数
	CalibrationsTotal *prometheus.CounterVec
	// 校准迭代次数分布
	CalibrationIterations prometheus.Histogram
	// GARCH 拟合次数
	ForecastsTotal *prometheus.CounterVec
	// 组合定价条目数
	PortfolioItemsTotal *prometheus.CounterVec
}

// New 创建指标实例
func New(serviceName string) *Metrics {
	return &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: serviceName,
			Name:      "http_requests_total",
			Help:      "Total HTTP requests",
		}, []string{"method", "path", "status"}),
		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: serviceName,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "path"}),

		GRPCRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: serviceName,
			Name:      "grpc_requests_total",
			Help:      "Total gRPC requests",
		}, []string{"method", "code"}),
		GRPCRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: serviceName,
			Name:      "grpc_request_duration_seconds",
			Help:      "gRPC request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),

		PricingRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: serviceName,
			Name:      "pricing_requests_total",
			Help:      "Total pricing requests by method and status",
		}, []string{"method", "status"}),
		PricingDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: serviceName,
			Name:      "pricing_duration_seconds",
			Help:      "Pricing latency in seconds",
			Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 30},
		}, []string{"method"}),
		MCPathsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: serviceName,
			Name:      "monte_carlo_paths_total",
			Help:      "Monte Carlo samples simulated",
		}),
		CalibrationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: serviceName,
			Name:      "calibrations_total",
			Help:      "Implied volatility calibrations",
		}, []string{"converged"}),
		CalibrationIterations: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: serviceName,
			Name:      "calibration_iterations",
			Help:      "Root finder iterations per calibration",
			Buckets:   []float64{1, 2, 4, 8, 16, 32, 64, 100},
		}),
		ForecastsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: serviceName,
			Name:      "forecasts_total",
			Help:      "GARCH volatility forecasts",
		}, []string{"converged"}),
		PortfolioItemsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: serviceName,
			Name:      "portfolio_items_total",
			Help:      "Portfolio items priced by status",
		}, []string{"status"}),
	}
}

// Register 注册所有指标，reg 为 nil 时使用默认注册表
func (m *Metrics) Register(reg prometheus.Registerer) error {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	collectors := []prometheus.Collector{
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.GRPCRequestsTotal,
		m.GRPCRequestDuration,
		m.PricingRequestsTotal,
		m.PricingDuration,
		m.MCPathsTotal,
		m.CalibrationsTotal,
		m.CalibrationIterations,
		m.ForecastsTotal,
		m.PortfolioItemsTotal,
	}

	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			logger.Error(context.Background(), "Failed to register metric", "error", err)
			return err
		}
	}

	logger.Info(context.Background(), "Metrics registered successfully")
	return nil
}

// Handler Prometheus 暴露端点
func Handler() http.Handler {
	return promhttp.Handler()
}

// StartHTTPServer 启动独立的 Prometheus HTTP 服务器
func StartHTTPServer(port int, path string) *http.Server {
	if path == "" {
		path = "/metrics"
	}

	mux := http.NewServeMux()
	mux.Handle(path, promhttp.Handler())
	addr := fmt.Sprintf(":%d", port)
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	logger.Info(context.Background(), "Starting Prometheus HTTP server", "addr", addr, "path", path)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error(context.Background(), "Prometheus HTTP server failed", "error", err)
		}
	}()
	return srv
}

// RecordHTTPRequest 记录 HTTP 请求
func (m *Metrics) RecordHTTPRequest(method, path string, statusCode int, seconds float64) {
	m.HTTPRequestsTotal.WithLabelValues(method, path, strconv.Itoa(statusCode)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path).Observe(seconds)
}

// RecordGRPCRequest 记录 gRPC 请求
func (m *Metrics) RecordGRPCRequest(method, code string, seconds float64) {
	m.GRPCRequestsTotal.WithLabelValues(method, code).Inc()
	m.GRPCRequestDuration.WithLabelValues(method).Observe(seconds)
}

// ObservePricing 记录一次定价
func (m *Metrics) ObservePricing(method, status string, seconds float64, paths int) {
	m.PricingRequestsTotal.WithLabelValues(method, status).Inc()
	m.PricingDuration.WithLabelValues(method).Observe(seconds)
	if paths > 0 {
		m.MCPathsTotal.Add(float64(paths))
	}
}

// ObserveCalibration 记录一次隐含波动率校准
func (m *Metrics) ObserveCalibration(iterations int, converged bool) {
	m.CalibrationsTotal.WithLabelValues(strconv.FormatBool(converged)).Inc()
	m.CalibrationIterations.Observe(float64(iterations))
}

// ObserveForecast 记录一次波动率预测
func (m *Metrics) ObserveForecast(converged bool) {
	m.ForecastsTotal.WithLabelValues(strconv.FormatBool(converged)).Inc()
}

// ObservePortfolio 记录组合定价的成功与失败条目
func (m *Metrics) ObservePortfolio(success, failure int) {
	m.PortfolioItemsTotal.WithLabelValues("success").Add(float64(success))
	m.PortfolioItemsTotal.WithLabelValues("failure").Add(float64(failure))
}
