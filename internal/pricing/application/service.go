package application

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/wyfcoding/pricingrisk/internal/pricing/domain"
	"github.com/wyfcoding/pricingrisk/pkg/logger"
)

// Recorder 业务指标记录
type Recorder interface {
	ObservePricing(method, status string, seconds float64, paths int)
	ObserveCalibration(iterations int, converged bool)
	ObserveForecast(converged bool)
	ObservePortfolio(success, failure int)
}

type nopRecorder struct{}

func (nopRecorder) ObservePricing(string, string, float64, int) {}
func (nopRecorder) ObserveCalibration(int, bool)                {}
func (nopRecorder) ObserveForecast(bool)                        {}
func (nopRecorder) ObservePortfolio(int, int)                   {}

// PricingService 定价编排服务：路由定价器、缺失波动率时校准、汇总报告并交给下游
// 下游协作者（仓储、事件发布、指标）均为可选，其失败只记录日志，不影响返回结果
type PricingService struct {
	cfg          Config
	publisher    domain.EventPublisher
	calibrations domain.CalibrationRepository
	reports      domain.ReportRepository
	marketData   domain.MarketDataProvider
	recorder     Recorder
	now          func() time.Time
	newID        func() string
}

// Option 服务可选依赖
type Option func(*PricingService)

// WithPublisher 事件发布者
func WithPublisher(p domain.EventPublisher) Option {
	return func(s *PricingService) { s.publisher = p }
}

// WithCalibrationRepository 校准结果仓储
func WithCalibrationRepository(r domain.CalibrationRepository) Option {
	return func(s *PricingService) { s.calibrations = r }
}

// WithReportRepository 定价报告仓储
func WithReportRepository(r domain.ReportRepository) Option {
	return func(s *PricingService) { s.reports = r }
}

// WithMarketData 行情数据源
func WithMarketData(p domain.MarketDataProvider) Option {
	return func(s *PricingService) { s.marketData = p }
}

// WithRecorder 指标记录
func WithRecorder(r Recorder) Option {
	return func(s *PricingService) { s.recorder = r }
}

// WithClock 替换时钟
func WithClock(now func() time.Time) Option {
	return func(s *PricingService) { s.now = now }
}

// WithIDGenerator 替换报告 ID 生成
func WithIDGenerator(gen func() string) Option {
	return func(s *PricingService) { s.newID = gen }
}

// NewPricingService 创建定价服务
func NewPricingService(cfg Config, opts ...Option) *PricingService {
	s := &PricingService{
		cfg:      cfg,
		recorder: nopRecorder{},
		now:      time.Now,
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// DefaultOptions 服务默认定价参数
func (s *PricingService) DefaultOptions() domain.Options {
	return s.cfg.Options
}

// DefaultForecastConfig 服务默认预测参数
func (s *PricingService) DefaultForecastConfig() domain.ForecastConfig {
	return s.cfg.Forecast
}

func (s *PricingService) options(o *domain.Options) domain.Options {
	if o == nil {
		return s.cfg.Options
	}
	return *o
}

// deliver 持久化报告并发布事件，失败只记录日志
func (s *PricingService) deliver(ctx context.Context, report *domain.PricingReport) {
	if s.reports != nil {
		if err := s.reports.Save(ctx, report); err != nil {
			logger.Error(ctx, "failed to save pricing report", "report_id", report.ID, "error", err)
		}
	}
	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishOptionPriced(ctx, domain.OptionPricedEvent{
		ReportID:   report.ID,
		Symbol:     report.Instrument.Symbol,
		Report:     *report,
		OccurredOn: report.CreatedAt,
	}); err != nil {
		logger.Error(ctx, "failed to publish option priced event", "report_id", report.ID, "error", err)
	}
	if report.Greeks == nil {
		return
	}
	if err := s.publisher.PublishGreeksCalculated(ctx, domain.GreeksCalculatedEvent{
		ReportID:        report.ID,
		Symbol:          report.Instrument.Symbol,
		OptionType:      report.Instrument.OptionType,
		StrikePrice:     report.Instrument.Strike,
		Maturity:        report.Instrument.Maturity,
		UnderlyingPrice: report.Market.Spot,
		Greeks:          *report.Greeks,
		OccurredOn:      report.CreatedAt,
	}); err != nil {
		logger.Error(ctx, "failed to publish greeks event", "report_id", report.ID, "error", err)
	}
}

// recordCalibration 保存校准结果并发布事件
func (s *PricingService) recordCalibration(ctx context.Context, inst domain.Instrument, mkt domain.MarketSnapshot, marketPrice float64, res domain.CalibrationResult) {
	s.recorder.ObserveCalibration(res.Iterations, res.Converged)
	now := s.now()
	if s.calibrations != nil && inst.Symbol != "" {
		rec := &domain.CalibrationRecord{
			Symbol:      inst.Symbol,
			Instrument:  inst,
			Spot:        mkt.Spot,
			MarketPrice: marketPrice,
			Result:      res,
			CreatedAt:   now,
		}
		if err := s.calibrations.Save(ctx, rec); err != nil {
			logger.Error(ctx, "failed to save calibration", "symbol", inst.Symbol, "error", err)
		}
	}
	if s.publisher != nil {
		if err := s.publisher.PublishVolatilityCalibrated(ctx, domain.VolatilityCalibratedEvent{
			Symbol:      inst.Symbol,
			MarketPrice: marketPrice,
			Result:      res,
			OccurredOn:  now,
		}); err != nil {
			logger.Error(ctx, "failed to publish calibration event", "symbol", inst.Symbol, "error", err)
		}
	}
}

// reportFailure 记录失败的定价
func (s *PricingService) reportFailure(ctx context.Context, inst domain.Instrument, method domain.Method, err error) {
	logger.Warn(ctx, "pricing failed", "symbol", inst.Symbol, "method", method, "error", err)
	if s.publisher == nil {
		return
	}
	if perr := s.publisher.PublishPricingError(ctx, domain.PricingErrorEvent{
		Symbol:      inst.Symbol,
		OptionType:  inst.OptionType,
		StrikePrice: inst.Strike,
		Method:      method,
		Error:       err.Error(),
		ErrorCode:   ErrorCode(err),
		OccurredOn:  s.now(),
	}); perr != nil {
		logger.Error(ctx, "failed to publish pricing error event", "symbol", inst.Symbol, "error", perr)
	}
}
