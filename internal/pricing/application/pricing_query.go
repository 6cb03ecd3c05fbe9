package application

import (
	"context"
	"fmt"
	"time"

	"github.com/wyfcoding/pricingrisk/internal/pricing/domain"
	"github.com/wyfcoding/pricingrisk/pkg/logger"
)

// ImpliedVolatility 由市场价格反解隐含波动率，结果写入校准仓储
func (s *PricingService) ImpliedVolatility(ctx context.Context, cmd ImpliedVolCommand) (*domain.CalibrationResult, error) {
	opts := s.options(cmd.Options)
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	res, err := s.calibrate(ctx, cmd.Instrument, cmd.Market, cmd.MarketPrice, opts)
	if err != nil {
		return nil, err
	}
	if !res.Converged {
		logger.Warn(ctx, "implied volatility did not converge",
			"symbol", cmd.Instrument.Symbol,
			"iterations", res.Iterations,
			"residual", res.Residual,
		)
	}
	return &res, nil
}

// Forecast 拟合 GARCH 模型并预测波动率
func (s *PricingService) Forecast(ctx context.Context, cmd ForecastCommand) (*domain.ForecastResult, error) {
	defer logger.LogDuration(ctx, "forecast finished", "symbol", cmd.Symbol)()
	cfg := s.cfg.Forecast
	if cmd.Config != nil {
		cfg = *cmd.Config
	}

	returns, err := s.forecastReturns(ctx, cmd)
	if err != nil {
		return nil, err
	}

	res, err := domain.Forecast(ctx, returns, cfg)
	if err != nil {
		return nil, err
	}
	s.recorder.ObserveForecast(res.Converged)

	if s.publisher != nil {
		if perr := s.publisher.PublishVolatilityForecasted(ctx, domain.VolatilityForecastedEvent{
			Symbol:     cmd.Symbol,
			Result:     res,
			OccurredOn: s.now(),
		}); perr != nil {
			logger.Error(ctx, "failed to publish forecast event", "symbol", cmd.Symbol, "error", perr)
		}
	}
	logger.Info(ctx, "volatility forecasted",
		"symbol", cmd.Symbol,
		"forecast", res.ForecastedVolatility,
		"persistence", res.Params.Persistence(),
		"converged", res.Converged,
	)
	return &res, nil
}

func (s *PricingService) forecastReturns(ctx context.Context, cmd ForecastCommand) ([]float64, error) {
	switch {
	case len(cmd.Returns) > 0:
		return cmd.Returns, nil
	case len(cmd.Closes) > 0:
		return domain.SimpleReturns(cmd.Closes)
	case cmd.Symbol != "" && s.marketData != nil:
		closes, err := s.marketData.Closes(ctx, cmd.Symbol, cmd.From, cmd.To)
		if err != nil {
			return nil, fmt.Errorf("load closes for %s: %w", cmd.Symbol, err)
		}
		return domain.SimpleReturns(closes)
	default:
		return nil, fmt.Errorf("%w: no returns, closes or market data source", domain.ErrInsufficientData)
	}
}

// LatestCalibration 最近一次校准结果
func (s *PricingService) LatestCalibration(ctx context.Context, symbol string) (*domain.CalibrationRecord, error) {
	if s.calibrations == nil {
		return nil, ErrRepositoryUnavailable
	}
	return s.calibrations.GetLatest(ctx, symbol)
}

// CalibrationHistory 校准历史，按时间倒序
func (s *PricingService) CalibrationHistory(ctx context.Context, symbol string, limit int) ([]*domain.CalibrationRecord, error) {
	if s.calibrations == nil {
		return nil, ErrRepositoryUnavailable
	}
	if limit <= 0 {
		limit = 20
	}
	return s.calibrations.GetHistory(ctx, symbol, limit)
}

// GetReport 按 ID 查询定价报告
func (s *PricingService) GetReport(ctx context.Context, id string) (*domain.PricingReport, error) {
	if s.reports == nil {
		return nil, ErrRepositoryUnavailable
	}
	return s.reports.Get(ctx, id)
}

// Indicators 由行情源的收盘价计算技术指标；cfg 为空时使用服务默认窗口
func (s *PricingService) Indicators(ctx context.Context, symbol string, cfg *domain.IndicatorConfig) (*domain.TechnicalIndicators, error) {
	if s.marketData == nil {
		return nil, ErrRepositoryUnavailable
	}
	c := s.cfg.Indicators
	if cfg != nil {
		c = *cfg
	}
	closes, err := s.marketData.Closes(ctx, symbol, time.Time{}, time.Time{})
	if err != nil {
		return nil, fmt.Errorf("load closes for %s: %w", symbol, err)
	}
	ind, err := domain.ComputeIndicators(closes, c)
	if err != nil {
		return nil, err
	}
	return &ind, nil
}

// MarketSnapshot 从行情源取快照
func (s *PricingService) MarketSnapshot(ctx context.Context, symbol string) (domain.MarketSnapshot, error) {
	if s.marketData == nil {
		return domain.MarketSnapshot{}, ErrRepositoryUnavailable
	}
	return s.marketData.Snapshot(ctx, symbol)
}
