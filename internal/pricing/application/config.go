package application

import (
	"fmt"
	"runtime"

	"github.com/wyfcoding/pricingrisk/internal/pricing/domain"
	"github.com/wyfcoding/pricingrisk/pkg/config"
)

// Config 服务默认参数
type Config struct {
	Options          domain.Options
	Calibration      domain.CalibrationConfig
	Forecast         domain.ForecastConfig
	Indicators       domain.IndicatorConfig
	PortfolioWorkers int
}

// DefaultConfig 领域默认值
func DefaultConfig() Config {
	return Config{
		Options:          domain.DefaultOptions(),
		Calibration:      domain.DefaultCalibrationConfig(),
		Forecast:         domain.DefaultForecastConfig(),
		Indicators:       domain.DefaultIndicatorConfig(),
		PortfolioWorkers: runtime.GOMAXPROCS(0),
	}
}

// NewConfig 由配置文件的 engine 段生成服务参数
func NewConfig(e config.EngineConfig) (Config, error) {
	workers := e.MCWorkers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	cfg := Config{
		Options: domain.Options{
			Method:          domain.MethodAuto,
			Steps:           e.LatticeSteps,
			Paths:           e.MCPaths,
			BatchSize:       e.MCBatchSize,
			Workers:         workers,
			MonitoringSteps: e.MonitoringSteps,
			ControlVariate:  e.ControlVariate,
			Bumps: domain.BumpSizes{
				Spot: e.Bumps.Spot,
				Vol:  e.Bumps.Vol,
				Rate: e.Bumps.Rate,
				Time: e.Bumps.Time,
			},
			GreekMode:     domain.GreekMode(e.GreekMode),
			ComputeGreeks: e.ComputeGreeks,
		},
		Calibration: domain.CalibrationConfig{
			LowerBound:    e.Calibration.LowerBound,
			UpperBound:    e.Calibration.UpperBound,
			Tolerance:     e.Calibration.Tolerance,
			MaxIterations: e.Calibration.MaxIterations,
		},
		Forecast: domain.ForecastConfig{
			Order:           domain.ModelOrder{AR: e.Forecast.AROrder, P: e.Forecast.GARCHP, Q: e.Forecast.GARCHQ},
			MinObservations: e.Forecast.MinObservations,
			Horizon:         e.Forecast.Horizon,
			PeriodsPerYear:  e.Forecast.PeriodsPerYear,
			ConfidenceLevel: e.Forecast.ConfidenceLevel,
			MaxIterations:   e.Forecast.MaxIterations,
		},
		Indicators:       domain.DefaultIndicatorConfig(),
		PortfolioWorkers: e.PortfolioWorkers,
	}
	// 未配置 indicators 段时沿用默认窗口
	if e.Indicators != (config.IndicatorConfig{}) {
		cfg.Indicators = domain.IndicatorConfig{
			ShortWindow: e.Indicators.ShortWindow,
			LongWindow:  e.Indicators.LongWindow,
			SignalSpan:  e.Indicators.SignalSpan,
		}
	}
	return cfg, cfg.Validate()
}

// Validate 校验全部默认参数
func (c Config) Validate() error {
	if err := c.Options.Validate(); err != nil {
		return fmt.Errorf("engine options: %w", err)
	}
	if err := c.Calibration.Validate(); err != nil {
		return fmt.Errorf("engine calibration: %w", err)
	}
	if err := c.Forecast.Validate(); err != nil {
		return fmt.Errorf("engine forecast: %w", err)
	}
	if err := c.Indicators.Validate(); err != nil {
		return fmt.Errorf("engine indicators: %w", err)
	}
	if c.PortfolioWorkers < 1 {
		return fmt.Errorf("%w: portfolio workers %d", domain.ErrInvalidOptions, c.PortfolioWorkers)
	}
	return nil
}
