package domain

import (
	"fmt"
	"runtime"
)

// GreekMode 希腊字母计算策略
type GreekMode string

const (
	GreekModeAuto             GreekMode = "AUTO"
	GreekModeFiniteDifference GreekMode = "FINITE_DIFFERENCE"
)

// 扰动下限，低于该值时浮点相减的抵消误差占主导
const (
	MinSpotBump = 1e-4
	MinVolBump  = 1e-4
	MinRateBump = 1e-6
	MinTimeBump = 1e-4
)

// BumpSizes 差分扰动大小
type BumpSizes struct {
	Spot float64 `json:"spot"` // 相对现价
	Vol  float64 `json:"vol"`  // 相对波动率
	Rate float64 `json:"rate"` // 绝对利率
	Time float64 `json:"time"` // 年
}

// DefaultBumpSizes ±1% 现价、±1% 波动率、1bp 利率、一天
func DefaultBumpSizes() BumpSizes {
	return BumpSizes{Spot: 0.01, Vol: 0.01, Rate: 1e-4, Time: 1.0 / 365.0}
}

// Validate 检查扰动下限
func (b BumpSizes) Validate() error {
	switch {
	case b.Spot < MinSpotBump:
		return fmt.Errorf("%w: spot bump %v below floor %v", ErrInvalidOptions, b.Spot, MinSpotBump)
	case b.Vol < MinVolBump:
		return fmt.Errorf("%w: vol bump %v below floor %v", ErrInvalidOptions, b.Vol, MinVolBump)
	case b.Rate < MinRateBump:
		return fmt.Errorf("%w: rate bump %v below floor %v", ErrInvalidOptions, b.Rate, MinRateBump)
	case b.Time < MinTimeBump:
		return fmt.Errorf("%w: time bump %v below floor %v", ErrInvalidOptions, b.Time, MinTimeBump)
	}
	return nil
}

// Options 一次定价调用识别的全部参数
type Options struct {
	Method          Method    `json:"method"`
	Steps           int       `json:"steps"`
	Paths           int       `json:"paths"`
	Seed            *uint64   `json:"seed,omitempty"`
	BatchSize       int       `json:"batch_size"`
	Workers         int       `json:"workers"`
	MonitoringSteps int       `json:"monitoring_steps"`
	ControlVariate  bool      `json:"control_variate"`
	Bumps           BumpSizes `json:"bumps"`
	GreekMode       GreekMode `json:"greek_mode"`
	ComputeGreeks   bool      `json:"compute_greeks"`
}

// DefaultOptions 默认参数
func DefaultOptions() Options {
	return Options{
		Method:          MethodAuto,
		Steps:           500,
		Paths:           100_000,
		BatchSize:       10_000,
		Workers:         runtime.GOMAXPROCS(0),
		MonitoringSteps: 252,
		ControlVariate:  true,
		Bumps:           DefaultBumpSizes(),
		GreekMode:       GreekModeAuto,
		ComputeGreeks:   true,
	}
}

// WithSeed 返回固定种子的副本
func (o Options) WithSeed(seed uint64) Options {
	o.Seed = &seed
	return o
}

// Validate 在边界处统一校验一次
func (o Options) Validate() error {
	switch o.Method {
	case MethodAuto, MethodAnalytical, MethodLattice, MethodMonteCarlo:
	default:
		return fmt.Errorf("%w: method %q", ErrInvalidOptions, o.Method)
	}
	if o.Steps < 1 {
		return fmt.Errorf("%w: %d", ErrInvalidStepCount, o.Steps)
	}
	if o.Paths < 1 {
		return fmt.Errorf("%w: %d", ErrInvalidPathCount, o.Paths)
	}
	if o.BatchSize < 1 {
		return fmt.Errorf("%w: batch size %d", ErrInvalidOptions, o.BatchSize)
	}
	if o.Workers < 1 {
		return fmt.Errorf("%w: workers %d", ErrInvalidOptions, o.Workers)
	}
	if o.MonitoringSteps < 1 {
		return fmt.Errorf("%w: monitoring steps %d", ErrInvalidStepCount, o.MonitoringSteps)
	}
	switch o.GreekMode {
	case GreekModeAuto, GreekModeFiniteDifference:
	default:
		return fmt.Errorf("%w: greek mode %q", ErrInvalidOptions, o.GreekMode)
	}
	return o.Bumps.Validate()
}
