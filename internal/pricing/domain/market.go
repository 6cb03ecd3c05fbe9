package domain

import (
	"fmt"
	"math"
	"time"
)

// MarketSnapshot 单次定价使用的市场快照，不可变
type MarketSnapshot struct {
	Spot          float64   `json:"spot"`
	RiskFreeRate  float64   `json:"risk_free_rate"`
	DividendYield float64   `json:"dividend_yield"`
	Volatility    *float64  `json:"volatility,omitempty"` // nil 表示需要校准
	ValuationDate time.Time `json:"valuation_date"`
}

// Validate 校验快照
func (m MarketSnapshot) Validate() error {
	if !(m.Spot > 0) || math.IsInf(m.Spot, 0) {
		return fmt.Errorf("%w: spot must be positive, got %v", ErrInvalidMarket, m.Spot)
	}
	if math.IsNaN(m.RiskFreeRate) || math.IsInf(m.RiskFreeRate, 0) {
		return fmt.Errorf("%w: risk free rate %v", ErrInvalidMarket, m.RiskFreeRate)
	}
	if math.IsNaN(m.DividendYield) || math.IsInf(m.DividendYield, 0) {
		return fmt.Errorf("%w: dividend yield %v", ErrInvalidMarket, m.DividendYield)
	}
	if m.Volatility != nil {
		v := *m.Volatility
		if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
			return fmt.Errorf("%w: volatility must be >= 0, got %v", ErrInvalidMarket, v)
		}
	}
	return nil
}

// HasVolatility 是否已给定波动率
func (m MarketSnapshot) HasVolatility() bool { return m.Volatility != nil }

// Vol 返回波动率，未给定时返回 0,false
func (m MarketSnapshot) Vol() (float64, bool) {
	if m.Volatility == nil {
		return 0, false
	}
	return *m.Volatility, true
}

// WithVolatility 返回带指定波动率的副本
func (m MarketSnapshot) WithVolatility(v float64) MarketSnapshot {
	m.Volatility = &v
	return m
}

// WithSpot 返回调整现价后的副本
func (m MarketSnapshot) WithSpot(s float64) MarketSnapshot {
	m.Spot = s
	return m
}

// WithRate 返回调整无风险利率后的副本
func (m MarketSnapshot) WithRate(r float64) MarketSnapshot {
	m.RiskFreeRate = r
	return m
}

// requireVol 定价器内部使用：缺失波动率视为调用方错误
func (m MarketSnapshot) requireVol() (float64, error) {
	v, ok := m.Vol()
	if !ok {
		return 0, ErrMissingVolatility
	}
	return v, nil
}
