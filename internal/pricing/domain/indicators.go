package domain

import (
	"fmt"

	"gonum.org/v1/gonum/stat"
)

// IndicatorConfig 技术指标窗口
type IndicatorConfig struct {
	ShortWindow int `json:"short_window"`
	LongWindow  int `json:"long_window"`
	SignalSpan  int `json:"signal_span"`
}

// DefaultIndicatorConfig 20/50 日均线，9 日 MACD 信号线
func DefaultIndicatorConfig() IndicatorConfig {
	return IndicatorConfig{ShortWindow: 20, LongWindow: 50, SignalSpan: 9}
}

// Validate 校验窗口
func (c IndicatorConfig) Validate() error {
	if c.ShortWindow < 1 || c.LongWindow < 1 || c.SignalSpan < 1 {
		return fmt.Errorf("%w: indicator windows must be positive, got %d/%d/%d",
			ErrInvalidInput, c.ShortWindow, c.LongWindow, c.SignalSpan)
	}
	if c.ShortWindow > c.LongWindow {
		return fmt.Errorf("%w: short window %d exceeds long window %d", ErrInvalidInput, c.ShortWindow, c.LongWindow)
	}
	return nil
}

// TechnicalIndicators 序列末端的指标值
type TechnicalIndicators struct {
	Config       IndicatorConfig `json:"config"`
	Observations int             `json:"observations"`
	Close        float64         `json:"close"`
	SMAShort     float64         `json:"sma_short"`
	SMALong      float64         `json:"sma_long"`
	EMAShort     float64         `json:"ema_short"`
	EMALong      float64         `json:"ema_long"`
	RSI          float64         `json:"rsi"`
	MACD         float64         `json:"macd"`
	MACDSignal   float64         `json:"macd_signal"`
	MACDHist     float64         `json:"macd_histogram"`
}

// ComputeIndicators 由升序收盘价计算均线、RSI 与 MACD
// RSI 使用长窗口内涨跌幅的简单平均，需要至少 LongWindow+1 个收盘价
func ComputeIndicators(closes []float64, cfg IndicatorConfig) (TechnicalIndicators, error) {
	if err := cfg.Validate(); err != nil {
		return TechnicalIndicators{}, err
	}
	if len(closes) < cfg.LongWindow+1 {
		return TechnicalIndicators{}, fmt.Errorf("%w: need %d closes for indicators, got %d",
			ErrInsufficientData, cfg.LongWindow+1, len(closes))
	}
	if _, err := SimpleReturns(closes); err != nil {
		return TechnicalIndicators{}, err
	}

	emaShort := EMA(closes, cfg.ShortWindow)
	emaLong := EMA(closes, cfg.LongWindow)
	macd := make([]float64, len(closes))
	for i := range closes {
		macd[i] = emaShort[i] - emaLong[i]
	}
	signal := EMA(macd, cfg.SignalSpan)

	last := len(closes) - 1
	out := TechnicalIndicators{
		Config:       cfg,
		Observations: len(closes),
		Close:        closes[last],
		SMAShort:     stat.Mean(closes[len(closes)-cfg.ShortWindow:], nil),
		SMALong:      stat.Mean(closes[len(closes)-cfg.LongWindow:], nil),
		EMAShort:     emaShort[last],
		EMALong:      emaLong[last],
		RSI:          RSI(closes, cfg.LongWindow),
		MACD:         macd[last],
		MACDSignal:   signal[last],
	}
	out.MACDHist = out.MACD - out.MACDSignal
	return out, nil
}

// SMA 滚动简单平均，第 i 个值对应 values[i : i+window]
func SMA(values []float64, window int) []float64 {
	if window < 1 || len(values) < window {
		return nil
	}
	out := make([]float64, len(values)-window+1)
	for i := range out {
		out[i] = stat.Mean(values[i:i+window], nil)
	}
	return out
}

// EMA 指数平均，alpha = 2/(span+1)，首值取序列首项
func EMA(values []float64, span int) []float64 {
	if len(values) == 0 || span < 1 {
		return nil
	}
	alpha := 2 / float64(span+1)
	out := make([]float64, len(values))
	out[0] = values[0]
	for i := 1; i < len(values); i++ {
		out[i] = alpha*values[i] + (1-alpha)*out[i-1]
	}
	return out
}

// RSI 序列末端的相对强弱指数；窗口内无涨跌时记为 50
func RSI(values []float64, window int) float64 {
	n := len(values)
	if window < 1 || n < window+1 {
		return 0
	}
	var gain, loss float64
	for i := n - window; i < n; i++ {
		d := values[i] - values[i-1]
		if d > 0 {
			gain += d
		} else {
			loss -= d
		}
	}
	switch {
	case gain == 0 && loss == 0:
		return 50
	case loss == 0:
		return 100
	}
	rs := gain / loss
	return 100 - 100/(1+rs)
}
