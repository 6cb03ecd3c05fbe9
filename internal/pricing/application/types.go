package application

import (
	"fmt"
	"time"

	"github.com/wyfcoding/pricingrisk/internal/pricing/domain"
)

// PriceCommand 单合约定价命令
type PriceCommand struct {
	Instrument domain.Instrument     `json:"instrument"`
	Market     domain.MarketSnapshot `json:"market"`
	// Options 为空时使用服务默认参数
	Options *domain.Options `json:"options,omitempty"`
	// MarketPrice 市场未给定波动率时用于反解隐含波动率
	MarketPrice *float64 `json:"market_price,omitempty"`
	// AllowUnconverged 允许使用未收敛的校准结果继续定价
	AllowUnconverged bool `json:"allow_unconverged,omitempty"`
}

// BatchPriceCommand 组合定价命令
type BatchPriceCommand struct {
	BatchID string         `json:"batch_id"`
	Items   []PriceCommand `json:"items"`
}

// BatchItem 组合中单个合约的结果，Report 与 Error 二选一
type BatchItem struct {
	Index  int                   `json:"index"`
	Symbol string                `json:"symbol,omitempty"`
	Report *domain.PricingReport `json:"report,omitempty"`
	Error  string                `json:"error,omitempty"`
	Err    error                 `json:"-"`
}

// BatchReport 组合定价结果，部分失败不影响其它条目
type BatchReport struct {
	BatchID      string      `json:"batch_id"`
	Items        []BatchItem `json:"items"`
	SuccessCount int         `json:"success_count"`
	FailureCount int         `json:"failure_count"`
	AverageTime  float64     `json:"average_time"` // 秒
}

// ImpliedVolCommand 隐含波动率反解命令，Market 中的波动率被忽略
type ImpliedVolCommand struct {
	Instrument  domain.Instrument     `json:"instrument"`
	Market      domain.MarketSnapshot `json:"market"`
	MarketPrice float64               `json:"market_price"`
	Options     *domain.Options       `json:"options,omitempty"`
}

// ForecastCommand 波动率预测命令
// 优先使用 Returns，其次由 Closes 计算收益，最后按 Symbol 从行情源拉取历史收盘价
type ForecastCommand struct {
	Symbol  string                 `json:"symbol,omitempty"`
	Returns []float64              `json:"returns,omitempty"`
	Closes  []float64              `json:"closes,omitempty"`
	From    time.Time              `json:"from,omitempty"`
	To      time.Time              `json:"to,omitempty"`
	Config  *domain.ForecastConfig `json:"config,omitempty"`
}

// CalibrationError 校准未收敛且调用方未允许继续
type CalibrationError struct {
	Result domain.CalibrationResult
}

func (e *CalibrationError) Error() string {
	return fmt.Sprintf("%s after %d iterations (residual %g)",
		domain.ErrCalibrationNotConverged, e.Result.Iterations, e.Result.Residual)
}

func (e *CalibrationError) Unwrap() error { return domain.ErrCalibrationNotConverged }
