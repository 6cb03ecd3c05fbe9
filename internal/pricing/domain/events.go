package domain

import "time"

const (
	OptionPricedEventType          = "OptionPriced"
	GreeksCalculatedEventType      = "GreeksCalculated"
	VolatilityCalibratedEventType  = "VolatilityCalibrated"
	VolatilityForecastedEventType  = "VolatilityForecasted"
	PricingErrorEventType          = "PricingError"
	BatchPricingCompletedEventType = "BatchPricingCompleted"
)

// OptionPricedEvent 期权定价完成事件，携带完整报告
type OptionPricedEvent struct {
	ReportID   string        `json:"report_id"`
	Symbol     string        `json:"symbol"`
	Report     PricingReport `json:"report"`
	OccurredOn time.Time     `json:"occurred_on"`
}

// GreeksCalculatedEvent 希腊字母计算完成事件
type GreeksCalculatedEvent struct {
	ReportID        string     `json:"report_id"`
	Symbol          string     `json:"symbol"`
	OptionType      OptionType `json:"option_type"`
	StrikePrice     float64    `json:"strike_price"`
	Maturity        float64    `json:"maturity"`
	UnderlyingPrice float64    `json:"underlying_price"`
	Greeks          GreekSet   `json:"greeks"`
	OccurredOn      time.Time  `json:"occurred_on"`
}

// VolatilityCalibratedEvent 隐含波动率校准事件
type VolatilityCalibratedEvent struct {
	Symbol      string            `json:"symbol"`
	MarketPrice float64           `json:"market_price"`
	Result      CalibrationResult `json:"result"`
	OccurredOn  time.Time         `json:"occurred_on"`
}

// VolatilityForecastedEvent 波动率预测事件
type VolatilityForecastedEvent struct {
	Symbol     string         `json:"symbol"`
	Result     ForecastResult `json:"result"`
	OccurredOn time.Time      `json:"occurred_on"`
}

// PricingErrorEvent 定价错误事件
type PricingErrorEvent struct {
	Symbol      string     `json:"symbol"`
	OptionType  OptionType `json:"option_type"`
	StrikePrice float64    `json:"strike_price"`
	Method      Method     `json:"method"`
	Error       string     `json:"error"`
	ErrorCode   string     `json:"error_code"`
	OccurredOn  time.Time  `json:"occurred_on"`
}

// BatchPricingCompletedEvent 批量定价完成事件
type BatchPricingCompletedEvent struct {
	BatchID        string    `json:"batch_id"`
	Symbols        []string  `json:"symbols"`
	TotalContracts int       `json:"total_contracts"`
	SuccessCount   int       `json:"success_count"`
	FailureCount   int       `json:"failure_count"`
	AverageTime    float64   `json:"average_time"`
	OccurredOn     time.Time `json:"occurred_on"`
}
