package domain

import "time"

// PricingReport 一次定价调用的聚合结果，交给外部报告方
type PricingReport struct {
	ID          string             `json:"id"`
	Instrument  Instrument         `json:"instrument"`
	Market      MarketSnapshot     `json:"market"`
	Method      Method             `json:"method"`
	Pricing     PricingResult      `json:"pricing"`
	Greeks      *GreekSet          `json:"greeks,omitempty"`
	Calibration *CalibrationResult `json:"calibration,omitempty"`
	CreatedAt   time.Time          `json:"created_at"`

	// GreeksSkipped 请求了希腊字母但定价被提前终止时记录原因
	GreeksSkipped string `json:"greeks_skipped,omitempty"`
}
