package domain

import (
	"context"
	"time"
)

// CalibrationRecord 持久化的校准结果
type CalibrationRecord struct {
	ID          uint              `json:"id"`
	Symbol      string            `json:"symbol"`
	Instrument  Instrument        `json:"instrument"`
	Spot        float64           `json:"spot"`
	MarketPrice float64           `json:"market_price"`
	Result      CalibrationResult `json:"result"`
	CreatedAt   time.Time         `json:"created_at"`
}

// CalibrationRepository 校准结果仓储
type CalibrationRepository interface {
	Save(ctx context.Context, record *CalibrationRecord) error
	GetLatest(ctx context.Context, symbol string) (*CalibrationRecord, error)
	GetHistory(ctx context.Context, symbol string, limit int) ([]*CalibrationRecord, error)
}

// ReportRepository 定价报告仓储
type ReportRepository interface {
	Save(ctx context.Context, report *PricingReport) error
	Get(ctx context.Context, id string) (*PricingReport, error)
}
