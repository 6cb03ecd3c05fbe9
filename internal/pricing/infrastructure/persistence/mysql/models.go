package mysql

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/wyfcoding/pricingrisk/internal/pricing/domain"
)

// VolatilityCalibrationModel 隐含波动率校准记录
type VolatilityCalibrationModel struct {
	ID                uint      `gorm:"primaryKey;autoIncrement"`
	CreatedAt         time.Time `gorm:"column:created_at;index:idx_symbol_created,priority:2"`
	Symbol            string    `gorm:"column:symbol;type:varchar(32);not null;index:idx_symbol_created,priority:1"`
	OptionType        string    `gorm:"column:option_type;type:varchar(8);not null"`
	Style             string    `gorm:"column:style;type:varchar(16);not null"`
	Payoff            string    `gorm:"column:payoff;type:varchar(16);not null"`
	Strike            string    `gorm:"column:strike;type:decimal(32,18);not null"`
	Maturity          string    `gorm:"column:maturity;type:decimal(32,18);not null"`
	Spot              string    `gorm:"column:spot;type:decimal(32,18);not null"`
	MarketPrice       string    `gorm:"column:market_price;type:decimal(32,18);not null"`
	ImpliedVolatility string    `gorm:"column:implied_volatility;type:decimal(32,18);not null"`
	Residual          string    `gorm:"column:residual;type:decimal(32,18)"`
	Iterations        int       `gorm:"column:iterations;not null"`
	Converged         bool      `gorm:"column:converged;not null"`
	Method            string    `gorm:"column:method;type:varchar(16);not null"`
	Instrument        string    `gorm:"column:instrument;type:text"` // 完整合约 JSON
}

func (VolatilityCalibrationModel) TableName() string { return "volatility_calibrations" }

// PricingReportModel 定价报告
type PricingReportModel struct {
	ID             string    `gorm:"column:id;type:varchar(36);primaryKey"`
	CreatedAt      time.Time `gorm:"column:created_at;index"`
	Symbol         string    `gorm:"column:symbol;type:varchar(32);index"`
	Method         string    `gorm:"column:method;type:varchar(16);not null"`
	Price          string    `gorm:"column:price;type:decimal(32,18);not null"`
	StandardError  string    `gorm:"column:standard_error;type:decimal(32,18)"`
	Spot           string    `gorm:"column:spot;type:decimal(32,18);not null"`
	Volatility     string    `gorm:"column:volatility;type:decimal(32,18)"`
	PathsUsed      int       `gorm:"column:paths_used"`
	PathsRequested int       `gorm:"column:paths_requested"`
	Converged      bool      `gorm:"column:converged"`
	Payload        string    `gorm:"column:payload;type:longtext;not null"` // 完整报告 JSON
}

func (PricingReportModel) TableName() string { return "pricing_reports" }

func dec(v float64) string {
	return decimal.NewFromFloat(v).String()
}

func undec(s string) float64 {
	if s == "" {
		return 0
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0
	}
	return d.InexactFloat64()
}

func toCalibrationModel(r *domain.CalibrationRecord) (*VolatilityCalibrationModel, error) {
	inst, err := json.Marshal(r.Instrument)
	if err != nil {
		return nil, fmt.Errorf("encode instrument: %w", err)
	}
	return &VolatilityCalibrationModel{
		ID:                r.ID,
		CreatedAt:         r.CreatedAt,
		Symbol:            r.Symbol,
		OptionType:        string(r.Instrument.OptionType),
		Style:             string(r.Instrument.Style),
		Payoff:            string(r.Instrument.Payoff),
		Strike:            dec(r.Instrument.Strike),
		Maturity:          dec(r.Instrument.Maturity),
		Spot:              dec(r.Spot),
		MarketPrice:       dec(r.MarketPrice),
		ImpliedVolatility: dec(r.Result.ImpliedVolatility),
		Residual:          dec(r.Result.Residual),
		Iterations:        r.Result.Iterations,
		Converged:         r.Result.Converged,
		Method:            string(r.Result.Method),
		Instrument:        string(inst),
	}, nil
}

func toCalibrationRecord(m *VolatilityCalibrationModel) (*domain.CalibrationRecord, error) {
	var inst domain.Instrument
	if m.Instrument != "" {
		if err := json.Unmarshal([]byte(m.Instrument), &inst); err != nil {
			return nil, fmt.Errorf("decode instrument of calibration %d: %w", m.ID, err)
		}
	} else {
		inst = domain.Instrument{
			Symbol:     m.Symbol,
			Style:      domain.ExerciseStyle(m.Style),
			Payoff:     domain.PayoffKind(m.Payoff),
			OptionType: domain.OptionType(m.OptionType),
			Strike:     undec(m.Strike),
			Maturity:   undec(m.Maturity),
		}
	}
	return &domain.CalibrationRecord{
		ID:          m.ID,
		Symbol:      m.Symbol,
		Instrument:  inst,
		Spot:        undec(m.Spot),
		MarketPrice: undec(m.MarketPrice),
		Result: domain.CalibrationResult{
			ImpliedVolatility: undec(m.ImpliedVolatility),
			Residual:          undec(m.Residual),
			Iterations:        m.Iterations,
			Converged:         m.Converged,
			Method:            domain.Method(m.Method),
		},
		CreatedAt: m.CreatedAt,
	}, nil
}

func toReportModel(r *domain.PricingReport) (*PricingReportModel, error) {
	payload, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("encode report %s: %w", r.ID, err)
	}
	m := &PricingReportModel{
		ID:             r.ID,
		CreatedAt:      r.CreatedAt,
		Symbol:         r.Instrument.Symbol,
		Method:         string(r.Method),
		Price:          dec(r.Pricing.Price),
		StandardError:  dec(r.Pricing.StandardError),
		Spot:           dec(r.Market.Spot),
		PathsUsed:      r.Pricing.PathsUsed,
		PathsRequested: r.Pricing.PathsRequested,
		Converged:      r.Pricing.Converged,
		Payload:        string(payload),
	}
	if v, ok := r.Market.Vol(); ok {
		m.Volatility = dec(v)
	}
	return m, nil
}

func toReport(m *PricingReportModel) (*domain.PricingReport, error) {
	var r domain.PricingReport
	if err := json.Unmarshal([]byte(m.Payload), &r); err != nil {
		return nil, fmt.Errorf("decode report %s: %w", m.ID, err)
	}
	return &r, nil
}
