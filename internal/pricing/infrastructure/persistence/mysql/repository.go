package mysql

import (
	"context"
	"errors"
	"fmt"

	"github.com/wyfcoding/pricingrisk/internal/pricing/domain"
	"github.com/wyfcoding/pricingrisk/pkg/logger"
	"gorm.io/gorm"
)

// AutoMigrate 创建定价相关表
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&VolatilityCalibrationModel{}, &PricingReportModel{})
}

type calibrationRepository struct {
	db *gorm.DB
}

// NewCalibrationRepository 创建校准结果仓储
func NewCalibrationRepository(db *gorm.DB) domain.CalibrationRepository {
	return &calibrationRepository{db: db}
}

func (r *calibrationRepository) Save(ctx context.Context, record *domain.CalibrationRecord) error {
	model, err := toCalibrationModel(record)
	if err != nil {
		return err
	}
	ctx = logger.ContextWithFields(ctx, "symbol", record.Symbol)
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		return fmt.Errorf("save calibration %s: %w", record.Symbol, err)
	}
	record.ID = model.ID
	return nil
}

func (r *calibrationRepository) GetLatest(ctx context.Context, symbol string) (*domain.CalibrationRecord, error) {
	var model VolatilityCalibrationModel
	ctx = logger.ContextWithFields(ctx, "symbol", symbol)
	err := r.db.WithContext(ctx).
		Where("symbol = ?", symbol).
		Order("created_at desc").
		Order("id desc").
		First(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("calibration for %s: %w", symbol, domain.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return toCalibrationRecord(&model)
}

func (r *calibrationRepository) GetHistory(ctx context.Context, symbol string, limit int) ([]*domain.CalibrationRecord, error) {
	var models []VolatilityCalibrationModel
	ctx = logger.ContextWithFields(ctx, "symbol", symbol, "limit", limit)
	if err := r.db.WithContext(ctx).
		Where("symbol = ?", symbol).
		Order("created_at desc").
		Limit(limit).
		Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]*domain.CalibrationRecord, 0, len(models))
	for i := range models {
		rec, err := toCalibrationRecord(&models[i])
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

type reportRepository struct {
	db *gorm.DB
}

// NewReportRepository 创建定价报告仓储
func NewReportRepository(db *gorm.DB) domain.ReportRepository {
	return &reportRepository{db: db}
}

func (r *reportRepository) Save(ctx context.Context, report *domain.PricingReport) error {
	model, err := toReportModel(report)
	if err != nil {
		return err
	}
	ctx = logger.ContextWithFields(ctx, "report_id", report.ID, "symbol", report.Instrument.Symbol)
	return r.db.WithContext(ctx).Create(model).Error
}

func (r *reportRepository) Get(ctx context.Context, id string) (*domain.PricingReport, error) {
	var model PricingReportModel
	ctx = logger.ContextWithFields(ctx, "report_id", id)
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("report %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return toReport(&model)
}
