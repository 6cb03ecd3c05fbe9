package application

import (
	"context"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/wyfcoding/pricingrisk/internal/pricing/domain"
)

type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) PublishOptionPriced(ctx context.Context, event domain.OptionPricedEvent) error {
	return m.Called(ctx, event).Error(0)
}

func (m *MockPublisher) PublishGreeksCalculated(ctx context.Context, event domain.GreeksCalculatedEvent) error {
	return m.Called(ctx, event).Error(0)
}

func (m *MockPublisher) PublishVolatilityCalibrated(ctx context.Context, event domain.VolatilityCalibratedEvent) error {
	return m.Called(ctx, event).Error(0)
}

func (m *MockPublisher) PublishVolatilityForecasted(ctx context.Context, event domain.VolatilityForecastedEvent) error {
	return m.Called(ctx, event).Error(0)
}

func (m *MockPublisher) PublishPricingError(ctx context.Context, event domain.PricingErrorEvent) error {
	return m.Called(ctx, event).Error(0)
}

func (m *MockPublisher) PublishBatchPricingCompleted(ctx context.Context, event domain.BatchPricingCompletedEvent) error {
	return m.Called(ctx, event).Error(0)
}

type MockCalibrationRepository struct {
	mock.Mock
}

func (m *MockCalibrationRepository) Save(ctx context.Context, record *domain.CalibrationRecord) error {
	return m.Called(ctx, record).Error(0)
}

func (m *MockCalibrationRepository) GetLatest(ctx context.Context, symbol string) (*domain.CalibrationRecord, error) {
	args := m.Called(ctx, symbol)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.CalibrationRecord), args.Error(1)
}

func (m *MockCalibrationRepository) GetHistory(ctx context.Context, symbol string, limit int) ([]*domain.CalibrationRecord, error) {
	args := m.Called(ctx, symbol, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.CalibrationRecord), args.Error(1)
}

type MockReportRepository struct {
	mock.Mock
}

func (m *MockReportRepository) Save(ctx context.Context, report *domain.PricingReport) error {
	return m.Called(ctx, report).Error(0)
}

func (m *MockReportRepository) Get(ctx context.Context, id string) (*domain.PricingReport, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.PricingReport), args.Error(1)
}

type MockMarketData struct {
	mock.Mock
}

func (m *MockMarketData) Snapshot(ctx context.Context, symbol string) (domain.MarketSnapshot, error) {
	args := m.Called(ctx, symbol)
	return args.Get(0).(domain.MarketSnapshot), args.Error(1)
}

func (m *MockMarketData) Closes(ctx context.Context, symbol string, from, to time.Time) ([]float64, error) {
	args := m.Called(ctx, symbol, from, to)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]float64), args.Error(1)
}

// fakeRecorder 记录指标调用
type fakeRecorder struct {
	mu           sync.Mutex
	pricing      map[string]int
	calibrations int
	forecasts    int
	success      int
	failure      int
}

func newFakeRecorder() *fakeRecorder {
	return &fakeRecorder{pricing: make(map[string]int)}
}

func (r *fakeRecorder) ObservePricing(method, status string, _ float64, _ int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pricing[method+"/"+status]++
}

func (r *fakeRecorder) ObserveCalibration(int, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calibrations++
}

func (r *fakeRecorder) ObserveForecast(bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.forecasts++
}

func (r *fakeRecorder) ObservePortfolio(success, failure int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.success += success
	r.failure += failure
}
