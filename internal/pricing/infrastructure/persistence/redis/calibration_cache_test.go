package redis

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/wyfcoding/pricingrisk/internal/pricing/domain"
)

// memoryCache 以 JSON 保存的内存缓存
type memoryCache struct {
	mu      sync.Mutex
	data    map[string][]byte
	ttls    map[string]time.Duration
	failGet bool
}

func newMemoryCache() *memoryCache {
	return &memoryCache{data: map[string][]byte{}, ttls: map[string]time.Duration{}}
}

func (m *memoryCache) GetJSON(_ context.Context, key string, dest any) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failGet {
		return false, errors.New("connection refused")
	}
	b, ok := m.data[key]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(b, dest)
}

func (m *memoryCache) SetJSON(_ context.Context, key string, value any, ttl time.Duration) error {
	b, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = b
	m.ttls[key] = ttl
	return nil
}

func (m *memoryCache) Delete(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.data, k)
	}
	return nil
}

type mockRepo struct {
	mock.Mock
}

func (m *mockRepo) Save(ctx context.Context, r *domain.CalibrationRecord) error {
	return m.Called(ctx, r).Error(0)
}

func (m *mockRepo) GetLatest(ctx context.Context, symbol string) (*domain.CalibrationRecord, error) {
	args := m.Called(ctx, symbol)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.CalibrationRecord), args.Error(1)
}

func (m *mockRepo) GetHistory(ctx context.Context, symbol string, limit int) ([]*domain.CalibrationRecord, error) {
	args := m.Called(ctx, symbol, limit)
	return args.Get(0).([]*domain.CalibrationRecord), args.Error(1)
}

func record(symbol string, vol float64) *domain.CalibrationRecord {
	return &domain.CalibrationRecord{
		Symbol: symbol,
		Result: domain.CalibrationResult{ImpliedVolatility: vol, Converged: true, Method: domain.MethodAnalytical},
	}
}

func TestSaveWritesThrough(t *testing.T) {
	repo := new(mockRepo)
	cache := newMemoryCache()
	c := NewCalibrationCache(repo, cache, time.Minute)
	rec := record("SPX", 0.21)
	repo.On("Save", mock.Anything, rec).Return(nil).Once()

	require.NoError(t, c.Save(context.Background(), rec))
	assert.Contains(t, cache.data, "vol:implied:SPX")
	assert.Equal(t, time.Minute, cache.ttls["vol:implied:SPX"])

	got, err := c.GetLatest(context.Background(), "SPX")
	require.NoError(t, err)
	assert.Equal(t, 0.21, got.Result.ImpliedVolatility)
	repo.AssertNotCalled(t, "GetLatest", mock.Anything, mock.Anything)
}

func TestSaveFailureEvictsCache(t *testing.T) {
	repo := new(mockRepo)
	cache := newMemoryCache()
	c := NewCalibrationCache(repo, cache, 0)
	require.NoError(t, cache.SetJSON(context.Background(), CalibrationKey("SPX"), record("SPX", 0.3), time.Minute))

	repo.On("Save", mock.Anything, mock.Anything).Return(errors.New("deadlock")).Once()
	assert.Error(t, c.Save(context.Background(), record("SPX", 0.25)))
	assert.NotContains(t, cache.data, CalibrationKey("SPX"))
}

func TestGetLatestMissFillsCache(t *testing.T) {
	repo := new(mockRepo)
	cache := newMemoryCache()
	c := NewCalibrationCache(repo, cache, time.Minute)
	repo.On("GetLatest", mock.Anything, "NDX").Return(record("NDX", 0.27), nil).Once()

	got, err := c.GetLatest(context.Background(), "NDX")
	require.NoError(t, err)
	assert.Equal(t, 0.27, got.Result.ImpliedVolatility)
	assert.Contains(t, cache.data, CalibrationKey("NDX"))

	_, err = c.GetLatest(context.Background(), "NDX")
	require.NoError(t, err)
	repo.AssertExpectations(t)
}

func TestGetLatestCacheFailureFallsBack(t *testing.T) {
	repo := new(mockRepo)
	cache := newMemoryCache()
	cache.failGet = true
	c := NewCalibrationCache(repo, cache, time.Minute)
	repo.On("GetLatest", mock.Anything, "SPX").Return(record("SPX", 0.2), nil).Once()

	got, err := c.GetLatest(context.Background(), "SPX")
	require.NoError(t, err)
	assert.Equal(t, 0.2, got.Result.ImpliedVolatility)
}

func TestCacheOnly(t *testing.T) {
	c := NewCalibrationCache(nil, newMemoryCache(), time.Minute)
	_, err := c.GetLatest(context.Background(), "SPX")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	require.NoError(t, c.Save(context.Background(), record("SPX", 0.19)))
	hist, err := c.GetHistory(context.Background(), "SPX", 5)
	require.NoError(t, err)
	require.Len(t, hist, 1)
	assert.Equal(t, 0.19, hist[0].Result.ImpliedVolatility)
}
