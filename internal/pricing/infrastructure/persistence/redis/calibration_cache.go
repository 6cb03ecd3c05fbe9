package redis

import (
	"context"
	"time"

	"github.com/wyfcoding/pricingrisk/internal/pricing/domain"
	"github.com/wyfcoding/pricingrisk/pkg/logger"
)

const calibrationKeyPrefix = "vol:implied:"

// JSONCache 缓存读写，pkg/cache.RedisCache 实现该接口
type JSONCache interface {
	GetJSON(ctx context.Context, key string, dest any) (bool, error)
	SetJSON(ctx context.Context, key string, value any, expiration time.Duration) error
	Delete(ctx context.Context, keys ...string) error
}

// CalibrationCache 在校准仓储之前缓存每个标的的最新隐含波动率
// 缓存不可用时退化为直接访问下层仓储
type CalibrationCache struct {
	next  domain.CalibrationRepository
	cache JSONCache
	ttl   time.Duration
}

// NewCalibrationCache 创建缓存装饰器，next 可为空（仅缓存）
func NewCalibrationCache(next domain.CalibrationRepository, cache JSONCache, ttl time.Duration) *CalibrationCache {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &CalibrationCache{next: next, cache: cache, ttl: ttl}
}

// CalibrationKey 缓存键
func CalibrationKey(symbol string) string {
	return calibrationKeyPrefix + symbol
}

func (c *CalibrationCache) Save(ctx context.Context, record *domain.CalibrationRecord) error {
	if c.next != nil {
		if err := c.next.Save(ctx, record); err != nil {
			// 下层写失败时删除旧缓存，避免读到过期结果
			_ = c.cache.Delete(ctx, CalibrationKey(record.Symbol))
			return err
		}
	}
	if err := c.cache.SetJSON(ctx, CalibrationKey(record.Symbol), record, c.ttl); err != nil {
		logger.Warn(ctx, "failed to cache calibration", "symbol", record.Symbol, "error", err)
	}
	return nil
}

func (c *CalibrationCache) GetLatest(ctx context.Context, symbol string) (*domain.CalibrationRecord, error) {
	var rec domain.CalibrationRecord
	hit, err := c.cache.GetJSON(ctx, CalibrationKey(symbol), &rec)
	if err != nil {
		logger.Warn(ctx, "calibration cache read failed", "symbol", symbol, "error", err)
	}
	if hit {
		return &rec, nil
	}
	if c.next == nil {
		return nil, domain.ErrNotFound
	}

	latest, err := c.next.GetLatest(ctx, symbol)
	if err != nil {
		return nil, err
	}
	if err := c.cache.SetJSON(ctx, CalibrationKey(symbol), latest, c.ttl); err != nil {
		logger.Warn(ctx, "failed to cache calibration", "symbol", symbol, "error", err)
	}
	return latest, nil
}

func (c *CalibrationCache) GetHistory(ctx context.Context, symbol string, limit int) ([]*domain.CalibrationRecord, error) {
	if c.next == nil {
		latest, err := c.GetLatest(ctx, symbol)
		if err != nil {
			return nil, err
		}
		return []*domain.CalibrationRecord{latest}, nil
	}
	return c.next.GetHistory(ctx, symbol, limit)
}
