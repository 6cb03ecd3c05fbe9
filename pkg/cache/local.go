package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/allegro/bigcache/v3"
)

// LocalCache 进程内缓存，未配置 Redis 时使用
// 过期时间由创建时的 ttl 统一决定，单次写入的 expiration 参数被忽略
type LocalCache struct {
	cache *bigcache.BigCache
}

// NewLocal 创建进程内缓存
func NewLocal(ctx context.Context, ttl time.Duration) (*LocalCache, error) {
	cfg := bigcache.DefaultConfig(ttl)
	cfg.Verbose = false
	c, err := bigcache.New(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create local cache: %w", err)
	}
	return &LocalCache{cache: c}, nil
}

// GetJSON 读取 JSON 值，命中时返回 true
func (lc *LocalCache) GetJSON(_ context.Context, key string, dest any) (bool, error) {
	data, err := lc.cache.Get(key)
	if errors.Is(err, bigcache.ErrEntryNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return false, fmt.Errorf("decode cached %s: %w", key, err)
	}
	return true, nil
}

// SetJSON 写入 JSON 值
func (lc *LocalCache) SetJSON(_ context.Context, key string, value any, _ time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return lc.cache.Set(key, data)
}

// Delete 删除缓存
func (lc *LocalCache) Delete(_ context.Context, keys ...string) error {
	for _, key := range keys {
		if err := lc.cache.Delete(key); err != nil && !errors.Is(err, bigcache.ErrEntryNotFound) {
			return err
		}
	}
	return nil
}

// Close 释放资源
func (lc *LocalCache) Close() error {
	return lc.cache.Close()
}
