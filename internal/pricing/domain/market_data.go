package domain

import (
	"context"
	"time"
)

// MarketDataProvider 市场数据提供方接口
type MarketDataProvider interface {
	// Snapshot 返回标的最新快照，波动率可为空
	Snapshot(ctx context.Context, symbol string) (MarketSnapshot, error)
	// Closes 返回 [from, to] 区间内按时间升序的收盘价
	Closes(ctx context.Context, symbol string, from, to time.Time) ([]float64, error)
}
