package marketdata

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/wyfcoding/pricingrisk/internal/pricing/domain"
)

// Bar 单根收盘价
type Bar struct {
	Time  time.Time
	Close float64
}

// MemoryProvider 内存行情源
type MemoryProvider struct {
	mu        sync.RWMutex
	snapshots map[string]domain.MarketSnapshot
	bars      map[string][]Bar
}

var _ domain.MarketDataProvider = (*MemoryProvider)(nil)

// NewMemoryProvider 创建空的内存行情源
func NewMemoryProvider() *MemoryProvider {
	return &MemoryProvider{
		snapshots: make(map[string]domain.MarketSnapshot),
		bars:      make(map[string][]Bar),
	}
}

// SetSnapshot 设置标的快照
func (p *MemoryProvider) SetSnapshot(symbol string, snap domain.MarketSnapshot) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.snapshots[symbol] = snap
}

// AddBars 追加收盘价，保持时间升序
func (p *MemoryProvider) AddBars(symbol string, bars ...Bar) {
	p.mu.Lock()
	defer p.mu.Unlock()
	merged := append(p.bars[symbol], bars...)
	sort.SliceStable(merged, func(i, j int) bool { return merged[i].Time.Before(merged[j].Time) })
	p.bars[symbol] = merged
}

// Snapshot 返回快照。未显式设置时以最新收盘价作为现价
func (p *MemoryProvider) Snapshot(ctx context.Context, symbol string) (domain.MarketSnapshot, error) {
	if err := ctx.Err(); err != nil {
		return domain.MarketSnapshot{}, err
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	if snap, ok := p.snapshots[symbol]; ok {
		return snap, nil
	}
	bars := p.bars[symbol]
	if len(bars) == 0 {
		return domain.MarketSnapshot{}, fmt.Errorf("market snapshot %s: %w", symbol, domain.ErrNotFound)
	}
	last := bars[len(bars)-1]
	return domain.MarketSnapshot{Spot: last.Close, ValuationDate: last.Time}, nil
}

// Closes 返回 [from, to] 区间内的收盘价，零值边界表示不限
func (p *MemoryProvider) Closes(ctx context.Context, symbol string, from, to time.Time) ([]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	bars, ok := p.bars[symbol]
	if !ok {
		return nil, fmt.Errorf("price history %s: %w", symbol, domain.ErrNotFound)
	}
	out := make([]float64, 0, len(bars))
	for _, b := range bars {
		if !from.IsZero() && b.Time.Before(from) {
			continue
		}
		if !to.IsZero() && b.Time.After(to) {
			break
		}
		out = append(out, b.Close)
	}
	return out, nil
}
