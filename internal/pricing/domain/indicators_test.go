package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func linearCloses(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = float64(i + 1)
	}
	return out
}

func TestMovingAverages(t *testing.T) {
	assert.Equal(t, []float64{1, 1.5, 2.25, 3.125}, EMA([]float64{1, 2, 3, 4}, 3))
	assert.Equal(t, []float64{2, 3}, SMA([]float64{1, 2, 3, 4}, 3))
	assert.Nil(t, SMA([]float64{1, 2}, 3))
	assert.Nil(t, EMA(nil, 3))
}

func TestRSI(t *testing.T) {
	assert.Equal(t, 100.0, RSI(linearCloses(30), 14))

	alternating := make([]float64, 31)
	for i := range alternating {
		alternating[i] = 100 + float64(i%2)
	}
	assert.InDelta(t, 50.0, RSI(alternating, 10), 1e-12)

	flat := []float64{5, 5, 5, 5}
	assert.Equal(t, 50.0, RSI(flat, 3))

	// 涨 2 跌 1 再涨 1：gain=3, loss=1
	assert.InDelta(t, 75.0, RSI([]float64{10, 12, 11, 12}, 3), 1e-12)
}

func TestComputeIndicators(t *testing.T) {
	closes := linearCloses(60)
	ind, err := ComputeIndicators(closes, DefaultIndicatorConfig())
	require.NoError(t, err)

	assert.Equal(t, 60, ind.Observations)
	assert.Equal(t, 60.0, ind.Close)
	assert.InDelta(t, 50.5, ind.SMAShort, 1e-12)
	assert.InDelta(t, 35.5, ind.SMALong, 1e-12)
	assert.Equal(t, 100.0, ind.RSI)
	// 上升趋势中短期均线领先
	assert.Greater(t, ind.EMAShort, ind.EMALong)
	assert.Greater(t, ind.MACD, 0.0)
	assert.InDelta(t, ind.MACD-ind.MACDSignal, ind.MACDHist, 1e-12)

	flat := make([]float64, 51)
	for i := range flat {
		flat[i] = 42
	}
	ind, err = ComputeIndicators(flat, DefaultIndicatorConfig())
	require.NoError(t, err)
	assert.InDelta(t, 0.0, ind.MACD, 1e-12)
	assert.InDelta(t, 42.0, ind.EMALong, 1e-12)
	assert.Equal(t, 50.0, ind.RSI)
}

func TestComputeIndicatorsRejectsBadInput(t *testing.T) {
	_, err := ComputeIndicators(linearCloses(50), DefaultIndicatorConfig())
	assert.ErrorIs(t, err, ErrInsufficientData)

	_, err = ComputeIndicators(linearCloses(60), IndicatorConfig{ShortWindow: 30, LongWindow: 20, SignalSpan: 9})
	assert.ErrorIs(t, err, ErrInvalidInput)

	closes := linearCloses(60)
	closes[10] = -1
	_, err = ComputeIndicators(closes, DefaultIndicatorConfig())
	assert.ErrorIs(t, err, ErrInvalidInput)
}
