package domain

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/exp/rand"
)

// simulateGARCH 生成 GARCH(1,1) 收益序列
func simulateGARCH(n int, omega, alpha, beta float64, seed uint64) []float64 {
	rng := rand.New(rand.NewSource(seed))
	out := make([]float64, n)
	v := omega / (1 - alpha - beta)
	prev := 0.0
	for i := range out {
		v = omega + alpha*prev*prev + beta*v
		prev = math.Sqrt(v) * rng.NormFloat64()
		out[i] = prev
	}
	return out
}

func TestForecastRecoversPersistence(t *testing.T) {
	returns := simulateGARCH(2000, 2e-6, 0.08, 0.9, 17)

	res, err := Forecast(context.Background(), returns, DefaultForecastConfig())
	require.NoError(t, err)

	assert.True(t, res.Converged)
	assert.Equal(t, 2000, res.Observations)
	assert.Equal(t, ModelOrder{AR: 1, P: 1, Q: 1}, res.Order)
	assert.InDelta(t, 0.98, res.Params.Persistence(), 0.08)
	assert.Less(t, res.Params.Persistence(), 1.0)
	assert.Greater(t, res.Params.Omega, 0.0)
	assert.Len(t, res.Series, 10)

	// 无条件日波动率 1%，年化约 15.9%
	assert.InDelta(t, 0.159, res.ForecastedVolatility, 0.1)
	assert.Less(t, res.ConfidenceInterval.Lower, res.ForecastedVolatility)
	assert.Greater(t, res.ConfidenceInterval.Upper, res.ForecastedVolatility)
	assert.Equal(t, 0.95, res.ConfidenceInterval.Level)
	assert.False(t, math.IsNaN(res.LogLikelihood))
	assert.Greater(t, res.HistoricalVolatility, 0.0)
}

func TestForecastHigherOrder(t *testing.T) {
	returns := simulateGARCH(600, 5e-6, 0.1, 0.85, 3)
	cfg := DefaultForecastConfig()
	cfg.Order = ModelOrder{AR: 0, P: 2, Q: 1}
	cfg.Horizon = 5

	res, err := Forecast(context.Background(), returns, cfg)
	require.NoError(t, err)
	assert.Len(t, res.Params.Alpha, 1)
	assert.Len(t, res.Params.Beta, 2)
	assert.Zero(t, res.Params.Phi)
	assert.Less(t, res.Params.Persistence(), 1.0)
	for _, v := range res.Series {
		assert.Greater(t, v, 0.0)
	}
}

func TestForecastInsufficientData(t *testing.T) {
	returns := simulateGARCH(29, 2e-6, 0.08, 0.9, 1)
	_, err := Forecast(context.Background(), returns, DefaultForecastConfig())
	assert.ErrorIs(t, err, ErrInsufficientData)

	returns = simulateGARCH(30, 2e-6, 0.08, 0.9, 1)
	_, err = Forecast(context.Background(), returns, DefaultForecastConfig())
	assert.NoError(t, err)
}

func TestForecastRejectsBadInput(t *testing.T) {
	flat := make([]float64, 40)
	_, err := Forecast(context.Background(), flat, DefaultForecastConfig())
	assert.ErrorIs(t, err, ErrInvalidInput)

	noisy := simulateGARCH(40, 2e-6, 0.08, 0.9, 2)
	noisy[5] = math.NaN()
	_, err = Forecast(context.Background(), noisy, DefaultForecastConfig())
	assert.ErrorIs(t, err, ErrInvalidInput)

	cfg := DefaultForecastConfig()
	cfg.Order.AR = 2
	_, err = Forecast(context.Background(), simulateGARCH(40, 2e-6, 0.08, 0.9, 2), cfg)
	assert.ErrorIs(t, err, ErrInvalidOptions)
}

func TestReturns(t *testing.T) {
	closes := []float64{100, 110, 99}

	simple, err := SimpleReturns(closes)
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{0.1, -0.1}, simple, 1e-12)

	logs, err := LogReturns(closes)
	require.NoError(t, err)
	assert.InDelta(t, math.Log(1.1), logs[0], 1e-12)

	_, err = LogReturns([]float64{100})
	assert.ErrorIs(t, err, ErrInsufficientData)
	_, err = SimpleReturns([]float64{100, 0})
	assert.ErrorIs(t, err, ErrInvalidInput)
}
