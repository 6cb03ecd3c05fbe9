package domain

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mcOptions(paths int, seed uint64) Options {
	opts := DefaultOptions().WithSeed(seed)
	opts.Paths = paths
	return opts
}

func TestMonteCarloConvergesToAnalytical(t *testing.T) {
	if testing.Short() {
		t.Skip("one million paths")
	}
	ctx := context.Background()
	inst := europeanCall(t)

	bs, err := AnalyticalPricer{}.Price(ctx, inst, atmMarket(), DefaultOptions())
	require.NoError(t, err)
	mc, err := MonteCarloPricer{}.Price(ctx, inst, atmMarket(), mcOptions(1_000_000, 42))
	require.NoError(t, err)

	assert.Less(t, math.Abs(mc.Price-bs.Price), 3*mc.StandardError)
	assert.Equal(t, 1_000_000, mc.PathsUsed)
	assert.Equal(t, 1_000_000, mc.PathsRequested)
	assert.True(t, mc.Converged)
	assert.Greater(t, mc.StandardError, 0.0)
}

func TestMonteCarloSeedDeterminism(t *testing.T) {
	ctx := context.Background()
	asian, err := NewAsian(OptionTypeCall, AveragingArithmetic, 100, 1)
	require.NoError(t, err)

	for _, inst := range []Instrument{europeanCall(t), asian} {
		a, err := MonteCarloPricer{}.Price(ctx, inst, atmMarket(), mcOptions(20_000, 7))
		require.NoError(t, err)
		b, err := MonteCarloPricer{}.Price(ctx, inst, atmMarket(), mcOptions(20_000, 7))
		require.NoError(t, err)
		assert.Equal(t, a.Price, b.Price)
		assert.Equal(t, a.StandardError, b.StandardError)
	}
}

func TestMonteCarloIndependentOfWorkerCount(t *testing.T) {
	ctx := context.Background()
	single := mcOptions(50_000, 7)
	single.Workers = 1
	single.BatchSize = 4_096
	many := single
	many.Workers = 8

	a, err := MonteCarloPricer{}.Price(ctx, europeanCall(t), atmMarket(), single)
	require.NoError(t, err)
	b, err := MonteCarloPricer{}.Price(ctx, europeanCall(t), atmMarket(), many)
	require.NoError(t, err)
	assert.Equal(t, a.Price, b.Price)
	assert.Equal(t, a.StandardError, b.StandardError)
}

func TestMonteCarloDifferentSeedsDiffer(t *testing.T) {
	ctx := context.Background()
	a, err := MonteCarloPricer{}.Price(ctx, europeanCall(t), atmMarket(), mcOptions(1_000, 1))
	require.NoError(t, err)
	b, err := MonteCarloPricer{}.Price(ctx, europeanCall(t), atmMarket(), mcOptions(1_000, 2))
	require.NoError(t, err)
	assert.NotEqual(t, a.Price, b.Price)
}

func TestMonteCarloInvalidInput(t *testing.T) {
	ctx := context.Background()
	_, err := MonteCarloPricer{}.Price(ctx, europeanCall(t), atmMarket(), mcOptions(0, 1))
	assert.ErrorIs(t, err, ErrInvalidPathCount)

	american, err := NewVanilla(StyleAmerican, OptionTypePut, 100, 1)
	require.NoError(t, err)
	_, err = MonteCarloPricer{}.Price(ctx, american, atmMarket(), mcOptions(100, 1))
	assert.ErrorIs(t, err, ErrUnsupportedInstrument)
}

func TestMonteCarloControlVariateReducesAsianError(t *testing.T) {
	ctx := context.Background()
	asian, err := NewAsian(OptionTypeCall, AveragingArithmetic, 100, 1)
	require.NoError(t, err)

	opts := mcOptions(20_000, 11)
	opts.MonitoringSteps = 52
	withCV, err := MonteCarloPricer{}.Price(ctx, asian, atmMarket(), opts)
	require.NoError(t, err)
	opts.ControlVariate = false
	plain, err := MonteCarloPricer{}.Price(ctx, asian, atmMarket(), opts)
	require.NoError(t, err)

	assert.Less(t, withCV.StandardError, plain.StandardError/5)
	assert.InDelta(t, plain.Price, withCV.Price, 4*plain.StandardError)

	geo := GeometricAsianPrice(OptionTypeCall, BlackScholesInput{S: 100, K: 100, T: 1, R: 0.05, V: 0.2}, 52)
	assert.Greater(t, withCV.Price, geo)
}

func TestMonteCarloGeometricAsianMatchesClosedForm(t *testing.T) {
	asian, err := NewAsian(OptionTypePut, AveragingGeometric, 100, 1)
	require.NoError(t, err)
	opts := mcOptions(40_000, 3)
	opts.MonitoringSteps = 12

	mc, err := MonteCarloPricer{}.Price(context.Background(), asian, atmMarket(), opts)
	require.NoError(t, err)
	closed := GeometricAsianPrice(OptionTypePut, BlackScholesInput{S: 100, K: 100, T: 1, R: 0.05, V: 0.2}, 12)
	assert.InDelta(t, closed, mc.Price, 4*mc.StandardError)
}

func TestMonteCarloBarrierInOutParity(t *testing.T) {
	ctx := context.Background()
	opts := mcOptions(10_000, 5)
	opts.MonitoringSteps = 50

	for _, pair := range [][2]BarrierKind{
		{BarrierUpAndIn, BarrierUpAndOut},
		{BarrierDownAndIn, BarrierDownAndOut},
	} {
		level := 120.0
		if pair[0] == BarrierDownAndIn {
			level = 85
		}
		in, err := NewBarrier(OptionTypeCall, Barrier{Kind: pair[0], Level: level}, 100, 1)
		require.NoError(t, err)
		out, err := NewBarrier(OptionTypeCall, Barrier{Kind: pair[1], Level: level}, 100, 1)
		require.NoError(t, err)

		pin, err := MonteCarloPricer{}.Price(ctx, in, atmMarket(), opts)
		require.NoError(t, err)
		pout, err := MonteCarloPricer{}.Price(ctx, out, atmMarket(), opts)
		require.NoError(t, err)

		// 同一组路径上敲入与敲出之和等于普通期权，控制变量修正后即为解析价格
		assert.InDelta(t, 10.450583572185565, pin.Price+pout.Price, 1e-8)
		assert.Greater(t, pin.Price, 0.0)
		assert.Greater(t, pout.Price, 0.0)
	}
}

func TestMonteCarloKnockedOutAtInception(t *testing.T) {
	inst, err := NewBarrier(OptionTypeCall, Barrier{Kind: BarrierUpAndOut, Level: 95}, 100, 1)
	require.NoError(t, err)
	res, err := MonteCarloPricer{}.Price(context.Background(), inst, atmMarket(), mcOptions(1_000, 1))
	require.NoError(t, err)
	assert.InDelta(t, 0.0, res.Price, 1e-12)
}

func TestMonteCarloCancellationReturnsPartialResult(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	opts := mcOptions(100_000_000, 9)
	opts.Workers = 1
	opts.BatchSize = 10_000
	res, err := MonteCarloPricer{}.Price(ctx, europeanCall(t), atmMarket(), opts)
	require.NoError(t, err)
	assert.False(t, res.Converged)
	assert.Less(t, res.PathsUsed, res.PathsRequested)
	assert.Positive(t, res.PathsUsed)
	assert.Zero(t, res.PathsUsed%10_000)
}

func TestMonteCarloCancelledBeforeStart(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := MonteCarloPricer{}.Price(ctx, europeanCall(t), atmMarket(), mcOptions(1_000, 1))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestMomentsMergeMatchesSequential(t *testing.T) {
	var seq, a, b moments
	for i := 0; i < 100; i++ {
		y, x := float64(i%7)+0.5*float64(i), math.Sin(float64(i))
		seq.add(y, x)
		if i < 37 {
			a.add(y, x)
		} else {
			b.add(y, x)
		}
	}
	a.merge(b)
	assert.InDelta(t, seq.meanY, a.meanY, 1e-12)
	assert.InDelta(t, seq.m2Y, a.m2Y, 1e-9)
	assert.InDelta(t, seq.cXY, a.cXY, 1e-9)
	assert.Equal(t, seq.n, a.n)
}

func TestMonteCarloAntitheticReducesError(t *testing.T) {
	asian, err := NewAsian(OptionTypeCall, AveragingArithmetic, 100, 1)
	require.NoError(t, err)

	for _, inst := range []Instrument{europeanCall(t), asian} {
		opts := mcOptions(20_000, 13)
		opts.MonitoringSteps = 12
		opts.ControlVariate = false

		estimate := func(antithetic bool) (float64, float64) {
			sim := newSimulation(inst, atmMarket(), 0.2, opts)
			sim.antithetic = antithetic
			total, err := sim.run(context.Background())
			require.NoError(t, err)
			require.Equal(t, float64(opts.Paths), total.n)
			return total.estimate(false, 0)
		}
		anti, antiSE := estimate(true)
		plain, plainSE := estimate(false)

		// 单调收益下对偶路径负相关，样本对方差低于两条独立路径
		assert.Less(t, antiSE, plainSE/math.Sqrt2, "%s", inst.Payoff)
		assert.InDelta(t, plain, anti, 4*plainSE, "%s", inst.Payoff)
	}
}
