package domain

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func latticeOptions(steps int) Options {
	opts := DefaultOptions()
	opts.Steps = steps
	return opts
}

func TestLatticeConvergesToAnalytical(t *testing.T) {
	ctx := context.Background()
	for _, ot := range []OptionType{OptionTypeCall, OptionTypePut} {
		inst, err := NewVanilla(StyleEuropean, ot, 100, 1)
		require.NoError(t, err)

		bs, err := AnalyticalPricer{}.Price(ctx, inst, atmMarket(), DefaultOptions())
		require.NoError(t, err)
		tree, err := LatticePricer{}.Price(ctx, inst, atmMarket(), latticeOptions(2000))
		require.NoError(t, err)

		assert.InDelta(t, bs.Price, tree.Price, 0.01, "%s", ot)
		assert.Equal(t, 2000, tree.Steps)
		assert.Equal(t, MethodLattice, tree.Method)
	}
}

func TestLatticeAmericanPutDominatesEuropean(t *testing.T) {
	ctx := context.Background()
	european, err := NewVanilla(StyleEuropean, OptionTypePut, 100, 1)
	require.NoError(t, err)
	american, err := NewVanilla(StyleAmerican, OptionTypePut, 100, 1)
	require.NoError(t, err)

	for _, steps := range []int{1, 10, 200, 1000} {
		eu, err := LatticePricer{}.Price(ctx, european, atmMarket(), latticeOptions(steps))
		require.NoError(t, err)
		am, err := LatticePricer{}.Price(ctx, american, atmMarket(), latticeOptions(steps))
		require.NoError(t, err)
		assert.GreaterOrEqual(t, am.Price, eu.Price, "steps=%d", steps)
	}

	eu, _ := LatticePricer{}.Price(ctx, european, atmMarket(), latticeOptions(500))
	am, _ := LatticePricer{}.Price(ctx, american, atmMarket(), latticeOptions(500))
	assert.Greater(t, am.Price-eu.Price, 0.3)
}

func TestLatticeAmericanCallWithoutDividendEqualsEuropean(t *testing.T) {
	ctx := context.Background()
	american, err := NewVanilla(StyleAmerican, OptionTypeCall, 100, 1)
	require.NoError(t, err)
	european, err := NewVanilla(StyleEuropean, OptionTypeCall, 100, 1)
	require.NoError(t, err)

	eu, err := LatticePricer{}.Price(ctx, european, atmMarket(), latticeOptions(300))
	require.NoError(t, err)
	am, err := LatticePricer{}.Price(ctx, american, atmMarket(), latticeOptions(300))
	require.NoError(t, err)
	assert.InDelta(t, eu.Price, am.Price, 1e-10)
}

func TestLatticeInvalidStepCount(t *testing.T) {
	_, err := LatticePricer{}.Price(context.Background(), europeanCall(t), atmMarket(), latticeOptions(0))
	assert.ErrorIs(t, err, ErrInvalidStepCount)
}

func TestLatticeNumericalInstability(t *testing.T) {
	mkt := atmMarket().WithVolatility(1e-4)
	_, err := LatticePricer{}.Price(context.Background(), europeanCall(t), mkt, latticeOptions(10))
	require.ErrorIs(t, err, ErrNumericalInstability)

	var diag *NumericalInstabilityError
	require.True(t, errors.As(err, &diag))
	assert.Greater(t, diag.Diagnostics["p"], 1.0)
	assert.Contains(t, diag.Diagnostics, "u")
}

func TestLatticeStableAtMinimumVolatility(t *testing.T) {
	mkt := atmMarket()
	floor := MinStableVolatility(mkt, 1, 50)
	_, err := LatticePricer{}.Price(context.Background(), europeanCall(t), mkt.WithVolatility(floor), latticeOptions(50))
	assert.NoError(t, err)
}

func TestLatticeRejectsPathDependent(t *testing.T) {
	inst, err := NewBarrier(OptionTypeCall, Barrier{Kind: BarrierUpAndOut, Level: 130}, 100, 1)
	require.NoError(t, err)
	_, err = LatticePricer{}.Price(context.Background(), inst, atmMarket(), latticeOptions(10))
	assert.ErrorIs(t, err, ErrUnsupportedInstrument)
}

func TestLatticeHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := LatticePricer{}.Price(ctx, europeanCall(t), atmMarket(), latticeOptions(100))
	assert.ErrorIs(t, err, context.Canceled)
}
