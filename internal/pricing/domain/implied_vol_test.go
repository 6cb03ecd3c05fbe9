package domain

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestImpliedVolatilityRoundTrip(t *testing.T) {
	ctx := context.Background()
	cases := []struct {
		name string
		ot   OptionType
		k, t float64
		mkt  MarketSnapshot
	}{
		{"atm call", OptionTypeCall, 100, 1, atmMarket()},
		{"otm put with dividend", OptionTypePut, 90, 0.5, MarketSnapshot{Spot: 100, RiskFreeRate: 0.03, DividendYield: 0.02}},
		{"itm call short dated", OptionTypeCall, 80, 0.1, atmMarket()},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			inst, err := NewVanilla(StyleEuropean, tc.ot, tc.k, tc.t)
			require.NoError(t, err)
			target, err := AnalyticalPricer{}.Price(ctx, inst, tc.mkt.WithVolatility(0.25), DefaultOptions())
			require.NoError(t, err)

			res, err := ImpliedVolatility(ctx, inst, tc.mkt, target.Price, DefaultOptions(), DefaultCalibrationConfig())
			require.NoError(t, err)
			assert.True(t, res.Converged)
			assert.InDelta(t, 0.25, res.ImpliedVolatility, 1e-6)
			assert.LessOrEqual(t, res.Iterations, 100)
			assert.Equal(t, MethodAnalytical, res.Method)
		})
	}
}

func TestImpliedVolatilityAmericanUsesLattice(t *testing.T) {
	ctx := context.Background()
	american, err := NewVanilla(StyleAmerican, OptionTypePut, 100, 1)
	require.NoError(t, err)
	opts := latticeOptions(200)

	target, err := LatticePricer{}.Price(ctx, american, atmMarket().WithVolatility(0.3), opts)
	require.NoError(t, err)

	res, err := ImpliedVolatility(ctx, american, atmMarket(), target.Price, opts, DefaultCalibrationConfig())
	require.NoError(t, err)
	assert.Equal(t, MethodLattice, res.Method)
	assert.True(t, res.Converged)
	assert.InDelta(t, 0.3, res.ImpliedVolatility, 1e-4)
}

func TestImpliedVolatilityOutsideBracket(t *testing.T) {
	// 看涨期权价格不可能高于现价
	_, err := ImpliedVolatility(context.Background(), europeanCall(t), atmMarket(), 150, DefaultOptions(), DefaultCalibrationConfig())
	require.ErrorIs(t, err, ErrNumericalInstability)

	var diag *NumericalInstabilityError
	require.True(t, errors.As(err, &diag))
	assert.Equal(t, 150.0, diag.Diagnostics["target"])
}

func TestImpliedVolatilityIterationCap(t *testing.T) {
	inst := europeanCall(t)
	target, err := AnalyticalPricer{}.Price(context.Background(), inst, atmMarket().WithVolatility(0.4), DefaultOptions())
	require.NoError(t, err)

	cfg := DefaultCalibrationConfig()
	cfg.MaxIterations = 1
	cfg.Tolerance = 1e-15
	res, err := ImpliedVolatility(context.Background(), inst, atmMarket(), target.Price, DefaultOptions(), cfg)
	require.NoError(t, err)
	assert.False(t, res.Converged)
	assert.Equal(t, 1, res.Iterations)
	assert.NotZero(t, res.Residual)
}

func TestImpliedVolatilityCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	inst := europeanCall(t)
	target, err := AnalyticalPricer{}.Price(ctx, inst, atmMarket().WithVolatility(0.4), DefaultOptions())
	require.NoError(t, err)
	cancel()

	res, err := ImpliedVolatility(ctx, inst, atmMarket(), target.Price, DefaultOptions(), DefaultCalibrationConfig())
	require.NoError(t, err)
	assert.False(t, res.Converged)
}

func TestCalibrationConfigValidate(t *testing.T) {
	cfg := DefaultCalibrationConfig()
	cfg.UpperBound = cfg.LowerBound
	assert.ErrorIs(t, cfg.Validate(), ErrInvalidOptions)
}
