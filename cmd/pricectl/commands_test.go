package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wyfcoding/pricingrisk/internal/pricing/domain"
	"golang.org/x/exp/rand"
)

const atmRequest = `{
  "instrument": {"symbol": "SPX-100", "style": "EUROPEAN", "payoff": "VANILLA", "option_type": "CALL", "strike": 100, "maturity": 1},
  "market": {"spot": 100, "risk_free_rate": 0.05, "volatility": 0.2}
}`

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestPriceCommand(t *testing.T) {
	out, err := execute(t, "price", "-f", writeFile(t, "req.json", atmRequest))
	require.NoError(t, err)

	var report domain.PricingReport
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.InDelta(t, 10.450583572185565, report.Pricing.Price, 1e-9)
	assert.Equal(t, domain.MethodAnalytical, report.Method)
}

func TestPriceCommandBothSidesSatisfiesParity(t *testing.T) {
	out, err := execute(t, "price", "--both-sides", "-f", writeFile(t, "req.json", atmRequest))
	require.NoError(t, err)

	var reports map[domain.OptionType]domain.PricingReport
	require.NoError(t, json.Unmarshal([]byte(out), &reports))
	call := reports[domain.OptionTypeCall].Pricing.Price
	put := reports[domain.OptionTypePut].Pricing.Price
	// C - P = S - K e^{-rT}
	assert.InDelta(t, 100-100*0.951229424500714, call-put, 1e-6)
}

func TestPriceCommandFlagsOverrideOptions(t *testing.T) {
	out, err := execute(t, "price", "--method", "MONTE_CARLO", "--paths", "2000", "--seed", "7",
		"-f", writeFile(t, "req.json", atmRequest))
	require.NoError(t, err)

	var report domain.PricingReport
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.Equal(t, domain.MethodMonteCarlo, report.Method)
	assert.Equal(t, 2000, report.Pricing.PathsUsed)
	assert.Greater(t, report.Pricing.StandardError, 0.0)
}

func TestGreeksAndImpliedVolCommands(t *testing.T) {
	req := writeFile(t, "req.json", atmRequest)

	out, err := execute(t, "greeks", "-f", req)
	require.NoError(t, err)
	var g domain.GreekSet
	require.NoError(t, json.Unmarshal([]byte(out), &g))
	assert.InDelta(t, 0.6368, g.Delta, 1e-4)

	out, err = execute(t, "implied-vol", "-f", req, "--market-price", "10.450583572185565")
	require.NoError(t, err)
	var res domain.CalibrationResult
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.True(t, res.Converged)
	assert.InDelta(t, 0.2, res.ImpliedVolatility, 1e-6)

	_, err = execute(t, "implied-vol", "-f", req)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestForecastCommand(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	var csv strings.Builder
	csv.WriteString("symbol,date,close\n")
	price := 50.0
	for i := 0; i < 80; i++ {
		price *= 1 + 0.015*rng.NormFloat64()
		fmt.Fprintf(&csv, "XYZ,2025-%02d-%02d,%.4f\n", 1+i/28, 1+i%28, price)
	}
	history := writeFile(t, "history.csv", csv.String())

	out, err := execute(t, "forecast", "--history", history, "--symbol", "XYZ", "--horizon", "4")
	require.NoError(t, err)
	var res domain.ForecastResult
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, 79, res.Observations)
	assert.Len(t, res.Series, 4)

	_, err = execute(t, "forecast")
	assert.ErrorContains(t, err, "--returns or --history")

	_, err = execute(t, "forecast", "--returns", writeFile(t, "r.json", "[0.01, -0.01]"))
	assert.ErrorIs(t, err, domain.ErrInsufficientData)
}

func TestIndicatorsCommand(t *testing.T) {
	var csv strings.Builder
	for i := 0; i < 60; i++ {
		fmt.Fprintf(&csv, "ABC,2025-%02d-%02d,%d\n", 1+i/28, 1+i%28, 100+i)
	}
	history := writeFile(t, "history.csv", csv.String())

	out, err := execute(t, "indicators", "--history", history, "--symbol", "ABC")
	require.NoError(t, err)
	var res domain.TechnicalIndicators
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, 60, res.Observations)
	assert.InDelta(t, 149.5, res.SMAShort, 1e-9)
	assert.Equal(t, 100.0, res.RSI)

	_, err = execute(t, "indicators", "--history", history, "--symbol", "ABC", "--long", "80")
	assert.ErrorIs(t, err, domain.ErrInsufficientData)

	_, err = execute(t, "indicators", "--history", history)
	assert.ErrorContains(t, err, "--symbol")
}
